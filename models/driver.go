package models

// Driver is a driver account as stored by the coordination server.
// It maps to the `drivers` table.
type Driver struct {
	ID           int64    `db:"id" json:"id"`
	UserName     string   `db:"username" json:"userName"`
	PasswordHash string   `db:"password_hash" json:"-"`
	Status       string   `db:"status" json:"status"`
	Location     Location `json:"location"`
	UpdatedAt    string   `db:"updated_at" json:"updated_at,omitempty"`
}

// Session returns the wire Session for this driver. The secret is never echoed back.
func (d *Driver) Session() Session {
	return Session{UserName: d.UserName, Status: d.Status, Location: d.Location}
}

// CustomerMessage is a notification sent by a driver to a delivery contact.
type CustomerMessage struct {
	ID      int64  `db:"id" json:"id"`
	Driver  string `db:"driver" json:"driver"`
	Contact string `json:"contact"`
	Message string `json:"message"`
	SentAt  string `db:"sent_at" json:"sent_at"`
}

// OutboundMessage is a fire-and-forget emission waiting for the channel to reconnect.
type OutboundMessage struct {
	Seq      int64  `db:"seq"`
	Event    string `db:"event"`
	Payload  []byte `db:"payload"`
	QueuedAt string `db:"queued_at"`
}
