package channel

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Application events exchanged with the coordination server.
const (
	EventAuthenticate    = "authenticate-user"
	EventDailyDeliveries = "daily-deliveries"
	EventUpdateDelivery  = "update-delivery"
	EventSendMessage     = "send-message"
	EventLocateDriver    = "locate-driver"
)

// Lifecycle pseudo-events raised by the transport itself. They never travel on the wire.
const (
	EventConnect          = "connect"
	EventDisconnect       = "disconnect"
	EventConnectError     = "connect_error"
	EventReconnectAttempt = "reconnect_attempt"
	EventReconnectFailed  = "reconnect_failed"
)

var (
	// ErrTimeout is returned when a request gets no reply in time.
	ErrTimeout = errors.New("channel: request timed out")
	// ErrNotConnected is returned when a write finds no live connection.
	ErrNotConnected = errors.New("channel: not connected")
	// ErrClosed is returned by connections that were closed locally.
	ErrClosed = errors.New("channel: connection closed")
	// ErrUnsupportedTransport is returned for transport names without a dialer.
	ErrUnsupportedTransport = errors.New("channel: unsupported transport")
	// ErrOutboxFull is returned when the in-memory outbound queue is at capacity.
	ErrOutboxFull = errors.New("channel: outbound queue full")
)

// Envelope is the unit on the wire. ID correlates a reply with its request and is
// empty on pushes.
type Envelope struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload into an envelope. A payload that is already
// json.RawMessage or []byte is used verbatim.
func NewEnvelope(event, id string, payload any) (Envelope, error) {
	if event == "" {
		return Envelope{}, errors.New("channel: empty event name")
	}
	var data json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = json.RawMessage(p)
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("channel: encode %s payload: %w", event, err)
		}
		data = b
	}
	return Envelope{Event: event, ID: id, Data: data}, nil
}

// Handler receives the raw data of a message. Handlers run on the transport's
// dispatch goroutine, in arrival order, and must not block on Request.
type Handler func(data json.RawMessage)

// ListenerID identifies a registration made with On or Once.
type ListenerID uint64

type listener struct {
	id   ListenerID
	fn   Handler
	once bool
}

func lifecycleData(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
