package models

import "strconv"

// DeliveryStatus is the server-defined delivery state. The vocabulary is open:
// values outside the constants below are kept as-is.
type DeliveryStatus string

const (
	DeliveryStatusAvailable  DeliveryStatus = "Disponível"
	DeliveryStatusInProgress DeliveryStatus = "Andamento"
	DeliveryStatusCompleted  DeliveryStatus = "Concluída"
	DeliveryStatusPending    DeliveryStatus = "Pendente"
	DeliveryStatusCanceled   DeliveryStatus = "Cancelada"
	DeliveryStatusDelivered  DeliveryStatus = "Entregue"
	DeliveryStatusEnRoute    DeliveryStatus = "Em rota"
)

// MessageStatusSent marks a delivery whose customer notification went out.
const MessageStatusSent = "Enviada"

// DeliveryRecord is one assignment in the day's delivery list.
// Only ID, Status and Driver matter to the client core; the rest is display data.
type DeliveryRecord struct {
	ID            string         `json:"id,omitempty"`
	Status        DeliveryStatus `json:"status,omitempty"`
	Driver        string         `json:"entregador,omitempty"`
	MessageStatus string         `json:"statusMensagem,omitempty"`
	Name          string         `json:"nome,omitempty"`
	Phone         string         `json:"telefone,omitempty"`
	City          string         `json:"cidade,omitempty"`
	District      string         `json:"bairro,omitempty"`
	Street        string         `json:"rua,omitempty"`
	Number        string         `json:"numero,omitempty"`
	Value         string         `json:"valor,omitempty"`
	Payment       string         `json:"pagamento,omitempty"`
	PaymentStatus string         `json:"statusPagamento,omitempty"`
	Notes         string         `json:"observacoes,omitempty"`
	Schedule      []string       `json:"horario,omitempty"` // [start, end]
	Coordinates   *Location      `json:"coordenadas,omitempty"`
}

// ListKey returns the record id, or a synthesized key when the server has not
// assigned one yet. The synthesized key is for list rendering only and must
// never be sent back to the server.
func (d DeliveryRecord) ListKey(index int) string {
	if d.ID != "" {
		return d.ID
	}
	return "entrega-" + strconv.Itoa(index)
}

// Clone returns a deep copy.
func (d DeliveryRecord) Clone() DeliveryRecord {
	c := d
	if d.Schedule != nil {
		c.Schedule = append([]string(nil), d.Schedule...)
	}
	if d.Coordinates != nil {
		loc := *d.Coordinates
		c.Coordinates = &loc
	}
	return c
}

// CloneDeliveries deep-copies a delivery sequence, preserving order.
func CloneDeliveries(in []DeliveryRecord) []DeliveryRecord {
	if in == nil {
		return nil
	}
	out := make([]DeliveryRecord, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
