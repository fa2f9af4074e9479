package deliveries

import (
	"context"
	"fmt"

	"deliveryFieldOps/internal/channel"
	"deliveryFieldOps/models"
)

// NotifyRequest is the payload of send-message.
type NotifyRequest struct {
	Contact string `json:"contact"`
	Message string `json:"message"`
}

// StartDelivery assigns the delivery to driver and marks it in progress, locally
// first and then on the server.
func (c *Cache) StartDelivery(ctx context.Context, id, driver string) (models.DeliveryRecord, error) {
	rec, ok := c.mutate(id, func(r *models.DeliveryRecord) {
		r.Status = models.DeliveryStatusInProgress
		r.Driver = driver
	})
	if !ok {
		return models.DeliveryRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := c.ch.Emit(ctx, channel.EventUpdateDelivery, rec); err != nil {
		return rec, err
	}
	c.log.Info("delivery started", "id", id, "driver", driver)
	return rec, nil
}

// UpdateDelivery sends a full record update. A cached record with the same id
// is replaced optimistically.
func (c *Cache) UpdateDelivery(ctx context.Context, rec models.DeliveryRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record without id", ErrNotFound)
	}
	if rec.Status == models.DeliveryStatusAvailable {
		rec.Driver = ""
	}
	c.mutate(rec.ID, func(r *models.DeliveryRecord) { *r = rec.Clone() })
	return c.ch.Emit(ctx, channel.EventUpdateDelivery, rec)
}

// NotifyCustomer sends message to the delivery's phone and marks the
// notification as sent.
func (c *Cache) NotifyCustomer(ctx context.Context, id, message string) error {
	rec, ok := c.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.Phone == "" {
		return ErrNoContact
	}
	if err := c.ch.Emit(ctx, channel.EventSendMessage, NotifyRequest{Contact: rec.Phone, Message: message}); err != nil {
		return err
	}
	c.mutate(id, func(r *models.DeliveryRecord) { r.MessageStatus = models.MessageStatusSent })
	return nil
}
