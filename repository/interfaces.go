package repository

import (
	"context"

	"deliveryFieldOps/models"
)

// DriverRepositoryI defines operations on Driver accounts.
type DriverRepositoryI interface {
	Create(ctx context.Context, username, passwordHash string) (*models.Driver, error)
	Upsert(ctx context.Context, username, passwordHash, status string) (*models.Driver, error)
	GetByUsername(ctx context.Context, username string) (*models.Driver, error)
	UpdateLocation(ctx context.Context, username string, lat, lng float64) error
	UpdateStatus(ctx context.Context, username, status string) error
	List(ctx context.Context, limit, offset int) ([]models.Driver, error)
}

// DeliveryRepositoryI defines operations on the per-day delivery list.
type DeliveryRepositoryI interface {
	Upsert(ctx context.Context, day string, rec models.DeliveryRecord) (*models.DeliveryRecord, error)
	GetByID(ctx context.Context, id string) (*models.DeliveryRecord, error)
	ListByDay(ctx context.Context, day string) ([]models.DeliveryRecord, error)
	ListByDriver(ctx context.Context, day, driver string) ([]models.DeliveryRecord, error)
	CountByStatus(ctx context.Context, day string) (map[models.DeliveryStatus]int, error)
	UpdateStatus(ctx context.Context, id string, status models.DeliveryStatus, driver string) error
	MarkMessageSent(ctx context.Context, day, contact string) (int64, error)
	Delete(ctx context.Context, id string) error
}

// MessageRepositoryI defines operations on customer messages.
type MessageRepositoryI interface {
	Create(ctx context.Context, m *models.CustomerMessage) (*models.CustomerMessage, error)
	ListByDriver(ctx context.Context, driver string) ([]models.CustomerMessage, error)
}

// OutboxRepositoryI defines the durable outbound queue used by the driver client.
type OutboxRepositoryI interface {
	Enqueue(ctx context.Context, event string, payload []byte) error
	Pending(ctx context.Context, limit int) ([]models.OutboundMessage, error)
	Ack(ctx context.Context, seq int64) error
	Len(ctx context.Context) (int, error)
}
