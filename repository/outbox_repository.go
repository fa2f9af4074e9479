package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"deliveryFieldOps/models"
)

// OutboxRepository is the durable FIFO of fire-and-forget emissions made while the
// channel was down. Entries survive a client restart and are removed only once sent.
type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue appends an event to the tail of the queue.
func (r *OutboxRepository) Enqueue(ctx context.Context, event string, payload []byte) error {
	if event == "" {
		return errors.New("event is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `INSERT INTO outbox (event, payload) VALUES (?, ?)`, event, payload)
	return err
}

// Pending returns up to limit entries from the head of the queue without removing them.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]models.OutboundMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT seq, event, payload, queued_at FROM outbox ORDER BY seq LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.OutboundMessage
	for rows.Next() {
		var m models.OutboundMessage
		if err := rows.Scan(&m.Seq, &m.Event, &m.Payload, &m.QueuedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Ack removes a sent entry.
func (r *OutboxRepository) Ack(ctx context.Context, seq int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE seq = ?`, seq)
	return err
}

// Len reports how many entries are waiting.
func (r *OutboxRepository) Len(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n)
	return n, err
}
