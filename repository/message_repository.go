package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"deliveryFieldOps/models"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create stores a customer message and returns it with its id and timestamp.
func (r *MessageRepository) Create(ctx context.Context, m *models.CustomerMessage) (*models.CustomerMessage, error) {
	if m == nil {
		return nil, errors.New("message is nil")
	}
	if m.Contact == "" {
		return nil, errors.New("contact is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO messages (driver, contact, message) VALUES (?,?,?)`, m.Driver, m.Contact, m.Message)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *m
	out.ID = id
	if err := r.db.QueryRowContext(ctx, `SELECT sent_at FROM messages WHERE id = ?`, id).Scan(&out.SentAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByDriver returns the messages sent by a driver, oldest first.
func (r *MessageRepository) ListByDriver(ctx context.Context, driver string) ([]models.CustomerMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT id, driver, contact, message, sent_at FROM messages WHERE driver = ? ORDER BY id`, driver)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.CustomerMessage
	for rows.Next() {
		var m models.CustomerMessage
		if err := rows.Scan(&m.ID, &m.Driver, &m.Contact, &m.Message, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
