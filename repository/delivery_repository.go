package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deliveryFieldOps/models"
)

// DeliveryRepository stores the per-day delivery list. Each record is kept as the
// JSON document the clients see, with id/status/driver mirrored into columns for
// querying. Position preserves the order the list was built in.
type DeliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository creates a new DeliveryRepository.
func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Upsert inserts or replaces a record for the given day. Records without an id get a
// fresh uuid. New records are appended to the end of the day's list; existing records
// keep their position.
func (r *DeliveryRepository) Upsert(ctx context.Context, day string, rec models.DeliveryRecord) (*models.DeliveryRecord, error) {
	if day == "" {
		return nil, errors.New("day is empty")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == models.DeliveryStatusAvailable {
		rec.Driver = ""
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode delivery: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var position int64
	err = tx.QueryRowContext(ctx, `SELECT position FROM deliveries WHERE id = ?`, rec.ID).Scan(&position)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM deliveries WHERE day = ?`, day).Scan(&position); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO deliveries (id, day, position, status, driver, record) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET status = excluded.status, driver = excluded.driver, record = excluded.record, updated_at = CURRENT_TIMESTAMP`,
		rec.ID, day, position, string(rec.Status), rec.Driver, string(body))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByID fetches a record by id, or nil when it does not exist.
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*models.DeliveryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT record FROM deliveries WHERE id = ?`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var rec models.DeliveryRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("decode delivery %s: %w", id, err)
	}
	return &rec, nil
}

// UpdateStatus changes the status of a record and its assigned driver. Moving a record
// back to available clears the driver.
func (r *DeliveryRepository) UpdateStatus(ctx context.Context, id string, status models.DeliveryStatus, driver string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var body string
	if err := tx.QueryRowContext(ctx, `SELECT record FROM deliveries WHERE id = ?`, id).Scan(&body); err != nil {
		return err
	}
	var rec models.DeliveryRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return fmt.Errorf("decode delivery %s: %w", id, err)
	}
	rec.Status = status
	if driver != "" {
		rec.Driver = driver
	}
	if status == models.DeliveryStatusAvailable {
		rec.Driver = ""
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE deliveries SET status = ?, driver = ?, record = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(rec.Status), rec.Driver, string(out), id); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkMessageSent flags every record of the day whose phone matches contact as
// notified. It returns the number of records touched.
func (r *DeliveryRepository) MarkMessageSent(ctx context.Context, day, contact string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE deliveries SET record = json_set(record, '$.statusMensagem', ?), updated_at = CURRENT_TIMESTAMP
WHERE day = ? AND json_extract(record, '$.telefone') = ?`, models.MessageStatusSent, day, contact)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes a record by id.
func (r *DeliveryRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `DELETE FROM deliveries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
