package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"deliveryFieldOps/models"
)

// ListByDay returns the day's records in list order. An empty day yields an empty,
// non-nil slice so it encodes as a JSON array.
func (r *DeliveryRepository) ListByDay(ctx context.Context, day string) ([]models.DeliveryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT id, record FROM deliveries WHERE day = ? ORDER BY position, id`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveryRows(rows)
}

// ListByDriver returns the day's records currently assigned to driver.
func (r *DeliveryRepository) ListByDriver(ctx context.Context, day, driver string) ([]models.DeliveryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT id, record FROM deliveries WHERE day = ? AND driver = ? ORDER BY position, id`, day, driver)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveryRows(rows)
}

// CountByStatus returns how many of the day's records are in each status.
func (r *DeliveryRepository) CountByStatus(ctx context.Context, day string) (map[models.DeliveryStatus]int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM deliveries WHERE day = ? GROUP BY status`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[models.DeliveryStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[models.DeliveryStatus(status)] = n
	}
	return out, rows.Err()
}

func scanDeliveryRows(rows *sql.Rows) ([]models.DeliveryRecord, error) {
	out := []models.DeliveryRecord{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var rec models.DeliveryRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode delivery %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
