package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"deliveryFieldOps/models"
)

// DefaultDriverStatus is assigned to newly registered drivers.
const DefaultDriverStatus = "available"

type DriverRepository struct {
	db *sql.DB
}

func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{db: db}
}

// Create inserts a new driver with an already hashed password.
// Status defaults to 'available'.
func (r *DriverRepository) Create(ctx context.Context, username, passwordHash string) (*models.Driver, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO drivers (username, password_hash, status) VALUES (?,?,?)`,
		username, passwordHash, DefaultDriverStatus)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Driver{ID: id, UserName: username, PasswordHash: passwordHash, Status: DefaultDriverStatus}, nil
}

// Upsert creates the driver or replaces its password hash and status.
func (r *DriverRepository) Upsert(ctx context.Context, username, passwordHash, status string) (*models.Driver, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is empty")
	}
	if status == "" {
		status = DefaultDriverStatus
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO drivers (username, password_hash, status) VALUES (?,?,?)
ON CONFLICT(username) DO UPDATE SET password_hash = excluded.password_hash, status = excluded.status, updated_at = CURRENT_TIMESTAMP`,
		username, passwordHash, status)
	if err != nil {
		return nil, err
	}
	return r.GetByUsername(ctx, username)
}

// GetByUsername returns the driver or nil when none exists.
func (r *DriverRepository) GetByUsername(ctx context.Context, username string) (*models.Driver, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var d models.Driver
	err := r.db.QueryRowContext(ctx, `SELECT id, username, password_hash, status, lat, lng, updated_at FROM drivers WHERE username = ?`, username).
		Scan(&d.ID, &d.UserName, &d.PasswordHash, &d.Status, &d.Location.Latitude, &d.Location.Longitude, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// UpdateLocation stores the last reported position of a driver.
func (r *DriverRepository) UpdateLocation(ctx context.Context, username string, lat, lng float64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE drivers SET lat = ?, lng = ?, updated_at = CURRENT_TIMESTAMP WHERE username = ?`, lat, lng, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus sets the free-form driver status.
func (r *DriverRepository) UpdateStatus(ctx context.Context, username, status string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE drivers SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE username = ?`, status, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *DriverRepository) List(ctx context.Context, limit, offset int) ([]models.Driver, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id, username, password_hash, status, lat, lng, updated_at FROM drivers ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Driver
	for rows.Next() {
		var d models.Driver
		if err := rows.Scan(&d.ID, &d.UserName, &d.PasswordHash, &d.Status, &d.Location.Latitude, &d.Location.Longitude, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
