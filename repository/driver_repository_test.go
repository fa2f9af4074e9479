package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"deliveryFieldOps/internal/db"
)

func newDriverRepo(t *testing.T, name string) *DriverRepository {
	t.Helper()
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return NewDriverRepository(d)
}

func TestDriverRepository_CreateAndGet(t *testing.T) {
	repo := newDriverRepo(t, "drivers_create")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	created, err := repo.Create(ctx, "joao", "hash-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 || created.Status != DefaultDriverStatus {
		t.Fatalf("unexpected created driver: %+v", created)
	}

	got, err := repo.GetByUsername(ctx, "joao")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.PasswordHash != "hash-1" || got.UserName != "joao" {
		t.Fatalf("unexpected driver: %+v", got)
	}

	missing, err := repo.GetByUsername(ctx, "nobody")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing driver, got %+v", missing)
	}

	if _, err := repo.Create(ctx, "joao", "hash-2"); err == nil {
		t.Fatalf("expected unique constraint error on duplicate username")
	}
}

func TestDriverRepository_UpsertReplacesHashAndStatus(t *testing.T) {
	repo := newDriverRepo(t, "drivers_upsert")
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, "maria", "h1", ""); err != nil {
		t.Fatalf("upsert 1: %v", err)
	}
	d, err := repo.Upsert(ctx, "maria", "h2", "on-route")
	if err != nil {
		t.Fatalf("upsert 2: %v", err)
	}
	if d.PasswordHash != "h2" || d.Status != "on-route" {
		t.Fatalf("upsert did not replace fields: %+v", d)
	}
	list, err := repo.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 driver, got %d", len(list))
	}
}

func TestDriverRepository_UpdateLocationAndStatus(t *testing.T) {
	repo := newDriverRepo(t, "drivers_location")
	ctx := context.Background()
	if _, err := repo.Create(ctx, "ana", "h"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.UpdateLocation(ctx, "ana", -23.55, -46.63); err != nil {
		t.Fatalf("update location: %v", err)
	}
	if err := repo.UpdateStatus(ctx, "ana", "on-route"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	d, _ := repo.GetByUsername(ctx, "ana")
	if d.Location.Latitude != -23.55 || d.Location.Longitude != -46.63 || d.Status != "on-route" {
		t.Fatalf("unexpected driver after updates: %+v", d)
	}

	if err := repo.UpdateLocation(ctx, "ghost", 1, 1); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for unknown driver, got %v", err)
	}
}
