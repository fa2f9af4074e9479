package repository

import (
	"context"
	"testing"

	"deliveryFieldOps/internal/db"
	"deliveryFieldOps/models"
)

func TestMessageRepository_CreateAndList(t *testing.T) {
	d, err := db.Open("file:messages_create?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer d.Close()
	repo := NewMessageRepository(d)
	ctx := context.Background()

	m, err := repo.Create(ctx, &models.CustomerMessage{Driver: "joao", Contact: "+5511999990000", Message: "Saiu para entrega"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.ID == 0 || m.SentAt == "" {
		t.Fatalf("expected id and timestamp: %+v", m)
	}
	if _, err := repo.Create(ctx, &models.CustomerMessage{Driver: "joao"}); err == nil {
		t.Fatalf("expected error for empty contact")
	}
	if _, err := repo.Create(ctx, nil); err == nil {
		t.Fatalf("expected error for nil message")
	}

	list, err := repo.ListByDriver(ctx, "joao")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Message != "Saiu para entrega" {
		t.Fatalf("unexpected list: %+v", list)
	}
}
