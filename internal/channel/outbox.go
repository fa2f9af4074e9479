package channel

import (
	"context"
	"sync"
	"time"

	"deliveryFieldOps/models"
)

// Outbox buffers fire-and-forget emissions while the channel is down. It is drained
// in FIFO order after every successful connect. repository.OutboxRepository is the
// durable implementation; MemoryOutbox keeps entries for the process lifetime only.
type Outbox interface {
	Enqueue(ctx context.Context, event string, payload []byte) error
	Pending(ctx context.Context, limit int) ([]models.OutboundMessage, error)
	Ack(ctx context.Context, seq int64) error
	Len(ctx context.Context) (int, error)
}

// DefaultOutboxCapacity bounds MemoryOutbox when no capacity is given.
const DefaultOutboxCapacity = 1000

// MemoryOutbox is a bounded in-process Outbox.
type MemoryOutbox struct {
	mu       sync.Mutex
	capacity int
	nextSeq  int64
	items    []models.OutboundMessage
}

// NewMemoryOutbox returns an empty queue holding at most capacity entries.
func NewMemoryOutbox(capacity int) *MemoryOutbox {
	if capacity <= 0 {
		capacity = DefaultOutboxCapacity
	}
	return &MemoryOutbox{capacity: capacity}
}

func (o *MemoryOutbox) Enqueue(_ context.Context, event string, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) >= o.capacity {
		return ErrOutboxFull
	}
	o.nextSeq++
	o.items = append(o.items, models.OutboundMessage{
		Seq:      o.nextSeq,
		Event:    event,
		Payload:  append([]byte(nil), payload...),
		QueuedAt: time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

func (o *MemoryOutbox) Pending(_ context.Context, limit int) ([]models.OutboundMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if limit <= 0 || limit > len(o.items) {
		limit = len(o.items)
	}
	out := make([]models.OutboundMessage, limit)
	copy(out, o.items[:limit])
	return out, nil
}

func (o *MemoryOutbox) Ack(_ context.Context, seq int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, m := range o.items {
		if m.Seq == seq {
			o.items = append(o.items[:i], o.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (o *MemoryOutbox) Len(context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items), nil
}
