package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Request sends event with a fresh correlation id and waits for the matching
// reply. It connects when needed. Without a deadline on ctx the configured
// request timeout applies. The pending slot is released however the call ends,
// so a reply arriving afterwards is dropped.
func (t *Transport) Request(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.RequestTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	env, err := NewEnvelope(event, id, payload)
	if err != nil {
		return nil, err
	}

	reply := make(chan json.RawMessage, 1)
	t.pmu.Lock()
	t.pending[id] = reply
	t.pmu.Unlock()
	defer func() {
		t.pmu.Lock()
		delete(t.pending, id)
		t.pmu.Unlock()
	}()

	if err := t.WaitConnected(ctx); err != nil {
		return nil, requestErr(event, err)
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("%s: %w", event, ErrNotConnected)
	}
	if err := conn.WriteEnvelope(env); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", event, ErrNotConnected, err)
	}

	select {
	case data := <-reply:
		return data, nil
	case <-ctx.Done():
		return nil, requestErr(event, ctx.Err())
	}
}

// PendingRequests returns the number of requests still waiting for a reply.
func (t *Transport) PendingRequests() int {
	t.pmu.Lock()
	defer t.pmu.Unlock()
	return len(t.pending)
}

func (t *Transport) settle(env Envelope) {
	t.pmu.Lock()
	ch, ok := t.pending[env.ID]
	if ok {
		delete(t.pending, env.ID)
	}
	t.pmu.Unlock()
	if !ok {
		t.log.Debug("dropping reply without pending request", "event", env.Event, "id", env.ID)
		return
	}
	ch <- env.Data
}

func requestErr(event string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", event, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", event, err)
}
