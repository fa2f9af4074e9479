package channel

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEndpoint_RewritesPerTransport(t *testing.T) {
	ws, err := endpoint("ws://coord.local:8080/ws", TransportWebSocket, map[string]string{"platform": "mobile"})
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	if ws != "ws://coord.local:8080/ws?platform=mobile" {
		t.Fatalf("websocket endpoint=%s", ws)
	}
	poll, err := endpoint("wss://coord.local/api/ws", TransportPolling, nil)
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	if poll != "https://coord.local/api/poll" {
		t.Fatalf("polling endpoint=%s", poll)
	}
	ws, err = endpoint("https://coord.local", TransportWebSocket, nil)
	if err != nil || ws != "wss://coord.local/ws" {
		t.Fatalf("endpoint from https=%s err=%v", ws, err)
	}
	if _, err := endpoint("ftp://coord.local", TransportWebSocket, nil); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
	if _, err := endpoint("ws://coord.local/ws", "carrier-pigeon", nil); !errors.Is(err, ErrUnsupportedTransport) {
		t.Fatalf("expected ErrUnsupportedTransport, got %v", err)
	}
}

func TestBackoff_DoublesUpToMax(t *testing.T) {
	tr := New(Config{URL: "ws://x/ws", ReconnectDelay: 100 * time.Millisecond, ReconnectDelayMax: 350 * time.Millisecond})
	want := []time.Duration{100, 200, 350, 350}
	for i, w := range want {
		if got := tr.backoff(i + 1); got != w*time.Millisecond {
			t.Fatalf("backoff(%d)=%v want %v", i+1, got, w*time.Millisecond)
		}
	}
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(EventDailyDeliveries, "abc", struct{}{})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	b, _ := json.Marshal(env)
	if string(b) != `{"event":"daily-deliveries","id":"abc","data":{}}` {
		t.Fatalf("wire form=%s", b)
	}
	raw, _ := NewEnvelope("x", "", json.RawMessage(`[1,2]`))
	if string(raw.Data) != "[1,2]" {
		t.Fatalf("raw payload re-encoded: %s", raw.Data)
	}
	if _, err := NewEnvelope("", "", nil); err == nil {
		t.Fatalf("expected error for empty event")
	}
	if _, err := NewEnvelope("x", "", func() {}); err == nil {
		t.Fatalf("expected error for unencodable payload")
	}
}

func TestMemoryOutbox_FIFOAndCapacity(t *testing.T) {
	ctx := context.Background()
	o := NewMemoryOutbox(2)
	if err := o.Enqueue(ctx, "a", []byte(`1`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := o.Enqueue(ctx, "b", []byte(`2`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := o.Enqueue(ctx, "c", []byte(`3`)); !errors.Is(err, ErrOutboxFull) {
		t.Fatalf("expected ErrOutboxFull, got %v", err)
	}
	pending, _ := o.Pending(ctx, 10)
	if len(pending) != 2 || pending[0].Event != "a" || pending[1].Event != "b" {
		t.Fatalf("unexpected order: %+v", pending)
	}
	if err := o.Ack(ctx, pending[0].Seq); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if n, _ := o.Len(ctx); n != 1 {
		t.Fatalf("len after ack=%d", n)
	}
	pending, _ = o.Pending(ctx, 1)
	if len(pending) != 1 || pending[0].Event != "b" {
		t.Fatalf("unexpected head after ack: %+v", pending)
	}
}

func TestOff_RemovesSelectedOrAll(t *testing.T) {
	tr := New(Config{URL: "ws://x/ws"})
	var a, b int
	idA := tr.On("ev", func(json.RawMessage) { a++ })
	tr.On("ev", func(json.RawMessage) { b++ })

	tr.dispatch("ev", nil)
	tr.Off("ev", idA)
	tr.dispatch("ev", nil)
	tr.Off("ev")
	tr.dispatch("ev", nil)

	if a != 1 || b != 2 {
		t.Fatalf("a=%d b=%d", a, b)
	}
}

func TestOnce_FiresAtMostOnce(t *testing.T) {
	tr := New(Config{URL: "ws://x/ws"})
	n := 0
	tr.Once("ev", func(json.RawMessage) { n++ })
	tr.dispatch("ev", nil)
	tr.dispatch("ev", nil)
	if n != 1 {
		t.Fatalf("once handler ran %d times", n)
	}
}

func TestDisconnect_NoopWhenIdle(t *testing.T) {
	tr := New(Config{URL: "ws://x/ws"})
	tr.Disconnect()
	tr.Disconnect()
	if tr.IsConnected() {
		t.Fatalf("idle transport reports connected")
	}
}
