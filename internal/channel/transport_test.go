package channel_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deliveryFieldOps/internal/channel"
	"deliveryFieldOps/internal/coordinator/coordinatortest"
	"deliveryFieldOps/internal/testutil"
	"deliveryFieldOps/models"
)

type creds struct {
	UserName string `json:"userName"`
	Secret   string `json:"secret"`
}

func TestTransport_RequestReplyOverWebSocket(t *testing.T) {
	env := coordinatortest.Start(t)
	env.SeedDriver(t, "joao", "senha123")

	tr := channel.New(env.ChannelConfig())
	defer tr.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := tr.Request(ctx, channel.EventAuthenticate, creds{UserName: "joao", Secret: "senha123"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.UserName != "joao" || sess.Token == "" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if !tr.IsConnected() {
		t.Fatalf("expected connected after request")
	}
	if tr.PendingRequests() != 0 {
		t.Fatalf("pending slot not released")
	}
}

func TestTransport_FallsBackToPolling(t *testing.T) {
	env := coordinatortest.Start(t)
	env.SeedDeliveries(t, models.DeliveryRecord{Name: "Maria", Status: models.DeliveryStatusAvailable})

	failWS := func(context.Context, channel.Config) (channel.Conn, error) {
		return nil, errors.New("websocket blocked by proxy")
	}
	tr := channel.New(env.ChannelConfig(channel.TransportWebSocket, channel.TransportPolling),
		channel.WithDialer(channel.TransportWebSocket, failWS))
	defer tr.Disconnect()

	connected := make(chan string, 1)
	tr.On(channel.EventConnect, func(data json.RawMessage) {
		var p struct {
			Transport string `json:"transport"`
		}
		_ = json.Unmarshal(data, &p)
		connected <- p.Transport
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := tr.Request(ctx, channel.EventDailyDeliveries, struct{}{})
	if err != nil {
		t.Fatalf("Request over polling: %v", err)
	}
	var list []models.DeliveryRecord
	if err := json.Unmarshal(data, &list); err != nil || len(list) != 1 || list[0].Name != "Maria" {
		t.Fatalf("unexpected list %s err=%v", data, err)
	}
	select {
	case name := <-connected:
		if name != channel.TransportPolling {
			t.Fatalf("connected over %s", name)
		}
	case <-time.After(time.Second):
		t.Fatalf("no connect event")
	}

	// Pushes reach polling clients too.
	pushed := make(chan struct{}, 1)
	tr.On("announcement", func(json.RawMessage) { pushed <- struct{}{} })
	if _, err := env.Server.Push("announcement", map[string]string{"text": "oi"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	select {
	case <-pushed:
	case <-time.After(2 * time.Second):
		t.Fatalf("push not received over polling")
	}
}

func TestTransport_RequestTimesOutAndReleasesSlot(t *testing.T) {
	env := coordinatortest.Start(t)
	env.Server.Silence(channel.EventDailyDeliveries, true)

	tr := channel.New(env.ChannelConfig())
	defer tr.Disconnect()
	if err := tr.WaitConnected(context.Background()); err != nil {
		t.Fatalf("WaitConnected: %v", err)
	}

	const timeout = 150 * time.Millisecond
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := tr.Request(ctx, channel.EventDailyDeliveries, struct{}{})
	if !errors.Is(err, channel.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < timeout {
		t.Fatalf("timed out early after %v", elapsed)
	}
	if n := tr.PendingRequests(); n != 0 {
		t.Fatalf("pending requests after timeout=%d", n)
	}
}

func TestTransport_LateReplyIsDropped(t *testing.T) {
	env := coordinatortest.Start(t)
	env.SeedDeliveries(t, models.DeliveryRecord{Name: "Ana"})
	env.Server.SetReplyDelay(300 * time.Millisecond)

	tr := channel.New(env.ChannelConfig())
	defer tr.Disconnect()

	var seen atomic.Int32
	tr.On(channel.EventDailyDeliveries, func(json.RawMessage) { seen.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := tr.Request(ctx, channel.EventDailyDeliveries, struct{}{}); !errors.Is(err, channel.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	time.Sleep(400 * time.Millisecond)
	if seen.Load() != 0 {
		t.Fatalf("late reply reached push subscribers")
	}

	env.Server.SetReplyDelay(0)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if _, err := tr.Request(ctx2, channel.EventDailyDeliveries, struct{}{}); err != nil {
		t.Fatalf("follow-up request: %v", err)
	}
}

func TestTransport_OverlappingRequestsAreIsolated(t *testing.T) {
	env := coordinatortest.Start(t)
	env.SeedDriver(t, "ana", "a-pass")
	env.SeedDriver(t, "bia", "b-pass")

	tr := channel.New(env.ChannelConfig())
	defer tr.Disconnect()

	users := []creds{{"ana", "a-pass"}, {"bia", "b-pass"}, {"ana", "wrong"}}
	results := make([]string, len(users))
	var wg sync.WaitGroup
	for i, c := range users {
		wg.Add(1)
		go func(i int, c creds) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			data, err := tr.Request(ctx, channel.EventAuthenticate, c)
			if err != nil {
				results[i] = "error: " + err.Error()
				return
			}
			var reply struct {
				UserName     string `json:"userName"`
				ErrorMessage string `json:"errorMessage"`
			}
			_ = json.Unmarshal(data, &reply)
			if reply.ErrorMessage != "" {
				results[i] = "rejected"
				return
			}
			results[i] = reply.UserName
		}(i, c)
	}
	wg.Wait()

	if results[0] != "ana" || results[1] != "bia" || results[2] != "rejected" {
		t.Fatalf("replies crossed: %v", results)
	}
}

func TestTransport_EmitQueuesUntilConnected(t *testing.T) {
	env := coordinatortest.Start(t)
	recs := env.SeedDeliveries(t, models.DeliveryRecord{Name: "Carlos", Status: models.DeliveryStatusAvailable})

	gate := make(chan struct{})
	gated := func(ctx context.Context, cfg channel.Config) (channel.Conn, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return channel.DialWebSocket(ctx, cfg)
	}
	tr := channel.New(env.ChannelConfig(), channel.WithDialer(channel.TransportWebSocket, gated))
	defer tr.Disconnect()

	ctx := context.Background()
	first := recs[0]
	first.Status = models.DeliveryStatusInProgress
	first.Driver = "joao"
	second := first
	second.Status = models.DeliveryStatusCompleted

	if err := tr.Emit(ctx, channel.EventUpdateDelivery, first); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := tr.Emit(ctx, channel.EventUpdateDelivery, second); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if tr.IsConnected() {
		t.Fatalf("connected before the dialer was released")
	}
	if n, _ := tr.QueuedMessages(ctx); n != 2 {
		t.Fatalf("queued=%d want 2", n)
	}

	close(gate)
	testutil.WaitFor(t, 2*time.Second, func() bool {
		rec, err := env.Deliveries.GetByID(ctx, first.ID)
		return err == nil && rec != nil && rec.Status == models.DeliveryStatusCompleted
	})
	if n, _ := tr.QueuedMessages(ctx); n != 0 {
		t.Fatalf("queue not drained: %d", n)
	}
}

func TestTransport_ReconnectsAfterServerDrop(t *testing.T) {
	env := coordinatortest.Start(t)
	tr := channel.New(env.ChannelConfig())
	defer tr.Disconnect()

	var connects, disconnects atomic.Int32
	tr.On(channel.EventConnect, func(json.RawMessage) { connects.Add(1) })
	tr.On(channel.EventDisconnect, func(json.RawMessage) { disconnects.Add(1) })

	if err := tr.WaitConnected(context.Background()); err != nil {
		t.Fatalf("WaitConnected: %v", err)
	}
	testutil.WaitFor(t, time.Second, func() bool { return connects.Load() == 1 })

	env.Server.DropConnections()
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return disconnects.Load() >= 1 && connects.Load() >= 2 && tr.IsConnected()
	})
}

func TestTransport_ReconnectFailedAfterAttemptCap(t *testing.T) {
	dead := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(dead.URL, "http") + "/ws"
	dead.Close()

	cfg := channel.Config{
		URL:               url,
		Transports:        []string{channel.TransportWebSocket},
		ReconnectAttempts: 2,
		ReconnectDelay:    10 * time.Millisecond,
		ConnectTimeout:    500 * time.Millisecond,
	}
	tr := channel.New(cfg)
	defer tr.Disconnect()

	var connectErrors, attempts atomic.Int32
	failed := make(chan struct{})
	tr.On(channel.EventConnectError, func(json.RawMessage) { connectErrors.Add(1) })
	tr.On(channel.EventReconnectAttempt, func(json.RawMessage) { attempts.Add(1) })
	tr.Once(channel.EventReconnectFailed, func(json.RawMessage) { close(failed) })

	tr.Connect()
	tr.Connect() // idempotent while the loop runs
	select {
	case <-failed:
	case <-time.After(3 * time.Second):
		t.Fatalf("reconnect_failed not raised")
	}
	if connectErrors.Load() != 3 || attempts.Load() != 2 {
		t.Fatalf("connect errors=%d attempts=%d", connectErrors.Load(), attempts.Load())
	}
	if tr.IsConnected() {
		t.Fatalf("connected to a dead server")
	}
}

func TestTransport_DisconnectAnnouncesOnce(t *testing.T) {
	env := coordinatortest.Start(t)
	tr := channel.New(env.ChannelConfig())

	var disconnects atomic.Int32
	tr.On(channel.EventDisconnect, func(json.RawMessage) { disconnects.Add(1) })
	if err := tr.WaitConnected(context.Background()); err != nil {
		t.Fatalf("WaitConnected: %v", err)
	}
	tr.Disconnect()
	tr.Disconnect()
	if tr.IsConnected() {
		t.Fatalf("still connected after Disconnect")
	}
	time.Sleep(100 * time.Millisecond)
	if disconnects.Load() != 1 {
		t.Fatalf("disconnect announced %d times", disconnects.Load())
	}
	if env.Server.Clients() != 0 {
		testutil.WaitFor(t, time.Second, func() bool { return env.Server.Clients() == 0 })
	}
}
