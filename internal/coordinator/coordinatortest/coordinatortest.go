// Package coordinatortest runs a coordination server on a loopback listener for tests.
package coordinatortest

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"deliveryFieldOps/internal/channel"
	"deliveryFieldOps/internal/coordinator"
	"deliveryFieldOps/internal/testutil"
	"deliveryFieldOps/models"
	"deliveryFieldOps/repository"
)

// Secret signs the session tokens issued by test servers.
const Secret = "coordinator-test-secret"

// Env is a running test server and its storage.
type Env struct {
	Server     *coordinator.Server
	HTTP       *httptest.Server
	URL        string // ws://host/ws
	Drivers    *repository.DriverRepository
	Deliveries *repository.DeliveryRepository
	Messages   *repository.MessageRepository
}

// Start runs a server backed by a fresh in-memory database. It is shut down
// through t.Cleanup.
func Start(t *testing.T, opts ...coordinator.Option) *Env {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, "coord_"+strings.ReplaceAll(uuid.NewString(), "-", ""))
	e := &Env{
		Drivers:    repository.NewDriverRepository(d),
		Deliveries: repository.NewDeliveryRepository(d),
		Messages:   repository.NewMessageRepository(d),
	}
	opts = append([]coordinator.Option{coordinator.WithPollHold(200 * time.Millisecond)}, opts...)
	e.Server = coordinator.New(e.Drivers, e.Deliveries, e.Messages, Secret, opts...)
	e.HTTP = httptest.NewServer(e.Server.Handler())
	t.Cleanup(func() {
		e.Server.DropConnections()
		e.HTTP.CloseClientConnections()
		e.HTTP.Close()
	})
	e.URL = "ws" + strings.TrimPrefix(e.HTTP.URL, "http") + "/ws"
	return e
}

// SeedDriver creates a driver account with the given password.
func (e *Env) SeedDriver(t *testing.T, user, password string) {
	t.Helper()
	if _, err := e.Drivers.Create(context.Background(), user, testutil.HashPassword(t, password)); err != nil {
		t.Fatalf("seed driver %s: %v", user, err)
	}
}

// SeedDeliveries stores recs for today, in order, and returns them with ids assigned.
func (e *Env) SeedDeliveries(t *testing.T, recs ...models.DeliveryRecord) []models.DeliveryRecord {
	t.Helper()
	out := make([]models.DeliveryRecord, 0, len(recs))
	for _, r := range recs {
		stored, err := e.Deliveries.Upsert(context.Background(), e.Server.Today(), r)
		if err != nil {
			t.Fatalf("seed delivery: %v", err)
		}
		out = append(out, *stored)
	}
	return out
}

// ChannelConfig returns transport settings pointed at the server with short
// delays. With no transports given, WebSocket is used.
func (e *Env) ChannelConfig(transports ...string) channel.Config {
	if len(transports) == 0 {
		transports = []string{channel.TransportWebSocket}
	}
	return channel.Config{
		URL:               e.URL,
		Transports:        transports,
		Query:             map[string]string{"platform": "mobile"},
		ReconnectAttempts: 3,
		ReconnectDelay:    20 * time.Millisecond,
		ReconnectDelayMax: 100 * time.Millisecond,
		ConnectTimeout:    2 * time.Second,
		RequestTimeout:    2 * time.Second,
		PingPeriod:        time.Second,
	}
}
