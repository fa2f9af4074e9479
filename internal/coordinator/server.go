// Package coordinator is the coordination server the driver client talks to. It
// speaks the channel envelope protocol over WebSocket and HTTP long-polling,
// answers requests by correlation id and pushes list changes to every client.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"deliveryFieldOps/internal/channel"
	"deliveryFieldOps/internal/logging"
	"deliveryFieldOps/models"
	"deliveryFieldOps/repository"
)

const dayLayout = "2006-01-02"

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSessionTTL sets the lifetime of issued session tokens.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Server) { s.sessionTTL = d }
}

// WithClock replaces time.Now, which decides the current delivery day.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPollHold sets how long a long-poll receive waits before answering empty.
func WithPollHold(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pollHold = d
		}
	}
}

// Server is the coordination server.
type Server struct {
	drivers    repository.DriverRepositoryI
	deliveries repository.DeliveryRepositoryI
	messages   repository.MessageRepositoryI
	secret     string
	sessionTTL time.Duration
	pollHold   time.Duration
	log        *slog.Logger
	now        func() time.Time

	hub      *hub
	polls    *pollRegistry
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	silenced map[string]bool
	delay    time.Duration
}

// New returns a Server backed by the given repositories. secret signs session tokens.
func New(drivers repository.DriverRepositoryI, deliveries repository.DeliveryRepositoryI, messages repository.MessageRepositoryI, secret string, opts ...Option) *Server {
	s := &Server{
		drivers:    drivers,
		deliveries: deliveries,
		messages:   messages,
		secret:     secret,
		sessionTTL: 12 * time.Hour,
		pollHold:   25 * time.Second,
		log:        logging.Discard(),
		now:        time.Now,
		hub:        newHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		silenced: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.polls = newPollRegistry()
	return s
}

// Handler returns the HTTP routes: /ws, /poll/{open,send,recv,close} and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("POST /poll/open", s.pollOpen)
	mux.HandleFunc("POST /poll/send", s.pollSend)
	mux.HandleFunc("GET /poll/recv", s.pollRecv)
	mux.HandleFunc("POST /poll/close", s.pollClose)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Today returns the delivery day served to clients.
func (s *Server) Today() string {
	return s.now().Format(dayLayout)
}

// Silence stops (or resumes) replies to event. Pushes are unaffected.
func (s *Server) Silence(event string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.silenced[event] = true
		return
	}
	delete(s.silenced, event)
}

// SetReplyDelay postpones every reply by d without blocking the connection.
func (s *Server) SetReplyDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *Server) replyPolicy(event string) (bool, time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.silenced[event], s.delay
}

// Clients returns the number of live connections.
func (s *Server) Clients() int {
	return s.hub.len()
}

// OnlineDrivers returns the user names authenticated on live connections, sorted.
func (s *Server) OnlineDrivers() []string {
	names := s.hub.drivers()
	sort.Strings(names)
	return names
}

// DropConnections closes every client connection. Clients are expected to reconnect.
func (s *Server) DropConnections() {
	s.hub.closeAll()
}

// Push sends event with payload to every connected client.
func (s *Server) Push(event string, payload any) (int, error) {
	env, err := channel.NewEnvelope(event, "", payload)
	if err != nil {
		return 0, err
	}
	return s.hub.broadcast(env), nil
}

// BroadcastDeliveries pushes today's full list to every connected client.
func (s *Server) BroadcastDeliveries(ctx context.Context) error {
	list, err := s.deliveries.ListByDay(ctx, s.Today())
	if err != nil {
		return fmt.Errorf("list deliveries: %w", err)
	}
	n, err := s.Push(channel.EventDailyDeliveries, list)
	if err != nil {
		return err
	}
	s.log.Debug("broadcast deliveries", "records", len(list), "clients", n)
	return nil
}

// Deliveries returns today's list.
func (s *Server) Deliveries(ctx context.Context) ([]models.DeliveryRecord, error) {
	return s.deliveries.ListByDay(ctx, s.Today())
}
