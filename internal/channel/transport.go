package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"deliveryFieldOps/internal/config"
	"deliveryFieldOps/internal/logging"
)

const (
	defaultRequestTimeout = 10 * time.Second
	flushBatch            = 100
)

// Config holds the connection parameters of a Transport.
type Config struct {
	URL               string
	Transports        []string
	Query             map[string]string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	PingPeriod        time.Duration
}

// ConfigFrom maps the application channel settings onto a transport Config.
// Connections identify themselves as a mobile client.
func ConfigFrom(c config.ChannelConfig) Config {
	return Config{
		URL:               c.ServerURL,
		Transports:        append([]string(nil), c.Transports...),
		Query:             map[string]string{"platform": "mobile"},
		ReconnectAttempts: c.ReconnectAttempts,
		ReconnectDelay:    c.ReconnectDelay,
		ReconnectDelayMax: c.ReconnectDelayMax,
		ConnectTimeout:    c.ConnectTimeout,
		PingPeriod:        c.PingPeriod,
	}
}

// Option customizes a Transport.
type Option func(*Transport)

// WithLogger sets the logger used for connection diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// WithOutbox replaces the in-memory outbound queue.
func WithOutbox(o Outbox) Option {
	return func(t *Transport) {
		if o != nil {
			t.outbox = o
		}
	}
}

// WithDialer registers or overrides the dialer for a transport name.
func WithDialer(name string, d Dialer) Option {
	return func(t *Transport) {
		t.dialers[name] = d
	}
}

// Transport is the single logical realtime connection of the client. It is safe
// for concurrent use.
type Transport struct {
	cfg     Config
	log     *slog.Logger
	outbox  Outbox
	dialers map[string]Dialer

	mu        sync.Mutex
	conn      Conn
	connected bool
	running   bool
	stop      chan struct{}
	changed   chan struct{} // closed and replaced on every state change

	lmu       sync.Mutex
	listeners map[string][]listener
	nextID    atomic.Uint64

	pmu     sync.Mutex
	pending map[string]chan json.RawMessage
}

// New builds a disconnected Transport. Nothing is dialed until Connect, Emit or
// Request is called.
func New(cfg Config, opts ...Option) *Transport {
	if len(cfg.Transports) == 0 {
		cfg.Transports = []string{TransportWebSocket, TransportPolling}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 20 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	t := &Transport{
		cfg:    cfg,
		log:    logging.Discard(),
		outbox: NewMemoryOutbox(0),
		dialers: map[string]Dialer{
			TransportWebSocket: DialWebSocket,
			TransportPolling:   DialPolling,
		},
		changed:   make(chan struct{}),
		listeners: make(map[string][]listener),
		pending:   make(map[string]chan json.RawMessage),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect starts the connection loop unless one is already running.
// Failures are reported through connect_error and never returned.
func (t *Transport) Connect() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	go t.run(stop)
}

// Disconnect stops the connection loop and closes the live connection.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if !t.running && t.conn == nil {
		t.mu.Unlock()
		return
	}
	if t.running {
		close(t.stop)
		t.running = false
	}
	conn, wasConnected := t.conn, t.connected
	t.conn, t.connected = nil, false
	t.signalLocked()
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if wasConnected {
		t.log.Info("channel disconnected", "reason", "client disconnect")
		t.dispatch(EventDisconnect, lifecycleData(map[string]string{"reason": "client disconnect"}))
	}
}

// IsConnected reports the cached connection flag.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// WaitConnected connects if necessary and blocks until the channel is up or ctx ends.
func (t *Transport) WaitConnected(ctx context.Context) error {
	for {
		t.mu.Lock()
		if t.connected {
			t.mu.Unlock()
			return nil
		}
		changed := t.changed
		t.mu.Unlock()

		t.Connect()
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Emit sends a fire-and-forget message. While disconnected the message is queued
// and sent after the next successful connect.
func (t *Transport) Emit(ctx context.Context, event string, payload any) error {
	env, err := NewEnvelope(event, "", payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn, ok := t.conn, t.connected
	if !ok {
		err := t.outbox.Enqueue(ctx, env.Event, env.Data)
		t.mu.Unlock()
		if err != nil {
			return fmt.Errorf("queue %s: %w", event, err)
		}
		t.log.Debug("channel down, message queued", "event", event)
		t.Connect()
		return nil
	}
	t.mu.Unlock()

	if err := conn.WriteEnvelope(env); err != nil {
		t.log.Warn("emit failed, queueing", "event", event, "error", err)
		if qerr := t.outbox.Enqueue(ctx, env.Event, env.Data); qerr != nil {
			return fmt.Errorf("queue %s: %w", event, qerr)
		}
	}
	return nil
}

// QueuedMessages returns the number of messages waiting in the outbound queue.
func (t *Transport) QueuedMessages(ctx context.Context) (int, error) {
	return t.outbox.Len(ctx)
}

// On registers handler for every message tagged event.
func (t *Transport) On(event string, handler Handler) ListenerID {
	return t.register(event, handler, false)
}

// Once registers handler for the next message tagged event only.
func (t *Transport) Once(event string, handler Handler) ListenerID {
	return t.register(event, handler, true)
}

// Off removes the given registrations, or every handler for event when no id is given.
func (t *Transport) Off(event string, ids ...ListenerID) {
	t.lmu.Lock()
	defer t.lmu.Unlock()
	if len(ids) == 0 {
		delete(t.listeners, event)
		return
	}
	kept := t.listeners[event][:0:0]
	for _, l := range t.listeners[event] {
		drop := false
		for _, id := range ids {
			if l.id == id {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(t.listeners, event)
		return
	}
	t.listeners[event] = kept
}

func (t *Transport) register(event string, handler Handler, once bool) ListenerID {
	id := ListenerID(t.nextID.Add(1))
	t.lmu.Lock()
	t.listeners[event] = append(t.listeners[event], listener{id: id, fn: handler, once: once})
	t.lmu.Unlock()
	return id
}

// dispatch calls the handlers registered for event. Once handlers are removed
// before any handler runs, so each fires at most one time.
func (t *Transport) dispatch(event string, data json.RawMessage) {
	t.lmu.Lock()
	current := t.listeners[event]
	call := make([]listener, len(current))
	copy(call, current)
	var kept []listener
	for _, l := range current {
		if !l.once {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(t.listeners, event)
	} else {
		t.listeners[event] = kept
	}
	t.lmu.Unlock()

	for _, l := range call {
		l.fn(data)
	}
}

func (t *Transport) signalLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

func (t *Transport) run(stop chan struct{}) {
	defer func() {
		t.mu.Lock()
		if t.stop == stop {
			t.running = false
		}
		t.signalLocked()
		t.mu.Unlock()
	}()

	attempt := 0
	for {
		conn, name, err := t.dial(stop)
		if err == nil {
			attempt = 0
			if t.online(stop, conn, name) {
				err = t.readLoop(conn)
				if !t.offline(conn, err) {
					return
				}
			}
		} else {
			t.log.Warn("channel connect error", "url", t.cfg.URL, "error", err)
			t.dispatch(EventConnectError, lifecycleData(map[string]string{"message": err.Error()}))
		}
		if stopped(stop) {
			return
		}

		attempt++
		if attempt > t.cfg.ReconnectAttempts {
			t.log.Error("channel reconnect failed", "attempts", t.cfg.ReconnectAttempts)
			t.dispatch(EventReconnectFailed, lifecycleData(map[string]int{"attempts": t.cfg.ReconnectAttempts}))
			return
		}
		t.dispatch(EventReconnectAttempt, lifecycleData(map[string]int{"attempt": attempt}))
		select {
		case <-stop:
			return
		case <-time.After(t.backoff(attempt)):
		}
	}
}

// dial tries each configured transport in order.
func (t *Transport) dial(stop chan struct{}) (Conn, string, error) {
	var errs []error
	for _, name := range t.cfg.Transports {
		d, ok := t.dialers[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrUnsupportedTransport))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.ConnectTimeout)
		go func() {
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()
		conn, err := d(ctx, t.cfg)
		cancel()
		if err == nil {
			return conn, name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		if stopped(stop) {
			break
		}
	}
	return nil, "", errors.Join(errs...)
}

// online drains the outbound queue over conn and then publishes it as the live
// connection. Emit holds t.mu while queueing, so no message is stranded between
// the final empty check and the switch to connected.
func (t *Transport) online(stop chan struct{}, conn Conn, name string) bool {
	ctx := context.Background()
	for {
		if err := t.flush(ctx, conn); err != nil {
			t.log.Warn("outbound flush failed", "error", err)
			_ = conn.Close()
			t.dispatch(EventConnectError, lifecycleData(map[string]string{"message": err.Error()}))
			return false
		}
		t.mu.Lock()
		if stopped(stop) {
			t.mu.Unlock()
			_ = conn.Close()
			return false
		}
		n, err := t.outbox.Len(ctx)
		if err == nil && n > 0 {
			t.mu.Unlock()
			continue
		}
		t.conn, t.connected = conn, true
		t.signalLocked()
		t.mu.Unlock()
		break
	}
	t.log.Info("channel connected", "transport", name)
	t.dispatch(EventConnect, lifecycleData(map[string]string{"transport": name}))
	return true
}

// offline clears conn after its read loop ended. It reports false when the loop
// was stopped by Disconnect, which already announced the disconnect.
func (t *Transport) offline(conn Conn, cause error) bool {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return false
	}
	t.conn, t.connected = nil, false
	t.signalLocked()
	t.mu.Unlock()
	_ = conn.Close()

	reason := "transport close"
	if cause != nil && !errors.Is(cause, ErrClosed) {
		reason = cause.Error()
	}
	t.log.Warn("channel disconnected", "reason", reason)
	t.dispatch(EventDisconnect, lifecycleData(map[string]string{"reason": reason}))
	return true
}

func (t *Transport) flush(ctx context.Context, conn Conn) error {
	for {
		batch, err := t.outbox.Pending(ctx, flushBatch)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, m := range batch {
			if err := conn.WriteEnvelope(Envelope{Event: m.Event, Data: m.Payload}); err != nil {
				return err
			}
			if err := t.outbox.Ack(ctx, m.Seq); err != nil {
				return err
			}
		}
		t.log.Debug("flushed queued messages", "count", len(batch))
	}
}

func (t *Transport) readLoop(conn Conn) error {
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			return err
		}
		if env.ID != "" {
			t.settle(env)
			continue
		}
		t.dispatch(env.Event, env.Data)
	}
}

func (t *Transport) backoff(attempt int) time.Duration {
	d := t.cfg.ReconnectDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if t.cfg.ReconnectDelayMax > 0 && d >= t.cfg.ReconnectDelayMax {
			return t.cfg.ReconnectDelayMax
		}
	}
	return d
}

func stopped(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
