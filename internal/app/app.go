// Package app wires the driver client together: one transport, one session
// store, one delivery cache and one location tracker per App.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"deliveryFieldOps/internal/channel"
	"deliveryFieldOps/internal/config"
	"deliveryFieldOps/internal/db"
	"deliveryFieldOps/internal/deliveries"
	"deliveryFieldOps/internal/location"
	"deliveryFieldOps/internal/logging"
	"deliveryFieldOps/internal/session"
	"deliveryFieldOps/models"
	"deliveryFieldOps/repository"
)

var (
	// ErrLocationPermissionDenied blocks login when the device refuses location access.
	ErrLocationPermissionDenied = errors.New("app: location permission denied")
	// ErrNotAuthenticated is returned by RequireSession when nobody is logged in.
	ErrNotAuthenticated = errors.New("app: not authenticated")
)

// Stage names a step of the login flow, reported to the progress callback.
type Stage string

const (
	StageConnecting        Stage = "connecting"
	StageAuthenticating    Stage = "authenticating"
	StagePermissions       Stage = "requesting location permission"
	StageTracking          Stage = "starting location tracking"
	StageLoadingDeliveries Stage = "loading today's deliveries"
	StageDone              Stage = "done"
)

// LoginResult is the outcome of a completed login. A failed delivery fetch does
// not fail the login; it is reported in FetchErr.
type LoginResult struct {
	Session    models.Session
	Deliveries []models.DeliveryRecord
	FetchErr   error
}

type options struct {
	channelCfg  *channel.Config
	channelOpts []channel.Option
	outbox      channel.Outbox
}

// Option customizes New.
type Option func(*options)

// WithChannelConfig overrides the transport settings derived from the config.
func WithChannelConfig(c channel.Config) Option {
	return func(o *options) { o.channelCfg = &c }
}

// WithChannelOptions passes extra options to the transport.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(o *options) { o.channelOpts = append(o.channelOpts, opts...) }
}

// WithOutbox sets the outbound queue, taking precedence over Client.OutboxPath.
func WithOutbox(ob channel.Outbox) Option {
	return func(o *options) { o.outbox = ob }
}

// App is the driver client context.
type App struct {
	Transport  *channel.Transport
	Sessions   *session.Store
	Deliveries *deliveries.Cache
	Tracker    *location.Tracker

	log      *slog.Logger
	outboxDB *sql.DB

	mu          sync.Mutex
	unsubscribe func()
}

// New builds a logged-out App. When cfg.Client.OutboxPath is set, messages
// queued while offline are kept in that SQLite file across restarts.
func New(cfg *config.Config, provider location.Provider, log *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if provider == nil {
		return nil, errors.New("app: location provider is required")
	}
	if log == nil {
		log = logging.Discard()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{log: log}
	chCfg := channel.ConfigFrom(cfg.Channel)
	if o.channelCfg != nil {
		chCfg = *o.channelCfg
	}
	chOpts := []channel.Option{channel.WithLogger(log.With("component", "channel"))}
	switch {
	case o.outbox != nil:
		chOpts = append(chOpts, channel.WithOutbox(o.outbox))
	case cfg.Client.OutboxPath != "":
		d, err := db.Open(cfg.Client.OutboxPath)
		if err != nil {
			return nil, fmt.Errorf("open outbox: %w", err)
		}
		a.outboxDB = d
		chOpts = append(chOpts, channel.WithOutbox(repository.NewOutboxRepository(d)))
	}
	chOpts = append(chOpts, o.channelOpts...)

	a.Transport = channel.New(chCfg, chOpts...)
	a.Sessions = session.New(a.Transport, cfg.Client.AuthTimeout, log.With("component", "session"))
	a.Deliveries = deliveries.New(a.Transport, cfg.Client.FetchTimeout, log.With("component", "deliveries"))
	a.Tracker = location.NewTracker(provider, a.Sessions, a.Transport, cfg.Client.LocationInterval, log.With("component", "location"))
	return a, nil
}

// Login connects, authenticates, starts location tracking and loads today's
// deliveries. Denied location permission fails with ErrLocationPermissionDenied
// and keeps the session so the step can be retried. progress may be nil.
func (a *App) Login(ctx context.Context, userName, secret string, progress func(Stage)) (*LoginResult, error) {
	report := func(s Stage) {
		if progress != nil {
			progress(s)
		}
	}

	report(StageConnecting)
	a.Transport.Connect()

	report(StageAuthenticating)
	sess, err := a.Sessions.Authenticate(ctx, userName, secret)
	if err != nil {
		return nil, err
	}
	a.subscribe()
	res := &LoginResult{Session: *sess}

	report(StagePermissions)
	granted, err := a.Tracker.Start(ctx)
	if err != nil {
		return res, fmt.Errorf("start location tracking: %w", err)
	}
	if !granted {
		return res, ErrLocationPermissionDenied
	}
	report(StageTracking)

	report(StageLoadingDeliveries)
	list, err := a.Deliveries.FetchToday(ctx)
	if err != nil {
		a.log.Warn("could not load deliveries, continuing", "error", err)
		res.FetchErr = err
	}
	res.Deliveries = list
	if s, ok := a.Sessions.Session(); ok {
		res.Session = s
	}
	report(StageDone)
	return res, nil
}

// Logout ends the working day: tracking stops, cached deliveries and the
// session are dropped and the channel closes.
func (a *App) Logout() {
	a.Tracker.Stop()
	a.mu.Lock()
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	a.mu.Unlock()
	a.Deliveries.ClearAll()
	a.Sessions.Clear()
	a.Transport.Disconnect()
	a.log.Info("logged out")
}

// RequireSession returns the session for screens that need a logged-in driver.
func (a *App) RequireSession() (models.Session, error) {
	s, ok := a.Sessions.Session()
	if !ok {
		return models.Session{}, ErrNotAuthenticated
	}
	return s, nil
}

// Close logs out and releases the outbox database.
func (a *App) Close() error {
	a.Logout()
	if a.outboxDB != nil {
		return a.outboxDB.Close()
	}
	return nil
}

func (a *App) subscribe() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unsubscribe == nil {
		a.unsubscribe = a.Deliveries.Subscribe()
	}
}
