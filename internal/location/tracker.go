// Package location forwards device position samples to the session and the server.
package location

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"deliveryFieldOps/internal/channel"
	"deliveryFieldOps/internal/logging"
	"deliveryFieldOps/models"
)

// DefaultInterval is the sampling period used when none is configured.
const DefaultInterval = 15 * time.Second

// Provider is the device location source.
type Provider interface {
	// RequestPermissions asks for location access. A denial is (false, nil).
	RequestPermissions(ctx context.Context) (bool, error)
	// Updates streams samples roughly every interval until ctx ends, then closes the channel.
	Updates(ctx context.Context, interval time.Duration) (<-chan models.Location, error)
}

// SessionUpdater stores the latest position on the current session.
type SessionUpdater interface {
	UpdateLocation(loc models.Location) (models.Session, bool)
}

// Emitter sends fire-and-forget events.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Tracker runs the sampling loop.
type Tracker struct {
	provider Provider
	sessions SessionUpdater
	ch       Emitter
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	last    time.Time
	lastLoc models.Location
}

// NewTracker wires a provider to the session store and the channel.
func NewTracker(p Provider, sessions SessionUpdater, ch Emitter, interval time.Duration, log *slog.Logger) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Tracker{provider: p, sessions: sessions, ch: ch, interval: interval, log: log}
}

// Start asks for permission and begins tracking. It returns false, nil when
// permission is denied and true when tracking runs, including when it already was.
// Tracking continues after ctx ends; use Stop.
func (t *Tracker) Start(ctx context.Context) (bool, error) {
	if t.IsTracking() {
		return true, nil
	}
	granted, err := t.provider.RequestPermissions(ctx)
	if err != nil {
		return false, err
	}
	if !granted {
		t.log.Warn("location permission denied")
		return false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return true, nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	samples, err := t.provider.Updates(runCtx, t.interval)
	if err != nil {
		cancel()
		return false, err
	}
	done := make(chan struct{})
	t.cancel, t.done = cancel, done
	go t.loop(runCtx, samples, done)
	t.log.Info("location tracking started", "interval", t.interval.String())
	return true, nil
}

// Stop ends tracking and waits for the loop to exit. It is a no-op when idle.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.log.Info("location tracking stopped")
}

// IsTracking reports whether the sampling loop runs.
func (t *Tracker) IsTracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// LastUpdated returns the time and position of the last forwarded sample.
func (t *Tracker) LastUpdated() (time.Time, models.Location, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.lastLoc, !t.last.IsZero()
}

func (t *Tracker) loop(ctx context.Context, samples <-chan models.Location, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case loc, ok := <-samples:
			if !ok {
				t.release(done)
				return
			}
			t.forward(ctx, loc)
		}
	}
}

// release forgets the loop owning done after its sample stream ended, so Start
// can begin again. A loop already replaced or stopped is left alone.
func (t *Tracker) release(done chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != done {
		return
	}
	t.cancel()
	t.cancel, t.done = nil, nil
	t.log.Warn("location stream ended, tracking stopped")
}

// forward stores the sample on the session and reports the session to the server.
func (t *Tracker) forward(ctx context.Context, loc models.Location) {
	sess, ok := t.sessions.UpdateLocation(loc)
	if !ok {
		t.log.Debug("location sample without session, skipped")
		return
	}
	if err := t.ch.Emit(ctx, channel.EventLocateDriver, sess); err != nil {
		t.log.Warn("location not sent", "error", err)
		return
	}
	t.mu.Lock()
	t.last, t.lastLoc = time.Now(), loc
	t.mu.Unlock()
}
