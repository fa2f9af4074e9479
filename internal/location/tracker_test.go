package location

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"deliveryFieldOps/internal/channel"
	"deliveryFieldOps/internal/geo"
	"deliveryFieldOps/internal/testutil"
	"deliveryFieldOps/models"
)

type manualProvider struct {
	granted bool
	permErr error
	samples chan models.Location
}

func (p *manualProvider) RequestPermissions(context.Context) (bool, error) {
	return p.granted, p.permErr
}

func (p *manualProvider) Updates(ctx context.Context, _ time.Duration) (<-chan models.Location, error) {
	return p.samples, nil
}

type fakeSessions struct {
	mu      sync.Mutex
	session *models.Session
}

func (f *fakeSessions) UpdateLocation(loc models.Location) (models.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return models.Session{}, false
	}
	f.session.Location = loc
	return *f.session, true
}

type recordingEmitter struct {
	mu    sync.Mutex
	sent  []models.Session
	event string
}

func (e *recordingEmitter) Emit(_ context.Context, event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.event = event
	e.sent = append(e.sent, payload.(models.Session))
	return nil
}

func (e *recordingEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent)
}

func TestTracker_PermissionDeniedIsFalseNotError(t *testing.T) {
	tr := NewTracker(&manualProvider{granted: false}, &fakeSessions{}, &recordingEmitter{}, time.Second, nil)
	ok, err := tr.Start(context.Background())
	if ok || err != nil {
		t.Fatalf("Start=%v,%v want false,nil", ok, err)
	}
	if tr.IsTracking() {
		t.Fatalf("tracking without permission")
	}

	boom := errors.New("sensor unavailable")
	tr = NewTracker(&manualProvider{permErr: boom}, &fakeSessions{}, &recordingEmitter{}, time.Second, nil)
	if _, err := tr.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestTracker_ForwardsSamplesWithSession(t *testing.T) {
	p := &manualProvider{granted: true, samples: make(chan models.Location)}
	sessions := &fakeSessions{}
	em := &recordingEmitter{}
	tr := NewTracker(p, sessions, em, time.Second, nil)

	ok, err := tr.Start(context.Background())
	if !ok || err != nil {
		t.Fatalf("Start=%v,%v", ok, err)
	}
	if again, _ := tr.Start(context.Background()); !again {
		t.Fatalf("second Start must report tracking")
	}

	// No session yet: sample is skipped.
	p.samples <- models.Location{Latitude: 1, Longitude: 1}
	sessions.mu.Lock()
	sessions.session = &models.Session{UserName: "joao", Status: "available"}
	sessions.mu.Unlock()
	p.samples <- models.Location{Latitude: -23.5, Longitude: -46.6}

	testutil.WaitFor(t, time.Second, func() bool { return em.count() == 1 })
	if em.event != channel.EventLocateDriver || em.sent[0].UserName != "joao" || em.sent[0].Location.Latitude != -23.5 {
		t.Fatalf("sent %s %+v", em.event, em.sent)
	}
	at, loc, ok := tr.LastUpdated()
	if !ok || at.IsZero() || loc.Longitude != -46.6 {
		t.Fatalf("LastUpdated=%v %+v %v", at, loc, ok)
	}

	tr.Stop()
	tr.Stop()
	if tr.IsTracking() {
		t.Fatalf("still tracking after Stop")
	}
}

func TestTracker_StreamEndAllowsRestart(t *testing.T) {
	p := &manualProvider{granted: true, samples: make(chan models.Location)}
	tr := NewTracker(p, &fakeSessions{}, &recordingEmitter{}, time.Second, nil)
	if ok, err := tr.Start(context.Background()); !ok || err != nil {
		t.Fatalf("Start=%v,%v", ok, err)
	}

	close(p.samples)
	testutil.WaitFor(t, time.Second, func() bool { return !tr.IsTracking() })

	p.samples = make(chan models.Location)
	if ok, err := tr.Start(context.Background()); !ok || err != nil {
		t.Fatalf("restart=%v,%v", ok, err)
	}
	if !tr.IsTracking() {
		t.Fatalf("not tracking after restart")
	}
	tr.Stop()
	if tr.IsTracking() {
		t.Fatalf("still tracking after Stop")
	}
}

func TestSimulatedProvider_WalksFromOrigin(t *testing.T) {
	origin := models.Location{Latitude: -23.5505, Longitude: -46.6333}
	p := NewSimulatedProvider(origin)
	ctx, cancel := context.WithCancel(context.Background())
	samples, err := p.Updates(ctx, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("Updates: %v", err)
	}
	first := <-samples
	second := <-samples
	if first != origin {
		t.Fatalf("first sample %+v", first)
	}
	if d := geo.HaversineMeters(first, second); math.Abs(d-25) > 0.5 {
		t.Fatalf("step distance %v m", d)
	}
	cancel()
	for range samples {
	}
}

func TestStep_East(t *testing.T) {
	from := models.Location{Latitude: 0, Longitude: 0}
	to := Step(from, 90, 1000)
	if math.Abs(to.Latitude) > 1e-9 || math.Abs(geo.HaversineMeters(from, to)-1000) > 1 {
		t.Fatalf("east step landed at %+v", to)
	}
}
