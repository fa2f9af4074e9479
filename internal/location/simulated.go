package location

import (
	"context"
	"math"
	"time"

	"deliveryFieldOps/internal/geo"
	"deliveryFieldOps/models"
)

const metersPerDegree = geo.EarthRadiusMeters * math.Pi / 180

// SimulatedProvider walks a fixed polygon around a start point. It stands in
// for a device GPS in the CLI and in tests.
type SimulatedProvider struct {
	Origin     models.Location
	StepMeters float64
	TurnDeg    float64
	Granted    bool
}

// NewSimulatedProvider returns a provider that grants permission and moves 25 m
// per sample, turning 30 degrees each time.
func NewSimulatedProvider(origin models.Location) *SimulatedProvider {
	return &SimulatedProvider{Origin: origin, StepMeters: 25, TurnDeg: 30, Granted: true}
}

func (p *SimulatedProvider) RequestPermissions(context.Context) (bool, error) {
	return p.Granted, nil
}

// Updates emits the origin immediately and one step per interval.
func (p *SimulatedProvider) Updates(ctx context.Context, interval time.Duration) (<-chan models.Location, error) {
	out := make(chan models.Location, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pos, heading := p.Origin, 0.0
		for {
			select {
			case out <- pos:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			pos = Step(pos, heading, p.StepMeters)
			heading = math.Mod(heading+p.TurnDeg, 360)
		}
	}()
	return out, nil
}

// Step moves from by meters along heading (degrees clockwise from north).
func Step(from models.Location, headingDeg, meters float64) models.Location {
	rad := headingDeg * math.Pi / 180
	dLat := meters * math.Cos(rad) / metersPerDegree
	dLng := meters * math.Sin(rad) / (metersPerDegree * math.Cos(from.Latitude*math.Pi/180))
	return models.Location{Latitude: from.Latitude + dLat, Longitude: from.Longitude + dLng}
}
