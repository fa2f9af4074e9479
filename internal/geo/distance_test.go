package geo

import (
	"math"
	"testing"

	"deliveryFieldOps/models"
)

func TestHaversineMeters_ZeroDistance(t *testing.T) {
	p := models.Location{Latitude: -23.55, Longitude: -46.63}
	if d := HaversineMeters(p, p); d < 0 || d > 1e-9 {
		t.Fatalf("zero distance expected ~0, got %v", d)
	}
}

func TestHaversineMeters_OneDegreeOfLatitude(t *testing.T) {
	d := HaversineMeters(models.Location{Latitude: 0, Longitude: 0}, models.Location{Latitude: 1, Longitude: 0})
	// One degree along a meridian is ~111.2 km.
	if math.Abs(d-111195) > 100 {
		t.Fatalf("one degree = %v m", d)
	}
}

func TestIsWithinRadius_Boundary(t *testing.T) {
	a := models.Location{Latitude: -23.5505, Longitude: -46.6333}
	near := models.Location{Latitude: -23.5506, Longitude: -46.6333} // ~11 m
	far := models.Location{Latitude: -23.5515, Longitude: -46.6333}  // ~111 m
	if !IsWithinRadius(a, near, ArrivalRadiusMeters) {
		t.Fatalf("expected near point within radius")
	}
	if IsWithinRadius(a, far, ArrivalRadiusMeters) {
		t.Fatalf("expected far point outside radius")
	}
}

func TestValid(t *testing.T) {
	if Valid(models.Location{}) {
		t.Fatalf("zero location must be invalid")
	}
	if Valid(models.Location{Latitude: 91, Longitude: 10}) {
		t.Fatalf("latitude out of range must be invalid")
	}
	if !Valid(models.Location{Latitude: -23.5, Longitude: -46.6}) {
		t.Fatalf("expected valid location")
	}
}

func TestFormatDistance(t *testing.T) {
	if got := FormatDistance(850.4); got != "850 m" {
		t.Fatalf("FormatDistance(850.4)=%q", got)
	}
	if got := FormatDistance(3420); got != "3.4 km" {
		t.Fatalf("FormatDistance(3420)=%q", got)
	}
}
