package geo

import (
	"fmt"
	"math"

	"deliveryFieldOps/models"
)

const (
	// ArrivalRadiusMeters is how close a driver must be to count as at the address.
	ArrivalRadiusMeters = 50.0
	// EarthRadiusMeters is Earth's mean radius for the Haversine calculation.
	EarthRadiusMeters = 6371008.8
)

// HaversineMeters calculates the great-circle distance between two points
// on Earth in meters using the Haversine formula.
func HaversineMeters(a, b models.Location) float64 {
	const degToRad = math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * degToRad
	dLng := (b.Longitude - a.Longitude) * degToRad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Latitude*degToRad)*math.Cos(b.Latitude*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// IsWithinRadius reports whether b lies within radiusMeters of a.
func IsWithinRadius(a, b models.Location, radiusMeters float64) bool {
	return HaversineMeters(a, b) <= radiusMeters
}

// Valid reports whether l is a usable coordinate pair. The zero value counts as unset.
func Valid(l models.Location) bool {
	if l.Latitude == 0 && l.Longitude == 0 {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// FormatDistance renders meters for display: "850 m" below a kilometer, "3.4 km" above.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}
