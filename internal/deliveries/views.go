package deliveries

import (
	"deliveryFieldOps/internal/geo"
	"deliveryFieldOps/models"
)

// StatusCounts counts records per status. Records without a status count as pending.
func (c *Cache) StatusCounts() map[models.DeliveryStatus]int {
	counts := make(map[models.DeliveryStatus]int)
	for _, r := range *c.list.Load() {
		st := r.Status
		if st == "" {
			st = models.DeliveryStatusPending
		}
		counts[st]++
	}
	return counts
}

// Recent returns up to n records from the head of the list.
func (c *Cache) Recent(n int) []models.DeliveryRecord {
	cur := *c.list.Load()
	if n < 0 {
		n = 0
	}
	if n > len(cur) {
		n = len(cur)
	}
	return models.CloneDeliveries(cur[:n])
}

// VisibleTo returns the records a driver may act on: available ones and the
// ones in progress under that driver.
func (c *Cache) VisibleTo(driver string) []models.DeliveryRecord {
	var out []models.DeliveryRecord
	for _, r := range *c.list.Load() {
		switch {
		case r.Status == models.DeliveryStatusAvailable:
		case r.Status == models.DeliveryStatusInProgress && r.Driver == driver:
		default:
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}

// Nearest returns the record visible to driver closest to from, with its
// distance in meters. Records without usable coordinates are skipped.
func (c *Cache) Nearest(from models.Location, driver string) (models.DeliveryRecord, float64, bool) {
	var (
		best  models.DeliveryRecord
		bestD float64
		found bool
	)
	for _, r := range c.VisibleTo(driver) {
		if r.Coordinates == nil || !geo.Valid(*r.Coordinates) {
			continue
		}
		d := geo.HaversineMeters(from, *r.Coordinates)
		if !found || d < bestD {
			best, bestD, found = r, d, true
		}
	}
	return best, bestD, found
}
