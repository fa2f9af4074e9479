// Package deliveries keeps the day's delivery list in sync with the server.
//
// The list is replaced wholesale on every fetch and push; readers always see
// either the complete old list or the complete new one. Local edits are
// optimistic and the next push from the server overrides them.
package deliveries

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"deliveryFieldOps/internal/channel"
	"deliveryFieldOps/internal/logging"
	"deliveryFieldOps/models"
)

// DefaultTimeout bounds a fetch round trip when none is configured.
const DefaultTimeout = 10 * time.Second

var (
	// ErrFormat is returned when the server reply is not a delivery list.
	ErrFormat = errors.New("deliveries: reply is not a delivery list")
	// ErrNotFound is returned for ids absent from the cached list.
	ErrNotFound = errors.New("deliveries: unknown delivery")
	// ErrNoContact is returned when a delivery has no phone to notify.
	ErrNoContact = errors.New("deliveries: delivery has no contact phone")
)

// Channel is the part of the transport the cache needs.
type Channel interface {
	Request(ctx context.Context, event string, payload any) (json.RawMessage, error)
	Emit(ctx context.Context, event string, payload any) error
	On(event string, handler channel.Handler) channel.ListenerID
	Off(event string, ids ...channel.ListenerID)
}

// Cache holds the current delivery list.
type Cache struct {
	ch      Channel
	timeout time.Duration
	log     *slog.Logger

	list atomic.Pointer[[]models.DeliveryRecord]
	wmu  sync.Mutex // serializes copy-on-write updates

	lmu       sync.Mutex
	listeners map[int]func([]models.DeliveryRecord)
	nextL     int
}

// New returns an empty cache. A non-positive timeout selects DefaultTimeout.
func New(ch Channel, timeout time.Duration, log *slog.Logger) *Cache {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logging.Discard()
	}
	c := &Cache{ch: ch, timeout: timeout, log: log, listeners: make(map[int]func([]models.DeliveryRecord))}
	empty := []models.DeliveryRecord{}
	c.list.Store(&empty)
	return c
}

// FetchToday asks the server for today's list and replaces the cache with it.
// The channel connects on demand.
func (c *Cache) FetchToday(ctx context.Context) ([]models.DeliveryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.ch.Request(ctx, channel.EventDailyDeliveries, struct{}{})
	if err != nil {
		return nil, err
	}
	list, err := decodeList(data)
	if err != nil {
		return nil, err
	}
	c.ReplaceAll(list)
	c.log.Info("deliveries fetched", "count", len(list))
	return models.CloneDeliveries(list), nil
}

// All returns a copy of the cached list in server order.
func (c *Cache) All() []models.DeliveryRecord {
	return models.CloneDeliveries(*c.list.Load())
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	return len(*c.list.Load())
}

// Get returns a copy of the record with id.
func (c *Cache) Get(id string) (models.DeliveryRecord, bool) {
	if id == "" {
		return models.DeliveryRecord{}, false
	}
	for _, r := range *c.list.Load() {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return models.DeliveryRecord{}, false
}

// ReplaceAll swaps in seq as the whole list. Nothing of the previous list is kept.
func (c *Cache) ReplaceAll(seq []models.DeliveryRecord) {
	next := models.CloneDeliveries(seq)
	if next == nil {
		next = []models.DeliveryRecord{}
	}
	c.wmu.Lock()
	c.list.Store(&next)
	c.wmu.Unlock()
	c.notify(next)
}

// SetStatus changes the status of the record with id in the local copy only.
// It reports false, changing nothing, when no record has that id.
func (c *Cache) SetStatus(id string, status models.DeliveryStatus) bool {
	_, ok := c.mutate(id, func(r *models.DeliveryRecord) { r.Status = status })
	return ok
}

// ClearAll empties the cache.
func (c *Cache) ClearAll() {
	c.ReplaceAll(nil)
}

// Subscribe applies every daily-deliveries push to the cache until the
// returned function is called. Pushes that do not decode are logged and ignored.
func (c *Cache) Subscribe() (unsubscribe func()) {
	id := c.ch.On(channel.EventDailyDeliveries, func(data json.RawMessage) {
		list, err := decodeList(data)
		if err != nil {
			c.log.Warn("ignoring delivery push", "error", err)
			return
		}
		c.ReplaceAll(list)
		c.log.Debug("deliveries pushed", "count", len(list))
	})
	var once sync.Once
	return func() {
		once.Do(func() { c.ch.Off(channel.EventDailyDeliveries, id) })
	}
}

// OnChange calls fn with the new list after every change. The returned
// function removes fn.
func (c *Cache) OnChange(fn func([]models.DeliveryRecord)) (remove func()) {
	c.lmu.Lock()
	id := c.nextL
	c.nextL++
	c.listeners[id] = fn
	c.lmu.Unlock()
	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Cache) notify(list []models.DeliveryRecord) {
	c.lmu.Lock()
	fns := make([]func([]models.DeliveryRecord), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()
	for _, fn := range fns {
		fn(models.CloneDeliveries(list))
	}
}

// mutate applies fn to a copy of the record with id and publishes a new list
// holding that copy. Other records are shared with the previous list.
func (c *Cache) mutate(id string, fn func(*models.DeliveryRecord)) (models.DeliveryRecord, bool) {
	if id == "" {
		return models.DeliveryRecord{}, false
	}
	c.wmu.Lock()
	cur := *c.list.Load()
	idx := -1
	for i := range cur {
		if cur[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.wmu.Unlock()
		return models.DeliveryRecord{}, false
	}
	next := make([]models.DeliveryRecord, len(cur))
	copy(next, cur)
	rec := cur[idx].Clone()
	fn(&rec)
	next[idx] = rec
	c.list.Store(&next)
	c.wmu.Unlock()

	c.notify(next)
	return rec.Clone(), true
}

func decodeList(data json.RawMessage) ([]models.DeliveryRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrFormat
	}
	var list []models.DeliveryRecord
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return list, nil
}
