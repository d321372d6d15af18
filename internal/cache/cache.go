// Package cache is a small in-memory TTL cache for repository and engine
// metadata. Lookups never return expired entries; a janitor sweeps the
// expired ones out on a schedule so long-idle processes do not accumulate
// dead entries.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache maps K to V with a fixed time-to-live per entry.
type Cache[K comparable, V any] struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[K]entry[V]

	// test hook
	now func() time.Time
}

// New creates a cache whose entries live for ttl.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

// Get returns the live value for key, if any.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		var zero V
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, resetting its lifetime.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expires: c.now().Add(c.ttl)}
}

// Delete removes key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Len counts live entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if !c.now().After(e.expires) {
			n++
		}
	}
	return n
}

// PurgeExpired removes entries past their lifetime and reports how many.
func (c *Cache[K, V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if c.now().After(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Purger is the slice of Cache the janitor needs, so one janitor can sweep
// caches of different type parameters.
type Purger interface {
	PurgeExpired() int
}

// Janitor sweeps a set of caches on a cron schedule.
type Janitor struct {
	cron   *cron.Cron
	caches []Purger
}

// NewJanitor schedules a sweep of the given caches. schedule uses cron
// syntax, including descriptors like "@every 1m".
func NewJanitor(schedule string, caches ...Purger) (*Janitor, error) {
	j := &Janitor{cron: cron.New(), caches: caches}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) sweep() {
	total := 0
	for _, c := range j.caches {
		total += c.PurgeExpired()
	}
	if total > 0 {
		slog.Debug("cache: swept expired entries", "count", total)
	}
}

// Start begins the schedule in its own goroutine.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}
