// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package session maintains the mapping between proxy-issued session
// identifiers and the upstream server's own session identifiers. The table is
// an injectable component owned by whoever constructs the proxy, so multiple
// independent proxy instances can coexist in one process.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sweepFloor is the shortest interval between background expiry sweeps.
const sweepFloor = 10 * time.Second

// entry pairs an upstream session id with the bookkeeping needed for expiry
// and LRU eviction.
type entry struct {
	upstreamID string
	lastAccess time.Time
}

// Table maps proxy session identifiers to upstream session identifiers.
// Entries expire after the configured TTL (sliding, refreshed on Get) and the
// least recently used entry is evicted once the table holds maxEntries. A TTL
// of zero disables expiry and a bound of zero means unlimited.
type Table struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int
	stopCh     chan struct{}
	// now is swappable by tests.
	now func() time.Time
}

// New constructs a Table and, when a TTL is set, starts the background sweep
// that removes expired entries. Close stops the sweep.
func New(ttl time.Duration, maxEntries int) *Table {
	t := &Table{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}

	if ttl > 0 {
		interval := ttl / 2
		if interval < sweepFloor {
			interval = sweepFloor
		}
		go t.sweep(interval)
	}

	return t
}

// Generate produces a fresh proxy session identifier. The identifier is a
// correlation handle, not an auth token; a v4 UUID gives negligible collision
// probability.
func (t *Table) Generate() string {
	return uuid.NewString()
}

// Put inserts or overwrites the mapping for proxyID, evicting the least
// recently used entry first if the table is full.
func (t *Table) Put(proxyID, upstreamID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxEntries > 0 && len(t.entries) >= t.maxEntries {
		if _, exists := t.entries[proxyID]; !exists {
			t.evictLRU()
		}
	}

	t.entries[proxyID] = &entry{
		upstreamID: upstreamID,
		lastAccess: t.now(),
	}
}

// Get resolves proxyID to its upstream session id. A hit refreshes the
// entry's last-access time; an expired entry is removed and reported absent.
func (t *Table) Get(proxyID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[proxyID]
	if !ok {
		return "", false
	}

	now := t.now()
	if t.ttl > 0 && now.Sub(e.lastAccess) > t.ttl {
		delete(t.entries, proxyID)
		return "", false
	}

	e.lastAccess = now
	return e.upstreamID, true
}

// Len returns the current number of mappings.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Close stops the background sweep goroutine. The table itself remains usable.
func (t *Table) Close() {
	close(t.stopCh)
}

// evictLRU removes the least recently accessed entry. Caller holds the write
// lock.
func (t *Table) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, e := range t.entries {
		if oldestKey == "" || e.lastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastAccess
		}
	}

	if oldestKey != "" {
		delete(t.entries, oldestKey)
	}
}

func (t *Table) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.removeExpired()
		case <-t.stopCh:
			return
		}
	}
}

func (t *Table) removeExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, e := range t.entries {
		if now.Sub(e.lastAccess) > t.ttl {
			delete(t.entries, key)
		}
	}
}
