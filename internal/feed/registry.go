// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AnonymousKey is the registry key shared by all signed-out viewers.
const AnonymousKey = "anonymous"

// SessionKey returns the registry key for a cookie session.
func SessionKey(sessionID string) string { return "session:" + sessionID }

// UserKey returns the registry key for a bearer-token client.
func UserKey(id uuid.UUID) string { return "user:" + id.String() }

// registryEntry pairs a store with its last access time.
type registryEntry struct {
	store    *Store
	lastSeen time.Time
}

// Registry owns one Store per session key and drops stores that have not
// been used for the idle TTL.
type Registry struct {
	deps    Deps
	idleTTL time.Duration

	mu     sync.Mutex
	stores map[string]*registryEntry
	stopCh chan struct{}
	once   sync.Once
}

// NewRegistry creates a registry whose stores share deps. It starts a
// background goroutine that evicts idle stores; call Stop to end it.
func NewRegistry(deps Deps, idleTTL time.Duration) *Registry {
	r := &Registry{
		deps:    deps,
		idleTTL: idleTTL,
		stores:  make(map[string]*registryEntry),
		stopCh:  make(chan struct{}),
	}

	interval := idleTTL / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				r.evictIdle(now)
			case <-r.stopCh:
				return
			}
		}
	}()

	return r
}

// Get returns the store for key, creating it on first use.
func (r *Registry) Get(key string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.stores[key]
	if !ok {
		e = &registryEntry{store: New(key, r.deps)}
		r.stores[key] = e
	}
	e.lastSeen = time.Now()
	return e.store
}

// Drop forgets the store for key, e.g. on logout.
func (r *Registry) Drop(key string) {
	r.mu.Lock()
	delete(r.stores, key)
	r.mu.Unlock()
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Stop terminates the background eviction goroutine. Safe to call twice.
func (r *Registry) Stop() {
	r.once.Do(func() { close(r.stopCh) })
}

// evictIdle removes stores not accessed since now minus the idle TTL.
func (r *Registry) evictIdle(now time.Time) int {
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for key, e := range r.stores {
		if e.lastSeen.Before(cutoff) {
			delete(r.stores, key)
			evicted++
		}
	}
	return evicted
}
