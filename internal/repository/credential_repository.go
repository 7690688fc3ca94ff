package repository

import (
	"context"
	"sync"
	"time"
)

// CredentialRepository persists string entries grouped by scope. Writes of
// several entries are applied as one operation so readers never observe half
// of a Put.
//
// Put records retainUntil for the whole scope: once it passes, the scope
// reads as empty and the backend may drop it. A zero retainUntil keeps the
// scope until it is deleted.
type CredentialRepository interface {
	Get(ctx context.Context, scope string, keys ...string) (map[string]string, error)
	Put(ctx context.Context, scope string, entries map[string]string, retainUntil time.Time) error
	Delete(ctx context.Context, scope string, keys ...string) error
}

// memorySweepInterval limits how often Put walks the map for stale scopes.
const memorySweepInterval = time.Minute

type memoryScope struct {
	entries     map[string]string
	retainUntil time.Time
}

func (s *memoryScope) stale(now time.Time) bool {
	return !s.retainUntil.IsZero() && !now.Before(s.retainUntil)
}

type memoryCredentialRepository struct {
	mu        sync.RWMutex
	scopes    map[string]*memoryScope
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryCredentialRepository keeps entries in process memory. Stale
// scopes are dropped lazily on writes. A nil clock uses time.Now.
func NewMemoryCredentialRepository(now func() time.Time) CredentialRepository {
	if now == nil {
		now = time.Now
	}
	return &memoryCredentialRepository{scopes: make(map[string]*memoryScope), now: now}
}

func (r *memoryCredentialRepository) Get(_ context.Context, scope string, keys ...string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(keys))
	current, ok := r.scopes[scope]
	if !ok || current.stale(r.now()) {
		return out, nil
	}
	for _, key := range keys {
		if val, ok := current.entries[key]; ok {
			out[key] = val
		}
	}
	return out, nil
}

func (r *memoryCredentialRepository) Put(_ context.Context, scope string, entries map[string]string, retainUntil time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	current, ok := r.scopes[scope]
	if !ok || current.stale(now) {
		current = &memoryScope{entries: make(map[string]string, len(entries))}
		r.scopes[scope] = current
	}
	for key, val := range entries {
		current.entries[key] = val
	}
	current.retainUntil = retainUntil
	return nil
}

func (r *memoryCredentialRepository) Delete(_ context.Context, scope string, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.scopes[scope]
	if !ok {
		return nil
	}
	for _, key := range keys {
		delete(current.entries, key)
	}
	if len(current.entries) == 0 {
		delete(r.scopes, scope)
	}
	return nil
}

// sweep must be called with mu held.
func (r *memoryCredentialRepository) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < memorySweepInterval {
		return
	}
	r.lastSweep = now
	for scope, current := range r.scopes {
		if current.stale(now) {
			delete(r.scopes, scope)
		}
	}
}
