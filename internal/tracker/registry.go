package tracker

import (
	"sync"
	"time"
)

// Registry keeps one Session per UI session key and drops sessions that
// have been idle longer than ttl.
type Registry struct {
	collector *Collector
	ttl       time.Duration
	now       func() time.Time

	mu        sync.Mutex
	sessions  map[string]*registryEntry
	lastSweep time.Time
}

type registryEntry struct {
	session  *Session
	lastUsed time.Time
}

func NewRegistry(collector *Collector, ttl time.Duration) *Registry {
	return &Registry{
		collector: collector,
		ttl:       ttl,
		now:       time.Now,
		sessions:  make(map[string]*registryEntry),
	}
}

// Session returns the session for key, creating it on first use.
func (r *Registry) Session(key string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweepLocked(now)

	e, ok := r.sessions[key]
	if !ok {
		e = &registryEntry{session: r.collector.NewSession()}
		r.sessions[key] = e
	}
	e.lastUsed = now
	return e.session
}

// Lookup returns the session for key without creating one.
func (r *Registry) Lookup(key string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[key]
	if !ok || r.expired(e, r.now()) {
		return nil, false
	}
	return e.session, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) expired(e *registryEntry, now time.Time) bool {
	// Sessions mid-call are never dropped.
	return r.ttl > 0 && now.Sub(e.lastUsed) > r.ttl && !e.session.IsTracking()
}

func (r *Registry) sweepLocked(now time.Time) {
	if r.ttl <= 0 || now.Sub(r.lastSweep) < r.ttl/4 {
		return
	}
	r.lastSweep = now
	for k, e := range r.sessions {
		if r.expired(e, now) {
			delete(r.sessions, k)
		}
	}
}
