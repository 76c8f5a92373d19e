package conversation

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"regbot/internal/domain"
)

type entry struct {
	mu      sync.Mutex
	session *domain.Session
	closed  atomic.Bool
}

// Registry owns the active sessions keyed by user id. Each session is
// guarded by its own lock so distinct users never contend.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]*entry
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[int64]*entry),
		now:     time.Now,
	}
}

// start replaces any session of userID with a fresh one.
func (r *Registry) start(userID int64) *entry {
	e := &entry{session: domain.NewSession(userID)}

	r.mu.Lock()
	if old, ok := r.entries[userID]; ok {
		old.closed.Store(true)
	}
	r.entries[userID] = e
	r.mu.Unlock()

	return e
}

func (r *Registry) get(userID int64) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[userID]
}

// remove drops e if it is still the current session of userID.
func (r *Registry) remove(userID int64, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.closed.Store(true)
	if r.entries[userID] == e {
		delete(r.entries, userID)
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns a copy of the session of userID.
func (r *Registry) Snapshot(userID int64) (domain.Session, bool) {
	e := r.get(userID)
	if e == nil {
		return domain.Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return domain.Session{}, false
	}
	s := *e.session
	s.Fields = maps.Clone(e.session.Fields)
	return s, true
}

// Sweep discards sessions idle for longer than ttl and returns how many
// were dropped. Sessions busy with a transition are left alone.
func (r *Registry) Sweep(ttl time.Duration) int {
	deadline := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for userID, e := range r.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.session.UpdatedAt.Before(deadline) {
			e.closed.Store(true)
			delete(r.entries, userID)
			dropped++
		}
		e.mu.Unlock()
	}
	return dropped
}
