package api

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/warp/tender-engine/cash"
)

// ErrSessionNotFound is returned for unknown or reaped tender session IDs.
var ErrSessionNotFound = errors.New("tender session not found")

// SessionRegistry holds the tender sessions open at the counters. Each
// session has its own mutex; a TenderSession itself is not safe for
// concurrent use.
type SessionRegistry struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
	now     func() time.Time
}

type sessionEntry struct {
	mu      sync.Mutex
	session *cash.TenderSession
	// touched is read without mu so the reaper never waits on a busy session.
	touched atomic.Int64
}

func (e *sessionEntry) touch(t time.Time) { e.touched.Store(t.UnixNano()) }
func (e *sessionEntry) lastTouched() time.Time { return time.Unix(0, e.touched.Load()) }

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{entries: make(map[string]*sessionEntry), now: time.Now}
}

// Add registers a session and returns its ID.
func (r *SessionRegistry) Add(s *cash.TenderSession) string {
	id := uuid.NewString()
	e := &sessionEntry{session: s}
	e.touch(r.now())
	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()
	return id
}

// With runs fn with exclusive access to the session.
func (r *SessionRegistry) With(id string, fn func(*cash.TenderSession) error) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.touch(r.now())
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.touch(r.now())
	return fn(e.session)
}

func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear drops every session.
func (r *SessionRegistry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]*sessionEntry)
	r.mu.Unlock()
}

// IdleSince returns the IDs of sessions last touched before cutoff, oldest
// first.
func (r *SessionRegistry) IdleSince(cutoff time.Time) []string {
	r.mu.RLock()
	type idle struct {
		id string
		at time.Time
	}
	var found []idle
	for id, e := range r.entries {
		if at := e.lastTouched(); at.Before(cutoff) {
			found = append(found, idle{id: id, at: at})
		}
	}
	r.mu.RUnlock()

	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })
	ids := make([]string, len(found))
	for i, f := range found {
		ids[i] = f.id
	}
	return ids
}

// Expire removes the session if it is still idle at cutoff, running fn on it
// first. It reports whether the session was removed.
func (r *SessionRegistry) Expire(id string, cutoff time.Time, fn func(*cash.TenderSession)) bool {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.lastTouched().Before(cutoff) {
		return false
	}
	if fn != nil {
		fn(e.session)
	}
	r.Remove(id)
	return true
}
