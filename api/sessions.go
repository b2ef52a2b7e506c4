/*
sessions.go - In-memory registry of open review sessions

PURPOSE:
  A review session lives between the upload (or partial seed) and the close.
  The registry hands out session ids and serializes access to each session,
  because HTTP requests for the same session may arrive concurrently.

LIFECYCLE:
  Create     -> new session, id from uuid
  With       -> run fn with the session locked; touches the idle clock
  Remove     -> drop a submitted or abandoned session
  ExpireIdle -> abandon and drop sessions idle for longer than a TTL
  Clear      -> abandon and drop everything (scenario reload)

SEE ALSO:
  - scheduler.go: Calls ExpireIdle on a schedule
  - count/session.go: The session itself
*/
package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/stock-count/count"
)

type sessionEntry struct {
	mu          sync.Mutex
	session     *count.Session
	lastTouched time.Time
}

// Registry holds open sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[count.SessionID]*sessionEntry
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[count.SessionID]*sessionEntry),
		now:      time.Now,
	}
}

// Create registers a new session over lines.
func (r *Registry) Create(locationID count.LocationID, typ count.Type, lines []count.ReconciledLine) *count.Session {
	id := count.SessionID(uuid.NewString())
	s := count.NewSession(id, locationID, typ, lines)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{session: s, lastTouched: r.now()}
	return s
}

// With runs fn while holding the session's lock. Returns ErrSessionNotFound
// for unknown ids.
func (r *Registry) With(id count.SessionID, fn func(s *count.Session) error) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return count.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Closed() {
		// Lost a race with Remove or ExpireIdle.
		return count.ErrSessionNotFound
	}
	e.lastTouched = r.now()
	return fn(e.session)
}

// Remove drops a session. Callers hold the session via With.
func (r *Registry) Remove(id count.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ExpireIdle abandons and drops every session untouched for ttl.
func (r *Registry) ExpireIdle(ttl time.Duration) []count.SessionID {
	r.mu.Lock()
	candidates := make(map[count.SessionID]*sessionEntry, len(r.sessions))
	for id, e := range r.sessions {
		candidates[id] = e
	}
	r.mu.Unlock()

	cutoff := r.now().Add(-ttl)
	var expired []count.SessionID
	for id, e := range candidates {
		e.mu.Lock()
		if e.lastTouched.Before(cutoff) {
			e.session.Abandon()
			expired = append(expired, id)
		}
		e.mu.Unlock()
	}

	r.mu.Lock()
	for _, id := range expired {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	return expired
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Clear abandons and drops every open session.
func (r *Registry) Clear() int {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[count.SessionID]*sessionEntry)
	r.mu.Unlock()

	for _, e := range all {
		e.mu.Lock()
		e.session.Abandon()
		e.mu.Unlock()
	}
	return len(all)
}
