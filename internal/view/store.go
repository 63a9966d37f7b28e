package view

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jrgparkinson/tracksplits/internal/races"
)

// SessionStore holds the live sessions of the server.
type SessionStore struct {
	catalog         *races.Catalog
	autoUpdateRaces bool

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewSessionStore creates sessions that start with catalog and the given
// auto update setting.
func NewSessionStore(catalog *races.Catalog, autoUpdateRaces bool) *SessionStore {
	return &SessionStore{
		catalog:         catalog,
		autoUpdateRaces: autoUpdateRaces,
		sessions:        make(map[uuid.UUID]*Session),
	}
}

// New starts a session with a fresh id.
func (st *SessionStore) New() *Session {
	s := newSession(st.catalog, st.autoUpdateRaces)
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns the session with id, or ErrSessionNotFound.
func (st *SessionStore) Get(id uuid.UUID) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete forgets a session.
func (st *SessionStore) Delete(id uuid.UUID) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len is the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Prune drops sessions idle for longer than maxAge and returns how many were
// removed. A session stuck loading for that long is dropped too.
func (st *SessionStore) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}
