package enrich

import (
	"sync"
)

// sessionEntry couples the state of a session with the lock serializing its writers
type sessionEntry struct {
	mu    sync.Mutex
	state *sessionState
}

// sessionStore holds the enrichment state per session key.
// The store lock only guards the map; work on a session is done under the
// session's own lock so different sessions proceed in parallel.
type sessionStore struct {
	mu     sync.Mutex
	lookup map[string]*sessionEntry
}

func newSessionStore() *sessionStore {
	return &sessionStore{lookup: make(map[string]*sessionEntry)}
}

func (s *sessionStore) get(key string) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.lookup[key]; ok {
		return e
	}
	e := &sessionEntry{state: newSessionState()}
	s.lookup[key] = e
	return e
}

// with runs fn while holding the lock of the session
func (s *sessionStore) with(key string, fn func(st *sessionState) error) error {
	e := s.get(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.state)
}

func (s *sessionStore) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lookup, key)
}

func (s *sessionStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookup = make(map[string]*sessionEntry)
}

func (s *sessionStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]string, 0, len(s.lookup))
	for k := range s.lookup {
		ret = append(ret, k)
	}
	return ret
}
