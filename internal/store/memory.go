// internal/store/memory.go
//
// In-memory registry of live game sessions.
//
// Characteristics:
//   - Stores *game.Session values keyed by ID in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Tracks last access so idle sessions can be pruned; pruning closes the
//     session, cancelling its timers and riddle requests.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robalobadob/tesseract/internal/game"
)

// ErrNotFound is returned by Get for unknown or pruned session IDs.
var ErrNotFound = errors.New("session not found")

// Store defines the registry interface for live sessions.
type Store interface {
	// Save adds or replaces a session.
	Save(ctx context.Context, s *game.Session) error

	// Get retrieves a session by ID and marks it as used.
	Get(ctx context.Context, id string) (*game.Session, error)

	// Delete closes and forgets a session. Unknown IDs are not an error.
	Delete(ctx context.Context, id string) error

	// Prune closes sessions not used since before cutoff and returns the
	// IDs it removed. It does not refresh the sessions it keeps.
	Prune(ctx context.Context, cutoff time.Time) []string

	// Len reports how many sessions are held.
	Len() int
}

type entry struct {
	session *game.Session
	seen    time.Time
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{sessions: make(map[string]*entry), now: time.Now}
}

func (m *memory) Save(_ context.Context, s *game.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[s.ID]; ok && old.session != s {
		old.session.Close()
	}
	m.sessions[s.ID] = &entry{session: s, seen: m.now()}
	return nil
}

func (m *memory) Get(_ context.Context, id string) (*game.Session, error) {
	// write lock: Get refreshes the access time
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.seen = m.now()
	return e.session, nil
}

func (m *memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		e.session.Close()
	}
	return nil
}

func (m *memory) Prune(_ context.Context, cutoff time.Time) []string {
	var (
		ids   []string
		stale []*game.Session
	)
	m.mu.Lock()
	for id, e := range m.sessions {
		if e.seen.Before(cutoff) {
			ids = append(ids, id)
			stale = append(stale, e.session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	return ids
}

func (m *memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
