package group

import (
	"fmt"
	"sync"
	"time"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/storage"
)

// Store persists Group state to group.yaml. Every mutating call holds
// the group's mutex, re-reads the file, mutates, and writes back —
// deliberately uncached, per spec §4.C: "the daemon is the only writer,
// so staleness is impossible; simplicity beats caching."
type Store struct {
	paths storage.Paths

	mu       sync.Mutex
	groupMus map[string]*sync.Mutex
}

func NewStore(paths storage.Paths) *Store {
	return &Store{paths: paths, groupMus: make(map[string]*sync.Mutex)}
}

// groupMutex returns (creating if needed) the per-group_id mutex (spec §5).
func (s *Store) groupMutex(groupID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.groupMus[groupID]
	if !ok {
		m = &sync.Mutex{}
		s.groupMus[groupID] = m
	}
	return m
}

// Lock acquires the per-group mutex and returns an unlock func. All ops
// that mutate group state, append ledger events, or spawn a runner must
// hold this for their whole critical section (spec §5).
func (s *Store) Lock(groupID string) func() {
	m := s.groupMutex(groupID)
	m.Lock()
	return m.Unlock
}

// Load reads group.yaml fresh from disk. Read-only ops may call this
// without holding the group mutex (spec §5), but MUST re-read every
// time rather than caching.
func (s *Store) Load(groupID string) (*Group, error) {
	var g Group
	if err := storage.ReadYAML(s.paths.GroupYAML(groupID), &g); err != nil {
		return nil, apperr.NotFound(apperr.GroupNotFound, fmt.Sprintf("group not found: %s", groupID))
	}
	return &g, nil
}

// Save writes group.yaml atomically. Callers must hold the group mutex.
func (s *Store) Save(g *Group) error {
	g.UpdatedAt = time.Now().UTC()
	return storage.WriteYAMLAtomic(s.paths.GroupYAML(g.GroupID), g, 0o644)
}

// Create persists a brand-new group. Callers must hold the group mutex
// (acquired after the id is minted, since no prior file exists to race
// on).
func (s *Store) Create(g *Group) error {
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	if g.State == "" {
		g.State = StateActive
	}
	if err := g.Validate(); err != nil {
		return err
	}
	return storage.WriteYAMLAtomic(s.paths.GroupYAML(g.GroupID), g, 0o644)
}

// Mutate loads a group, applies fn, validates, and saves it back, all
// while holding the per-group mutex. This is the canonical shape every
// group-mutating op should use (spec §4.C: "load -> mutate -> save").
func (s *Store) Mutate(groupID string, fn func(g *Group) error) (*Group, error) {
	unlock := s.Lock(groupID)
	defer unlock()

	g, err := s.Load(groupID)
	if err != nil {
		return nil, err
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := s.Save(g); err != nil {
		return nil, err
	}
	return g, nil
}
