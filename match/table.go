package match

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/arena/types"
)

type entry struct {
	mu      sync.Mutex
	match   *types.Match
	removed bool
}

// Table is the live working set of matches. Every match has its own lock: mutations of one match are
// serialized while different matches proceed independently. Readers only ever receive snapshots.
type Table struct {
	mu sync.RWMutex

	// Primary storage by match id.
	entries map[string]*entry

	// Index by phase, kept in sync after every Update.
	byPhase map[types.Phase]map[string]struct{}
}

func NewTable() *Table {
	return &Table{
		entries: make(map[string]*entry),
		byPhase: make(map[types.Phase]map[string]struct{}),
	}
}

// Register adds a match to the table. The table takes ownership of m.
func (t *Table) Register(m *types.Match) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[m.ID]; ok {
		return eris.Wrapf(ErrAlreadyExists, "match %q", m.ID)
	}
	t.entries[m.ID] = &entry{match: m}
	t.index(m.ID, "", m.Phase)
	return nil
}

// Deregister removes a match. Updates already waiting on its lock observe ErrNotFound.
func (t *Table) Deregister(id string) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
		for _, ids := range t.byPhase {
			delete(ids, id)
		}
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	return true
}

func (t *Table) lookup(id string) (*entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	return e, ok
}

// Get returns a snapshot of the match.
func (t *Table) Get(id string) (*types.Match, error) {
	e, ok := t.lookup(id)
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "match %q", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, eris.Wrapf(ErrNotFound, "match %q", id)
	}
	return e.match.Snapshot(), nil
}

// Update runs fn with exclusive access to the live match and returns a snapshot taken after fn.
// If fn fails the error is returned as is and no snapshot is taken; fn is responsible for leaving the
// match untouched in that case.
func (t *Table) Update(id string, fn func(m *types.Match) error) (*types.Match, error) {
	e, ok := t.lookup(id)
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "match %q", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, eris.Wrapf(ErrNotFound, "match %q", id)
	}

	before := e.match.Phase
	if err := fn(e.match); err != nil {
		return nil, err
	}
	if after := e.match.Phase; after != before {
		t.mu.Lock()
		if t.entries[id] == e {
			t.index(id, before, after)
		}
		t.mu.Unlock()
	}
	return e.match.Snapshot(), nil
}

// index moves id from one phase bucket to another. Callers hold t.mu.
func (t *Table) index(id string, from, to types.Phase) {
	if ids, ok := t.byPhase[from]; ok {
		delete(ids, id)
	}
	ids, ok := t.byPhase[to]
	if !ok {
		ids = make(map[string]struct{})
		t.byPhase[to] = ids
	}
	ids[id] = struct{}{}
}

// Snapshots returns a snapshot of every live match ordered by creation time.
func (t *Table) Snapshots() []*types.Match {
	t.mu.RLock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	return t.collect(ids)
}

// ByPhase returns snapshots of the matches currently in one of the given phases, ordered by creation
// time. No phases means every phase.
func (t *Table) ByPhase(phases ...types.Phase) []*types.Match {
	if len(phases) == 0 {
		return t.Snapshots()
	}
	t.mu.RLock()
	var ids []string
	for _, p := range phases {
		for id := range t.byPhase[p] {
			ids = append(ids, id)
		}
	}
	t.mu.RUnlock()
	return t.collect(ids)
}

func (t *Table) collect(ids []string) []*types.Match {
	out := make([]*types.Match, 0, len(ids))
	for _, id := range ids {
		if m, err := t.Get(id); err == nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CountByPhase returns the number of live matches per phase.
func (t *Table) CountByPhase() map[types.Phase]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[types.Phase]int, len(t.byPhase))
	for p, ids := range t.byPhase {
		if len(ids) > 0 {
			out[p] = len(ids)
		}
	}
	return out
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clear drops every match. Used on shutdown and between tests.
func (t *Table) Clear() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*entry)
	t.byPhase = make(map[types.Phase]map[string]struct{})
	t.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
}
