package store

import (
	"sync/atomic"

	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/value"
)

// snapshot is one immutable generation of the whole store. Mutations
// never modify a snapshot in place; they build a successor sharing
// everything untouched.
type snapshot struct {
	tree     value.Map
	actions  map[string]Action
	rules    ruleTable
	observed map[string]struct{} // path keys marked this episode
	reacted  map[string]struct{} // input-set keys fired this episode
}

// Store is the reactive state container. The zero value is not usable;
// construct with New.
type Store struct {
	state atomic.Pointer[snapshot]
}

// New constructs a store seeded from initial, or an empty one when
// initial is nil. The seed is deep-copied: callers routinely reuse
// seed maps across stores (the rulebook does), and snapshots must not
// share mutable structure with the outside.
func New(initial value.Map) *Store {
	tree := value.Map{}
	if initial != nil {
		tree = value.Clone(initial).(value.Map)
	}
	s := &Store{}
	s.state.Store(&snapshot{
		tree:     tree,
		actions:  map[string]Action{},
		rules:    ruleTable{},
		observed: map[string]struct{}{},
		reacted:  map[string]struct{}{},
	})
	return s
}

// mutate installs the successor snapshot produced by fn with a
// compare-and-swap retry loop. fn must be pure over its argument:
// under contention it reruns against the fresher snapshot. Returning
// the input snapshot unchanged is the no-op fast path.
func (s *Store) mutate(fn func(*snapshot) (*snapshot, error)) error {
	for {
		cur := s.state.Load()
		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == cur {
			return nil
		}
		if s.state.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// Tree returns the current root. Callers must treat the returned
// structure as read-only.
func (s *Store) Tree() value.Map {
	return s.state.Load().tree
}

// Read resolves p in the current tree. The boolean is false when any
// segment fails to resolve, including traversal through a leaf.
// Reading a path holding Null returns (Null{}, true): presence of null
// and absence are distinct conditions.
func (s *Store) Read(p path.Path) (value.Value, bool) {
	return lookup(s.state.Load().tree, p)
}

// Write replaces the value at p, materializing intermediate Maps as
// needed. Traversal blocked by a leaf fails with *StructuralError and
// leaves the tree untouched.
func (s *Store) Write(p path.Path, v value.Value) error {
	return s.mutate(func(cur *snapshot) (*snapshot, error) {
		tree, err := writeTree(cur.tree, p, v)
		if err != nil {
			return nil, err
		}
		next := *cur
		next.tree = tree
		return &next, nil
	})
}

// Erase removes the value at p. Absence anywhere along the path makes
// it a no-op.
func (s *Store) Erase(p path.Path) {
	_ = s.mutate(func(cur *snapshot) (*snapshot, error) {
		tree, changed := eraseTree(cur.tree, p)
		if !changed {
			return cur, nil
		}
		next := *cur
		next.tree = tree
		return &next, nil
	})
}

// WriteObserved commits a value and its observed mark in one snapshot
// swap. The cascade uses it for the trigger write and for rule output
// writes, so no reader can see the value without the mark.
func (s *Store) WriteObserved(p path.Path, v value.Value) error {
	return s.mutate(func(cur *snapshot) (*snapshot, error) {
		tree, err := writeTree(cur.tree, p, v)
		if err != nil {
			return nil, err
		}
		next := *cur
		next.tree = tree
		next.observed = withKey(cur.observed, p.Key())
		return &next, nil
	})
}

// withKey returns a copy of set with key added, or set itself when the
// key is already present.
func withKey(set map[string]struct{}, key string) map[string]struct{} {
	if _, ok := set[key]; ok {
		return set
	}
	next := make(map[string]struct{}, len(set)+1)
	for k := range set {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}
	return next
}
