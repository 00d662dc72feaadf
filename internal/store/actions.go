package store

import (
	"fmt"
	"slices"

	"github.com/lune4696/metamorphosys/internal/value"
)

// Action is a named pure transformation over values. The cascade
// resolves chain names against the registry at fire time and feeds
// each action the rule's input values plus the running accumulator.
//
// Actions must not touch the store (the engine is the only writer
// during a cascade), must not mutate their arguments, and must not
// retain and later mutate their result. A returned error skips the
// rule's effect exactly like a missing argument: logged, traced, and
// the cascade moves on.
type Action func(args []value.Value) (value.Value, error)

// RegisterAction binds name to fn, replacing any existing binding.
// Rules referencing the name resolve it at fire time, so registration
// order relative to AddRule does not matter.
func (s *Store) RegisterAction(name string, fn Action) error {
	if name == "" {
		return fmt.Errorf("register action: empty name")
	}
	if fn == nil {
		return fmt.Errorf("register action %q: nil func", name)
	}
	return s.mutate(func(cur *snapshot) (*snapshot, error) {
		next := *cur
		actions := make(map[string]Action, len(cur.actions)+1)
		for k, v := range cur.actions {
			actions[k] = v
		}
		actions[name] = fn
		next.actions = actions
		return &next, nil
	})
}

// RemoveAction unbinds name. Removing an unknown name is a no-op;
// rules still naming it will skip at fire time.
func (s *Store) RemoveAction(name string) {
	_ = s.mutate(func(cur *snapshot) (*snapshot, error) {
		if _, ok := cur.actions[name]; !ok {
			return cur, nil
		}
		next := *cur
		actions := make(map[string]Action, len(cur.actions))
		for k, v := range cur.actions {
			if k != name {
				actions[k] = v
			}
		}
		next.actions = actions
		return &next, nil
	})
}

// ResolveAction looks up name in the registry.
func (s *Store) ResolveAction(name string) (Action, bool) {
	fn, ok := s.state.Load().actions[name]
	return fn, ok
}

// ActionNames returns registered names in canonical order.
func (s *Store) ActionNames() []string {
	actions := s.state.Load().actions
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	slices.SortFunc(names, value.CompareKeys)
	return names
}
