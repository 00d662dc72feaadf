package store

import (
	"slices"

	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/value"
)

// Episode bookkeeping. The observed set holds path keys touched this
// episode; the reacted set holds input-set keys whose rules have
// fired. Together they are the at-most-once guard: a path is written
// by at most one trigger or rule output per episode, and a rule fires
// at most once per episode regardless of cycles.

// MarkObserved adds p to the observed set. Idempotent.
func (s *Store) MarkObserved(p path.Path) {
	_ = s.mutate(func(cur *snapshot) (*snapshot, error) {
		observed := withKey(cur.observed, p.Key())
		if len(observed) == len(cur.observed) {
			return cur, nil
		}
		next := *cur
		next.observed = observed
		return &next, nil
	})
}

// Observed reports whether p has been marked this episode.
func (s *Store) Observed(p path.Path) bool {
	_, ok := s.state.Load().observed[p.Key()]
	return ok
}

// AllObserved reports whether every member of set has been marked this
// episode. An empty set is vacuously observed; the rule table refuses
// empty input sets, so the case never drives a firing.
func (s *Store) AllObserved(set path.Set) bool {
	observed := s.state.Load().observed
	for _, p := range set.Paths() {
		if _, ok := observed[p.Key()]; !ok {
			return false
		}
	}
	return true
}

// MarkReacted records that the rules under set have fired this
// episode. Idempotent.
func (s *Store) MarkReacted(set path.Set) {
	_ = s.mutate(func(cur *snapshot) (*snapshot, error) {
		reacted := withKey(cur.reacted, set.Key())
		if len(reacted) == len(cur.reacted) {
			return cur, nil
		}
		next := *cur
		next.reacted = reacted
		return &next, nil
	})
}

// Reacted reports whether set has fired this episode.
func (s *Store) Reacted(set path.Set) bool {
	_, ok := s.state.Load().reacted[set.Key()]
	return ok
}

// ResetEpisode clears both bookkeeping sets in one swap, making every
// path observable and every rule fireable again. The tree, the action
// registry, and the rule table are untouched.
func (s *Store) ResetEpisode() {
	_ = s.mutate(func(cur *snapshot) (*snapshot, error) {
		if len(cur.observed) == 0 && len(cur.reacted) == 0 {
			return cur, nil
		}
		next := *cur
		next.observed = map[string]struct{}{}
		next.reacted = map[string]struct{}{}
		return &next, nil
	})
}

// ObservedKeys returns the observed path keys in canonical order.
// Diagnostic surface for traces and assertions.
func (s *Store) ObservedKeys() []string {
	return sortedKeys(s.state.Load().observed)
}

// ReactedKeys returns the reacted input-set keys in canonical order.
func (s *Store) ReactedKeys() []string {
	return sortedKeys(s.state.Load().reacted)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, value.CompareKeys)
	return keys
}
