package store

import (
	"fmt"
	"slices"

	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/value"
)

// effectKey is the output key for side-effect rules. It contains the
// set separator byte, which no path key may, so it can never collide
// with a real output path.
const effectKey = "|effect"

// Output is a rule's target: a path to write the chain result to, or
// the side-effect sentinel for rules that only run their chain.
type Output struct {
	path   path.Path
	effect bool
}

// OutputPath targets a store path.
func OutputPath(p path.Path) Output {
	return Output{path: p}
}

// OutputEffect is the side-effect sentinel.
func OutputEffect() Output {
	return Output{effect: true}
}

// Path returns the target path; ok is false for the sentinel.
func (o Output) Path() (path.Path, bool) {
	if o.effect {
		return nil, false
	}
	return o.path, true
}

// IsEffect reports whether o is the side-effect sentinel.
func (o Output) IsEffect() bool {
	return o.effect
}

// Key returns the canonical identity used by the rule table: the
// target path key, or the sentinel key.
func (o Output) Key() string {
	if o.effect {
		return effectKey
	}
	return o.path.Key()
}

// String implements fmt.Stringer.
func (o Output) String() string {
	if o.effect {
		return "(effect)"
	}
	return o.path.Key()
}

// Rule wires an input path set to an output through an ordered chain
// of action names. Identity is (Inputs.Key, Output.Key): re-adding the
// same pair replaces the chain.
type Rule struct {
	Inputs path.Set
	Output Output
	Chain  []string
}

// ruleTable is input-set key → output key → Rule. The two-level shape
// keeps removal by inputs alone O(outputs) and lets several outputs
// share one input set.
type ruleTable map[string]map[string]Rule

// AddRule registers a rule. The same inputs+output pair replaces the
// previous chain; nothing else is disturbed.
func (s *Store) AddRule(inputs path.Set, output Output, chain []string) error {
	if inputs.Len() == 0 {
		return fmt.Errorf("add rule: empty input set")
	}
	if len(chain) == 0 {
		return fmt.Errorf("add rule %s: empty action chain", inputs)
	}
	for i, name := range chain {
		if name == "" {
			return fmt.Errorf("add rule %s: empty action name at chain[%d]", inputs, i)
		}
	}
	if !output.effect && output.path == nil {
		return fmt.Errorf("add rule %s: output has no path and is not the effect sentinel", inputs)
	}

	rule := Rule{Inputs: inputs, Output: output, Chain: slices.Clone(chain)}
	return s.mutate(func(cur *snapshot) (*snapshot, error) {
		next := *cur
		next.rules = cur.rules.with(rule)
		return &next, nil
	})
}

// RemoveRule removes the single rule identified by inputs+output.
// Unknown pairs are a no-op.
func (s *Store) RemoveRule(inputs path.Set, output Output) {
	_ = s.mutate(func(cur *snapshot) (*snapshot, error) {
		table, changed := cur.rules.without(inputs.Key(), output.Key())
		if !changed {
			return cur, nil
		}
		next := *cur
		next.rules = table
		return &next, nil
	})
}

// RemoveRules removes every rule registered under inputs.
func (s *Store) RemoveRules(inputs path.Set) {
	_ = s.mutate(func(cur *snapshot) (*snapshot, error) {
		key := inputs.Key()
		if _, ok := cur.rules[key]; !ok {
			return cur, nil
		}
		table := make(ruleTable, len(cur.rules))
		for k, group := range cur.rules {
			if k != key {
				table[k] = group
			}
		}
		next := *cur
		next.rules = table
		return &next, nil
	})
}

// RulesFor returns the rules registered under inputs, output keys in
// canonical order.
func (s *Store) RulesFor(inputs path.Set) []Rule {
	group, ok := s.state.Load().rules[inputs.Key()]
	if !ok {
		return nil
	}
	return sortedRules(group)
}

// Rules returns every rule in canonical order: input-set key, then
// output key. The cascade scans in exactly this order, which is what
// makes traces reproducible.
func (s *Store) Rules() []Rule {
	table := s.state.Load().rules

	setKeys := make([]string, 0, len(table))
	for k := range table {
		setKeys = append(setKeys, k)
	}
	slices.SortFunc(setKeys, value.CompareKeys)

	var out []Rule
	for _, k := range setKeys {
		out = append(out, sortedRules(table[k])...)
	}
	return out
}

// RuleCount returns the number of registered rules (inputs+output
// pairs). The cascade's scan bound derives from it.
func (s *Store) RuleCount() int {
	n := 0
	for _, group := range s.state.Load().rules {
		n += len(group)
	}
	return n
}

func sortedRules(group map[string]Rule) []Rule {
	outKeys := make([]string, 0, len(group))
	for k := range group {
		outKeys = append(outKeys, k)
	}
	slices.SortFunc(outKeys, value.CompareKeys)

	rules := make([]Rule, len(outKeys))
	for i, k := range outKeys {
		rules[i] = group[k]
	}
	return rules
}

// with returns a table containing rule, copying only the outer map and
// the touched group.
func (t ruleTable) with(rule Rule) ruleTable {
	setKey := rule.Inputs.Key()

	table := make(ruleTable, len(t)+1)
	for k, group := range t {
		table[k] = group
	}
	group := make(map[string]Rule, len(t[setKey])+1)
	for k, r := range t[setKey] {
		group[k] = r
	}
	group[rule.Output.Key()] = rule
	table[setKey] = group
	return table
}

// without removes one entry, dropping the group when it empties.
func (t ruleTable) without(setKey, outputKey string) (ruleTable, bool) {
	group, ok := t[setKey]
	if !ok {
		return t, false
	}
	if _, ok := group[outputKey]; !ok {
		return t, false
	}

	table := make(ruleTable, len(t))
	for k, g := range t {
		if k != setKey {
			table[k] = g
		}
	}
	if len(group) > 1 {
		rest := make(map[string]Rule, len(group)-1)
		for k, r := range group {
			if k != outputKey {
				rest[k] = r
			}
		}
		table[setKey] = rest
	}
	return table, true
}
