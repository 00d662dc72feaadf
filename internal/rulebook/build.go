package rulebook

import (
	"fmt"

	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/store"
	"github.com/lune4696/metamorphosys/internal/value"
)

// Build seeds st with the rulebook's initial tree and registers its
// rules. Validate first: Build assumes a well-formed book and reports
// only store-level failures.
func (rb *Rulebook) Build(st *store.Store) error {
	for _, key := range rb.Seed.SortedKeys() {
		p, err := path.New(key)
		if err != nil {
			return fmt.Errorf("seed key %q: %w", key, err)
		}
		if err := st.Write(p, value.Clone(rb.Seed[key])); err != nil {
			return fmt.Errorf("seeding %q: %w", key, err)
		}
	}

	for _, rule := range rb.Rules {
		output := store.OutputEffect()
		if rule.Output != nil {
			output = store.OutputPath(*rule.Output)
		}
		if err := st.AddRule(path.NewSet(rule.Inputs...), output, rule.Chain); err != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, err)
		}
	}

	return nil
}

// NewStore builds a fresh store from the rulebook.
func (rb *Rulebook) NewStore() (*store.Store, error) {
	st := store.New(rb.Seed)
	for _, rule := range rb.Rules {
		output := store.OutputEffect()
		if rule.Output != nil {
			output = store.OutputPath(*rule.Output)
		}
		if err := st.AddRule(path.NewSet(rule.Inputs...), output, rule.Chain); err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
	}
	return st, nil
}

// Digest returns the canonical digest identifying this rulebook.
// Episodes journal it so replay can detect drift between the book that
// produced a trace and the book replaying it.
func (rb *Rulebook) Digest() string {
	rules := value.Map{}
	for _, rule := range rb.Rules {
		inputs := value.List{}
		for _, in := range rule.Inputs {
			inputs = append(inputs, value.String(in.Key()))
		}
		chain := value.List{}
		for _, action := range rule.Chain {
			chain = append(chain, value.String(action))
		}
		enc := value.Map{
			"inputs": inputs,
			"chain":  chain,
		}
		if rule.Effect {
			enc["effect"] = value.Bool(true)
		}
		if rule.Output != nil {
			enc["output"] = value.String(rule.Output.Key())
		}
		rules[rule.Name] = enc
	}
	doc := value.Map{
		"seed":  rb.Seed,
		"rules": rules,
	}
	return value.MustDigest(value.DomainRulebook, doc)
}
