package rulebook

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/store"
	"github.com/lune4696/metamorphosys/internal/value"
)

// Validation error codes (E100-E199)
const (
	ErrRuleNoInputs       = "E101" // rule has no inputs
	ErrRuleOutputConflict = "E102" // not exactly one of output/effect
	ErrRuleNoChain        = "E103" // rule has no chain
	ErrUnknownAction      = "E104" // chain names an unregistered action
	ErrDuplicateRule      = "E105" // duplicate rule name
	ErrPathNotInSeed      = "E106" // rule path unresolvable in the seed tree
	ErrDuplicateInput     = "E107" // same path listed twice in inputs
	ErrInvalidSeedKey     = "E108" // seed key unusable as a path key
)

// ValidationError represents a rulebook validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled rulebook against semantic rules.
// Returns all errors found (does not fail-fast). The action set is the
// names the target store will resolve chains against, typically
// builtin.Names() or store.ActionNames().
func Validate(rb *Rulebook, actions []string) []ValidationError {
	var errs []ValidationError

	known := make(map[string]bool, len(actions))
	for _, a := range actions {
		known[a] = true
	}

	errs = append(errs, validateSeedKeys(rb.Seed, "seed")...)

	// Probe store over the seed so path resolution matches the real
	// lookup rules, list indexing included.
	probe := store.New(rb.Seed)

	ruleNames := make(map[string]bool)
	for _, rule := range rb.Rules {
		// E105: duplicate rule name
		if ruleNames[rule.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rule.%s", rule.Name),
				Message: fmt.Sprintf("duplicate rule name: %q", rule.Name),
				Code:    ErrDuplicateRule,
			})
		}
		ruleNames[rule.Name] = true

		errs = append(errs, validateRule(probe, rule, known)...)
	}

	return errs
}

// validateRule checks a single declaration.
func validateRule(probe *store.Store, rule RuleDecl, actions map[string]bool) []ValidationError {
	var errs []ValidationError

	// E101: at least one input required
	if len(rule.Inputs) == 0 {
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("rule.%s.inputs", rule.Name),
			Message: "at least one input path is required",
			Code:    ErrRuleNoInputs,
		})
	}

	// E107: duplicate input paths collapse in the rule table
	seen := make(map[string]bool, len(rule.Inputs))
	for _, in := range rule.Inputs {
		key := in.Key()
		if seen[key] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rule.%s.inputs", rule.Name),
				Message: fmt.Sprintf("duplicate input path %q", key),
				Code:    ErrDuplicateInput,
			})
		}
		seen[key] = true

		// E106: every input must resolve in the seed
		if _, ok := probe.Read(in); !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rule.%s.inputs", rule.Name),
				Message: fmt.Sprintf("path %q does not resolve in the seed tree", key),
				Code:    ErrPathNotInSeed,
			})
		}
	}

	// E102: exactly one of output/effect
	hasOutput := rule.Output != nil
	switch {
	case hasOutput && rule.Effect:
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("rule.%s", rule.Name),
			Message: "rule declares both output and effect; pick one",
			Code:    ErrRuleOutputConflict,
		})
	case !hasOutput && !rule.Effect:
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("rule.%s", rule.Name),
			Message: "rule must declare an output path or effect: true",
			Code:    ErrRuleOutputConflict,
		})
	}

	// E106: the output must resolve too, so first firings read a real
	// accumulator seed
	if hasOutput {
		if _, ok := probe.Read(*rule.Output); !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rule.%s.output", rule.Name),
				Message: fmt.Sprintf("path %q does not resolve in the seed tree", rule.Output.Key()),
				Code:    ErrPathNotInSeed,
			})
		}
	}

	// E103: at least one chain action required
	if len(rule.Chain) == 0 {
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("rule.%s.chain", rule.Name),
			Message: "at least one chain action is required",
			Code:    ErrRuleNoChain,
		})
	}

	// E104: chain actions must be resolvable
	for _, action := range rule.Chain {
		if !actions[action] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rule.%s.chain", rule.Name),
				Message: fmt.Sprintf("unknown action %q", action),
				Code:    ErrUnknownAction,
			})
		}
	}

	return errs
}

// validateSeedKeys walks the seed tree and reports map keys that no
// path could ever address (separator bytes, empty, non-NFC).
func validateSeedKeys(m value.Map, field string) []ValidationError {
	var errs []ValidationError
	for _, key := range m.SortedKeys() {
		if _, err := path.New(key); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unaddressable seed key %q: %v", key, err),
				Code:    ErrInvalidSeedKey,
			})
			continue
		}
		if norm.NFC.String(key) != key {
			// Parsed paths are NFC-normalized; a denormalized map key
			// can never match one.
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("seed key %q is not NFC-normalized", key),
				Code:    ErrInvalidSeedKey,
			})
			continue
		}
		if child, ok := m[key].(value.Map); ok {
			errs = append(errs, validateSeedKeys(child, field+"."+key)...)
		}
	}
	return errs
}
