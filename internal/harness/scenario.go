package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lune4696/metamorphosys/internal/builtin"
	"github.com/lune4696/metamorphosys/internal/engine"
	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/value"
)

// Scenario defines a conformance test scenario: a rulebook, a sequence
// of episode steps to drive through the engine, and assertions on what
// the cascade did.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rulebook is the path to the CUE rulebook the scenario runs
	// against. Relative paths are resolved against the base path given
	// to LoadScenarioWithBasePath.
	Rulebook string `yaml:"rulebook"`

	// Episodes lists the observations to apply, in order.
	Episodes []EpisodeStep `yaml:"episodes"`

	// Assertions validate the outcomes, the trace, and the settled tree.
	// Supported types: final_value, fired_count, outcome_sequence.
	Assertions []Assertion `yaml:"assertions"`
}

// EpisodeStep is one observation. Exactly one of Apply and Set names
// the mutation: Apply references a stock mutator, Set writes a literal.
type EpisodeStep struct {
	// Observe is the trigger path.
	Observe string `yaml:"observe"`

	// Apply names a stock mutator (increment, decrement, double, negate).
	Apply string `yaml:"apply,omitempty"`

	// Set is a literal value to write at the trigger path. Floats are
	// rejected, like everywhere else in the tree.
	Set any `yaml:"set,omitempty"`

	// Expect is the outcome code this step should produce. Empty means
	// success.
	Expect string `yaml:"expect,omitempty"`

	// Reset controls whether the episode is reset after the step.
	// Omitted means true; steps probing idempotence within one episode
	// set it to false.
	Reset *bool `yaml:"reset,omitempty"`
}

// ShouldReset reports whether the episode resets after this step.
func (s EpisodeStep) ShouldReset() bool {
	return s.Reset == nil || *s.Reset
}

// Assertion validates one property of a finished run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_value": the settled tree holds Equals at Path
	// - "fired_count": Rule fired exactly Count times
	// - "outcome_sequence": the step outcomes match Outcomes, in order
	Type string `yaml:"type"`

	// Path is the tree path to read (used by final_value).
	Path string `yaml:"path,omitempty"`

	// Equals is the expected value at Path (used by final_value).
	Equals any `yaml:"equals,omitempty"`

	// Rule is the input-set key, members separated by "|" (used by
	// fired_count). Member order does not matter; the key is
	// canonicalized before matching.
	Rule string `yaml:"rule,omitempty"`

	// Count is the expected number of firings (used by fired_count).
	// Zero asserts the rule never fired.
	Count int `yaml:"count,omitempty"`

	// Outcomes is the expected outcome code per step (used by
	// outcome_sequence).
	Outcomes []string `yaml:"outcomes,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalValue      = "final_value"
	AssertFiredCount      = "fired_count"
	AssertOutcomeSequence = "outcome_sequence"
)

// outcomeNames is the closed set of codes a step's expect clause and an
// outcome_sequence assertion may name.
var outcomeNames = map[string]bool{
	engine.OutcomeSuccess.String():         true,
	engine.OutcomeNotFound.String():        true,
	engine.OutcomeAlreadyObserved.String(): true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the rulebook path against basePath. Pass the scenario
// file's directory so scenarios stay relocatable.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decode catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Rulebook != "" && basePath != "" && !filepath.IsAbs(scenario.Rulebook) {
		scenario.Rulebook = filepath.Join(basePath, scenario.Rulebook)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Rulebook == "" {
		return fmt.Errorf("rulebook is required")
	}

	if len(s.Episodes) == 0 {
		return fmt.Errorf("episodes list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := os.Stat(s.Rulebook); os.IsNotExist(err) {
		return fmt.Errorf("rulebook file not found: %s", s.Rulebook)
	}

	for i, step := range s.Episodes {
		if err := validateEpisode(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateEpisode validates a single episode step.
func validateEpisode(index int, step *EpisodeStep) error {
	if step.Observe == "" {
		return fmt.Errorf("episodes[%d]: observe is required", index)
	}
	if _, err := path.Parse(step.Observe); err != nil {
		return fmt.Errorf("episodes[%d]: invalid observe path %q: %v", index, step.Observe, err)
	}

	hasApply := step.Apply != ""
	hasSet := step.Set != nil
	switch {
	case hasApply && hasSet:
		return fmt.Errorf("episodes[%d]: apply and set are mutually exclusive", index)
	case !hasApply && !hasSet:
		return fmt.Errorf("episodes[%d]: one of apply or set is required", index)
	}

	if hasApply {
		if _, ok := builtin.Mutator(step.Apply); !ok {
			return fmt.Errorf("episodes[%d]: unknown mutator %q (stock mutators: %s)",
				index, step.Apply, strings.Join(builtin.MutatorNames(), ", "))
		}
	}
	if hasSet {
		if _, err := value.FromGo(step.Set); err != nil {
			return fmt.Errorf("episodes[%d]: set: %v", index, err)
		}
	}

	if step.Expect != "" && !outcomeNames[step.Expect] {
		return fmt.Errorf("episodes[%d]: unknown expect %q (valid: success, not_found, already_observed)",
			index, step.Expect)
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalValue:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for final_value", index)
		}
		if _, err := path.Parse(a.Path); err != nil {
			return fmt.Errorf("assertions[%d]: invalid path %q: %v", index, a.Path, err)
		}
		if a.Equals == nil {
			return fmt.Errorf("assertions[%d]: equals is required for final_value", index)
		}
		if _, err := value.FromGo(a.Equals); err != nil {
			return fmt.Errorf("assertions[%d]: equals: %v", index, err)
		}
	case AssertFiredCount:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for fired_count", index)
		}
		if _, err := path.ParseSet(strings.Split(a.Rule, "|")...); err != nil {
			return fmt.Errorf("assertions[%d]: invalid rule %q: %v", index, a.Rule, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fired_count", index)
		}
	case AssertOutcomeSequence:
		if len(a.Outcomes) == 0 {
			return fmt.Errorf("assertions[%d]: outcomes list is required for outcome_sequence", index)
		}
		for _, o := range a.Outcomes {
			if !outcomeNames[o] {
				return fmt.Errorf("assertions[%d]: unknown outcome %q (valid: success, not_found, already_observed)",
					index, o)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
