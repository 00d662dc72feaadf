package harness

import (
	"fmt"
	"strings"

	"github.com/lune4696/metamorphosys/internal/engine"
	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/store"
	"github.com/lune4696/metamorphosys/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes the trace so the failure message alone is enough to see
// what the cascade actually did.
type AssertionError struct {
	Type     string              // Assertion type for categorization
	Expected string              // Human-readable expected outcome
	Actual   string              // Human-readable actual outcome
	Trace    []engine.TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, FormatEvent(ev))
		}
	}

	return buf.String()
}

// FormatEvent renders one trace event compactly: the kind plus
// whichever fields the kind populates.
func FormatEvent(ev engine.TraceEvent) string {
	parts := []string{string(ev.Kind)}
	if ev.Rule != "" {
		parts = append(parts, "rule="+ev.Rule)
	}
	if ev.Output != "" {
		parts = append(parts, "output="+ev.Output)
	}
	if ev.Path != "" {
		parts = append(parts, "path="+ev.Path)
	}
	if ev.Value != "" {
		parts = append(parts, "value="+ev.Value)
	}
	if ev.Detail != "" {
		parts = append(parts, "detail="+ev.Detail)
	}
	if ev.Scan != 0 {
		parts = append(parts, fmt.Sprintf("scan=%d", ev.Scan))
	}
	return strings.Join(parts, " ")
}

// assertFinalValue checks that the settled tree holds the expected
// value at the assertion's path.
func assertFinalValue(st *store.Store, trace []engine.TraceEvent, a Assertion) error {
	p, err := path.Parse(a.Path)
	if err != nil {
		return fmt.Errorf("final_value: invalid path %q: %w", a.Path, err)
	}
	want, err := value.FromGo(a.Equals)
	if err != nil {
		return fmt.Errorf("final_value: equals: %w", err)
	}

	got, ok := st.Read(p)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalValue,
			Expected: fmt.Sprintf("%s = %s", a.Path, renderValue(want)),
			Actual:   fmt.Sprintf("path %s does not resolve", a.Path),
			Trace:    trace,
		}
	}
	if !value.Equal(want, got) {
		return &AssertionError{
			Type:     AssertFinalValue,
			Expected: fmt.Sprintf("%s = %s", a.Path, renderValue(want)),
			Actual:   fmt.Sprintf("%s = %s", a.Path, renderValue(got)),
			Trace:    trace,
		}
	}
	return nil
}

// assertFiredCount checks that the rule fired exactly the expected
// number of times across the whole run. The rule key is canonicalized
// first, so member order in the scenario does not matter.
func assertFiredCount(trace []engine.TraceEvent, a Assertion) error {
	set, err := path.ParseSet(strings.Split(a.Rule, "|")...)
	if err != nil {
		return fmt.Errorf("fired_count: invalid rule %q: %w", a.Rule, err)
	}
	key := set.Key()

	count := 0
	for _, ev := range trace {
		if ev.Kind == engine.EventRuleFired && ev.Rule == key {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertFiredCount,
			Expected: fmt.Sprintf("rule %s fires %d time(s)", key, a.Count),
			Actual:   fmt.Sprintf("fired %d time(s)", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertOutcomeSequence checks the per-step outcome codes, in order.
// The match is exact: same length, same codes.
func assertOutcomeSequence(outcomes []string, a Assertion) error {
	if len(outcomes) != len(a.Outcomes) {
		return &AssertionError{
			Type:     AssertOutcomeSequence,
			Expected: fmt.Sprintf("%d outcome(s): %s", len(a.Outcomes), strings.Join(a.Outcomes, ", ")),
			Actual:   fmt.Sprintf("%d outcome(s): %s", len(outcomes), strings.Join(outcomes, ", ")),
		}
	}
	for i := range a.Outcomes {
		if outcomes[i] != a.Outcomes[i] {
			return &AssertionError{
				Type:     AssertOutcomeSequence,
				Expected: fmt.Sprintf("step %d: %s", i, a.Outcomes[i]),
				Actual:   fmt.Sprintf("step %d: %s (sequence: %s)", i, outcomes[i], strings.Join(outcomes, ", ")),
			}
		}
	}
	return nil
}

// renderValue is canonical JSON for failure messages, falling back to
// %v when v contains an absent slot.
func renderValue(v value.Value) string {
	b, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions. The actx
// parameter provides the settled store for final_value assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalValue:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertions[%d]: final_value requires store context", i)
			} else {
				err = assertFinalValue(actx.Store, result.Trace, assertion)
			}
		case AssertFiredCount:
			err = assertFiredCount(result.Trace, assertion)
		case AssertOutcomeSequence:
			err = assertOutcomeSequence(result.Outcomes, assertion)
		default:
			err = fmt.Errorf("assertions[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
