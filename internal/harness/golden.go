package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/lune4696/metamorphosys/internal/engine"
	"github.com/lune4696/metamorphosys/internal/value"
)

// TraceSnapshot captures a scenario execution for golden comparison:
// the outcomes, the full trace, and the settled tree. Serialized as
// canonical JSON so identical cascades produce identical bytes.
type TraceSnapshot struct {
	Scenario string
	Outcomes []string
	Trace    []engine.TraceEvent
	Tree     value.Value // settled tree; nil omits it
}

// canonicalDoc lowers the snapshot into value shapes for
// MarshalCanonical. Zero event fields are dropped, mirroring the
// trace's omitempty JSON tags.
func (s *TraceSnapshot) canonicalDoc() value.Map {
	events := make(value.List, len(s.Trace))
	for i, ev := range s.Trace {
		m := value.Map{
			"episode": value.String(ev.Episode),
			"seq":     value.Int(ev.Seq),
			"kind":    value.String(string(ev.Kind)),
		}
		if ev.Rule != "" {
			m["rule"] = value.String(ev.Rule)
		}
		if ev.Output != "" {
			m["output"] = value.String(ev.Output)
		}
		if ev.Path != "" {
			m["path"] = value.String(ev.Path)
		}
		if ev.Value != "" {
			m["value"] = value.String(ev.Value)
		}
		if ev.Detail != "" {
			m["detail"] = value.String(ev.Detail)
		}
		if ev.Scan != 0 {
			m["scan"] = value.Int(ev.Scan)
		}
		events[i] = m
	}

	outcomes := make(value.List, len(s.Outcomes))
	for i, o := range s.Outcomes {
		outcomes[i] = value.String(o)
	}

	doc := value.Map{
		"scenario": value.String(s.Scenario),
		"outcomes": outcomes,
		"trace":    events,
	}
	if s.Tree != nil {
		doc["tree"] = s.Tree
	}
	return doc
}

// RunWithGolden executes a scenario and compares its snapshot against
// a golden file. The golden file is testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if scenario execution fails. Snapshot mismatch
// fails the test via goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already-computed result against the golden
// file for name. Useful when the caller has run the scenario itself
// and wants the comparison without re-running.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		Scenario: name,
		Outcomes: result.Outcomes,
		Trace:    result.Trace,
	}
	if len(result.FinalTree) > 0 {
		tree, err := value.ParseJSON(result.FinalTree)
		if err != nil {
			return fmt.Errorf("parsing final tree: %w", err)
		}
		snapshot.Tree = tree
	}

	data, err := value.MarshalCanonical(snapshot.canonicalDoc())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)

	return nil
}
