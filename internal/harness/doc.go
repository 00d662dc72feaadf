// Package harness provides scenario-driven conformance testing for the
// cascade engine.
//
// A scenario names a rulebook, drives the engine through a sequence of
// observations, and asserts on the trace, the outcomes, and the settled
// tree. Scenarios are the executable form of a rulebook's intended
// behavior: the same files document it and regression-test it.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: counter_cascade
//	description: "An observed counter folds into its mirror"
//	rulebook: ../rulebooks/counter.cue
//	episodes:
//	  - observe: a.b
//	    apply: increment        # or: set: 5
//	    expect: success         # success | not_found | already_observed
//	    reset: false            # default true: reset the episode after the step
//	  - observe: a.b
//	    apply: increment
//	    expect: already_observed
//	assertions:
//	  - type: final_value
//	    path: c.d
//	    equals: 1
//	  - type: fired_count
//	    rule: a.b
//	    count: 1
//	  - type: outcome_sequence
//	    outcomes: [success, already_observed]
//
// The rulebook path is resolved against the base path given to
// LoadScenarioWithBasePath, conventionally the scenario file's own
// directory.
//
// # Assertion Types
//
//   - final_value: a path in the settled tree equals a value
//   - fired_count: a rule fired exactly N times across the run
//   - outcome_sequence: the per-step outcome codes, in order
//
// # Deterministic Execution
//
// Every run builds a fresh store from the rulebook, installs the stock
// actions and mutators, and mints episode tokens from a FixedSource
// ("ep-1", "ep-2", ...). The engine's logical clock starts at zero, so
// identical scenarios produce byte-identical traces, which is what
// golden comparison relies on.
//
// # Usage
//
//	scenario, err := harness.LoadScenarioWithBasePath(path, filepath.Dir(path))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
//
// In tests, RunWithGolden additionally snapshots the trace and compares
// it against testdata/golden/<name>.golden.
package harness
