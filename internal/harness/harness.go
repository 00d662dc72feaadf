package harness

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lune4696/metamorphosys/internal/builtin"
	"github.com/lune4696/metamorphosys/internal/engine"
	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/rulebook"
	"github.com/lune4696/metamorphosys/internal/value"
)

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh store built from its rulebook,
// with the stock actions installed. Episode tokens come from a
// FixedSource ("ep-1", "ep-2", ...), numbered by episode start order,
// so traces are reproducible across runs.
//
// Execution flow:
//  1. Load and validate the rulebook
//  2. Build a fresh store (seed + rules + stock actions)
//  3. Observe each step through the real engine, checking expect
//  4. Evaluate assertions against the trace, outcomes, and tree
//
// Infrastructure failures (unloadable rulebook, structural write
// errors) return an error; expect mismatches and assertion failures
// land in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	rb, err := rulebook.LoadFile(scenario.Rulebook)
	if err != nil {
		return nil, fmt.Errorf("loading rulebook: %w", err)
	}
	if verrs := rulebook.Validate(rb, builtin.Names()); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, verr := range verrs {
			msgs[i] = verr.Error()
		}
		return nil, fmt.Errorf("invalid rulebook %s: %s", scenario.Rulebook, strings.Join(msgs, "; "))
	}

	st, err := rb.NewStore()
	if err != nil {
		return nil, fmt.Errorf("building store: %w", err)
	}
	if err := builtin.Install(st); err != nil {
		return nil, fmt.Errorf("installing stock actions: %w", err)
	}

	// One token per step is the upper bound: steps with reset: false
	// share an episode and refused observations mint none.
	tokens := make([]string, len(scenario.Episodes))
	for i := range tokens {
		tokens[i] = fmt.Sprintf("ep-%d", i+1)
	}

	recorder := engine.NewRecorder()
	eng := engine.New(st,
		engine.WithTokenSource(engine.NewFixedSource(tokens...)),
		engine.WithTracer(recorder),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	result := NewResult()
	for i, step := range scenario.Episodes {
		outcome, err := runStep(eng, step)
		if err != nil {
			return nil, fmt.Errorf("episodes[%d]: %w", i, err)
		}
		got := outcome.Code.String()
		result.Outcomes = append(result.Outcomes, got)

		want := step.Expect
		if want == "" {
			want = engine.OutcomeSuccess.String()
		}
		if got != want {
			result.AddError(fmt.Sprintf("episodes[%d]: observe %s: expected outcome %s, got %s",
				i, step.Observe, want, got))
		}

		if step.ShouldReset() {
			eng.ResetEpisode()
		}
	}

	result.Trace = recorder.Events()
	tree, err := value.MarshalCanonical(st.Tree())
	if err != nil {
		return nil, fmt.Errorf("rendering final tree: %w", err)
	}
	result.FinalTree = tree

	actx := &AssertionContext{Store: st}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// runStep applies one step's observation through the engine.
func runStep(eng *engine.Engine, step EpisodeStep) (engine.Outcome, error) {
	p, err := path.Parse(step.Observe)
	if err != nil {
		return engine.Outcome{}, fmt.Errorf("observe path %q: %w", step.Observe, err)
	}
	mut, err := stepMutator(step)
	if err != nil {
		return engine.Outcome{}, err
	}
	return eng.Observe(p, mut)
}

// stepMutator builds the mutator a step declares. Loading already
// validated the shape, so failures here mean the scenario bypassed
// LoadScenario.
func stepMutator(step EpisodeStep) (engine.Mutator, error) {
	if step.Apply != "" {
		mut, ok := builtin.Mutator(step.Apply)
		if !ok {
			return nil, fmt.Errorf("unknown mutator %q", step.Apply)
		}
		return mut, nil
	}
	v, err := value.FromGo(step.Set)
	if err != nil {
		return nil, fmt.Errorf("set value: %w", err)
	}
	return builtin.Set(v), nil
}
