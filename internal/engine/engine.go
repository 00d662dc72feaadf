package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/store"
	"github.com/lune4696/metamorphosys/internal/value"
)

// Mutator transforms the current value at the trigger path into the
// value to write. It runs exactly once per successful Observe and must
// not touch the store.
type Mutator func(value.Value) value.Value

// Engine runs cascades against one store.
//
// Thread-safety model:
//   - Observe / ObserveAndReset / ResetEpisode: serialized by an
//     internal mutex; safe to call from any goroutine.
//   - Two engines sharing one store would interleave bookkeeping and
//     corrupt episodes. One store, one engine.
type Engine struct {
	store  *store.Store
	clock  *Clock
	tokens TokenSource
	logger *slog.Logger
	tracer Tracer

	mu      sync.Mutex
	episode string // current episode token, "" between episodes
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracer attaches a trace sink. Without one, events are dropped.
func WithTracer(t Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithTokenSource replaces the UUIDv7 episode token source. Tests use
// FixedSource for reproducible traces.
func WithTokenSource(src TokenSource) Option {
	return func(e *Engine) {
		e.tokens = src
	}
}

// New creates an engine over st.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		clock:  NewClock(),
		tokens: UUIDv7Source{},
		logger: slog.Default(),
		tracer: nopTracer{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Clock returns the engine's logical clock. External sinks use it to
// stamp their own records consistently with the trace.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Episode returns the current episode token, or "" when no episode is
// in progress.
func (e *Engine) Episode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.episode
}

// Observe applies one external mutation and cascades to settlement.
//
// Outcome codes:
//   - OutcomeNotFound: p does not resolve; the store is untouched.
//   - OutcomeAlreadyObserved: p was already observed, or its singleton
//     set already reacted, this episode; the store is untouched.
//   - OutcomeSuccess: the mutation landed and every eligible rule ran.
//
// The returned error is reserved for structural write failures
// (programmer errors); propagation conditions never surface as errors.
func (e *Engine) Observe(p path.Path, mutate Mutator) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observe(p, mutate)
}

// ObserveAndReset composes Observe with ResetEpisode for one-shot
// callers: poke, settle, clear. The reset happens regardless of the
// outcome code, so the next call starts a fresh episode.
func (e *Engine) ObserveAndReset(p path.Path, mutate Mutator) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.observe(p, mutate)
	if err != nil {
		return out, err
	}
	e.resetEpisode()
	return out, nil
}

// ResetEpisode clears the observed and reacted sets and closes the
// current episode. The tree, actions, and rules are untouched.
func (e *Engine) ResetEpisode() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetEpisode()
}

func (e *Engine) observe(p path.Path, mutate Mutator) (Outcome, error) {
	if mutate == nil {
		return Outcome{}, fmt.Errorf("observe %s: nil mutator", p)
	}

	current, ok := e.store.Read(p)
	if !ok {
		e.logger.Debug("observe: path not found", "path", p.Key())
		return Outcome{Code: OutcomeNotFound, Path: p, Episode: e.episode}, nil
	}
	if e.store.Observed(p) || e.store.Reacted(path.Singleton(p)) {
		e.logger.Debug("observe: already observed this episode",
			"path", p.Key(),
			"episode", e.episode,
		)
		return Outcome{Code: OutcomeAlreadyObserved, Path: p, Episode: e.episode}, nil
	}

	episode := e.ensureEpisode()

	next := mutate(current)
	if err := e.store.WriteObserved(p, next); err != nil {
		return Outcome{}, fmt.Errorf("observe %s: %w", p, err)
	}
	e.emit(TraceEvent{
		Episode: episode,
		Kind:    EventTrigger,
		Path:    p.Key(),
		Value:   canonicalOrEmpty(next),
	})
	e.logger.Info("trigger applied",
		"path", p.Key(),
		"episode", episode,
	)

	fired, skipped, scans, err := e.cascade(episode)
	if err != nil {
		return Outcome{}, err
	}

	e.emit(TraceEvent{
		Episode: episode,
		Kind:    EventEpisodeSettled,
		Detail:  fmt.Sprintf("fired=%d skipped=%d scans=%d", fired, skipped, scans),
	})
	e.logger.Info("cascade settled",
		"episode", episode,
		"fired", fired,
		"skipped", skipped,
		"scans", scans,
	)

	return Outcome{
		Code:    OutcomeSuccess,
		Path:    p,
		Episode: episode,
		Fired:   fired,
		Skipped: skipped,
		Scans:   scans,
	}, nil
}

// ensureEpisode lazily starts an episode at the first trigger after a
// reset, so untriggered stores mint no tokens.
func (e *Engine) ensureEpisode() string {
	if e.episode == "" {
		e.episode = e.tokens.Generate()
		e.emit(TraceEvent{
			Episode: e.episode,
			Kind:    EventEpisodeStarted,
		})
		e.logger.Info("episode started", "episode", e.episode)
	}
	return e.episode
}

func (e *Engine) resetEpisode() {
	if e.episode != "" {
		e.emit(TraceEvent{
			Episode: e.episode,
			Kind:    EventEpisodeReset,
		})
		e.logger.Info("episode reset", "episode", e.episode)
	}
	e.store.ResetEpisode()
	e.episode = ""
}

// cascade scans to fixpoint. Eligibility is decided at scan start, so
// paths observed mid-scan arm rules for the next scan, not this one.
func (e *Engine) cascade(episode string) (fired, skipped, scans int, err error) {
	// The reacted set grows monotonically: each productive scan retires
	// at least one input set, so distinct input sets bound the scan
	// count. One extra scan observes the fixpoint.
	maxScans := e.store.RuleCount() + 1

	for scans = 1; scans <= maxScans; scans++ {
		eligible := e.eligibleRules()
		if len(eligible) == 0 {
			return fired, skipped, scans, nil
		}
		for _, rule := range eligible {
			ran, fireErr := e.fire(episode, scans, rule)
			if fireErr != nil {
				return fired, skipped, scans, fireErr
			}
			if ran {
				fired++
			} else {
				skipped++
			}
		}
	}

	// Unreachable while the bound argument above holds.
	return fired, skipped, scans, fmt.Errorf("cascade exceeded %d scans without settling", maxScans)
}

// eligibleRules collects, in canonical order, every rule whose input
// set is fully observed and not yet reacted.
func (e *Engine) eligibleRules() []store.Rule {
	var eligible []store.Rule
	for _, rule := range e.store.Rules() {
		if !e.store.Reacted(rule.Inputs) && e.store.AllObserved(rule.Inputs) {
			eligible = append(eligible, rule)
		}
	}
	return eligible
}

// fire runs one rule. ran is true when the chain completed, whether or
// not the output write landed; skips return ran=false with no error.
func (e *Engine) fire(episode string, scan int, rule store.Rule) (ran bool, err error) {
	// Mark before computing: a rule writing its own input, directly or
	// through a cycle, must find itself already reacted.
	e.store.MarkReacted(rule.Inputs)

	// Gather input values in canonical set order.
	inputs := rule.Inputs.Paths()
	args := make([]value.Value, 0, len(inputs)+1)
	for _, in := range inputs {
		v, ok := e.store.Read(in)
		if !ok {
			e.skip(episode, scan, rule, SkipMissingArgument, "input "+in.Key()+" is absent")
			return false, nil
		}
		args = append(args, v)
	}

	// For a path output the accumulator seeds from the output's current
	// value; its absence is a missing argument, same as an input's.
	var acc value.Value
	hasAcc := false
	if out, isPath := rule.Output.Path(); isPath {
		cur, ok := e.store.Read(out)
		if !ok {
			e.skip(episode, scan, rule, SkipMissingArgument, "output "+out.Key()+" is absent")
			return false, nil
		}
		acc, hasAcc = cur, true
	}

	// Resolve the whole chain before running any link: a half-executed
	// chain would make skips non-atomic.
	fns := make([]store.Action, len(rule.Chain))
	for i, name := range rule.Chain {
		fn, ok := e.store.ResolveAction(name)
		if !ok {
			e.skip(episode, scan, rule, SkipUnresolvedAction, name)
			return false, nil
		}
		fns[i] = fn
	}

	// Run the chain left to right. Each link receives the inputs plus
	// the accumulator when one exists; its result becomes the new
	// accumulator.
	for i, fn := range fns {
		callArgs := args
		if hasAcc {
			callArgs = make([]value.Value, 0, len(args)+1)
			callArgs = append(callArgs, args...)
			callArgs = append(callArgs, acc)
		}
		result, actErr := fn(callArgs)
		if actErr != nil {
			e.skip(episode, scan, rule, SkipActionFailed, rule.Chain[i]+": "+actErr.Error())
			return false, nil
		}
		acc, hasAcc = result, true
	}

	e.emit(TraceEvent{
		Episode: episode,
		Kind:    EventRuleFired,
		Rule:    rule.Inputs.Key(),
		Output:  rule.Output.Key(),
		Value:   canonicalOrEmpty(acc),
		Detail:  strings.Join(rule.Chain, ","),
		Scan:    scan,
	})
	e.logger.Debug("rule fired",
		"rule", rule.Inputs.Key(),
		"output", rule.Output.Key(),
		"chain", strings.Join(rule.Chain, ","),
		"episode", episode,
		"scan", scan,
	)

	out, isPath := rule.Output.Path()
	if !isPath {
		// Side-effect rule: the chain was the effect.
		return true, nil
	}

	if e.store.Observed(out) {
		// Output guard: first write wins within an episode. The chain
		// has run; only the write is withheld.
		e.emit(TraceEvent{
			Episode: episode,
			Kind:    EventWriteSkipped,
			Rule:    rule.Inputs.Key(),
			Output:  rule.Output.Key(),
			Path:    out.Key(),
			Detail:  "output already observed",
			Scan:    scan,
		})
		e.logger.Debug("output write skipped: already observed",
			"rule", rule.Inputs.Key(),
			"output", out.Key(),
			"episode", episode,
		)
		return true, nil
	}

	if err := e.store.WriteObserved(out, acc); err != nil {
		return false, fmt.Errorf("rule %s: write output %s: %w", rule.Inputs, out, err)
	}
	e.emit(TraceEvent{
		Episode: episode,
		Kind:    EventOutputWritten,
		Rule:    rule.Inputs.Key(),
		Output:  rule.Output.Key(),
		Path:    out.Key(),
		Value:   canonicalOrEmpty(acc),
		Scan:    scan,
	})
	e.logger.Debug("output written",
		"rule", rule.Inputs.Key(),
		"path", out.Key(),
		"episode", episode,
		"scan", scan,
	)
	return true, nil
}

// skip records a permissive per-rule skip. The rule stays reacted:
// skips consume the firing, they do not defer it.
func (e *Engine) skip(episode string, scan int, rule store.Rule, reason SkipReason, detail string) {
	e.emit(TraceEvent{
		Episode: episode,
		Kind:    EventRuleSkipped,
		Rule:    rule.Inputs.Key(),
		Output:  rule.Output.Key(),
		Detail:  string(reason) + ": " + detail,
		Scan:    scan,
	})
	e.logger.Warn("rule skipped",
		"rule", rule.Inputs.Key(),
		"output", rule.Output.Key(),
		"reason", string(reason),
		"detail", detail,
		"episode", episode,
	)
}

// emit stamps and forwards a trace event.
func (e *Engine) emit(ev TraceEvent) {
	ev.Seq = e.clock.Next()
	e.tracer.Emit(ev)
}
