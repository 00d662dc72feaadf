package engine

import "github.com/lune4696/metamorphosys/internal/path"

// OutcomeCode classifies what an Observe call did. NotFound and
// AlreadyObserved are expected signals, not errors: idempotent
// re-observation is how callers are meant to interact with an episode.
type OutcomeCode int

const (
	// OutcomeSuccess: the mutation was applied and the cascade settled.
	OutcomeSuccess OutcomeCode = iota
	// OutcomeNotFound: the trigger path does not resolve; nothing changed.
	OutcomeNotFound
	// OutcomeAlreadyObserved: the path was already observed or reacted
	// this episode; nothing changed.
	OutcomeAlreadyObserved
)

func (c OutcomeCode) String() string {
	switch c {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeAlreadyObserved:
		return "already_observed"
	default:
		return "unknown"
	}
}

// Outcome reports the result of one Observe call.
type Outcome struct {
	Code    OutcomeCode
	Path    path.Path // the trigger path
	Episode string    // episode token; empty when no episode was started
	Fired   int       // rules whose chain ran to completion this call
	Skipped int       // rules skipped before or during their chain
	Scans   int       // full scans performed, including the settling one
}

// SkipReason is the closed taxonomy of per-rule skip causes. Skips are
// permissive: they are logged and traced, never surfaced as errors.
type SkipReason string

const (
	// SkipUnresolvedAction: a chain name has no registry binding.
	SkipUnresolvedAction SkipReason = "unresolved_action"
	// SkipMissingArgument: an input value, or the output path's current
	// value seeding the accumulator, is absent.
	SkipMissingArgument SkipReason = "missing_argument"
	// SkipActionFailed: a chain action returned an error.
	SkipActionFailed SkipReason = "action_failed"
)
