// Package engine implements the cascade: the propagation loop that
// turns one external observation into a settled store.
//
// ARCHITECTURE:
//
// Synchronous Single-Writer Cascade:
// Observe applies one mutation and runs rule propagation to fixpoint
// before returning. The engine serializes its own episodes with an
// internal mutex; all store writes during a cascade happen on the
// calling goroutine. There is no queue and no background loop: the
// scan bound below makes every cascade finite, so blocking the caller
// is the simplest correct contract.
//
// Cascade Shape:
//  1. Observe marks the trigger path observed and writes the mutated
//     value in one snapshot swap.
//  2. A scan collects, in canonical rule order, every rule whose input
//     set is fully observed and not yet reacted.
//  3. Each collected rule is marked reacted BEFORE its chain runs, so
//     a rule writing its own input can never refire.
//  4. Output writes land only on paths not yet observed this episode
//     (the output guard); each write marks its path observed, arming
//     the next scan.
//  5. A scan that collects nothing settles the episode.
//
// TERMINATION:
// The reacted set grows monotonically and rules never un-react within
// an episode, so the number of productive scans is bounded by the
// number of distinct input sets. The loop enforces RuleCount+1 as a
// hard ceiling; hitting it would indicate store corruption, not load.
//
// DETERMINISM:
// Rules are scanned in canonical order (input-set key, then output
// key) and every trace event carries a logical clock seq, never a
// wall-clock time. Two cascades over equal stores produce identical
// traces, which is what the golden tests and journal replay verify.
//
// PERMISSIVE SKIPS:
// An unresolvable action name, a missing argument value, or a failing
// action skips that one rule's effect. Skips are logged and traced,
// the rule still counts as reacted, and the cascade continues:
// one malformed rule cannot block unrelated propagation.
package engine
