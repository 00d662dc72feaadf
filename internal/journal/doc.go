// Package journal provides SQLite-backed durable storage for cascade
// trace events.
//
// The journal is an append-only record of what the engine did, not of
// the tree itself:
//   - Episodes: one row per cascade episode, sealed after settlement
//     with the rulebook digest and the settled tree digest
//   - Events: the trace event stream (triggers, firings, skips, writes)
//
// Invariants the schema and queries enforce:
//   - All ordering uses seq INTEGER (the engine's logical clock), never
//     timestamps, so replay is independent of wall time
//   - UNIQUE(episode, seq) makes event emission idempotent: re-emitting
//     a recorded event is a no-op
//   - Every read uses ORDER BY seq ASC, id ASC for identical results
//     across replays
//   - The value column always holds RFC 8785 canonical JSON, byte-equal
//     to what the engine traced
//
// Database configuration:
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: events cannot outlive their episode row
//
// Replay rebuilds a fresh store per episode from a rulebook, re-applies
// the recorded triggers, and verifies the re-produced event stream and
// tree digest against the journal.
package journal
