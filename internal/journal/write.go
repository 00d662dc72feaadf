package journal

import (
	"context"
	"fmt"
	"sync"

	"github.com/lune4696/metamorphosys/internal/engine"
)

// Sink persists trace events as the engine emits them. It implements
// engine.Tracer.
//
// Emission cannot return an error through the Tracer interface, so the
// first persistence failure latches: later events are dropped and the
// error surfaces through Err. A cascade is never aborted by its journal.
//
// Thread-safety: guarded by an internal mutex.
type Sink struct {
	j   *Journal
	mu  sync.Mutex
	err error
}

// Sink returns a tracer that persists every event to the journal.
// Writes are idempotent: re-emitting an already journaled (episode, seq)
// pair is silently ignored.
func (j *Journal) Sink() *Sink {
	return &Sink{j: j}
}

// Emit persists one trace event. The episode row is created on first
// sight of its token so foreign keys hold even for partial streams.
func (s *Sink) Emit(ev engine.TraceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if err := s.j.writeEvent(context.Background(), ev); err != nil {
		s.err = err
	}
}

// Err returns the first persistence failure, or nil. Once set, the sink
// has stopped recording; the journal is incomplete from that point on.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// writeEvent inserts the episode row (if new) and the event in one
// transaction. Uses ON CONFLICT DO NOTHING for idempotency - duplicate
// (episode, seq) pairs are silently ignored.
func (j *Journal) writeEvent(ctx context.Context, ev engine.TraceEvent) error {
	if ev.Episode == "" {
		return fmt.Errorf("write event: empty episode token")
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write event: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// The first event of a well-formed stream is episode_started, so
	// started_seq records the episode's opening clock position.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO episodes (token, started_seq)
		VALUES (?, ?)
		ON CONFLICT(token) DO NOTHING
	`, ev.Episode, ev.Seq)
	if err != nil {
		return fmt.Errorf("write event: episode row: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events
		(episode, seq, kind, rule, output, path, value, detail, scan)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(episode, seq) DO NOTHING
	`,
		ev.Episode,
		ev.Seq,
		string(ev.Kind),
		ev.Rule,
		ev.Output,
		ev.Path,
		ev.Value,
		ev.Detail,
		ev.Scan,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write event: commit: %w", err)
	}

	return nil
}

// SealEpisode stamps an episode row with the rulebook digest and the
// settled tree digest. Callers seal after the cascade settles; Replay
// uses both digests to detect rulebook drift and non-determinism.
func (j *Journal) SealEpisode(ctx context.Context, token, rulebookHash, treeHash string) error {
	result, err := j.db.ExecContext(ctx, `
		UPDATE episodes
		SET rulebook_hash = ?, tree_hash = ?
		WHERE token = ?
	`, rulebookHash, treeHash, token)
	if err != nil {
		return fmt.Errorf("seal episode: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("seal episode: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("seal episode: unknown episode %q", token)
	}

	return nil
}
