package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lune4696/metamorphosys/internal/engine"
)

// Episode is one journaled cascade episode.
type Episode struct {
	Token        string
	RulebookHash string // rulebook digest, "" until sealed
	TreeHash     string // settled tree digest, "" until sealed
	StartedSeq   int64
}

// Sealed reports whether the episode was stamped after settlement.
func (e Episode) Sealed() bool {
	return e.TreeHash != ""
}

// ReadEpisode returns all trace events for an episode token.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC.
//
// Returns an empty slice (not nil) if no events exist for the token.
func (j *Journal) ReadEpisode(ctx context.Context, token string) ([]engine.TraceEvent, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT episode, seq, kind, rule, output, path, value, detail, scan
		FROM events
		WHERE episode = ?
		ORDER BY seq ASC, id ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query episode events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListEpisodes returns all journaled episodes with deterministic
// ordering: ORDER BY started_seq ASC, token ASC.
//
// Returns an empty slice (not nil) if the journal is empty.
func (j *Journal) ListEpisodes(ctx context.Context) ([]Episode, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT token, rulebook_hash, tree_hash, started_seq
		FROM episodes
		ORDER BY started_seq ASC, token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		if err := rows.Scan(&ep.Token, &ep.RulebookHash, &ep.TreeHash, &ep.StartedSeq); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, ep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}

	// Return empty slice instead of nil
	if episodes == nil {
		episodes = []Episode{}
	}

	return episodes, nil
}

// GetEpisode retrieves a single episode row by token.
// Returns sql.ErrNoRows if not found.
func (j *Journal) GetEpisode(ctx context.Context, token string) (Episode, error) {
	var ep Episode
	err := j.db.QueryRowContext(ctx, `
		SELECT token, rulebook_hash, tree_hash, started_seq
		FROM episodes
		WHERE token = ?
	`, token).Scan(&ep.Token, &ep.RulebookHash, &ep.TreeHash, &ep.StartedSeq)
	if err != nil {
		return Episode{}, err
	}
	return ep, nil
}

// CountEvents returns the total number of journaled events.
func (j *Journal) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// collectEvents scans all rows into trace events, empty slice not nil.
func collectEvents(rows *sql.Rows) ([]engine.TraceEvent, error) {
	var events []engine.TraceEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	if events == nil {
		events = []engine.TraceEvent{}
	}

	return events, nil
}

// scanEvent scans a row into a TraceEvent.
func scanEvent(rows *sql.Rows) (engine.TraceEvent, error) {
	var ev engine.TraceEvent
	var kind string

	if err := rows.Scan(
		&ev.Episode, &ev.Seq, &kind, &ev.Rule, &ev.Output,
		&ev.Path, &ev.Value, &ev.Detail, &ev.Scan,
	); err != nil {
		return engine.TraceEvent{}, fmt.Errorf("scan event: %w", err)
	}

	ev.Kind = engine.EventKind(kind)
	return ev, nil
}
