package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/lune4696/metamorphosys/internal/engine"
	"github.com/lune4696/metamorphosys/internal/path"
)

// Filter selects journaled trace events. Zero-valued fields match
// everything; set fields are conjoined with AND.
//
// Values are always parameterized, never interpolated, and the compiled
// query always carries ORDER BY seq ASC, id ASC for deterministic
// results.
type Filter struct {
	// Episode restricts to one episode token.
	Episode string
	// Kind restricts to one event kind.
	Kind engine.EventKind
	// Rule restricts to one rule, named by its input-set key. The key is
	// canonicalized before matching, so member order does not matter.
	Rule string
	// PathPrefix matches events whose path equals the prefix or lives
	// under it ("a.b" matches "a.b" and "a.b.c", never "a.bc").
	PathPrefix string
	// Limit caps the result count. Zero leaves the results uncapped;
	// an explicit cap must be positive.
	Limit int
}

// Validate reports the first problem with the filter: an unknown event
// kind, an unparseable rule key or path prefix, or a negative limit.
func (f Filter) Validate() error {
	if f.Kind != "" && !knownKind(f.Kind) {
		return fmt.Errorf("unknown event kind %q (valid: %s)", f.Kind, kindList())
	}
	if f.Rule != "" {
		if _, err := path.ParseSet(strings.Split(f.Rule, "|")...); err != nil {
			return fmt.Errorf("rule key %q: %w", f.Rule, err)
		}
	}
	if f.PathPrefix != "" {
		if _, err := path.Parse(f.PathPrefix); err != nil {
			return fmt.Errorf("path prefix %q: %w", f.PathPrefix, err)
		}
	}
	if f.Limit < 0 {
		return fmt.Errorf("limit must be positive, got %d", f.Limit)
	}
	return nil
}

// compile converts the filter to parameterized SQL. Assumes Validate
// passed.
func (f Filter) compile() (string, []any) {
	var conds []string
	var params []any

	if f.Episode != "" {
		conds = append(conds, "episode = ?")
		params = append(params, f.Episode)
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		params = append(params, string(f.Kind))
	}
	if f.Rule != "" {
		// Canonicalize so "c.d|a.b" matches the stored "a.b|c.d".
		set := path.MustParseSet(strings.Split(f.Rule, "|")...)
		conds = append(conds, "rule = ?")
		params = append(params, set.Key())
	}
	if f.PathPrefix != "" {
		prefix := path.MustParse(f.PathPrefix).Key()
		conds = append(conds, `(path = ? OR path LIKE ? ESCAPE '\')`)
		params = append(params, prefix, escapeLike(prefix)+".%")
	}

	query := "SELECT episode, seq, kind, rule, output, path, value, detail, scan FROM events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		params = append(params, f.Limit)
	}

	return query, params
}

// Events returns the journaled events matching the filter, ordered by
// seq ASC, id ASC. Returns an empty slice (not nil) when nothing
// matches.
func (j *Journal) Events(ctx context.Context, f Filter) ([]engine.TraceEvent, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	query, params := f.compile()
	rows, err := j.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func knownKind(k engine.EventKind) bool {
	for _, known := range engine.EventKinds() {
		if k == known {
			return true
		}
	}
	return false
}

func kindList() string {
	kinds := engine.EventKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// escapeLike escapes LIKE metacharacters so the prefix matches
// literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
