package journal

import (
	"path/filepath"
	"testing"

	"github.com/lune4696/metamorphosys/internal/engine"
)

// createTestJournal creates a file-backed journal in a temp dir.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// createTestEvent creates a trace event with minimal required fields.
func createTestEvent(episode string, seq int64, kind engine.EventKind) engine.TraceEvent {
	return engine.TraceEvent{
		Episode: episode,
		Seq:     seq,
		Kind:    kind,
	}
}

// emitAll pushes events through a fresh sink and fails on sink errors.
func emitAll(t *testing.T, j *Journal, events ...engine.TraceEvent) {
	t.Helper()
	sink := j.Sink()
	for _, ev := range events {
		sink.Emit(ev)
	}
	if err := sink.Err(); err != nil {
		t.Fatalf("sink error: %v", err)
	}
}
