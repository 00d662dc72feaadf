package engine

import (
	"sync"

	"github.com/lune4696/metamorphosys/internal/value"
)

// EventKind names the trace event types a cascade emits.
type EventKind string

const (
	EventEpisodeStarted EventKind = "episode_started"
	EventTrigger        EventKind = "trigger"
	EventRuleFired      EventKind = "rule_fired"
	EventRuleSkipped    EventKind = "rule_skipped"
	EventOutputWritten  EventKind = "output_written"
	EventWriteSkipped   EventKind = "write_skipped"
	EventEpisodeSettled EventKind = "episode_settled"
	EventEpisodeReset   EventKind = "episode_reset"
)

// EventKinds lists every kind a cascade emits, in lifecycle order.
func EventKinds() []EventKind {
	return []EventKind{
		EventEpisodeStarted,
		EventTrigger,
		EventRuleFired,
		EventRuleSkipped,
		EventOutputWritten,
		EventWriteSkipped,
		EventEpisodeSettled,
		EventEpisodeReset,
	}
}

// TraceEvent is one record in a cascade's trace. Fields not meaningful
// for a kind stay zero; Value always holds canonical JSON so traces
// compare byte-for-byte across runs.
type TraceEvent struct {
	Episode string    `json:"episode"`
	Seq     int64     `json:"seq"`
	Kind    EventKind `json:"kind"`
	Rule    string    `json:"rule,omitempty"`   // input-set key
	Output  string    `json:"output,omitempty"` // output key (path or sentinel)
	Path    string    `json:"path,omitempty"`   // trigger or written path
	Value   string    `json:"value,omitempty"`  // canonical JSON payload
	Detail  string    `json:"detail,omitempty"` // skip reason, chain, settle stats
	Scan    int       `json:"scan,omitempty"`   // scan index for rule events
}

// Tracer receives trace events as the cascade runs. Implementations:
// Recorder (in-memory, harness and tests), the journal sink
// (persistence), and the default no-op.
type Tracer interface {
	Emit(ev TraceEvent)
}

type nopTracer struct{}

func (nopTracer) Emit(TraceEvent) {}

// Recorder is an in-memory Tracer. The harness replays recorded events
// into assertions and golden snapshots.
//
// Thread-safety: guarded by an internal mutex.
type Recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit appends ev to the recording.
func (r *Recorder) Emit(ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Reset clears the recording.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// MultiTracer returns a Tracer that forwards each event to every given
// tracer, in order, like io.MultiWriter duplicates writes.
func MultiTracer(tracers ...Tracer) Tracer {
	return multiTracer(tracers)
}

type multiTracer []Tracer

func (m multiTracer) Emit(ev TraceEvent) {
	for _, t := range m {
		t.Emit(ev)
	}
}

// canonicalOrEmpty renders v for a trace payload. Trace emission must
// not fail a cascade, so marshal errors degrade to an empty payload.
func canonicalOrEmpty(v value.Value) string {
	b, err := value.MarshalCanonical(v)
	if err != nil {
		return ""
	}
	return string(b)
}
