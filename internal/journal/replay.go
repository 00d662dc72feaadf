package journal

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/lune4696/metamorphosys/internal/engine"
	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/rulebook"
	"github.com/lune4696/metamorphosys/internal/store"
	"github.com/lune4696/metamorphosys/internal/value"
)

// DriftReason classifies a divergence between the journal and a replay.
type DriftReason string

const (
	// DriftRulebook: the episode was sealed under a different rulebook
	// digest than the one replaying it.
	DriftRulebook DriftReason = "rulebook_drift"
	// DriftTrigger: a journaled trigger could not be re-applied.
	DriftTrigger DriftReason = "trigger_drift"
	// DriftEvents: the re-run produced a different event stream.
	DriftEvents DriftReason = "event_drift"
	// DriftTree: the replayed tree digest differs from the sealed one.
	DriftTree DriftReason = "tree_drift"
)

// Drift is one detected divergence between the journal and a replay.
type Drift struct {
	Episode string      `json:"episode"`
	Reason  DriftReason `json:"reason"`
	Detail  string      `json:"detail"`
}

// ReplayReport summarizes a replay verification pass.
type ReplayReport struct {
	Episodes int     `json:"episodes"` // episodes examined
	Events   int     `json:"events"`   // journaled events examined
	Replayed int     `json:"replayed"` // events the re-run produced
	Drift    []Drift `json:"drift"`    // divergences, empty when clean
}

// Clean reports whether the replay reproduced the journal exactly.
func (r *ReplayReport) Clean() bool {
	return len(r.Drift) == 0
}

// Replay re-runs every journaled episode against a fresh store built
// from rb and verifies the journal describes a deterministic cascade:
//
//   - each episode's rulebook digest must match rb's (drift otherwise),
//   - re-applying the recorded triggers must reproduce the recorded
//     event stream field for field,
//   - the replayed tree digest must match the sealed one.
//
// Each episode replays from the rulebook's seed, matching how episodes
// are produced: one freshly built store per run. install registers the
// action set the original run used (typically builtin.Install); nil
// installs nothing.
//
// Divergences are reported, not returned as errors; the error return is
// reserved for journal access and store construction failures.
func (j *Journal) Replay(ctx context.Context, rb *rulebook.Rulebook, install func(*store.Store) error) (*ReplayReport, error) {
	if rb == nil {
		return nil, fmt.Errorf("replay: nil rulebook")
	}

	episodes, err := j.ListEpisodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	report := &ReplayReport{Episodes: len(episodes), Drift: []Drift{}}
	bookDigest := rb.Digest()

	for _, ep := range episodes {
		recorded, err := j.ReadEpisode(ctx, ep.Token)
		if err != nil {
			return nil, fmt.Errorf("replay episode %s: %w", ep.Token, err)
		}
		report.Events += len(recorded)

		if ep.RulebookHash != "" && ep.RulebookHash != bookDigest {
			// Re-running under a different book would only chase noise.
			report.Drift = append(report.Drift, Drift{
				Episode: ep.Token,
				Reason:  DriftRulebook,
				Detail:  fmt.Sprintf("journaled %s, replaying with %s", ep.RulebookHash, bookDigest),
			})
			continue
		}

		replayed, st, err := j.replayEpisode(rb, install, ep, recorded, report)
		if err != nil {
			return nil, err
		}
		if replayed == nil {
			// Trigger drift already recorded.
			continue
		}
		report.Replayed += len(replayed)

		if detail, ok := diffEvents(recorded, replayed); !ok {
			report.Drift = append(report.Drift, Drift{
				Episode: ep.Token,
				Reason:  DriftEvents,
				Detail:  detail,
			})
		}

		if ep.TreeHash != "" {
			got := value.MustDigest(value.DomainTree, st.Tree())
			if got != ep.TreeHash {
				report.Drift = append(report.Drift, Drift{
					Episode: ep.Token,
					Reason:  DriftTree,
					Detail:  fmt.Sprintf("journaled %s, replayed %s", ep.TreeHash, got),
				})
			}
		}
	}

	return report, nil
}

// replayEpisode re-applies one episode's recorded triggers against a
// fresh store. Returns (nil, nil, nil) after recording trigger drift.
func (j *Journal) replayEpisode(
	rb *rulebook.Rulebook,
	install func(*store.Store) error,
	ep Episode,
	recorded []engine.TraceEvent,
	report *ReplayReport,
) ([]engine.TraceEvent, *store.Store, error) {
	st, err := rb.NewStore()
	if err != nil {
		return nil, nil, fmt.Errorf("replay episode %s: build store: %w", ep.Token, err)
	}
	if install != nil {
		if err := install(st); err != nil {
			return nil, nil, fmt.Errorf("replay episode %s: install actions: %w", ep.Token, err)
		}
	}

	recorder := engine.NewRecorder()
	eng := engine.New(st,
		engine.WithTokenSource(engine.NewFixedSource(ep.Token)),
		engine.WithTracer(recorder),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	for _, ev := range recorded {
		if ev.Kind != engine.EventTrigger {
			continue
		}
		p, perr := path.Parse(ev.Path)
		if perr != nil {
			report.Drift = append(report.Drift, Drift{
				Episode: ep.Token,
				Reason:  DriftTrigger,
				Detail:  fmt.Sprintf("seq %d: bad path: %v", ev.Seq, perr),
			})
			return nil, nil, nil
		}
		v, verr := value.ParseJSON([]byte(ev.Value))
		if verr != nil {
			report.Drift = append(report.Drift, Drift{
				Episode: ep.Token,
				Reason:  DriftTrigger,
				Detail:  fmt.Sprintf("seq %d: bad value: %v", ev.Seq, verr),
			})
			return nil, nil, nil
		}
		out, oerr := eng.Observe(p, func(value.Value) value.Value { return v })
		if oerr != nil {
			return nil, nil, fmt.Errorf("replay episode %s: observe %s: %w", ep.Token, p, oerr)
		}
		if out.Code != engine.OutcomeSuccess {
			report.Drift = append(report.Drift, Drift{
				Episode: ep.Token,
				Reason:  DriftTrigger,
				Detail:  fmt.Sprintf("seq %d: trigger %s refused: %s", ev.Seq, p, out.Code),
			})
			return nil, nil, nil
		}
	}

	// The journal tells us whether the original run closed the episode.
	if len(recorded) > 0 && recorded[len(recorded)-1].Kind == engine.EventEpisodeReset {
		eng.ResetEpisode()
	}

	return recorder.Events(), st, nil
}

// diffEvents compares the semantic fields of two event streams. Seq is
// deliberately excluded: it is consecutive within any engine's stream,
// and its base depends on what the clock counted before the episode.
func diffEvents(recorded, replayed []engine.TraceEvent) (string, bool) {
	if len(recorded) != len(replayed) {
		return fmt.Sprintf("journaled %d events, replay produced %d", len(recorded), len(replayed)), false
	}
	for i := range recorded {
		a, b := recorded[i], replayed[i]
		if a.Kind != b.Kind || a.Rule != b.Rule || a.Output != b.Output ||
			a.Path != b.Path || a.Value != b.Value || a.Detail != b.Detail || a.Scan != b.Scan {
			return fmt.Sprintf("event %d: journaled %s, replayed %s", i, renderEvent(a), renderEvent(b)), false
		}
	}
	return "", true
}

func renderEvent(ev engine.TraceEvent) string {
	return fmt.Sprintf("%s rule=%q output=%q path=%q value=%q detail=%q scan=%d",
		ev.Kind, ev.Rule, ev.Output, ev.Path, ev.Value, ev.Detail, ev.Scan)
}
