package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lune4696/metamorphosys/internal/engine"
	"github.com/lune4696/metamorphosys/internal/harness"
	"github.com/lune4696/metamorphosys/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal    string
	Episode    string
	Kind       string
	Rule       string
	PathPrefix string
	Limit      int
}

// EpisodeSummary is one journaled episode in trace listings.
type EpisodeSummary struct {
	Token        string `json:"token"`
	StartedSeq   int64  `json:"started_seq"`
	Sealed       bool   `json:"sealed"`
	RulebookHash string `json:"rulebook_hash,omitempty"`
	TreeHash     string `json:"tree_hash,omitempty"`
}

// TraceResult holds trace query output: an episode listing, or a
// filtered event dump when any filter flag is set.
type TraceResult struct {
	Episodes []EpisodeSummary    `json:"episodes,omitempty"`
	Events   []engine.TraceEvent `json:"events,omitempty"`
	Count    int                 `json:"count"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect journaled episodes and events",
		Long: `Inspect a trace journal produced by run --journal.

With no filter flags, lists every journaled episode with its starting
sequence number and seal status. With any of --episode, --kind,
--rule, --path-prefix, or --limit, dumps the matching events in
sequence order instead.

Examples:
  metamorphosys trace --journal ./trace.db
  metamorphosys trace --journal ./trace.db --episode 0190a1b2-...
  metamorphosys trace --journal ./trace.db --kind rule_fired --limit 10
  metamorphosys trace --journal ./trace.db --path-prefix a.b --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Episode, "episode", "", "restrict to one episode token")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "restrict to one event kind")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "restrict to one rule (input-set key)")
	cmd.Flags().StringVar(&opts.PathPrefix, "path-prefix", "", "restrict to paths at or under a prefix")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "cap the number of events returned")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	j, err := OpenJournal(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	filtered := opts.Episode != "" || opts.Kind != "" || opts.Rule != "" ||
		opts.PathPrefix != "" || opts.Limit > 0
	if !filtered {
		episodes, err := j.ListEpisodes(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list episodes", err)
		}
		return outputEpisodes(opts, cmd, episodes)
	}

	f := journal.Filter{
		Episode:    opts.Episode,
		Kind:       engine.EventKind(opts.Kind),
		Rule:       opts.Rule,
		PathPrefix: opts.PathPrefix,
		Limit:      opts.Limit,
	}
	if err := f.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	events, err := j.Events(ctx, f)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query events", err)
	}
	return outputEvents(opts, cmd, events)
}

// outputEpisodes renders the episode listing.
func outputEpisodes(opts *TraceOptions, cmd *cobra.Command, episodes []journal.Episode) error {
	summaries := make([]EpisodeSummary, len(episodes))
	for i, ep := range episodes {
		summaries[i] = EpisodeSummary{
			Token:        ep.Token,
			StartedSeq:   ep.StartedSeq,
			Sealed:       ep.Sealed(),
			RulebookHash: ep.RulebookHash,
			TreeHash:     ep.TreeHash,
		}
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, TraceResult{
			Episodes: summaries,
			Count:    len(summaries),
		})
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No episodes found in journal.")
		return nil
	}

	fmt.Fprintf(w, "Episodes: %d\n", len(summaries))
	fmt.Fprintln(w)
	for _, ep := range summaries {
		status := "open"
		if ep.Sealed {
			status = "sealed"
		}
		fmt.Fprintf(w, "  %s  seq %d  [%s]\n", ep.Token, ep.StartedSeq, status)
		if opts.Verbose && ep.Sealed {
			fmt.Fprintf(w, "    rulebook: %s\n", truncateID(ep.RulebookHash))
			fmt.Fprintf(w, "    tree:     %s\n", truncateID(ep.TreeHash))
		}
	}

	return nil
}

// outputEvents renders a filtered event dump.
func outputEvents(opts *TraceOptions, cmd *cobra.Command, events []engine.TraceEvent) error {
	if opts.Format == "json" {
		return outputTraceJSON(cmd, TraceResult{
			Events: events,
			Count:  len(events),
		})
	}

	w := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(w, "No events match the filter.")
		return nil
	}

	fmt.Fprintf(w, "Events: %d\n", len(events))
	fmt.Fprintln(w)
	for _, ev := range events {
		// The token column is noise when the filter already pins one
		// episode.
		if opts.Episode == "" {
			fmt.Fprintf(w, "  [%s:%d] %s\n", ev.Episode, ev.Seq, harness.FormatEvent(ev))
		} else {
			fmt.Fprintf(w, "  [%d] %s\n", ev.Seq, harness.FormatEvent(ev))
		}
	}

	return nil
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// truncateID truncates a long digest for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
