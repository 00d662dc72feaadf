package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lune4696/metamorphosys/internal/builtin"
	"github.com/lune4696/metamorphosys/internal/engine"
	"github.com/lune4696/metamorphosys/internal/harness"
	"github.com/lune4696/metamorphosys/internal/journal"
	"github.com/lune4696/metamorphosys/internal/path"
	"github.com/lune4696/metamorphosys/internal/value"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Observe string
	Apply   string
	Set     string
	Journal string

	// Tokens allows overriding the episode token source (for testing).
	// If nil, defaults to UUIDv7Source.
	Tokens engine.TokenSource
}

// FiredRule is one rule firing in the episode report.
type FiredRule struct {
	Rule   string `json:"rule"`
	Output string `json:"output,omitempty"`
	Value  string `json:"value,omitempty"`
	Scan   int    `json:"scan,omitempty"`
}

// RunResult holds the report of a single observed episode.
type RunResult struct {
	Outcome string          `json:"outcome"`
	Episode string          `json:"episode,omitempty"`
	Path    string          `json:"path"`
	Fired   int             `json:"fired"`
	Skipped int             `json:"skipped"`
	Scans   int             `json:"scans"`
	Rules   []FiredRule     `json:"rules,omitempty"`
	Tree    json.RawMessage `json:"tree"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <rulebook.cue>",
		Short: "Observe one path mutation and cascade it",
		Long: `Run a single episode against a store seeded from the rulebook.

The store starts from the rulebook's seed tree with the stock actions
installed. The named path is observed with the given mutation, the
cascade runs to settlement, and the command reports the outcome, the
rules that fired, and the settled tree.

Exactly one of --apply and --set chooses the mutation: --apply names a
stock mutator, --set writes a literal value (JSON syntax). With
--journal, every trace event is persisted and the episode is sealed
with the rulebook and tree digests, ready for trace and replay.

Example:
  metamorphosys run book.cue --observe a.b --apply increment
  metamorphosys run book.cue --observe a.b --set 41
  metamorphosys run book.cue --observe a.b --apply double --journal ./trace.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEpisode(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Observe, "observe", "", "path to observe (required)")
	_ = cmd.MarkFlagRequired("observe")
	cmd.Flags().StringVar(&opts.Apply, "apply", "", "stock mutator to apply")
	cmd.Flags().StringVar(&opts.Set, "set", "", "literal value to set (JSON syntax)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (created if missing)")

	return cmd
}

func runEpisode(opts *RunOptions, file string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	mutate, err := episodeMutator(opts, cmd)
	if err != nil {
		return err
	}

	p, err := path.Parse(opts.Observe)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid observe path %q", opts.Observe), err)
	}

	rb, err := LoadValidRulebook(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rulebook", err)
	}
	st, err := rb.NewStore()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build store", err)
	}
	if err := builtin.Install(st); err != nil {
		return WrapExitError(ExitCommandError, "failed to install stock actions", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// The recorder feeds the report; with --journal the same stream is
	// persisted as it is emitted.
	recorder := engine.NewRecorder()
	var tracer engine.Tracer = recorder
	var sink *journal.Sink
	var jnl *journal.Journal
	if opts.Journal != "" {
		slog.Info("opening journal", "path", opts.Journal)
		jnl, err = journal.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := jnl.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		sink = jnl.Sink()
		tracer = engine.MultiTracer(recorder, sink)
	}

	tokens := opts.Tokens
	if tokens == nil {
		tokens = engine.UUIDv7Source{}
	}
	eng := engine.New(st,
		engine.WithTokenSource(tokens),
		engine.WithTracer(tracer),
	)

	outcome, err := eng.Observe(p, mutate)
	if err != nil {
		return WrapExitError(ExitFailure, "episode failed", err)
	}

	if jnl != nil && outcome.Episode != "" {
		treeHash := value.MustDigest(value.DomainTree, st.Tree())
		if err := jnl.SealEpisode(ctx, outcome.Episode, rb.Digest(), treeHash); err != nil {
			return WrapExitError(ExitCommandError, "failed to seal episode", err)
		}
	}
	eng.ResetEpisode()

	if sink != nil {
		if err := sink.Err(); err != nil {
			return WrapExitError(ExitCommandError, "journal write failed", err)
		}
	}

	tree, err := value.MarshalCanonical(st.Tree())
	if err != nil {
		return WrapExitError(ExitFailure, "rendering settled tree", err)
	}

	result := RunResult{
		Outcome: outcome.Code.String(),
		Episode: outcome.Episode,
		Path:    p.Key(),
		Fired:   outcome.Fired,
		Skipped: outcome.Skipped,
		Scans:   outcome.Scans,
		Tree:    tree,
	}
	for _, ev := range recorder.Events() {
		if ev.Kind == engine.EventRuleFired {
			result.Rules = append(result.Rules, FiredRule{
				Rule:   ev.Rule,
				Output: ev.Output,
				Value:  ev.Value,
				Scan:   ev.Scan,
			})
		}
	}

	if opts.Format == "json" {
		return outputRunJSON(cmd, result)
	}
	return outputRunText(cmd, result, recorder.Events(), opts.Verbose)
}

// episodeMutator resolves the mutation the flags declare. Exactly one
// of --apply and --set must be given; an explicit --set "" still counts
// as given, so the check consults Changed as well as the value.
func episodeMutator(opts *RunOptions, cmd *cobra.Command) (engine.Mutator, error) {
	setGiven := opts.Set != "" || cmd.Flags().Changed("set")
	if opts.Apply != "" && setGiven {
		return nil, NewExitError(ExitCommandError, "--apply and --set are mutually exclusive")
	}
	if opts.Apply == "" && !setGiven {
		return nil, NewExitError(ExitCommandError, "one of --apply or --set is required")
	}

	if opts.Apply != "" {
		mut, ok := builtin.Mutator(opts.Apply)
		if !ok {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("unknown mutator %q (known: %s)", opts.Apply, strings.Join(builtin.MutatorNames(), ", ")))
		}
		return mut, nil
	}

	v, err := value.ParseJSON([]byte(opts.Set))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --set value %q", opts.Set), err)
	}
	return builtin.Set(v), nil
}

// outputRunJSON outputs the episode report as JSON.
func outputRunJSON(cmd *cobra.Command, result RunResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputRunText outputs the episode report as text.
func outputRunText(cmd *cobra.Command, result RunResult, events []engine.TraceEvent, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.Episode != "" {
		fmt.Fprintf(w, "Episode: %s\n", result.Episode)
	}
	fmt.Fprintf(w, "Outcome: %s\n", result.Outcome)
	fmt.Fprintf(w, "Fired: %d  Skipped: %d  Scans: %d\n", result.Fired, result.Skipped, result.Scans)
	fmt.Fprintln(w)

	if len(result.Rules) > 0 {
		fmt.Fprintln(w, "=== Fired Rules ===")
		for _, r := range result.Rules {
			fmt.Fprintf(w, "  [scan %d] %s -> %s = %s\n", r.Scan, r.Rule, r.Output, r.Value)
		}
		fmt.Fprintln(w)
	}

	if verbose && len(events) > 0 {
		fmt.Fprintln(w, "=== Trace ===")
		for _, ev := range events {
			fmt.Fprintf(w, "  [%d] %s\n", ev.Seq, harness.FormatEvent(ev))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Settled Tree ===")
	fmt.Fprintln(w, string(result.Tree))

	return nil
}
