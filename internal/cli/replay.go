package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lune4696/metamorphosys/internal/builtin"
	"github.com/lune4696/metamorphosys/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <rulebook.cue>",
		Short: "Replay journaled episodes and verify determinism",
		Long: `Replay every journaled episode against the rulebook and verify the
journal describes a deterministic cascade.

Each episode re-runs from the rulebook's seed: the recorded triggers
are re-applied and the fresh event stream is compared field for field
with the journaled one. Sealed episodes additionally check the
rulebook digest and the settled tree digest. Divergences are reported
as drift, classified by cause.

Exit codes:
  0 - Every episode replayed cleanly
  1 - Drift detected
  2 - Command error (missing rulebook or journal, etc.)

Examples:
  metamorphosys replay book.cue --journal ./trace.db
  metamorphosys replay book.cue --journal ./trace.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")

	return cmd
}

func runReplay(opts *ReplayOptions, file string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rb, err := LoadValidRulebook(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rulebook", err)
	}

	j, err := OpenJournal(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	report, err := j.Replay(ctx, rb, builtin.Install)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, report)
	}
	return outputReplayText(cmd, report)
}

// outputReplayJSON outputs the replay report as JSON.
func outputReplayJSON(cmd *cobra.Command, report *journal.ReplayReport) error {
	response := CLIResponse{
		Status: "ok",
		Data:   report,
	}

	if !report.Clean() {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !report.Clean() {
		// Drift = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay report as text.
func outputReplayText(cmd *cobra.Command, report *journal.ReplayReport) error {
	w := cmd.OutOrStdout()

	if report.Episodes == 0 {
		fmt.Fprintln(w, "No episodes found in journal.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d episode(s), %d event(s) journaled, %d replayed\n",
		report.Episodes, report.Events, report.Replayed)
	fmt.Fprintln(w)

	for _, d := range report.Drift {
		fmt.Fprintf(w, "✗ %s: %s\n", d.Episode, d.Reason)
		fmt.Fprintf(w, "    %s\n", d.Detail)
	}

	if report.Clean() {
		fmt.Fprintln(w, "✓ All episodes replayed deterministically")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Drift = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
