package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lune4696/metamorphosys/internal/builtin"
	"github.com/lune4696/metamorphosys/internal/rulebook"
)

// ValidationResult holds validation results for one rulebook.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Rulebook string                     `json:"rulebook"`
	Rules    int                        `json:"rules"`
	Errors   []rulebook.ValidationError `json:"errors,omitempty"`
	Cycles   []rulebook.CycleWarning    `json:"cycles,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rulebook.cue>",
		Short: "Validate a rulebook without running it",
		Long: `Validate a CUE rulebook: compile it, check every rule against the
stock action set, and report feedback loops in the rule graph.

All problems are reported in one pass. Cycles are warnings, not
errors: the engine fires each rule at most once per episode, so a
cyclic book still settles.

Exit codes:
  0 - Rulebook valid
  1 - Compile or validation errors
  2 - Command error (file not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, file string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	// Missing files are command errors; everything after is a
	// diagnostic about the book itself.
	if lerr := statFile(file, "rulebook"); lerr != nil {
		return outputValidateError(formatter, lerr.Code, lerr.Message)
	}

	rb, err := rulebook.LoadFile(file)
	if err != nil {
		return outputValidationErrors(formatter, ValidationResult{
			Rulebook: file,
			Errors:   compileErrorsToValidation(err),
		})
	}
	formatter.VerboseLog("Compiled %d rule(s) from %s", len(rb.Rules), file)

	validationErrors := rulebook.Validate(rb, builtin.Names())
	cycles := rulebook.AnalyzeCycles(rb.Rules)
	formatter.VerboseLog("Checked against %d stock action(s)", len(builtin.Names()))

	result := ValidationResult{
		Valid:    len(validationErrors) == 0,
		Rulebook: file,
		Rules:    len(rb.Rules),
		Errors:   validationErrors,
		Cycles:   cycles,
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}

	fmt.Fprintf(formatter.Writer, "✓ Rulebook valid (%d rule(s))\n", result.Rules)
	for _, c := range result.Cycles {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", c.Message)
	}
	return nil
}

// outputValidateError outputs a command-level error (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs compile or validation errors (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  [%s] %s: %s\n", err.Code, err.Field, err.Message)
	}
	for _, c := range result.Cycles {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", c.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
