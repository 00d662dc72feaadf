package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lune4696/metamorphosys/internal/builtin"
	"github.com/lune4696/metamorphosys/internal/journal"
	"github.com/lune4696/metamorphosys/internal/rulebook"
)

// LoadError represents an error that occurred while loading a rulebook
// or opening a journal.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric  = "E001" // Generic/unknown error
	ErrCodeNotFound = "E002" // Rulebook, scenario, or journal not found
	ErrCodeCompile  = "E003" // Rulebook compile failed
	ErrCodeInvalid  = "E004" // Rulebook semantic validation failed
	ErrCodeJournal  = "E005" // Journal open or query failed
	ErrCodeBadInput = "E006" // Bad flag or argument
)

// statFile verifies filename names an existing regular file. what names
// the artifact ("rulebook", "journal") in the message.
func statFile(filename, what string) *LoadError {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", what, filename)}
	}
	if err != nil {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", what, err)}
	}
	if info.IsDir() {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a file: %s", filename)}
	}
	return nil
}

// LoadRulebook reads and compiles a rulebook file. Compile diagnostics
// come back as a LoadError whose message joins every broken declaration.
func LoadRulebook(filename string) (*rulebook.Rulebook, error) {
	if lerr := statFile(filename, "rulebook"); lerr != nil {
		return nil, lerr
	}
	rb, err := rulebook.LoadFile(filename)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeCompile, Message: err.Error()}
	}
	return rb, nil
}

// LoadValidRulebook compiles a rulebook and checks it against the stock
// action set, failing on the first semantic problem. Commands that
// execute episodes (run, replay) go through here; validate does its own
// finer-grained reporting.
func LoadValidRulebook(filename string) (*rulebook.Rulebook, error) {
	rb, err := LoadRulebook(filename)
	if err != nil {
		return nil, err
	}
	if verrs := rulebook.Validate(rb, builtin.Names()); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, verr := range verrs {
			msgs[i] = verr.Error()
		}
		return nil, &LoadError{Code: ErrCodeInvalid, Message: strings.Join(msgs, "; ")}
	}
	return rb, nil
}

// OpenJournal opens an existing journal database. The file must already
// exist: commands that read traces should not silently create empty
// journals. Only run creates journals, via journal.Open directly.
func OpenJournal(path string) (*journal.Journal, error) {
	if lerr := statFile(path, "journal"); lerr != nil {
		return nil, lerr
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeJournal, Message: fmt.Sprintf("opening journal: %v", err)}
	}
	return j, nil
}

// compileErrorsToValidation converts a LoadFile error into validation
// errors for display. Compile joins per-declaration errors, so the
// conversion unwraps the join and reports each one on its own line.
func compileErrorsToValidation(err error) []rulebook.ValidationError {
	var out []rulebook.ValidationError
	for _, e := range unwrapJoined(err) {
		var cerr *rulebook.CompileError
		if errors.As(e, &cerr) {
			out = append(out, rulebook.ValidationError{
				Field:   cerr.Field,
				Message: cerr.Error(),
				Code:    ErrCodeCompile,
			})
			continue
		}
		out = append(out, rulebook.ValidationError{
			Field:   "rulebook",
			Message: e.Error(),
			Code:    ErrCodeCompile,
		})
	}
	return out
}

// unwrapJoined flattens an errors.Join result; a plain error comes back
// as a one-element slice.
func unwrapJoined(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
