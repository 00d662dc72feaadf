package harness

import (
	"encoding/json"

	"github.com/lune4696/metamorphosys/internal/engine"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expect clause and every
	// assertion held.
	Pass bool `json:"pass"`

	// Outcomes records each step's outcome code, in step order. The
	// outcome_sequence assertion checks against this.
	Outcomes []string `json:"outcomes"`

	// Trace contains every event the cascade emitted, in seq order.
	Trace []engine.TraceEvent `json:"trace"`

	// Errors contains expect and assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// FinalTree is the settled tree as canonical JSON.
	FinalTree json.RawMessage `json:"final_tree,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Outcomes: []string{},
		Trace:    []engine.TraceEvent{},
		Errors:   []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
