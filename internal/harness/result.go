package harness

import (
	"fmt"
	"strings"
)

// Event is one line of the trace.
type Event struct {
	// Seq is the 1-based step number; 0 for assertions.
	Seq  int    `json:"seq,omitempty"`
	Line string `json:"line"`
}

// Result is the outcome of a scenario run.
type Result struct {
	Scenario string `json:"scenario"`

	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []Event  `json:"trace"`
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{Scenario: name, Pass: true, Trace: []Event{}, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

func (r *Result) addStep(seq int, desc, outcome string) {
	r.Trace = append(r.Trace, Event{Seq: seq, Line: fmt.Sprintf("[%02d] %s -> %s", seq, desc, outcome)})
}

func (r *Result) addAssertion(desc string, ok bool) {
	verdict := "pass"
	if !ok {
		verdict = "fail"
	}
	r.Trace = append(r.Trace, Event{Line: fmt.Sprintf("assert %s -> %s", desc, verdict)})
}

// Render formats the trace as text, one event per line.
func (r *Result) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", r.Scenario)
	for _, e := range r.Trace {
		b.WriteString(e.Line)
		b.WriteByte('\n')
	}
	if r.Pass {
		b.WriteString("result: pass\n")
	} else {
		fmt.Fprintf(&b, "result: fail (%d errors)\n", len(r.Errors))
	}
	return b.String()
}
