// Package analyst implements the plan-execute-replan loop: a Planner turns a
// question into steps, an ExecutionAgent runs one step at a time by
// generating and executing code, and a Replanner decides after every step
// whether the question is answered or what remains to be done.
package analyst

import (
	"strings"
	"time"

	"github.com/ChamsBouzaiene/analyst/internal/prompts"
)

// Step is one plan entry. It is opaque text; a step containing the
// placeholder marker depends on information that is not known yet.
type Step string

// IsPlaceholder reports whether the step still waits for information.
func (s Step) IsPlaceholder() bool {
	return strings.Contains(strings.ToLower(string(s)), strings.ToLower(prompts.PlaceholderMarker))
}

// Key is the comparison form of a step: surrounding and repeated
// whitespace is ignored, everything else must match exactly.
func (s Step) Key() string {
	return strings.Join(strings.Fields(string(s)), " ")
}

func (s Step) String() string { return string(s) }

// Plan is an ordered list of steps. Plans are never edited in place; every
// revision produces a new slice.
type Plan []Step

// NewPlan builds a plan from raw strings.
func NewPlan(steps ...string) Plan {
	p := make(Plan, 0, len(steps))
	for _, s := range steps {
		p = append(p, Step(s))
	}
	return p
}

// Strings returns the steps as plain strings.
func (p Plan) Strings() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = string(s)
	}
	return out
}

// Clone returns an independent copy.
func (p Plan) Clone() Plan {
	if p == nil {
		return nil
	}
	return append(Plan(nil), p...)
}

// Rest returns a new plan without the head step.
func (p Plan) Rest() Plan {
	if len(p) <= 1 {
		return Plan{}
	}
	return append(Plan(nil), p[1:]...)
}

// ExecutionOutcome is what a CodeExecutor reports for one run of generated code.
type ExecutionOutcome struct {
	Success   bool
	Stdout    string
	Error     string
	ExitCode  int
	TimedOut  bool
	Artifacts []string // files created in the working directory while the code ran
	Duration  time.Duration
}

// RecordStatus is the outcome of one plan step.
type RecordStatus string

const (
	RecordSuccess RecordStatus = "success"
	RecordFailure RecordStatus = "failure"
)

// ExecutionRecord is the immutable result of executing one plan step.
type ExecutionRecord struct {
	Step      Step
	Status    RecordStatus
	Output    string // raw stdout of the last attempt
	Report    string // interpretation of Output, empty when skipped or failed
	Error     string // last error when Status is failure
	Attempts  int
	Code      string // code of the last attempt
	Artifacts []string
	Reused    bool // copied from an earlier success with identical inputs
	TimedOut  bool
	Duration  time.Duration

	// ContextFingerprint identifies the data context the step ran against.
	ContextFingerprint string
}

// Succeeded reports whether the step succeeded.
func (r ExecutionRecord) Succeeded() bool { return r.Status == RecordSuccess }

// Summary returns the most useful text of the record: the report when
// there is one, the raw output otherwise.
func (r ExecutionRecord) Summary() string {
	if r.Report != "" {
		return r.Report
	}
	return r.Output
}

// Failure returns the record as an *ExecutionFailure, or nil for successes.
func (r ExecutionRecord) Failure() *ExecutionFailure {
	if r.Succeeded() {
		return nil
	}
	return &ExecutionFailure{Step: r.Step, Attempts: r.Attempts, Message: r.Error, TimedOut: r.TimedOut}
}

func (r ExecutionRecord) clone() ExecutionRecord {
	r.Artifacts = append([]string(nil), r.Artifacts...)
	return r
}

// History is the append-only log of step outcomes for one request.
type History []ExecutionRecord

// Clone returns an independent copy.
func (h History) Clone() History {
	out := make(History, len(h))
	for i, r := range h {
		out[i] = r.clone()
	}
	return out
}

// SucceededSteps returns the keys of every step that succeeded.
func (h History) SucceededSteps() map[string]bool {
	done := make(map[string]bool)
	for _, r := range h {
		if r.Succeeded() {
			done[r.Step.Key()] = true
		}
	}
	return done
}

// FailureCount returns how many failure records exist for a step.
func (h History) FailureCount(step Step) int {
	key := step.Key()
	n := 0
	for _, r := range h {
		if !r.Succeeded() && r.Step.Key() == key {
			n++
		}
	}
	return n
}

// successFor returns the latest success for step run against the same
// data context.
func (h History) successFor(step Step, fingerprint string) (ExecutionRecord, bool) {
	key := step.Key()
	for i := len(h) - 1; i >= 0; i-- {
		r := h[i]
		if r.Succeeded() && r.Step.Key() == key && r.ContextFingerprint == fingerprint {
			return r, true
		}
	}
	return ExecutionRecord{}, false
}

// LastFailure returns the most recent failure record.
func (h History) LastFailure() (ExecutionRecord, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if !h[i].Succeeded() {
			return h[i], true
		}
	}
	return ExecutionRecord{}, false
}

// PlanResult is the parsed Planner output.
type PlanResult struct {
	Steps Plan
}

// ReplanResult is the Replanner decision: either Done or Continue.
type ReplanResult interface {
	replanResult()
	// Kind returns "done" or "continue".
	Kind() string
	IsDone() bool
}

// Done terminates the request with a final answer.
type Done struct {
	FinalResponse string
}

// Continue replaces the remaining plan.
type Continue struct {
	NewPlan Plan
}

func (Done) replanResult()     {}
func (Continue) replanResult() {}

func (Done) Kind() string     { return "done" }
func (Continue) Kind() string { return "continue" }

func (Done) IsDone() bool     { return true }
func (Continue) IsDone() bool { return false }
