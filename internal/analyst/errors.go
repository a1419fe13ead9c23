package analyst

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below matches exactly one of them with
// errors.Is, at any wrapping depth.
var (
	ErrPlanning       = errors.New("planning failed")
	ErrGeneration     = errors.New("generation failed")
	ErrExecution      = errors.New("execution failed")
	ErrInterpretation = errors.New("interpretation failed")
	ErrReplanParsing  = errors.New("replan output rejected")
	ErrReplanLoop     = errors.New("replanning does not converge")
	ErrEmptyQuery     = errors.New("query is empty")
)

// PlanningError means the Planner produced no usable plan.
type PlanningError struct {
	Raw string // model output, when there was one
	Err error
}

func (e *PlanningError) Error() string { return fmt.Sprintf("planning: %v", e.Err) }
func (e *PlanningError) Unwrap() error { return e.Err }
func (e *PlanningError) Is(target error) bool {
	return target == ErrPlanning
}

// GenerationError means a generation call failed or returned nothing usable.
type GenerationError struct {
	Role string // "planner", "replanner", "codegen", "analyzer"
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation: %v", e.Role, e.Err)
}
func (e *GenerationError) Unwrap() error { return e.Err }
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// ExecutionFailure describes a step whose generated code kept failing.
// It is carried by failure records rather than returned by the ExecutionAgent.
type ExecutionFailure struct {
	Step     Step
	Attempts int
	Message  string
	TimedOut bool
}

func (e *ExecutionFailure) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("step %q timed out after %d attempt(s): %s", e.Step, e.Attempts, e.Message)
	}
	return fmt.Sprintf("step %q failed after %d attempt(s): %s", e.Step, e.Attempts, e.Message)
}
func (e *ExecutionFailure) Is(target error) bool {
	return target == ErrExecution
}

// InterpretationError means the result report could not be produced. It is
// never fatal to a run.
type InterpretationError struct {
	Err error
}

func (e *InterpretationError) Error() string { return fmt.Sprintf("interpretation: %v", e.Err) }
func (e *InterpretationError) Unwrap() error { return e.Err }
func (e *InterpretationError) Is(target error) bool {
	return target == ErrInterpretation
}

// ReplanParsingError means the Replanner output did not match the
// done/continue shape.
type ReplanParsingError struct {
	Raw string
	Err error
}

func (e *ReplanParsingError) Error() string { return fmt.Sprintf("replan parsing: %v", e.Err) }
func (e *ReplanParsingError) Unwrap() error { return e.Err }
func (e *ReplanParsingError) Is(target error) bool {
	return target == ErrReplanParsing
}

// ReplanLoopError is raised by the Orchestrator when the loop cannot
// converge. Always fatal.
type ReplanLoopError struct {
	Reason string
	Step   Step // offending step, for repeated failures
	Rounds int
}

func (e *ReplanLoopError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("replan loop after %d round(s): %s: %q", e.Rounds, e.Reason, e.Step)
	}
	return fmt.Sprintf("replan loop after %d round(s): %s", e.Rounds, e.Reason)
}
func (e *ReplanLoopError) Is(target error) bool {
	return target == ErrReplanLoop
}

// RunError is returned by Orchestrator.Run for every fatal failure.
type RunError struct {
	RunID  string
	Status Status // status the run was in when it failed
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed while %s: %v", e.RunID, e.Status, e.Err)
}
func (e *RunError) Unwrap() error { return e.Err }
