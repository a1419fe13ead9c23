package analyst

import (
	"fmt"
	"time"
)

// Status is the position of a run in the plan-execute-replan state machine.
type Status string

const (
	StatusPlanning   Status = "planning"
	StatusExecuting  Status = "executing"
	StatusReplanning Status = "replanning"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusDone || s == StatusFailed }

var transitions = map[Status][]Status{
	StatusPlanning:   {StatusExecuting, StatusReplanning, StatusFailed},
	StatusExecuting:  {StatusReplanning, StatusFailed},
	StatusReplanning: {StatusExecuting, StatusReplanning, StatusDone, StatusFailed},
}

// CanTransition reports whether the state machine allows from -> to.
// planning -> replanning covers a plan that opens with a placeholder;
// replanning -> replanning covers a continue whose plan starts with one.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// State is the per-request agent state. Only the Orchestrator writes it.
type State struct {
	RunID        string
	Query        string
	DataContext  DataContext
	Plan         Plan // remaining steps, head first
	PlannedSoFar Plan // every step ever planned, in order, for the Replanner
	History      History
	CurrentStep  Step

	// StepAttempts is the attempt count of the current step. It is reset for
	// every new step and never exceeds MaxStepAttempts.
	StepAttempts int
	Status       Status

	FinalResponse  string // set only when Status is done
	FailureSummary string // set only when Status is failed
	LastError      string

	ReplanRounds   int
	PlannerCalls   int
	ReplannerCalls int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// NewState creates the state of a fresh request.
func NewState(runID, query string, dc DataContext) *State {
	if dc == nil {
		dc = DataContext{}
	}
	return &State{
		RunID:       runID,
		Query:       query,
		DataContext: dc.Clone(),
		Status:      StatusPlanning,
		StartedAt:   time.Now(),
	}
}

func (s *State) transition(to Status) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("illegal state transition %s -> %s", s.Status, to)
	}
	s.Status = to
	return nil
}

// Snapshot returns a deep copy that is safe to keep after the run moves on.
func (s *State) Snapshot() *State {
	c := *s
	c.DataContext = s.DataContext.Clone()
	c.Plan = s.Plan.Clone()
	c.PlannedSoFar = s.PlannedSoFar.Clone()
	c.History = s.History.Clone()
	return &c
}

func (s *State) recordPlanned(p Plan) {
	seen := make(map[string]bool, len(s.PlannedSoFar))
	for _, st := range s.PlannedSoFar {
		seen[st.Key()] = true
	}
	for _, st := range p {
		if !seen[st.Key()] {
			s.PlannedSoFar = append(s.PlannedSoFar, st)
			seen[st.Key()] = true
		}
	}
}
