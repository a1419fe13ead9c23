package analyst

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Limits bounds a run. Every loop of the Orchestrator is bounded by one of
// these values or by MaxStepAttempts.
type Limits struct {
	// MaxReplanRounds caps Replanner rounds per request.
	MaxReplanRounds int
	// MaxPlanAttempts caps Planner calls per request.
	MaxPlanAttempts int
	// MaxReplanParseAttempts caps Replanner calls within one round,
	// counting the first.
	MaxReplanParseAttempts int
	// MaxStepFailures is how many failure records a step may have before a
	// plan that contains it again is treated as a loop.
	MaxStepFailures int

	GenerationTimeout     time.Duration
	ExecutionTimeout      time.Duration
	InterpretationTimeout time.Duration
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxReplanRounds:        8,
		MaxPlanAttempts:        3,
		MaxReplanParseAttempts: 3,
		MaxStepFailures:        2,
		GenerationTimeout:      2 * time.Minute,
		ExecutionTimeout:       2 * time.Minute,
		InterpretationTimeout:  2 * time.Minute,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxReplanRounds <= 0 {
		l.MaxReplanRounds = d.MaxReplanRounds
	}
	if l.MaxPlanAttempts <= 0 {
		l.MaxPlanAttempts = d.MaxPlanAttempts
	}
	if l.MaxReplanParseAttempts <= 0 {
		l.MaxReplanParseAttempts = d.MaxReplanParseAttempts
	}
	if l.MaxStepFailures <= 0 {
		l.MaxStepFailures = d.MaxStepFailures
	}
	return l
}

// Request is one user question.
type Request struct {
	Query       string
	DataContext DataContext
}

// Outcome is the result of a run. Exactly one of FinalResponse and
// FailureSummary is set.
type Outcome struct {
	RunID          string
	Status         Status
	FinalResponse  string
	FailureSummary string
	State          *State // snapshot at the end of the run
}

// Message returns the text to show the user.
func (o *Outcome) Message() string {
	if o.Status == StatusDone {
		return o.FinalResponse
	}
	return o.FailureSummary
}

// Orchestrator drives Planner -> ExecutionAgent -> Replanner until the
// Replanner answers or a limit is hit. One Orchestrator may serve
// concurrent requests; every request gets its own State.
type Orchestrator struct {
	Planner   *Planner
	Agent     *ExecutionAgent
	Replanner *Replanner
	Limits    Limits
	Hook      Hook
	NewRunID  func() string
}

// Run answers req. On failure it returns both an Outcome carrying the
// failure statement and a *RunError.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}

	runID := o.newRunID()
	ctx = WithRunID(ctx, runID)
	st := NewState(runID, strings.TrimSpace(req.Query), req.DataContext)
	hook := o.hook()
	hook.OnRunStart(ctx, st)

	err := o.loop(ctx, st)
	st.FinishedAt = time.Now()
	if err != nil {
		return o.fail(ctx, st, err)
	}

	hook.OnDone(ctx, st)
	return &Outcome{
		RunID:         runID,
		Status:        st.Status,
		FinalResponse: st.FinalResponse,
		State:         st.Snapshot(),
	}, nil
}

func (o *Orchestrator) loop(ctx context.Context, st *State) error {
	limits := o.Limits.withDefaults()

	plan, err := o.plan(ctx, st, limits)
	if err != nil {
		return err
	}
	st.Plan = plan
	st.recordPlanned(plan)

	for {
		if len(st.Plan) > 0 && !st.Plan[0].IsPlaceholder() {
			if err := o.setStatus(ctx, st, StatusExecuting); err != nil {
				return err
			}
			o.executeHead(ctx, st)
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if err := o.setStatus(ctx, st, StatusReplanning); err != nil {
			return err
		}
		st.ReplanRounds++
		res, err := o.replan(ctx, st, limits)
		if err != nil {
			return err
		}

		switch r := res.(type) {
		case Done:
			st.FinalResponse = r.FinalResponse
			st.Plan = Plan{}
			st.CurrentStep = ""
			return o.setStatus(ctx, st, StatusDone)
		case Continue:
			if err := DetectLoop(r.NewPlan, st.History, limits.MaxStepFailures, st.ReplanRounds); err != nil {
				return err
			}
			if st.ReplanRounds >= limits.MaxReplanRounds {
				return &ReplanLoopError{Reason: "round ceiling", Rounds: st.ReplanRounds}
			}
			st.Plan = r.NewPlan.Clone()
			st.recordPlanned(r.NewPlan)
		default:
			return fmt.Errorf("unexpected replan result %T", res)
		}
	}
}

func (o *Orchestrator) plan(ctx context.Context, st *State, limits Limits) (Plan, error) {
	var lastErr error
	for attempt := 1; attempt <= limits.MaxPlanAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st.PlannerCalls++
		res, err := o.Planner.Plan(ctx, st.Query, st.DataContext)
		o.hook().OnPlan(ctx, st, res.Steps, err)
		if err == nil {
			return res.Steps, nil
		}
		lastErr = err
		st.LastError = err.Error()
	}
	return nil, lastErr
}

func (o *Orchestrator) replan(ctx context.Context, st *State, limits Limits) (ReplanResult, error) {
	in := ReplanInput{
		Query:       st.Query,
		Plan:        st.PlannedSoFar,
		History:     st.History,
		DataContext: st.DataContext,
	}
	var lastErr error
	for attempt := 1; attempt <= limits.MaxReplanParseAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st.ReplannerCalls++
		res, err := o.Replanner.Replan(ctx, in)
		o.hook().OnReplan(ctx, st, res, err)
		if err == nil {
			return res, nil
		}
		lastErr = err
		st.LastError = err.Error()
	}
	return nil, lastErr
}

// executeHead runs the first remaining step and folds its outcome into st.
func (o *Orchestrator) executeHead(ctx context.Context, st *State) {
	hook := o.hook()
	step := st.Plan[0]
	st.CurrentStep = step
	st.StepAttempts = 0
	hook.OnStepStart(ctx, st, step)

	rec := o.Agent.Execute(ctx, step, st.History, st.DataContext)
	st.StepAttempts = rec.Attempts
	st.History = append(st.History, rec)
	st.Plan = st.Plan.Rest()
	if !rec.Succeeded() {
		st.LastError = rec.Error
	}
	hook.OnStepDone(ctx, st, rec)

	if rec.Succeeded() && !rec.Reused {
		dc, keys := FoldDataContext(st.DataContext, rec.Output)
		if len(keys) > 0 {
			st.DataContext = dc
			hook.OnDataContextUpdated(ctx, st, keys)
		}
	}
}

func (o *Orchestrator) setStatus(ctx context.Context, st *State, to Status) error {
	from := st.Status
	if err := st.transition(to); err != nil {
		return err
	}
	o.hook().OnStatusChange(ctx, st, from, to)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, st *State, err error) (*Outcome, error) {
	from := st.Status
	if !from.Terminal() {
		st.Status = StatusFailed
		o.hook().OnStatusChange(ctx, st, from, StatusFailed)
	}
	st.FinalResponse = ""
	st.FailureSummary = FailureSummary(st, err)
	o.hook().OnFailed(ctx, st, err)

	return &Outcome{
		RunID:          st.RunID,
		Status:         st.Status,
		FailureSummary: st.FailureSummary,
		State:          st.Snapshot(),
	}, &RunError{RunID: st.RunID, Status: from, Err: err}
}

// FailureSummary states what was attempted, what failed and the last
// concrete error. It never contains analytical results.
func FailureSummary(st *State, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The question %q could not be answered.\n", st.Query)

	if len(st.History) == 0 {
		b.WriteString("\nNo step was executed.\n")
	} else {
		b.WriteString("\nAttempted steps:\n")
		for _, r := range st.History {
			if r.Succeeded() {
				fmt.Fprintf(&b, "- %s: succeeded\n", r.Step)
				continue
			}
			fmt.Fprintf(&b, "- %s: failed after %d attempt(s)\n", r.Step, r.Attempts)
		}
	}

	fmt.Fprintf(&b, "\nWhat failed: %v\n", err)
	last := st.LastError
	if last == "" || last == err.Error() {
		if rec, ok := st.History.LastFailure(); ok {
			last = rec.Error
		}
	}
	if last != "" && last != err.Error() {
		fmt.Fprintf(&b, "Last error: %s\n", strings.TrimSpace(last))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *Orchestrator) newRunID() string {
	if o.NewRunID != nil {
		return o.NewRunID()
	}
	return uuid.NewString()
}

func (o *Orchestrator) hook() Hook {
	if o.Hook == nil {
		return NopHook{}
	}
	return o.Hook
}
