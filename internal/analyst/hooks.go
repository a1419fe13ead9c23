package analyst

import (
	"context"
	"time"

	"github.com/ChamsBouzaiene/analyst/internal/engine"
)

// Hook observes a run. Methods receiving *State must treat it as read-only
// and must not retain it past the call.
type Hook interface {
	OnRunStart(ctx context.Context, st *State)
	OnStatusChange(ctx context.Context, st *State, from, to Status)
	// OnPlan is called after every Planner attempt; err is set when the
	// attempt produced no usable plan.
	OnPlan(ctx context.Context, st *State, plan Plan, err error)
	OnStepStart(ctx context.Context, st *State, step Step)
	// OnAttempt is called after every generate-and-execute attempt. genErr is
	// set when code generation itself failed and nothing ran.
	OnAttempt(ctx context.Context, step Step, attempt int, outcome ExecutionOutcome, genErr error)
	OnInterpretationError(ctx context.Context, step Step, err error)
	OnStepDone(ctx context.Context, st *State, rec ExecutionRecord)
	OnDataContextUpdated(ctx context.Context, st *State, keys []string)
	// OnReplan is called after every Replanner attempt.
	OnReplan(ctx context.Context, st *State, result ReplanResult, err error)
	OnGenerationRetry(ctx context.Context, role string, attempt int, delay time.Duration, err error)
	// OnTokenUsage is called after every successful model call made through
	// the builder's generators. estimated is set when the provider reported
	// no usage.
	OnTokenUsage(ctx context.Context, role string, usage engine.Usage, estimated bool)
	OnDone(ctx context.Context, st *State)
	OnFailed(ctx context.Context, st *State, err error)
}

// NopHook lets you implement only the hooks you need.
type NopHook struct{}

func (NopHook) OnRunStart(context.Context, *State)                                   {}
func (NopHook) OnStatusChange(context.Context, *State, Status, Status)               {}
func (NopHook) OnPlan(context.Context, *State, Plan, error)                          {}
func (NopHook) OnStepStart(context.Context, *State, Step)                            {}
func (NopHook) OnAttempt(context.Context, Step, int, ExecutionOutcome, error)        {}
func (NopHook) OnInterpretationError(context.Context, Step, error)                   {}
func (NopHook) OnStepDone(context.Context, *State, ExecutionRecord)                  {}
func (NopHook) OnDataContextUpdated(context.Context, *State, []string)               {}
func (NopHook) OnReplan(context.Context, *State, ReplanResult, error)                {}
func (NopHook) OnGenerationRetry(context.Context, string, int, time.Duration, error) {}
func (NopHook) OnTokenUsage(context.Context, string, engine.Usage, bool)             {}
func (NopHook) OnDone(context.Context, *State)                                       {}
func (NopHook) OnFailed(context.Context, *State, error)                              {}

// Hooks fans every event out to each hook in order.
type Hooks []Hook

func (hs Hooks) OnRunStart(ctx context.Context, st *State) {
	for _, h := range hs {
		h.OnRunStart(ctx, st)
	}
}
func (hs Hooks) OnStatusChange(ctx context.Context, st *State, from, to Status) {
	for _, h := range hs {
		h.OnStatusChange(ctx, st, from, to)
	}
}
func (hs Hooks) OnPlan(ctx context.Context, st *State, plan Plan, err error) {
	for _, h := range hs {
		h.OnPlan(ctx, st, plan, err)
	}
}
func (hs Hooks) OnStepStart(ctx context.Context, st *State, step Step) {
	for _, h := range hs {
		h.OnStepStart(ctx, st, step)
	}
}
func (hs Hooks) OnAttempt(ctx context.Context, step Step, attempt int, outcome ExecutionOutcome, genErr error) {
	for _, h := range hs {
		h.OnAttempt(ctx, step, attempt, outcome, genErr)
	}
}
func (hs Hooks) OnInterpretationError(ctx context.Context, step Step, err error) {
	for _, h := range hs {
		h.OnInterpretationError(ctx, step, err)
	}
}
func (hs Hooks) OnStepDone(ctx context.Context, st *State, rec ExecutionRecord) {
	for _, h := range hs {
		h.OnStepDone(ctx, st, rec)
	}
}
func (hs Hooks) OnDataContextUpdated(ctx context.Context, st *State, keys []string) {
	for _, h := range hs {
		h.OnDataContextUpdated(ctx, st, keys)
	}
}
func (hs Hooks) OnReplan(ctx context.Context, st *State, result ReplanResult, err error) {
	for _, h := range hs {
		h.OnReplan(ctx, st, result, err)
	}
}
func (hs Hooks) OnGenerationRetry(ctx context.Context, role string, attempt int, delay time.Duration, err error) {
	for _, h := range hs {
		h.OnGenerationRetry(ctx, role, attempt, delay, err)
	}
}
func (hs Hooks) OnTokenUsage(ctx context.Context, role string, usage engine.Usage, estimated bool) {
	for _, h := range hs {
		h.OnTokenUsage(ctx, role, usage, estimated)
	}
}
func (hs Hooks) OnDone(ctx context.Context, st *State) {
	for _, h := range hs {
		h.OnDone(ctx, st)
	}
}
func (hs Hooks) OnFailed(ctx context.Context, st *State, err error) {
	for _, h := range hs {
		h.OnFailed(ctx, st, err)
	}
}

type runIDKey struct{}

// WithRunID stores the run ID in ctx so hooks without state access can tag
// their events.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run ID stored by WithRunID.
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
