package analyst

import (
	"context"
	"strconv"
	"time"

	"github.com/ChamsBouzaiene/analyst/internal/engine"
	"github.com/ChamsBouzaiene/analyst/internal/prompts"
)

// Planner turns a question into an ordered list of steps.
type Planner struct {
	Gen     engine.Generator
	Timeout time.Duration
}

// NewPlanner creates a planner backed by gen.
func NewPlanner(gen engine.Generator, timeout time.Duration) *Planner {
	return &Planner{Gen: gen, Timeout: timeout}
}

// Plan asks the model for a plan and applies the deterministic guards on top
// of it: full-dump steps are rejected and an exploration step is put first
// when the schema is unknown. Errors are *PlanningError.
func (p *Planner) Plan(ctx context.Context, query string, dc DataContext) (PlanResult, error) {
	system, err := prompts.Render(prompts.PlannerSystemID, nil)
	if err != nil {
		return PlanResult{}, &PlanningError{Err: err}
	}
	user, err := prompts.Render(prompts.PlannerUserID, map[string]string{
		"query":        query,
		"data_context": dc.JSON(),
		"schema_known": strconv.FormatBool(dc.HasSchema()),
	})
	if err != nil {
		return PlanResult{}, &PlanningError{Err: err}
	}

	callCtx, cancel := withTimeout(ctx, p.Timeout)
	defer cancel()

	raw, err := p.Gen.Generate(callCtx, system, user)
	if err != nil {
		return PlanResult{}, &PlanningError{Err: &GenerationError{Role: "planner", Err: err}}
	}

	res, err := ParsePlan(raw)
	if err != nil {
		return PlanResult{}, &PlanningError{Raw: raw, Err: err}
	}
	if err := CheckPlanSafety(res.Steps); err != nil {
		return PlanResult{}, &PlanningError{Raw: raw, Err: err}
	}
	res.Steps = EnsureExploration(res.Steps, dc)
	return res, nil
}
