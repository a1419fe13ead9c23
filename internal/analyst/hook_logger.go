package analyst

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/analyst/internal/engine"
)

// LoggerHook writes the progress of a run as structured log records.
type LoggerHook struct{ L *slog.Logger }

func (h LoggerHook) log(ctx context.Context) *slog.Logger {
	l := h.L
	if l == nil {
		l = slog.Default()
	}
	if id := RunIDFrom(ctx); id != "" {
		l = l.With("run", id)
	}
	return l
}

func (h LoggerHook) OnRunStart(ctx context.Context, st *State) {
	h.log(ctx).Info("run started", "query", st.Query, "file", st.DataContext.FilePath(), "schema_known", st.DataContext.HasSchema())
}

func (h LoggerHook) OnStatusChange(ctx context.Context, _ *State, from, to Status) {
	h.log(ctx).Debug("status", "from", from, "to", to)
}

func (h LoggerHook) OnPlan(ctx context.Context, st *State, plan Plan, err error) {
	if err != nil {
		h.log(ctx).Warn("planning attempt failed", "attempt", st.PlannerCalls, "error", err)
		return
	}
	h.log(ctx).Info("plan", "steps", len(plan), "plan", strings.Join(plan.Strings(), " | "))
}

func (h LoggerHook) OnStepStart(ctx context.Context, st *State, step Step) {
	h.log(ctx).Info("step", "n", len(st.History)+1, "step", string(step))
}

func (h LoggerHook) OnAttempt(ctx context.Context, _ Step, attempt int, out ExecutionOutcome, genErr error) {
	l := h.log(ctx)
	switch {
	case genErr != nil:
		l.Warn("code generation failed", "attempt", attempt, "max", MaxStepAttempts, "error", genErr)
	case out.Success:
		l.Debug("execution succeeded", "attempt", attempt, "duration", out.Duration.Round(time.Millisecond), "artifacts", len(out.Artifacts))
	default:
		l.Warn("execution failed", "attempt", attempt, "max", MaxStepAttempts, "timed_out", out.TimedOut, "error", preview(out.Error, 300))
	}
}

func (h LoggerHook) OnInterpretationError(ctx context.Context, _ Step, err error) {
	h.log(ctx).Warn("interpretation failed, keeping raw output", "error", err)
}

func (h LoggerHook) OnStepDone(ctx context.Context, _ *State, rec ExecutionRecord) {
	l := h.log(ctx)
	if rec.Succeeded() {
		l.Info("step succeeded", "attempts", rec.Attempts, "reused", rec.Reused, "artifacts", rec.Artifacts)
		return
	}
	l.Warn("step failed", "attempts", rec.Attempts, "error", preview(rec.Error, 300))
}

func (h LoggerHook) OnDataContextUpdated(ctx context.Context, _ *State, keys []string) {
	h.log(ctx).Info("data context updated", "keys", keys)
}

func (h LoggerHook) OnReplan(ctx context.Context, st *State, res ReplanResult, err error) {
	l := h.log(ctx)
	if err != nil {
		l.Warn("replanning attempt failed", "round", st.ReplanRounds, "error", err)
		return
	}
	switch r := res.(type) {
	case Done:
		l.Info("replan: done", "round", st.ReplanRounds)
	case Continue:
		l.Info("replan: continue", "round", st.ReplanRounds, "remaining", len(r.NewPlan))
	}
}

func (h LoggerHook) OnGenerationRetry(ctx context.Context, role string, attempt int, delay time.Duration, err error) {
	h.log(ctx).Warn("generation retry", "role", role, "attempt", attempt, "delay", delay, "error", err)
}

func (h LoggerHook) OnTokenUsage(ctx context.Context, role string, u engine.Usage, estimated bool) {
	h.log(ctx).Debug("token usage", "role", role, "prompt", u.Prompt, "completion", u.Completion, "estimated", estimated)
}

func (h LoggerHook) OnDone(ctx context.Context, st *State) {
	h.log(ctx).Info("run done", "steps", len(st.History), "rounds", st.ReplanRounds, "duration", st.FinishedAt.Sub(st.StartedAt).Round(time.Millisecond))
}

func (h LoggerHook) OnFailed(ctx context.Context, st *State, err error) {
	h.log(ctx).Error("run failed", "steps", len(st.History), "rounds", st.ReplanRounds, "error", err)
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
