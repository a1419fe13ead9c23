package analyst

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/analyst/internal/engine"
	"github.com/ChamsBouzaiene/analyst/internal/prompts"
)

// historyEntryChars caps each history entry shown to the Replanner.
const historyEntryChars = 2000

// ReplanInput is everything the Replanner decides on.
type ReplanInput struct {
	Query       string
	Plan        Plan // every step planned so far, executed or not
	History     History
	DataContext DataContext
}

// Replanner decides after every step whether the question is answered.
type Replanner struct {
	Gen     engine.Generator
	Timeout time.Duration
}

// NewReplanner creates a replanner backed by gen.
func NewReplanner(gen engine.Generator, timeout time.Duration) *Replanner {
	return &Replanner{Gen: gen, Timeout: timeout}
}

// Replan returns Done or Continue. A Continue plan never contains a step
// that already succeeded. Generation failures are *GenerationError, output
// of the wrong shape is *ReplanParsingError.
func (r *Replanner) Replan(ctx context.Context, in ReplanInput) (ReplanResult, error) {
	system, err := prompts.Render(prompts.ReplannerSystemID, nil)
	if err != nil {
		return nil, &GenerationError{Role: "replanner", Err: err}
	}
	user, err := prompts.Render(prompts.ReplannerUserID, map[string]string{
		"query":        in.Query,
		"plan":         FormatPlan(in.Plan),
		"history":      FormatHistory(in.History),
		"data_context": in.DataContext.JSON(),
	})
	if err != nil {
		return nil, &GenerationError{Role: "replanner", Err: err}
	}

	callCtx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	raw, err := r.Gen.Generate(callCtx, system, user)
	if err != nil {
		return nil, &GenerationError{Role: "replanner", Err: err}
	}

	res, err := ParseReplan(raw)
	if err != nil {
		return nil, &ReplanParsingError{Raw: raw, Err: err}
	}
	if c, ok := res.(Continue); ok {
		return Continue{NewPlan: PrunePlan(c.NewPlan, in.History)}, nil
	}
	return res, nil
}

// FormatPlan renders a plan one step per line.
func FormatPlan(p Plan) string {
	if len(p) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for i, s := range p {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s", s)
	}
	return b.String()
}

// FormatHistory renders the execution history oldest first.
func FormatHistory(h History) string {
	if len(h) == 0 {
		return "(nothing executed yet)"
	}
	var b strings.Builder
	for i, r := range h {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] step: %s\n", i+1, r.Step)
		fmt.Fprintf(&b, "status: %s (attempts: %d)\n", r.Status, r.Attempts)
		if r.Succeeded() {
			fmt.Fprintf(&b, "result:\n%s", clip(strings.TrimSpace(r.Summary()), historyEntryChars))
			if len(r.Artifacts) > 0 {
				fmt.Fprintf(&b, "\nfiles created: %s", strings.Join(r.Artifacts, ", "))
			}
		} else {
			fmt.Fprintf(&b, "error:\n%s", clip(strings.TrimSpace(r.Error), historyEntryChars))
		}
	}
	return b.String()
}
