package analyst

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ChamsBouzaiene/analyst/internal/engine"
	"github.com/ChamsBouzaiene/analyst/internal/prompts"
)

// DefaultMaxOutputChars caps how much execution output is sent for analysis.
const DefaultMaxOutputChars = 8000

// Interpreter produces a readable report from raw execution output. It has
// no side effects; calling it twice with the same inputs and a
// deterministic generator gives the same report.
type Interpreter struct {
	Gen            engine.Generator
	Timeout        time.Duration
	MaxOutputChars int
}

// NewInterpreter creates an interpreter with the default output cap.
func NewInterpreter(gen engine.Generator, timeout time.Duration) *Interpreter {
	return &Interpreter{Gen: gen, Timeout: timeout, MaxOutputChars: DefaultMaxOutputChars}
}

// Interpret returns the report for task given its execution output. Every
// failure is an *InterpretationError.
func (in *Interpreter) Interpret(ctx context.Context, task, output string, dc DataContext) (string, error) {
	system, err := prompts.Render(prompts.AnalyzerSystemID, nil)
	if err != nil {
		return "", &InterpretationError{Err: err}
	}
	user, err := prompts.Render(prompts.AnalyzerUserID, map[string]string{
		"task":         task,
		"output":       clip(output, in.MaxOutputChars),
		"data_context": dc.JSON(),
	})
	if err != nil {
		return "", &InterpretationError{Err: err}
	}

	callCtx, cancel := withTimeout(ctx, in.Timeout)
	defer cancel()

	report, err := in.Gen.Generate(callCtx, system, user)
	if err != nil {
		return "", &InterpretationError{Err: &GenerationError{Role: "analyzer", Err: err}}
	}
	if report == "" {
		return "", &InterpretationError{Err: errors.New("empty report")}
	}
	return report, nil
}

func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	head := runePrefix(s, max)
	return head + fmt.Sprintf("\n... [%d characters truncated]", utf8.RuneCountInString(s[len(head):]))
}

// runePrefix returns the longest prefix of s that is at most n bytes and
// does not split a UTF-8 sequence.
func runePrefix(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
