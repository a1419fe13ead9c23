package analyst

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/analyst/internal/engine"
	"github.com/ChamsBouzaiene/analyst/internal/prompts"
)

// GenerationRequest is the input of one code generation call.
type GenerationRequest struct {
	Task          string
	DataContext   DataContext
	PreviousError string // error of the previous attempt, empty on the first one
}

// CodeGenerator turns a step description into Python source.
type CodeGenerator struct {
	Gen     engine.Generator
	Timeout time.Duration // per call; zero means no extra deadline
}

// NewCodeGenerator creates a code generator backed by gen.
func NewCodeGenerator(gen engine.Generator, timeout time.Duration) *CodeGenerator {
	return &CodeGenerator{Gen: gen, Timeout: timeout}
}

// Generate asks the model for code and extracts it from the reply. The code
// is not checked for syntax; problems surface when it runs.
func (g *CodeGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	system, user, err := g.messages(req)
	if err != nil {
		return "", &GenerationError{Role: "codegen", Err: err}
	}

	callCtx, cancel := withTimeout(ctx, g.Timeout)
	defer cancel()

	reply, err := g.Gen.Generate(callCtx, system, user)
	if err != nil {
		return "", &GenerationError{Role: "codegen", Err: err}
	}
	code := ExtractCode(reply)
	if code == "" {
		return "", &GenerationError{Role: "codegen", Err: errors.New("reply contained no code")}
	}
	return code, nil
}

func (g *CodeGenerator) messages(req GenerationRequest) (string, string, error) {
	reg := prompts.DefaultRegistry()

	sb, err := prompts.NewPromptBuilder(reg, prompts.CodegenSystemID, prompts.PromptV1)
	if err != nil {
		return "", "", err
	}
	if err := sb.AddPrompt(reg, prompts.ExecutorRulesID, prompts.PromptV1); err != nil {
		return "", "", err
	}
	system, err := sb.Build()
	if err != nil {
		return "", "", err
	}

	ub, err := prompts.NewPromptBuilder(reg, prompts.CodegenUserID, prompts.PromptV1)
	if err != nil {
		return "", "", err
	}
	ub.SetVariable("task", req.Task).SetVariable("data_context", req.DataContext.JSON())
	if strings.TrimSpace(req.PreviousError) != "" {
		if err := ub.AddPrompt(reg, prompts.CodegenRetryID, prompts.PromptV1); err != nil {
			return "", "", err
		}
		ub.SetVariable("previous_error", req.PreviousError).
			SetVariable("fix_hints", FixHints(req.PreviousError))
	}
	user, err := ub.Build()
	if err != nil {
		return "", "", err
	}
	return system, user, nil
}

var fixHintTable = []struct {
	markers []string
	hint    string
}{
	{
		markers: []string{"FileNotFoundError", "No such file or directory"},
		hint:    "- Check that the file exists with os.path.exists before reading it and use the exact file_path from the data context.",
	},
	{
		markers: []string{"KeyError", "not in index", "not found in axis"},
		hint:    "- Print df.columns.tolist() first and only use column names that actually exist. Check membership before accessing a column.",
	},
	{
		markers: []string{"ValueError", "TypeError", "could not convert"},
		hint:    "- Convert types explicitly (pd.to_numeric(..., errors=\"coerce\"), pd.to_datetime(..., errors=\"coerce\")) and drop or fill missing values before computing.",
	},
	{
		markers: []string{"ModuleNotFoundError", "ImportError"},
		hint:    "- Only import pandas, numpy, matplotlib and seaborn.",
	},
	{
		markers: []string{"timed out", "TimeoutError"},
		hint:    "- The script was too slow. Work on aggregates, avoid Python loops over rows and sample large data.",
	},
}

// FixHints returns the targeted instructions for the error classes named in
// errText, or a generic instruction when none is recognised.
func FixHints(errText string) string {
	var hints []string
	for _, h := range fixHintTable {
		for _, m := range h.markers {
			if strings.Contains(errText, m) {
				hints = append(hints, h.hint)
				break
			}
		}
	}
	if len(hints) == 0 {
		return "- Read the traceback, fix its root cause and keep the rest of the script unchanged."
	}
	return strings.Join(hints, "\n")
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
