package analyst

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxStepAttempts is the hard ceiling on generate-and-execute attempts for
// one step. It does not depend on anything the model is told.
const MaxStepAttempts = 3

// CodeExecutor runs generated code. Implementations must be synchronous and
// must report crashes as a failed outcome instead of panicking.
type CodeExecutor interface {
	Execute(ctx context.Context, code string) ExecutionOutcome
}

// CodeExecutorFunc adapts a function to CodeExecutor.
type CodeExecutorFunc func(ctx context.Context, code string) ExecutionOutcome

func (f CodeExecutorFunc) Execute(ctx context.Context, code string) ExecutionOutcome {
	return f(ctx, code)
}

// ExecutionAgent carries out exactly one plan step: generate code, run it,
// feed the error back on failure, and interpret the output on success.
type ExecutionAgent struct {
	Codegen  *CodeGenerator
	Executor CodeExecutor
	// Interpreter is optional. Without it records carry the raw output only.
	Interpreter *Interpreter
	ExecTimeout time.Duration
	Hook        Hook
}

// Execute runs step and returns its record. It never returns a success
// record for code that did not run successfully.
func (a *ExecutionAgent) Execute(ctx context.Context, step Step, history History, dc DataContext) ExecutionRecord {
	hook := a.hook()
	fp := dc.Fingerprint()

	if step.IsPlaceholder() {
		return ExecutionRecord{
			Step:               step,
			Status:             RecordFailure,
			Error:              "placeholder step is not executable",
			ContextFingerprint: fp,
		}
	}

	if prev, ok := history.successFor(step, fp); ok {
		rec := prev.clone()
		rec.Reused = true
		rec.Attempts = 0
		rec.Duration = 0
		return rec
	}

	start := time.Now()
	rec := ExecutionRecord{Step: step, Status: RecordFailure, ContextFingerprint: fp}
	var lastErr string

	for attempt := 1; attempt <= MaxStepAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == "" {
				lastErr = err.Error()
			}
			break
		}
		rec.Attempts = attempt

		code, err := a.Codegen.Generate(ctx, GenerationRequest{
			Task:          string(step),
			DataContext:   dc,
			PreviousError: lastErr,
		})
		if err != nil {
			lastErr = err.Error()
			hook.OnAttempt(ctx, step, attempt, ExecutionOutcome{}, err)
			continue
		}
		rec.Code = code

		out := a.run(ctx, code)
		hook.OnAttempt(ctx, step, attempt, out, nil)
		rec.Output = out.Stdout
		rec.Artifacts = append([]string(nil), out.Artifacts...)
		rec.TimedOut = out.TimedOut

		if out.Success {
			rec.Status = RecordSuccess
			rec.Error = ""
			rec.Report = a.interpret(ctx, step, out.Stdout, dc)
			rec.Duration = time.Since(start)
			return rec
		}
		lastErr = out.Error
	}

	rec.Error = lastErr
	rec.Duration = time.Since(start)
	return rec
}

// run executes code under the execution timeout. A timeout or a panic in the
// executor becomes an ordinary failed outcome.
func (a *ExecutionAgent) run(ctx context.Context, code string) (out ExecutionOutcome) {
	callCtx, cancel := withTimeout(ctx, a.ExecTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = ExecutionOutcome{Error: fmt.Sprintf("executor crashed: %v", r), ExitCode: -1}
		}
		if out.Duration == 0 {
			out.Duration = time.Since(start)
		}
		if !out.Success && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			out.TimedOut = true
			msg := fmt.Sprintf("execution timed out after %s", a.ExecTimeout)
			if out.Error != "" {
				msg += ": " + out.Error
			}
			out.Error = msg
		}
		if !out.Success && out.Error == "" {
			out.Error = fmt.Sprintf("exit status %d", out.ExitCode)
		}
	}()

	return a.Executor.Execute(callCtx, code)
}

func (a *ExecutionAgent) interpret(ctx context.Context, step Step, output string, dc DataContext) string {
	if a.Interpreter == nil {
		return ""
	}
	report, err := a.Interpreter.Interpret(ctx, string(step), output, dc)
	if err != nil {
		a.hook().OnInterpretationError(ctx, step, err)
		return ""
	}
	return report
}

func (a *ExecutionAgent) hook() Hook {
	if a.Hook == nil {
		return NopHook{}
	}
	return a.Hook
}
