package analyst

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/analyst/internal/engine"
)

type genCall struct {
	System string
	User   string
}

// scriptedGenerator replays replies in order and records every call. Once
// the script is exhausted it returns Default, or an error when Default is empty.
type scriptedGenerator struct {
	mu      sync.Mutex
	Replies []string
	Errs    []error
	Default string
	Calls   []genCall
}

func script(replies ...string) *scriptedGenerator {
	return &scriptedGenerator{Replies: replies}
}

func (g *scriptedGenerator) Generate(_ context.Context, system, user string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := len(g.Calls)
	g.Calls = append(g.Calls, genCall{System: system, User: user})
	if i < len(g.Errs) && g.Errs[i] != nil {
		return "", g.Errs[i]
	}
	if i < len(g.Replies) {
		return g.Replies[i], nil
	}
	if g.Default != "" {
		return g.Default, nil
	}
	return "", errors.New("scripted generator exhausted")
}

func (g *scriptedGenerator) calls() []genCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]genCall(nil), g.Calls...)
}

// stubExecutor returns scripted outcomes and records the code it was given.
type stubExecutor struct {
	mu       sync.Mutex
	Outcomes []ExecutionOutcome
	Default  *ExecutionOutcome
	Codes    []string
}

func (e *stubExecutor) Execute(_ context.Context, code string) ExecutionOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := len(e.Codes)
	e.Codes = append(e.Codes, code)
	if i < len(e.Outcomes) {
		return e.Outcomes[i]
	}
	if e.Default != nil {
		return *e.Default
	}
	return ExecutionOutcome{Error: "stub executor exhausted", ExitCode: 1}
}

func (e *stubExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Codes)
}

func ok(stdout string) ExecutionOutcome {
	return ExecutionOutcome{Success: true, Stdout: stdout}
}

func failed(errText string) ExecutionOutcome {
	return ExecutionOutcome{Error: errText, ExitCode: 1}
}

const pyReply = "```python\nprint('ok')\n```"

// recordingHook keeps the events the tests assert on.
type recordingHook struct {
	NopHook
	mu          sync.Mutex
	transitions [][2]Status
	replans     []ReplanResult
	attempts    []int
	interpErrs  int
	updatedKeys [][]string
	retries     []string // role/run of every generation retry
	usage       []string // role/run of every token usage report
}

func (h *recordingHook) OnStatusChange(_ context.Context, _ *State, from, to Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, [2]Status{from, to})
}

func (h *recordingHook) OnReplan(_ context.Context, _ *State, res ReplanResult, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		h.replans = append(h.replans, res)
	}
}

func (h *recordingHook) OnAttempt(_ context.Context, _ Step, attempt int, _ ExecutionOutcome, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = append(h.attempts, attempt)
}

func (h *recordingHook) OnInterpretationError(context.Context, Step, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interpErrs++
}

func (h *recordingHook) OnDataContextUpdated(_ context.Context, _ *State, keys []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updatedKeys = append(h.updatedKeys, keys)
}

func (h *recordingHook) OnGenerationRetry(ctx context.Context, role string, _ int, _ time.Duration, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retries = append(h.retries, role+"/"+RunIDFrom(ctx))
}

func (h *recordingHook) OnTokenUsage(ctx context.Context, role string, _ engine.Usage, _ bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.usage = append(h.usage, role+"/"+RunIDFrom(ctx))
}
