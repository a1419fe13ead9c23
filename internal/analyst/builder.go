package analyst

import (
	"context"
	"fmt"

	"github.com/ChamsBouzaiene/analyst/internal/engine"
)

// Generation roles. Each role gets its own generator so sampling settings
// can differ.
const (
	RolePlanner   = "planner"
	RoleReplanner = "replanner"
	RoleCodegen   = "codegen"
	RoleAnalyzer  = "analyzer"
)

var roleTemperature = map[string]float32{
	RolePlanner:   engine.TemperaturePlanning,
	RoleReplanner: engine.TemperaturePlanning,
	RoleCodegen:   engine.TemperatureCodeGeneration,
	RoleAnalyzer:  engine.TemperatureAnalysis,
}

// OrchestratorBuilder assembles an Orchestrator with a fluent API.
type OrchestratorBuilder struct {
	llm             engine.LLMClient
	model           string
	maxOutputTokens int
	policy          *engine.RetryPolicy
	generators      map[string]engine.Generator
	executor        CodeExecutor
	limits          Limits
	hooks           Hooks
	interpret       bool
	newRunID        func() string
}

// NewOrchestratorBuilder creates a builder with default limits and result
// interpretation enabled.
func NewOrchestratorBuilder() *OrchestratorBuilder {
	return &OrchestratorBuilder{
		limits:     DefaultLimits(),
		interpret:  true,
		generators: make(map[string]engine.Generator),
	}
}

// WithLLM sets the client and model used for every role without an explicit
// generator.
func (b *OrchestratorBuilder) WithLLM(llm engine.LLMClient, model string) *OrchestratorBuilder {
	b.llm = llm
	b.model = model
	return b
}

// WithMaxOutputTokens sets the completion limit of every generation call.
func (b *OrchestratorBuilder) WithMaxOutputTokens(n int) *OrchestratorBuilder {
	b.maxOutputTokens = n
	return b
}

// WithRetryPolicy overrides the transport retry policy.
func (b *OrchestratorBuilder) WithRetryPolicy(p engine.RetryPolicy) *OrchestratorBuilder {
	b.policy = &p
	return b
}

// WithGenerator sets the generator of one role, or of every role when role
// is empty.
func (b *OrchestratorBuilder) WithGenerator(role string, gen engine.Generator) *OrchestratorBuilder {
	if role == "" {
		for r := range roleTemperature {
			b.generators[r] = gen
		}
		return b
	}
	b.generators[role] = gen
	return b
}

// WithExecutor sets the code execution collaborator.
func (b *OrchestratorBuilder) WithExecutor(exec CodeExecutor) *OrchestratorBuilder {
	b.executor = exec
	return b
}

// WithLimits sets the run limits. Zero fields fall back to the defaults.
func (b *OrchestratorBuilder) WithLimits(l Limits) *OrchestratorBuilder {
	b.limits = l
	return b
}

// WithHooks sets the observers.
func (b *OrchestratorBuilder) WithHooks(hooks ...Hook) *OrchestratorBuilder {
	b.hooks = append(Hooks(nil), hooks...)
	return b
}

// WithInterpretation toggles the result interpretation step.
func (b *OrchestratorBuilder) WithInterpretation(enabled bool) *OrchestratorBuilder {
	b.interpret = enabled
	return b
}

// WithRunIDs overrides run ID generation.
func (b *OrchestratorBuilder) WithRunIDs(next func() string) *OrchestratorBuilder {
	b.newRunID = next
	return b
}

// Build validates the configuration and wires the components.
func (b *OrchestratorBuilder) Build() (*Orchestrator, error) {
	if b.executor == nil {
		return nil, fmt.Errorf("code executor not configured: use WithExecutor")
	}

	gens := make(map[string]engine.Generator, len(roleTemperature))
	for role := range roleTemperature {
		if role == RoleAnalyzer && !b.interpret {
			continue
		}
		gen, err := b.generator(role)
		if err != nil {
			return nil, err
		}
		gens[role] = gen
	}

	limits := b.limits.withDefaults()
	hook := Hook(NopHook{})
	if len(b.hooks) > 0 {
		hook = b.hooks
	}

	agent := &ExecutionAgent{
		Codegen:     NewCodeGenerator(gens[RoleCodegen], limits.GenerationTimeout),
		Executor:    b.executor,
		ExecTimeout: limits.ExecutionTimeout,
		Hook:        hook,
	}
	if b.interpret {
		agent.Interpreter = NewInterpreter(gens[RoleAnalyzer], limits.InterpretationTimeout)
	}

	return &Orchestrator{
		Planner:   NewPlanner(gens[RolePlanner], limits.GenerationTimeout),
		Agent:     agent,
		Replanner: NewReplanner(gens[RoleReplanner], limits.GenerationTimeout),
		Limits:    limits,
		Hook:      hook,
		NewRunID:  b.newRunID,
	}, nil
}

func (b *OrchestratorBuilder) generator(role string) (engine.Generator, error) {
	if gen, ok := b.generators[role]; ok && gen != nil {
		return gen, nil
	}
	if b.llm == nil {
		return nil, fmt.Errorf("LLM client not configured for %s: use WithLLM or WithGenerator", role)
	}
	if b.model == "" {
		return nil, fmt.Errorf("model not configured: use WithLLM")
	}

	g := engine.NewChatGenerator(b.llm, b.model, engine.ChatOptions{
		Temperature:     roleTemperature[role],
		MaxOutputTokens: b.maxOutputTokens,
	})
	if b.policy != nil {
		g.Policy = *b.policy
	}
	g.Role = role
	hooks := b.hooks
	g.OnRetry = func(ctx context.Context, role string, ev engine.RetryEvent) {
		hooks.OnGenerationRetry(ctx, role, ev.Attempt, ev.Delay, ev.Err)
	}
	g.OnUsage = func(ctx context.Context, role string, u engine.Usage, estimated bool) {
		hooks.OnTokenUsage(ctx, role, u, estimated)
	}
	return g, nil
}
