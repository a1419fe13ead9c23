package analyst

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ChamsBouzaiene/analyst/internal/engine"
)

// MetricsHook exports run, step and retry counters to Prometheus.
type MetricsHook struct {
	NopHook

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	steps         *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	execDuration  prometheus.Histogram
	replanRounds  prometheus.Histogram
	replanResults *prometheus.CounterVec
	genRetries    *prometheus.CounterVec
	tokens        *prometheus.CounterVec
	interpErrors  prometheus.Counter
}

// NewMetricsHook registers the analyst metrics with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetricsHook(reg prometheus.Registerer) *MetricsHook {
	f := promauto.With(reg)
	return &MetricsHook{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_runs_total",
			Help: "Finished runs by final status",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyst_run_duration_seconds",
			Help:    "Wall time of a run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_steps_total",
			Help: "Executed plan steps by outcome",
		}, []string{"outcome"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_step_attempts_total",
			Help: "Generate-and-execute attempts by result",
		}, []string{"result"}),
		execDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyst_execution_duration_seconds",
			Help:    "Duration of one code execution",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		replanRounds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyst_replan_rounds",
			Help:    "Replanning rounds per finished run",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		replanResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_replan_results_total",
			Help: "Replanner calls by result",
		}, []string{"result"}),
		genRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_generation_retries_total",
			Help: "Transport-level generation retries by role",
		}, []string{"role"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_llm_tokens_total",
			Help: "Model tokens by role and kind (prompt, completion)",
		}, []string{"role", "kind"}),
		interpErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "analyst_interpretation_errors_total",
			Help: "Failed result interpretations",
		}),
	}
}

func (m *MetricsHook) OnAttempt(_ context.Context, _ Step, _ int, out ExecutionOutcome, genErr error) {
	switch {
	case genErr != nil:
		m.attempts.WithLabelValues("generation_error").Inc()
		return
	case out.Success:
		m.attempts.WithLabelValues("success").Inc()
	case out.TimedOut:
		m.attempts.WithLabelValues("timeout").Inc()
	default:
		m.attempts.WithLabelValues("failure").Inc()
	}
	m.execDuration.Observe(out.Duration.Seconds())
}

func (m *MetricsHook) OnStepDone(_ context.Context, _ *State, rec ExecutionRecord) {
	outcome := string(rec.Status)
	if rec.Reused {
		outcome = "reused"
	}
	m.steps.WithLabelValues(outcome).Inc()
}

func (m *MetricsHook) OnReplan(_ context.Context, _ *State, res ReplanResult, err error) {
	if err != nil {
		m.replanResults.WithLabelValues("error").Inc()
		return
	}
	m.replanResults.WithLabelValues(res.Kind()).Inc()
}

func (m *MetricsHook) OnInterpretationError(context.Context, Step, error) {
	m.interpErrors.Inc()
}

func (m *MetricsHook) OnGenerationRetry(_ context.Context, role string, _ int, _ time.Duration, _ error) {
	m.genRetries.WithLabelValues(role).Inc()
}

func (m *MetricsHook) OnTokenUsage(_ context.Context, role string, u engine.Usage, _ bool) {
	m.tokens.WithLabelValues(role, "prompt").Add(float64(u.Prompt))
	m.tokens.WithLabelValues(role, "completion").Add(float64(u.Completion))
}

func (m *MetricsHook) OnDone(_ context.Context, st *State) { m.finish(st) }

func (m *MetricsHook) OnFailed(_ context.Context, st *State, _ error) { m.finish(st) }

func (m *MetricsHook) finish(st *State) {
	m.runs.WithLabelValues(string(st.Status)).Inc()
	m.replanRounds.Observe(float64(st.ReplanRounds))
	end := st.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	m.runDuration.Observe(end.Sub(st.StartedAt).Seconds())
}
