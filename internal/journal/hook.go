package journal

import (
	"context"
	"log/slog"

	"github.com/ChamsBouzaiene/analyst/internal/analyst"
)

// Hook writes a run to the journal as it progresses. Write failures are
// logged and never affect the run.
type Hook struct {
	analyst.NopHook
	Store  *Store
	Index  *ReportIndex // optional
	Logger *slog.Logger
}

var _ analyst.Hook = (*Hook)(nil)

func (h *Hook) OnRunStart(ctx context.Context, st *analyst.State) {
	err := h.Store.CreateRun(detach(ctx), Run{
		ID:          st.RunID,
		Query:       st.Query,
		DataContext: st.DataContext.JSON(),
		Status:      st.Status,
		StartedAt:   st.StartedAt,
	})
	h.report(err, st.RunID)
}

func (h *Hook) OnStatusChange(ctx context.Context, st *analyst.State, _, to analyst.Status) {
	if to.Terminal() {
		return
	}
	h.report(h.Store.UpdateStatus(detach(ctx), st.RunID, to), st.RunID)
}

func (h *Hook) OnStepDone(ctx context.Context, st *analyst.State, rec analyst.ExecutionRecord) {
	err := h.Store.AppendRecord(detach(ctx), Record{
		RunID:     st.RunID,
		Seq:       len(st.History),
		Step:      string(rec.Step),
		Status:    rec.Status,
		Attempts:  rec.Attempts,
		Output:    rec.Output,
		Report:    rec.Report,
		Error:     rec.Error,
		Code:      rec.Code,
		Artifacts: rec.Artifacts,
		Reused:    rec.Reused,
		TimedOut:  rec.TimedOut,
		Duration:  rec.Duration,
	})
	h.report(err, st.RunID)
}

func (h *Hook) OnDone(ctx context.Context, st *analyst.State) {
	h.finish(ctx, st, nil)
}

func (h *Hook) OnFailed(ctx context.Context, st *analyst.State, err error) {
	h.finish(ctx, st, err)
}

func (h *Hook) finish(ctx context.Context, st *analyst.State, runErr error) {
	r := Run{
		ID:             st.RunID,
		Query:          st.Query,
		DataContext:    st.DataContext.JSON(),
		Status:         st.Status,
		FinalResponse:  st.FinalResponse,
		FailureSummary: st.FailureSummary,
		FinishedAt:     st.FinishedAt,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	h.report(h.Store.FinishRun(detach(ctx), r), st.RunID)

	if h.Index == nil {
		return
	}
	body := st.FinalResponse
	if body == "" {
		body = st.FailureSummary
	}
	err := h.Index.Index(ReportDoc{
		RunID:         st.RunID,
		Query:         st.Query,
		FinalResponse: body,
		Status:        string(st.Status),
		FinishedAt:    st.FinishedAt,
	})
	h.report(err, st.RunID)
}

func (h *Hook) report(err error, runID string) {
	if err == nil {
		return
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("journal write failed", "run", runID, "error", err)
}

// detach keeps journal writes going after the run's context is cancelled;
// a cancelled run still gets its failure recorded.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
