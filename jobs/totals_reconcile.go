package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/hoaboard/hoaboard/internal/ledger"
)

// TotalsReconcileJob recomputes summary totals from ledger documents. The
// view model's totals writeback is fire-and-forget, so a failed write can
// leave the stored summary stale; this job repairs it on a schedule.
type TotalsReconcileJob struct {
	store  ledger.Store
	logger *slog.Logger
}

// NewTotalsReconcileJob constructs the job.
func NewTotalsReconcileJob(store ledger.Store, logger *slog.Logger) *TotalsReconcileJob {
	return &TotalsReconcileJob{store: store, logger: logger}
}

// Handle processes TaskTotalsReconcile tasks.
func (j *TotalsReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload TotalsReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	periods := []string{payload.Period}
	if payload.Period == "" {
		all, err := j.store.ListPeriods(ctx)
		if err != nil {
			return err
		}
		periods = all
	}

	for _, period := range periods {
		doc, err := j.store.ReadPeriod(ctx, period)
		if err != nil {
			j.logger.Warn("reconcile read period", slog.String("period", period), slog.Any("error", err))
			continue
		}
		totals := doc.Record.ComputeTotals()
		if totals.TotalDuesPaid == doc.TotalDuesPaid && totals.TotalFeePaid == doc.TotalFeePaid {
			continue
		}
		if err := j.store.WriteSummary(ctx, period, totals); err != nil {
			j.logger.Warn("reconcile write summary", slog.String("period", period), slog.Any("error", err))
			continue
		}
		j.logger.Info("reconciled period totals",
			slog.String("period", period),
			slog.Float64("dues", totals.TotalDuesPaid),
			slog.Float64("fee", totals.TotalFeePaid))
	}
	return nil
}
