package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hoaboard/hoaboard/internal/audit"
)

// AuditRetentionJob trims audit entries beyond the retention window. The
// ledger never deletes audit entries itself; this sweep is the only writer
// allowed to remove them.
type AuditRetentionJob struct {
	store  audit.Store
	logger *slog.Logger
}

// NewAuditRetentionJob constructs the job.
func NewAuditRetentionJob(store audit.Store, logger *slog.Logger) *AuditRetentionJob {
	return &AuditRetentionJob{store: store, logger: logger}
}

// Handle processes TaskAuditRetention tasks.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditRetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		return asynq.SkipRetry
	}
	cutoff := time.Now().UTC().Add(-time.Duration(payload.RetentionHours) * time.Hour)
	removed, err := j.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		j.logger.Info("audit retention sweep", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	}
	return nil
}
