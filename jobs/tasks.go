package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTotalsReconcile recomputes a period's summary totals from its
	// ledger document, correcting any lost fire-and-forget writeback.
	TaskTotalsReconcile = "dues:totals_reconcile"
	// TaskAuditRetention trims audit entries older than the configured
	// retention window.
	TaskAuditRetention = "dues:audit_retention"
)

// TotalsReconcilePayload selects which periods to reconcile. An empty Period
// means every known period.
type TotalsReconcilePayload struct {
	Period string `json:"period"`
}

// NewTotalsReconcileTask constructs an Asynq task.
func NewTotalsReconcileTask(period string) (*asynq.Task, error) {
	data, err := json.Marshal(TotalsReconcilePayload{Period: period})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTotalsReconcile, data), nil
}

// AuditRetentionPayload carries the retention window in hours.
type AuditRetentionPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewAuditRetentionTask constructs an Asynq task.
func NewAuditRetentionTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(AuditRetentionPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data), nil
}
