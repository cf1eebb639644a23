package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReorderPrediction recomputes suggested reorder points.
	TaskReorderPrediction = "forecast:reorder_prediction"
	// TaskLedgerReconcile sweeps products for drift between head state and
	// the transaction log.
	TaskLedgerReconcile = "inventory:ledger_reconcile"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// ReorderPredictionPayload scopes the prediction run. CompanyID zero means
// every active company.
type ReorderPredictionPayload struct {
	CompanyID    int64     `json:"company_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReorderPredictionTask constructs an Asynq task for reorder prediction.
func NewReorderPredictionTask(companyID int64, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReorderPredictionPayload{CompanyID: companyID, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderPrediction, body, asynq.Queue(QueueDefault)), nil
}

// LedgerReconcilePayload scopes the drift sweep.
type LedgerReconcilePayload struct {
	CompanyID int64 `json:"company_id"`
	// Repair rewrites drifted head state from the log instead of only
	// reporting it.
	Repair bool `json:"repair"`
}

// NewLedgerReconcileTask constructs an Asynq task for the drift sweep.
func NewLedgerReconcileTask(companyID int64, repair bool) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerReconcilePayload{CompanyID: companyID, Repair: repair})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
