package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/zimam-erp/zimam-erp/internal/inventory"
	jobmetrics "github.com/zimam-erp/zimam-erp/internal/jobs"
)

// ReconcileService replays a product's transaction log against head state.
type ReconcileService interface {
	Reconcile(ctx context.Context, companyID, productID int64, repair bool) (inventory.ReconcileReport, error)
}

// ProductLister discovers products to sweep.
type ProductLister interface {
	ActiveCompanyIDs(ctx context.Context) ([]int64, error)
	ActiveProductIDs(ctx context.Context, companyID int64) ([]int64, error)
}

// LedgerReconcileJob sweeps products for drift between the materialised
// product row and the transaction log, which catches out-of-band writes.
type LedgerReconcileJob struct {
	Service ReconcileService
	Repo    ProductLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerReconcileJob constructs the job handler.
func NewLedgerReconcileJob(service ReconcileService, repo ProductLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerReconcileJob {
	return &LedgerReconcileJob{Service: service, Repo: repo, Logger: logger, Metrics: metrics}
}

// Handle executes the drift sweep.
func (j *LedgerReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil || j.Repo == nil {
		return errors.New("ledger reconcile: dependencies not configured")
	}
	var payload LedgerReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	companyIDs := []int64{payload.CompanyID}
	if payload.CompanyID == 0 {
		var err error
		companyIDs, err = j.Repo.ActiveCompanyIDs(ctx)
		if err != nil {
			resultErr = err
			return resultErr
		}
	}

	start := time.Now()
	checked, drifted := 0, 0
	for _, companyID := range companyIDs {
		productIDs, err := j.Repo.ActiveProductIDs(ctx, companyID)
		if err != nil {
			resultErr = err
			return resultErr
		}
		for _, productID := range productIDs {
			report, err := j.Service.Reconcile(ctx, companyID, productID, payload.Repair)
			if err != nil {
				resultErr = err
				j.log().Error("reconcile product",
					slog.Int64("company_id", companyID),
					slog.Int64("product_id", productID),
					slog.Any("error", err))
				return resultErr
			}
			checked++
			if report.Drift() {
				drifted++
				j.log().Warn("ledger drift detected",
					slog.Int64("company_id", companyID),
					slog.Int64("product_id", productID),
					slog.String("stored_stock", report.StoredStock.String()),
					slog.String("replayed_stock", report.ReplayedStock.String()),
					slog.Bool("repaired", report.Repaired))
			}
		}
	}
	j.log().Info("ledger reconcile sweep finished",
		slog.Int("checked", checked),
		slog.Int("drifted", drifted),
		slog.Duration("elapsed", time.Since(start)))
	return resultErr
}

func (j *LedgerReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *LedgerReconcileJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
