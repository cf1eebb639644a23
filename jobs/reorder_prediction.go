package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/zimam-erp/zimam-erp/internal/forecast"
	jobmetrics "github.com/zimam-erp/zimam-erp/internal/jobs"
)

// sweepConcurrency bounds how many companies are recomputed in parallel.
const sweepConcurrency = 4

// ForecastService recomputes suggested reorder points for one company.
type ForecastService interface {
	Run(ctx context.Context, companyID int64) ([]forecast.Suggestion, error)
}

// CompanyLister discovers companies to sweep.
type CompanyLister interface {
	ActiveCompanyIDs(ctx context.Context) ([]int64, error)
}

// ReorderPredictionJob runs the reorder point predictor per company.
type ReorderPredictionJob struct {
	Service   ForecastService
	Companies CompanyLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewReorderPredictionJob constructs the job handler.
func NewReorderPredictionJob(service ForecastService, companies CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReorderPredictionJob {
	return &ReorderPredictionJob{Service: service, Companies: companies, Logger: logger, Metrics: metrics}
}

// Handle executes the prediction run.
func (j *ReorderPredictionJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil || j.Companies == nil {
		return errors.New("reorder prediction: dependencies not configured")
	}
	var payload ReorderPredictionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReorderPrediction)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	companyIDs := []int64{payload.CompanyID}
	if payload.CompanyID == 0 {
		var err error
		companyIDs, err = j.Companies.ActiveCompanyIDs(ctx)
		if err != nil {
			resultErr = err
			j.log().Error("list companies", slog.Any("error", err))
			return resultErr
		}
	}

	start := time.Now()
	var products atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, companyID := range companyIDs {
		g.Go(func() error {
			suggestions, err := j.Service.Run(gctx, companyID)
			if err != nil {
				j.log().Error("reorder prediction run",
					slog.Int64("company_id", companyID), slog.Any("error", err))
				return err
			}
			products.Add(int64(len(suggestions)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		resultErr = err
		return resultErr
	}
	j.log().Info("reorder prediction sweep finished",
		slog.Int("companies", len(companyIDs)),
		slog.Int64("products", products.Load()),
		slog.Duration("elapsed", time.Since(start)))
	return resultErr
}

func (j *ReorderPredictionJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *ReorderPredictionJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
