package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/costwise/costwise/internal/jobs"
	"github.com/costwise/costwise/internal/reports"
)

// ReplenishmentService describes the behaviour required to compute reorder advice.
type ReplenishmentService interface {
	ReorderAdvice(ctx context.Context) ([]reports.ReorderSuggestion, error)
}

// ReorderScanJob inspects stock levels and surfaces products that need restocking.
type ReorderScanJob struct {
	Service ReplenishmentService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReorderScanJob initialises the replenishment scan handler.
func NewReorderScanJob(service ReplenishmentService, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReorderScanJob {
	return &ReorderScanJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the replenishment scan.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReorderScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	logger := j.logger()
	logger.Info("starting reorder scan")

	suggestions, err := j.Service.ReorderAdvice(ctx)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	byStatus := make(map[string]int)
	for _, s := range suggestions {
		logger.Warn("product below reorder threshold",
			slog.Int64("product_id", s.ProductID),
			slog.String("name", s.Name),
			slog.String("status", s.Status),
			slog.Float64("on_hand", s.OnHand),
			slog.Float64("suggested_qty", s.SuggestedQty),
		)
		byStatus[s.Status]++
	}
	for status, count := range byStatus {
		j.metrics().AddReorderFlagged(status, count)
	}

	logger.Info("completed reorder scan",
		slog.Int("flagged", len(suggestions)),
		slog.Int("out_of_stock", byStatus[reports.ReorderStatusOut]),
		slog.Int("low_stock", byStatus[reports.ReorderStatusLow]),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *ReorderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReorderScan))
	}
	return slog.Default().With(slog.String("job", TaskReorderScan))
}

func (j *ReorderScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReorderScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ReorderScanJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
