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

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReportsWarmupJob pre-populates the profitability and inventory caches so the
// first dashboard hit of the day is served warm.
type ReportsWarmupJob struct {
	Reports *reports.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportsWarmupJob wires dependencies for the warmup handler.
func NewReportsWarmupJob(reportsSvc *reports.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportsWarmupJob {
	return &ReportsWarmupJob{
		Reports: reportsSvc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	periods := payload.Periods
	if len(periods) == 0 {
		periods = []string{"all", start.Format("2006"), start.Format("2006-01")}
	}

	logger := j.logger().With(slog.Int("periods", len(periods)), slog.Bool("refresh", payload.Refresh))
	logger.Info("starting reports warmup")

	if payload.Refresh {
		if err := j.Reports.InvalidateCache(ctx); err != nil {
			resultErr = err
			logger.Error("invalidate report caches", slog.Any("error", err))
			return resultErr
		}
	}

	warmed := 0
	for _, period := range periods {
		if err := j.warmPeriod(ctx, period); err != nil {
			resultErr = err
			logger.Error("warm period", slog.String("period", period), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	scopeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if _, err := j.Reports.InventorySnapshot(scopeCtx, start); err != nil {
		resultErr = err
		logger.Error("warm inventory snapshot", slog.Any("error", err))
		return resultErr
	}
	if _, err := j.Reports.ReorderAdvice(scopeCtx); err != nil {
		resultErr = err
		logger.Error("warm reorder advice", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed reports warmup", slog.Int("warmed", warmed), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *ReportsWarmupJob) warmPeriod(ctx context.Context, period string) error {
	// Tighten each period with a timeout to avoid long-running jobs.
	scopeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	_, err := j.Reports.PeriodSummary(scopeCtx, period)
	return err
}

func (j *ReportsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportsWarmup))
}

func (j *ReportsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ReportsWarmupJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
