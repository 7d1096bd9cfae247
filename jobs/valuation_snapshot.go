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

// ValuationService describes the behaviour required to persist a valuation.
type ValuationService interface {
	CaptureValuation(ctx context.Context, asOf time.Time) (reports.ValuationSnapshot, error)
}

// ValuationSnapshotJob records the daily inventory valuation.
type ValuationSnapshotJob struct {
	Service ValuationService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewValuationSnapshotJob constructs the job handler.
func NewValuationSnapshotJob(service ValuationService, logger *slog.Logger, metrics *jobmetrics.Metrics) *ValuationSnapshotJob {
	return &ValuationSnapshotJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the valuation capture.
func (j *ValuationSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("valuation snapshot: handler not configured")
	}
	var payload ValuationSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := j.now()
	if payload.AsOf != "" {
		parsed, err := time.Parse(time.RFC3339Nano, payload.AsOf)
		if err != nil {
			return asynq.SkipRetry
		}
		asOf = parsed.UTC()
	}

	tracker := j.metrics().Track(TaskValuationSnapshot)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	logger := j.logger().With(slog.Time("as_of", asOf))
	if payload.RequestID != "" {
		logger = logger.With(slog.String("request_id", payload.RequestID))
	}
	logger.Info("starting valuation snapshot")

	snap, err := j.Service.CaptureValuation(ctx, asOf)
	if err != nil {
		if errors.Is(err, reports.ErrSnapshotExists) {
			// The cron and a manual capture can race; only one record per day.
			logger.Info("valuation snapshot already captured")
			return resultErr
		}
		resultErr = err
		logger.Error("capture valuation", slog.Any("error", err))
		return resultErr
	}

	logger.Info("captured valuation snapshot",
		slog.Int64("snapshot_id", snap.ID),
		slog.String("reference", snap.Reference),
		slog.Float64("total_value", snap.TotalValue),
		slog.Int("products", snap.ProductCount),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *ValuationSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskValuationSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskValuationSnapshot))
}

func (j *ValuationSnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ValuationSnapshotJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ValuationSnapshotJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
