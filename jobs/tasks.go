package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportsWarmup pre-builds the report caches ahead of business hours.
	TaskReportsWarmup = "reports:warmup"
	// TaskValuationSnapshot captures the daily inventory valuation record.
	TaskValuationSnapshot = "valuation:snapshot"
	// TaskReorderScan inspects stock levels and flags products below threshold.
	TaskReorderScan = "replen:scan"
)

// ReportsWarmupPayload configures which report periods get warmed.
type ReportsWarmupPayload struct {
	Periods []string `json:"periods,omitempty"`
	Refresh bool     `json:"refresh,omitempty"`
}

// NewReportsWarmupTask constructs an Asynq task for report cache warmup.
func NewReportsWarmupTask(payload ReportsWarmupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, body, asynq.Queue(QueueDefault)), nil
}

// ValuationSnapshotPayload carries the cutoff for a valuation capture. An
// empty AsOf means the handler values stock at execution time.
type ValuationSnapshotPayload struct {
	AsOf      string `json:"as_of,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// NewValuationSnapshotTask constructs an Asynq task for capturing a valuation.
func NewValuationSnapshotTask(payload ValuationSnapshotPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskValuationSnapshot, body, asynq.Queue(QueueDefault)), nil
}

// ReorderScanPayload carries scheduling metadata for the replenishment scan.
type ReorderScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReorderScanTask constructs an Asynq task for the replenishment scan.
func NewReorderScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReorderScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderScan, body, asynq.Queue(QueueDefault)), nil
}
