package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/costwise/costwise/internal/reports"
)

type stubValuation struct {
	snap  reports.ValuationSnapshot
	err   error
	calls int
	asOf  time.Time
}

func (s *stubValuation) CaptureValuation(ctx context.Context, asOf time.Time) (reports.ValuationSnapshot, error) {
	s.calls++
	s.asOf = asOf
	return s.snap, s.err
}

func TestValuationSnapshotForwardsCutoff(t *testing.T) {
	stub := &stubValuation{snap: reports.ValuationSnapshot{ID: 7, Reference: "VAL-test", TotalValue: 30}}
	job := NewValuationSnapshotJob(stub, testLogger(), testMetrics())

	asOf := time.Date(2024, 6, 1, 23, 59, 59, 0, time.UTC)
	task, err := NewValuationSnapshotTask(ValuationSnapshotPayload{AsOf: asOf.Format(time.RFC3339Nano)})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("expected one capture, got %d", stub.calls)
	}
	if !stub.asOf.Equal(asOf) {
		t.Fatalf("expected cutoff %v, got %v", asOf, stub.asOf)
	}
}

func TestValuationSnapshotDefaultsToNow(t *testing.T) {
	stub := &stubValuation{}
	job := NewValuationSnapshotJob(stub, testLogger(), testMetrics())
	now := time.Date(2024, 6, 15, 2, 0, 0, 0, time.UTC)
	job.WithClock(func() time.Time { return now })

	task, err := NewValuationSnapshotTask(ValuationSnapshotPayload{})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !stub.asOf.Equal(now) {
		t.Fatalf("expected clock cutoff %v, got %v", now, stub.asOf)
	}
}

func TestValuationSnapshotTreatsDuplicateAsDone(t *testing.T) {
	stub := &stubValuation{err: reports.ErrSnapshotExists}
	job := NewValuationSnapshotJob(stub, testLogger(), testMetrics())

	task, err := NewValuationSnapshotTask(ValuationSnapshotPayload{})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("expected duplicate capture to succeed, got %v", err)
	}
}

func TestValuationSnapshotPropagatesFailure(t *testing.T) {
	wantErr := errors.New("pool exhausted")
	stub := &stubValuation{err: wantErr}
	job := NewValuationSnapshotJob(stub, testLogger(), testMetrics())

	task, err := NewValuationSnapshotTask(ValuationSnapshotPayload{})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); !errors.Is(err, wantErr) {
		t.Fatalf("expected capture error, got %v", err)
	}
}

func TestValuationSnapshotSkipsRetryOnBadCutoff(t *testing.T) {
	stub := &stubValuation{}
	job := NewValuationSnapshotJob(stub, testLogger(), testMetrics())

	task, err := NewValuationSnapshotTask(ValuationSnapshotPayload{AsOf: "yesterday"})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if stub.calls != 0 {
		t.Fatalf("expected no capture for bad payload, got %d", stub.calls)
	}
}
