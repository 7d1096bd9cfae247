package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/costwise/costwise/internal/jobs"
	"github.com/costwise/costwise/internal/ledger"
	"github.com/costwise/costwise/internal/reports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

// warmRepo serves a one-product catalog and counts reads so tests can tell
// cache hits from rebuilds.
type warmRepo struct {
	orderCalls int
}

func (r *warmRepo) ListPurchaseOrders(ctx context.Context) ([]ledger.PurchaseOrder, error) {
	r.orderCalls++
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	return []ledger.PurchaseOrder{{
		ID:           1,
		PurchaseDate: &date,
		Lines:        []ledger.PurchaseOrderLine{{ProductID: 1, Quantity: 10, UnitCost: 2, ProductName: "Mug", CategoryName: "Kitchen"}},
	}}, nil
}

func (r *warmRepo) ListSales(ctx context.Context) ([]ledger.SaleRecord, error) {
	date := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	return []ledger.SaleRecord{{
		ID:       10,
		SaleDate: &date,
		Lines:    []ledger.SaleLine{{ProductID: 1, Quantity: 4, UnitPrice: 10}},
	}}, nil
}

func (r *warmRepo) ListProducts(ctx context.Context) ([]reports.Product, error) {
	return []reports.Product{{ID: 1, Name: "Mug", Category: "Kitchen", ReorderThreshold: 2, RestockTarget: 20, Active: true}}, nil
}

func (r *warmRepo) InsertValuationSnapshot(ctx context.Context, snap reports.ValuationSnapshot) (int64, error) {
	return 1, nil
}

func (r *warmRepo) ListValuationSnapshots(ctx context.Context, limit int) ([]reports.ValuationSnapshot, error) {
	return nil, nil
}

func newWarmupHarness(t *testing.T) (*ReportsWarmupJob, *warmRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &warmRepo{}
	svc := reports.NewService(repo, reports.NewCache(client, time.Minute), testLogger(), 2)
	svc.WithNow(func() time.Time { return time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC) })

	job := NewReportsWarmupJob(svc, testLogger(), testMetrics())
	job.WithClock(func() time.Time { return time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC) })
	return job, repo
}

func TestReportsWarmupBuildsDefaultPeriods(t *testing.T) {
	job, repo := newWarmupHarness(t)

	task, err := NewReportsWarmupTask(ReportsWarmupPayload{})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// all, 2024, 2024-06, inventory snapshot and reorder advice each miss once.
	if repo.orderCalls != 5 {
		t.Fatalf("expected 5 rebuilds, got %d", repo.orderCalls)
	}

	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if repo.orderCalls != 5 {
		t.Fatalf("expected warm caches on second run, got %d rebuilds", repo.orderCalls)
	}
}

func TestReportsWarmupRefreshBustsCaches(t *testing.T) {
	job, repo := newWarmupHarness(t)

	task, err := NewReportsWarmupTask(ReportsWarmupPayload{Periods: []string{"2024"}})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	before := repo.orderCalls

	refresh, err := NewReportsWarmupTask(ReportsWarmupPayload{Periods: []string{"2024"}, Refresh: true})
	if err != nil {
		t.Fatalf("build refresh task: %v", err)
	}
	if err := job.Handle(context.Background(), refresh); err != nil {
		t.Fatalf("refresh handle: %v", err)
	}
	if repo.orderCalls <= before {
		t.Fatalf("expected refresh to rebuild, calls stayed at %d", repo.orderCalls)
	}
}

func TestReportsWarmupSkipsRetryOnBadPayload(t *testing.T) {
	job, _ := newWarmupHarness(t)

	task := asynq.NewTask(TaskReportsWarmup, []byte("{"))
	if err := job.Handle(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
