package reports

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/costwise/costwise/internal/costing"
	"github.com/costwise/costwise/internal/ledger"
)

// RepositoryPort exposes the persistence the service relies on. Source
// rows are read in bulk; replay and aggregation happen in process.
type RepositoryPort interface {
	ListPurchaseOrders(ctx context.Context) ([]ledger.PurchaseOrder, error)
	ListSales(ctx context.Context) ([]ledger.SaleRecord, error)
	ListProducts(ctx context.Context) ([]Product, error)
	InsertValuationSnapshot(ctx context.Context, snap ValuationSnapshot) (int64, error)
	ListValuationSnapshots(ctx context.Context, limit int) ([]ValuationSnapshot, error)
}

// Service builds the report read models. Each request loads the source
// rows once, replays the per-product ledgers on a bounded worker pool and
// folds the outputs into cached summaries.
type Service struct {
	repo    RepositoryPort
	cache   *Cache
	logger  *slog.Logger
	workers int
	now     func() time.Time
}

// NewService wires the repository and cache. workers caps the replay
// fan-out; zero or less falls back to GOMAXPROCS.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger, workers int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Service{
		repo:    repo,
		cache:   cache,
		logger:  logger,
		workers: workers,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the service clock for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PeriodSummary returns the profitability summary for a period expression
// ("all", "YYYY" or "YYYY-MM"), serving from cache when warm.
func (s *Service) PeriodSummary(ctx context.Context, period string) (PeriodSummary, error) {
	if period == "" {
		period = "all"
	}
	window, year, err := PeriodWindow(period)
	if err != nil {
		return PeriodSummary{}, err
	}
	key, err := s.cache.BuildKey(ctx, keySummary(period)...)
	if err != nil {
		return PeriodSummary{}, err
	}
	var summary PeriodSummary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
		set, err := s.loadLedgers(ctx)
		if err != nil {
			return nil, err
		}
		return s.summarize(ctx, set, period, window, year)
	})
	return summary, err
}

// InventorySnapshot values the stock on hand at asOf. A zero asOf means
// now. Snapshots cache per calendar day of the cutoff.
func (s *Service) InventorySnapshot(ctx context.Context, asOf time.Time) (InventorySnapshot, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	key, err := s.cache.BuildKey(ctx, keyInventory(asOf)...)
	if err != nil {
		return InventorySnapshot{}, err
	}
	var snap InventorySnapshot
	err = s.cache.FetchJSON(ctx, key, &snap, func(ctx context.Context) (interface{}, error) {
		set, err := s.loadLedgers(ctx)
		if err != nil {
			return nil, err
		}
		return BuildSnapshot(set, asOf), nil
	})
	return snap, err
}

// ReorderAdvice lists active products at or below their reorder
// threshold, judged against current stock.
func (s *Service) ReorderAdvice(ctx context.Context) ([]ReorderSuggestion, error) {
	key, err := s.cache.BuildKey(ctx, keyReorder()...)
	if err != nil {
		return nil, err
	}
	var suggestions []ReorderSuggestion
	err = s.cache.FetchJSON(ctx, key, &suggestions, func(ctx context.Context) (interface{}, error) {
		products, err := s.repo.ListProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("reports: load products: %w", err)
		}
		set, err := s.loadLedgers(ctx)
		if err != nil {
			return nil, err
		}
		return BuildReorderAdvice(set, products, s.now()), nil
	})
	return suggestions, err
}

// Preview computes a summary over caller-supplied orders and sales
// without touching storage or the cache. It exists for what-if runs
// against data that was never ingested.
func (s *Service) Preview(ctx context.Context, orders []ledger.PurchaseOrder, sales []ledger.SaleRecord, period string) (PeriodSummary, error) {
	if period == "" {
		period = "all"
	}
	window, year, err := PeriodWindow(period)
	if err != nil {
		return PeriodSummary{}, err
	}
	set := ledger.BuildLedgers(ledger.Normalize(orders, sales, s.logger))
	return s.summarize(ctx, set, period, window, year)
}

// CaptureValuation persists a valuation snapshot for asOf's calendar day.
// A second capture for the same day returns ErrSnapshotExists.
func (s *Service) CaptureValuation(ctx context.Context, asOf time.Time) (ValuationSnapshot, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	set, err := s.loadLedgers(ctx)
	if err != nil {
		return ValuationSnapshot{}, err
	}
	snap := BuildSnapshot(set, asOf)
	record := ValuationSnapshot{
		Reference:    "VAL-" + uuid.NewString(),
		AsOf:         asOf,
		TotalUnits:   snap.TotalUnits,
		TotalValue:   round2(snap.TotalValue),
		ProductCount: len(snap.Rows),
		CreatedAt:    s.now(),
	}
	id, err := s.repo.InsertValuationSnapshot(ctx, record)
	if err != nil {
		return ValuationSnapshot{}, err
	}
	record.ID = id
	s.logger.Info("valuation snapshot captured",
		slog.String("reference", record.Reference),
		slog.Float64("total_value", record.TotalValue),
		slog.Int("products", record.ProductCount))
	return record, nil
}

// ValuationHistory returns the most recent persisted snapshots.
func (s *Service) ValuationHistory(ctx context.Context, limit int) ([]ValuationSnapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	return s.repo.ListValuationSnapshots(ctx, limit)
}

// InvalidateCache bumps the shared cache version so the next reads
// rebuild from storage.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// loadLedgers pulls every source row in one pass and normalises them into
// per-product ledgers.
func (s *Service) loadLedgers(ctx context.Context) (ledger.LedgerSet, error) {
	orders, err := s.repo.ListPurchaseOrders(ctx)
	if err != nil {
		return ledger.LedgerSet{}, fmt.Errorf("reports: load purchase orders: %w", err)
	}
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return ledger.LedgerSet{}, fmt.Errorf("reports: load sales: %w", err)
	}
	return ledger.BuildLedgers(ledger.Normalize(orders, sales, s.logger)), nil
}

// summarize replays every ledger on the worker pool and folds the sale
// outputs in ledger order, so results do not depend on goroutine timing.
func (s *Service) summarize(ctx context.Context, set ledger.LedgerSet, period string, window Window, year int) (PeriodSummary, error) {
	fallbacks := costing.FallbackCosts(set, window.End)

	results := make([][]costing.SaleOutput, len(set.Products))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range set.Products {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outputs, _ := costing.Replay(set.Events[id], fallbacks[id])
			results[i] = outputs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PeriodSummary{}, err
	}

	agg := NewAggregator(window, year)
	for i, id := range set.Products {
		info := set.Info[id]
		for _, out := range results[i] {
			agg.Add(out, info)
		}
	}
	return agg.Summary(period), nil
}
