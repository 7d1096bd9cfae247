// Package reporthttp exposes the reporting read models over a JSON API.
package reporthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/costwise/costwise/internal/ledger"
	"github.com/costwise/costwise/internal/platform/httpx"
	"github.com/costwise/costwise/internal/reports"
	"github.com/costwise/costwise/internal/reports/export"
)

var periodRegex = regexp.MustCompile(`^(all|\d{4}|\d{4}-\d{2})$`)

const requestTimeout = 10 * time.Second

// ReportService defines the read model contract used by the handler.
type ReportService interface {
	PeriodSummary(ctx context.Context, period string) (reports.PeriodSummary, error)
	InventorySnapshot(ctx context.Context, asOf time.Time) (reports.InventorySnapshot, error)
	ReorderAdvice(ctx context.Context) ([]reports.ReorderSuggestion, error)
	Preview(ctx context.Context, orders []ledger.PurchaseOrder, sales []ledger.SaleRecord, period string) (reports.PeriodSummary, error)
	ValuationHistory(ctx context.Context, limit int) ([]reports.ValuationSnapshot, error)
}

// SnapshotEnqueuer hands valuation capture requests to the job queue.
type SnapshotEnqueuer interface {
	EnqueueValuationSnapshot(ctx context.Context, asOf time.Time, requestID string) (string, error)
}

// Handler coordinates HTTP requests for costing reports.
type Handler struct {
	logger    *slog.Logger
	service   ReportService
	enqueuer  SnapshotEnqueuer
	validator *validator.Validate
	csvPool   sync.Pool
	now       func() time.Time
}

// NewHandler constructs the reports HTTP handler.
func NewHandler(logger *slog.Logger, service ReportService, enqueuer SnapshotEnqueuer) *Handler {
	h := &Handler{
		logger:    logger,
		service:   service,
		enqueuer:  enqueuer,
		validator: validator.New(),
		now:       time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	period, err := h.parsePeriod(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	value, err, _ := singleflightBuild(ctx, "summary:"+period, func(ctx context.Context) (interface{}, error) {
		return h.service.PeriodSummary(ctx, period)
	})
	if err != nil {
		h.respondError(w, "build summary", err)
		return
	}
	summary := value.(reports.PeriodSummary)
	httpx.JSON(w, http.StatusOK, summary.Rounded())
}

func (h *Handler) handleSummaryCSV(w http.ResponseWriter, r *http.Request) {
	period, err := h.parsePeriod(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := h.service.PeriodSummary(ctx, period)
	if err != nil {
		h.respondError(w, "build summary", err)
		return
	}
	summary = summary.Rounded()

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteSummaryCSV(buf, summary); err != nil {
		h.respondError(w, "write summary csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteProductRowsCSV(buf, summary.ByProduct); err != nil {
		h.respondError(w, "write product csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteMonthlyCSV(buf, summary.Monthly); err != nil {
		h.respondError(w, "write monthly csv", err)
		return
	}

	h.streamCSV(w, fmt.Sprintf("profitability-%s.csv", period), buf.Bytes())
}

func (h *Handler) handleInventory(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.parseAsOf(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := h.service.InventorySnapshot(ctx, asOf)
	if err != nil {
		h.respondError(w, "build inventory snapshot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap.Rounded())
}

func (h *Handler) handleInventoryCSV(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.parseAsOf(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snap, err := h.service.InventorySnapshot(ctx, asOf)
	if err != nil {
		h.respondError(w, "build inventory snapshot", err)
		return
	}
	snap = snap.Rounded()

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteInventoryCSV(buf, snap); err != nil {
		h.respondError(w, "write inventory csv", err)
		return
	}

	h.streamCSV(w, fmt.Sprintf("inventory-%s.csv", snap.AsOf.Format("2006-01-02")), buf.Bytes())
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	suggestions, err := h.service.ReorderAdvice(ctx)
	if err != nil {
		h.respondError(w, "build reorder advice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

type dashboardPayload struct {
	Summary   reports.PeriodSummary       `json:"summary"`
	Inventory reports.InventorySnapshot   `json:"inventory"`
	Reorder   []reports.ReorderSuggestion `json:"reorder"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	period, err := h.parsePeriod(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var payload dashboardPayload
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := h.service.PeriodSummary(gctx, period)
		if err != nil {
			return err
		}
		payload.Summary = summary.Rounded()
		return nil
	})
	g.Go(func() error {
		snap, err := h.service.InventorySnapshot(gctx, h.now().UTC())
		if err != nil {
			return err
		}
		payload.Inventory = snap.Rounded()
		return nil
	})
	g.Go(func() error {
		suggestions, err := h.service.ReorderAdvice(gctx)
		if err != nil {
			return err
		}
		payload.Reorder = suggestions
		return nil
	})
	if err := g.Wait(); err != nil {
		h.respondError(w, "build dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payload)
}

type previewRequest struct {
	Period         string          `json:"period" validate:"omitempty,max=7"`
	PurchaseOrders json.RawMessage `json:"purchase_orders" validate:"required"`
	Sales          json.RawMessage `json:"sales" validate:"required"`
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	period := strings.TrimSpace(req.Period)
	if period == "" {
		period = "all"
	}
	if !periodRegex.MatchString(period) {
		h.handleFilterError(w, validationError{field: "period"})
		return
	}

	orders, err := ledger.ParseOrders(req.PurchaseOrders)
	if err != nil {
		h.respondError(w, "parse preview orders", err)
		return
	}
	sales, err := ledger.ParseSales(req.Sales)
	if err != nil {
		h.respondError(w, "parse preview sales", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := h.service.Preview(ctx, orders, sales, period)
	if err != nil {
		h.respondError(w, "build preview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary.Rounded())
}

func (h *Handler) handleValuationHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			h.handleFilterError(w, validationError{field: "limit"})
			return
		}
		limit = value
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snaps, err := h.service.ValuationHistory(ctx, limit)
	if err != nil {
		h.respondError(w, "load valuation history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"snapshots": snaps})
}

type captureRequest struct {
	AsOf      string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
	RequestID string `json:"request_id" validate:"omitempty,uuid4"`
}

func (h *Handler) handleCaptureValuation(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		h.respondError(w, "enqueue valuation", errors.New("job client not configured"))
		return
	}
	// An empty body is fine and captures today.
	var req captureRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	asOf := h.now().UTC()
	if req.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", req.AsOf)
		if err != nil {
			h.handleFilterError(w, validationError{field: "as_of"})
			return
		}
		asOf = parsed
	}

	taskID, err := h.enqueuer.EnqueueValuationSnapshot(r.Context(), asOf, req.RequestID)
	if err != nil {
		h.respondError(w, "enqueue valuation", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{
		"task_id": taskID,
		"as_of":   asOf.Format("2006-01-02"),
	})
}

func (h *Handler) parsePeriod(r *http.Request) (string, error) {
	period := strings.TrimSpace(r.URL.Query().Get("period"))
	if period == "" {
		period = "all"
	}
	if !periodRegex.MatchString(period) {
		return "", validationError{field: "period"}
	}
	return period, nil
}

func (h *Handler) parseAsOf(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if raw == "" {
		return h.now().UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, validationError{field: "as_of"}
	}
	// Value stock at the end of the requested day.
	return parsed.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

func (h *Handler) streamCSV(w http.ResponseWriter, filename string, payload []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(payload); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var vErr validationError
	if errors.As(err, &vErr) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", vErr.Error())
		return
	}
	h.respondError(w, "parse filters", err)
}

func (h *Handler) respondError(w http.ResponseWriter, context string, err error) {
	switch {
	case errors.Is(err, reports.ErrInvalidPeriod):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "period must be all, YYYY or YYYY-MM")
	case errors.Is(err, ledger.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "purchase_orders and sales must be JSON arrays")
	case errors.Is(err, reports.ErrSnapshotExists):
		httpx.Problem(w, http.StatusConflict, "Snapshot Exists", "a valuation snapshot was already captured for that day")
	default:
		h.logError(context, err)
		httpx.RespondError(w, err)
	}
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return fmt.Sprintf("invalid %s", v.field)
}

func validationDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fields := make([]string, 0, len(fieldErrs))
		for _, fieldErr := range fieldErrs {
			fields = append(fields, fieldErr.Field())
		}
		return "invalid fields: " + strings.Join(fields, ", ")
	}
	return "request validation failed"
}

// HandleSummaryForTest exposes the summary handler for tests.
func (h *Handler) HandleSummaryForTest(w http.ResponseWriter, r *http.Request) { h.handleSummary(w, r) }

// HandlePreviewForTest exposes the preview handler for tests.
func (h *Handler) HandlePreviewForTest(w http.ResponseWriter, r *http.Request) { h.handlePreview(w, r) }
