package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/costwise/costwise/internal/reports"
)

// BackfillMode enumerates supported execution strategies.
type BackfillMode string

const (
	// BackfillModeDry previews missing snapshot days without applying changes.
	BackfillModeDry BackfillMode = "dry"
	// BackfillModeApply captures missing snapshots after confirmation.
	BackfillModeApply BackfillMode = "apply"
)

// backfillHistoryLimit bounds the history fetch to roughly ten years of
// daily snapshots.
const backfillHistoryLimit = 3650

// BackfillService describes the behaviour the backfill command needs from
// the reports service.
type BackfillService interface {
	ValuationHistory(ctx context.Context, limit int) ([]reports.ValuationSnapshot, error)
	CaptureValuation(ctx context.Context, asOf time.Time) (reports.ValuationSnapshot, error)
}

// ValuationOpsCLI offers operational helpers for the valuation history.
type ValuationOpsCLI struct {
	service BackfillService
}

// NewValuationOpsCLI constructs a new helper instance.
func NewValuationOpsCLI(service BackfillService) (*ValuationOpsCLI, error) {
	if service == nil {
		return nil, errors.New("valuation cli: service required")
	}
	return &ValuationOpsCLI{service: service}, nil
}

// BackfillOptions configures the backfill command execution.
type BackfillOptions struct {
	From       string
	To         string
	Mode       BackfillMode
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
	Stdin      io.Reader
	Confirm    func(io.Reader, io.Writer) (bool, error)
}

// BackfillSummary captures the structured reporting outcome.
type BackfillSummary struct {
	Mode     BackfillMode  `json:"mode"`
	From     string        `json:"from"`
	To       string        `json:"to"`
	Missing  []string      `json:"missing"`
	Captured []BackfillRow `json:"captured,omitempty"`
	Skipped  []string      `json:"skipped,omitempty"`
}

// BackfillRow summarises one captured snapshot.
type BackfillRow struct {
	Date       string  `json:"date"`
	Reference  string  `json:"reference"`
	TotalValue float64 `json:"total_value"`
}

// BackfillCommand finds days in the range without a valuation snapshot and,
// in apply mode, captures them.
func (c *ValuationOpsCLI) BackfillCommand(ctx context.Context, opts BackfillOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = BackfillModeDry
	}
	mode := BackfillMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case BackfillModeDry, BackfillModeApply:
	default:
		fmt.Fprintf(opts.Stderr, "valuation backfill: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}
	from, err := time.Parse("2006-01-02", strings.TrimSpace(opts.From))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "valuation backfill: invalid --from %q (expected YYYY-MM-DD)\n", opts.From)
		return 1
	}
	to, err := time.Parse("2006-01-02", strings.TrimSpace(opts.To))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "valuation backfill: invalid --to %q (expected YYYY-MM-DD)\n", opts.To)
		return 1
	}
	if from.After(to) {
		fmt.Fprintln(opts.Stderr, "valuation backfill: --from must not be later than --to")
		return 1
	}

	history, err := c.service.ValuationHistory(ctx, backfillHistoryLimit)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "valuation backfill: load history: %v\n", err)
		return 1
	}
	existing := make(map[string]struct{}, len(history))
	for _, snap := range history {
		existing[snap.AsOf.UTC().Format("2006-01-02")] = struct{}{}
	}

	missing := make([]string, 0)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		if _, ok := existing[key]; !ok {
			missing = append(missing, key)
		}
	}

	summary := BackfillSummary{
		Mode:    mode,
		From:    from.Format("2006-01-02"),
		To:      to.Format("2006-01-02"),
		Missing: missing,
	}

	if mode == BackfillModeDry || len(missing) == 0 {
		if err := writeBackfillOutput(opts, summary); err != nil {
			fmt.Fprintf(opts.Stderr, "valuation backfill: %v\n", err)
			return 1
		}
		if mode == BackfillModeDry && len(missing) > 0 {
			return 10
		}
		return 0
	}

	confirm := opts.Confirm
	if confirm == nil {
		confirm = defaultBackfillConfirm
	}
	ok, err := confirm(opts.Stdin, opts.Stdout)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "valuation backfill: confirmation failed: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(opts.Stderr, "valuation backfill: cancelled by user")
		return 1
	}

	for _, key := range missing {
		day, err := time.Parse("2006-01-02", key)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "valuation backfill: %v\n", err)
			return 1
		}
		// Value stock at the end of the missing day.
		cutoff := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
		snap, err := c.service.CaptureValuation(ctx, cutoff)
		if err != nil {
			if errors.Is(err, reports.ErrSnapshotExists) {
				summary.Skipped = append(summary.Skipped, key)
				continue
			}
			fmt.Fprintf(opts.Stderr, "valuation backfill: capture %s: %v\n", key, err)
			return 1
		}
		summary.Captured = append(summary.Captured, BackfillRow{
			Date:       key,
			Reference:  snap.Reference,
			TotalValue: snap.TotalValue,
		})
	}

	if err := writeBackfillOutput(opts, summary); err != nil {
		fmt.Fprintf(opts.Stderr, "valuation backfill: %v\n", err)
		return 1
	}
	return 0
}

func writeBackfillOutput(opts BackfillOptions, summary BackfillSummary) error {
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(summary)
	}
	renderBackfillHuman(opts.Stdout, summary)
	return nil
}

func renderBackfillHuman(out io.Writer, summary BackfillSummary) {
	fmt.Fprintf(out, "Valuation backfill (%s) from %s to %s\n", summary.Mode, summary.From, summary.To)
	if len(summary.Missing) == 0 {
		fmt.Fprintln(out, "No missing snapshot days.")
	} else {
		fmt.Fprintf(out, "%d missing day(s):\n", len(summary.Missing))
		for _, day := range summary.Missing {
			fmt.Fprintf(out, " - %s\n", day)
		}
	}
	if len(summary.Captured) > 0 {
		fmt.Fprintln(out, "Captured:")
		for _, row := range summary.Captured {
			fmt.Fprintf(out, " - %s %s total %.2f\n", row.Date, row.Reference, row.TotalValue)
		}
	}
	if len(summary.Skipped) > 0 {
		fmt.Fprintf(out, "Skipped (already captured): %s\n", strings.Join(summary.Skipped, ", "))
	}
}

func defaultBackfillConfirm(r io.Reader, w io.Writer) (bool, error) {
	fmt.Fprint(w, "Capture missing valuation snapshots? Type YES to confirm: ")
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	response := strings.TrimSpace(line)
	return strings.EqualFold(response, "YES"), nil
}
