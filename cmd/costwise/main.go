package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/costwise/costwise/cmd/costwise/cli"
	"github.com/costwise/costwise/internal/app"
	"github.com/costwise/costwise/internal/observability"
	"github.com/costwise/costwise/internal/platform/cache"
	"github.com/costwise/costwise/internal/platform/db"
	"github.com/costwise/costwise/internal/reports"
	reporthttp "github.com/costwise/costwise/internal/reports/http"
	"github.com/costwise/costwise/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		os.Exit(runCommand(ctx, cfg, logger, os.Args[1], os.Args[2:]))
	}

	runServer(ctx, stop, cfg, logger)
}

func runServer(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Reports degrade to uncached rebuilds when Redis is away, so a failed
	// ping only warns.
	redisClient := cache.NewClient(cfg.RedisAddr)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	reportCache := reports.NewCache(redisClient, cfg.CacheTTL)
	if err := reportCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	reportRepo := reports.NewRepository(pool)
	reportService := reports.NewService(reportRepo, reportCache, logger, cfg.ReportWorkers)

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	reportHandler := reporthttp.NewHandler(logger, reportService, queue)
	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		ReportHandler: reportHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, name string, args []string) int {
	switch name {
	case "jobs":
		return runJobsCommand(ctx, cfg, logger, args)
	case "valuation":
		return runValuationCommand(ctx, cfg, logger, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected jobs or valuation)\n", name)
		return 2
	}
}

func runJobsCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: costwise jobs <trigger|queue|scheduled>")
		return 2
	}

	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		logger.Error("init jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: costwise jobs trigger <task>")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "trigger %s: %v\n", args[1], err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", args[1], info.ID, info.Queue)
		return 0
	case "queue":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "inspect queue: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	case "scheduled":
		fs := flag.NewFlagSet("scheduled", flag.ContinueOnError)
		size := fs.Int("n", 10, "number of tasks to list")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		tasks, err := jobsCLI.ListScheduled(ctx, *size)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list scheduled: %v\n", err)
			return 1
		}
		for _, task := range tasks {
			fmt.Printf("%s %s next=%s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown jobs subcommand %q\n", args[0])
		return 2
	}
}

func runValuationCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 || args[0] != "backfill" {
		fmt.Fprintln(os.Stderr, "usage: costwise valuation backfill --from YYYY-MM-DD --to YYYY-MM-DD [--apply] [--json]")
		return 2
	}

	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	from := fs.String("from", "", "start day (YYYY-MM-DD)")
	to := fs.String("to", "", "end day (YYYY-MM-DD)")
	apply := fs.Bool("apply", false, "capture missing snapshots instead of previewing")
	jsonOut := fs.Bool("json", false, "emit machine-readable output")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	redisClient := cache.NewClient(cfg.RedisAddr)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	service := reports.NewService(
		reports.NewRepository(pool),
		reports.NewCache(redisClient, cfg.CacheTTL),
		logger,
		cfg.ReportWorkers,
	)
	opsCLI, err := cli.NewValuationOpsCLI(service)
	if err != nil {
		logger.Error("init valuation cli", slog.Any("error", err))
		return 1
	}

	mode := cli.BackfillModeDry
	if *apply {
		mode = cli.BackfillModeApply
	}
	return opsCLI.BackfillCommand(ctx, cli.BackfillOptions{
		From:       *from,
		To:         *to,
		Mode:       mode,
		JSONOutput: *jsonOut,
	})
}
