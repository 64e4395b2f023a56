package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/shepherd-cms/shepherd/internal/app"
	"github.com/shepherd-cms/shepherd/internal/assets"
	"github.com/shepherd-cms/shepherd/internal/journals"
	"github.com/shepherd-cms/shepherd/internal/platform/db"
	"github.com/shepherd-cms/shepherd/internal/shared"
	"github.com/shepherd-cms/shepherd/internal/yearend"
	"github.com/shepherd-cms/shepherd/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)

	journalsRepo := journals.NewRepository(pool)
	journalsService := journals.NewService(journalsRepo, auditLogger)

	assetsRepo := assets.NewRepository(pool)
	assetsService := assets.NewService(logger, assetsRepo, journalsService, auditLogger)

	yearendRepo := yearend.NewRepository(pool)
	yearendService := yearend.NewService(logger, yearendRepo, journalsService, auditLogger)

	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDepreciationRun, Handler: jobs.NewDepreciationRunHandler(logger, assetsService)},
			{Type: jobs.TaskDepreciationDispatch, Handler: jobs.NewDepreciationDispatchHandler(logger, pool, client)},
			{Type: jobs.TaskYearEndClose, Handler: jobs.NewYearEndCloseHandler(logger, yearendService)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DepreciationCron, Task: jobs.NewDepreciationDispatchTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}
