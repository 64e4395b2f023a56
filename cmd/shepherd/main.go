package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/shepherd-cms/shepherd/internal/accounts"
	"github.com/shepherd-cms/shepherd/internal/app"
	"github.com/shepherd-cms/shepherd/internal/assets"
	"github.com/shepherd-cms/shepherd/internal/budgets"
	"github.com/shepherd-cms/shepherd/internal/journals"
	"github.com/shepherd-cms/shepherd/internal/periods"
	"github.com/shepherd-cms/shepherd/internal/platform/cache"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	settingsStore := shared.NewSettingsStore(pool)
	settingsCache := shared.NewSettingsCache(settingsStore, redisClient, cfg.SettingsTTL)
	settingsHandler := shared.NewSettingsHandler(logger, settingsCache)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, auditLogger)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	periodsRepo := periods.NewRepository(pool)
	periodsService := periods.NewService(periodsRepo, auditLogger)
	periodsHandler := periods.NewHandler(logger, periodsService)

	journalsRepo := journals.NewRepository(pool)
	journalsService := journals.NewService(journalsRepo, auditLogger)
	journalsHandler := journals.NewHandler(logger, journalsService)

	budgetsRepo := budgets.NewRepository(pool)
	budgetsService := budgets.NewService(budgetsRepo, auditLogger)
	budgetsHandler := budgets.NewHandler(logger, budgetsService)

	assetsRepo := assets.NewRepository(pool)
	assetsService := assets.NewService(logger, assetsRepo, journalsService, auditLogger)
	assetsHandler := assets.NewHandler(logger, assetsService)

	yearendRepo := yearend.NewRepository(pool)
	yearendService := yearend.NewService(logger, yearendRepo, journalsService, auditLogger)
	yearendHandler := yearend.NewHandler(logger, yearendService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accountsHandler,
		PeriodsHandler:  periodsHandler,
		JournalsHandler: journalsHandler,
		BudgetsHandler:  budgetsHandler,
		AssetsHandler:   assetsHandler,
		YearEndHandler:  yearendHandler,
		SettingsHandler: settingsHandler,
		JobHandler:      jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
