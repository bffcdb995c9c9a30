package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/hoaboard/hoaboard/internal/app"
	"github.com/hoaboard/hoaboard/internal/audit"
	"github.com/hoaboard/hoaboard/internal/auth"
	"github.com/hoaboard/hoaboard/internal/directory"
	"github.com/hoaboard/hoaboard/internal/ledger"
	"github.com/hoaboard/hoaboard/internal/observability"
	"github.com/hoaboard/hoaboard/internal/platform/cache"
	"github.com/hoaboard/hoaboard/internal/platform/db"
	"github.com/hoaboard/hoaboard/internal/shared"
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

	sessionManager := shared.NewSessionManager(redisClient, "hoaboard_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	authService := auth.NewService(auth.NewRepository(pool))
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	ledgerStore := ledger.NewPGStore(pool, redisClient, logger)
	auditStore := audit.NewPGStore(pool)
	directoryService := directory.NewService(pool)

	metrics := observability.NewMetrics()

	ledgerService := ledger.NewService(ledgerStore, auditStore, authService, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, directoryService, metrics)
	auditHandler := audit.NewHandler(logger, auditStore)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Metrics:        metrics,
		AuthHandler:    authHandler,
		LedgerHandler:  ledgerHandler,
		AuditHandler:   auditHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.DuesPeriod != "" {
		group.Go(func() error {
			vm, err := ledgerService.View(groupCtx, cfg.DuesPeriod)
			if err != nil {
				logger.Warn("hydrate default period", slog.String("period", cfg.DuesPeriod), slog.Any("error", err))
				return nil
			}
			if err := vm.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("period subscription", slog.Any("error", err))
			}
			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppRequestTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server run", slog.Any("error", err))
		os.Exit(1)
	}
}
