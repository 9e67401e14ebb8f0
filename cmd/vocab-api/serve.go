package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spellquest/vocab-api/internal/di"
	"github.com/spellquest/vocab-api/internal/handlers"
	"github.com/spellquest/vocab-api/internal/platform/config"
	"github.com/spellquest/vocab-api/internal/platform/idempotency"
	"github.com/spellquest/vocab-api/internal/platform/observability"
)

const shutdownGrace = 10 * time.Second

func newServeCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cmdCtx)
		},
	}
}

func runServer(ctx context.Context, cmdCtx *commandContext) error {
	startedAt := time.Now().UTC()

	baseLogger, err := cmdCtx.ensureLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	cfg, err := cmdCtx.ensureConfig(ctx)
	if err != nil {
		return err
	}

	container, err := di.NewContainer(ctx, cfg, di.WithLogger(logger), di.WithStartedAt(startedAt))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("word store close error", zap.Error(err))
		}
	}()

	var workers sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer func() {
		cancelWorkers()
		workers.Wait()
	}()
	workers.Add(1)
	go func() {
		defer workers.Done()
		idempotency.Sweeper{
			Store:     container.Idempotency,
			Interval:  cfg.Idempotency.CleanupInterval,
			BatchSize: cfg.Idempotency.CleanupBatchSize,
			Logger:    logger.Named("idempotency"),
		}.Run(workerCtx)
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newHTTPHandler(cfg, container, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	serveErr := make(chan error, 1)
	go func() {
		serverLogger.Info("vocab api listening",
			zap.String("store_driver", cfg.Store.Driver),
			zap.String("ocr_base_url", cfg.OCR.BaseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			serverLogger.Error("http server error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received; draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func newHTTPHandler(cfg config.Config, container *di.Container, logger *zap.Logger) http.Handler {
	httpLogger := logger.Named("http")
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(httpLogger),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(container.Services.System),
	)
	ocrHandlers := handlers.NewOCRHandlers(container.Services.Scan,
		handlers.WithOCRMaxUploadBytes(cfg.Upload.MaxBytes),
		handlers.WithOCRRateLimit(cfg.RateLimits.UploadPerMinute),
	)
	idempotencyMiddleware := idempotency.Middleware(container.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMaxBodyBytes(cfg.Upload.MaxBytes),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	return handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOCRRoutes(ocrHandlers.Routes),
		handlers.WithOCRMiddlewares(idempotencyMiddleware),
	)
}
