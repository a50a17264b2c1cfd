package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heliowatt/permit-intake/internal/bootstrap"
	"github.com/heliowatt/permit-intake/internal/config"
	"github.com/heliowatt/permit-intake/internal/observability/logging"
	"github.com/heliowatt/permit-intake/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("permit-intake-worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("permit-intake-worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeIntakeCompleted(ctx, func(handlerCtx context.Context, projectID string) error {
		start := time.Now()
		workerMetrics.StartEvent()

		notifyCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
		defer cancel()
		handleErr := app.NotifyUC.HandleIntakeCompleted(notifyCtx, projectID)

		workerMetrics.FinishEvent("permit-intake-worker", time.Since(start), handleErr)
		return handleErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
