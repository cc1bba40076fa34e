package main

import (
	"os"
	"time"

	"childminder/internal/cli"
	"childminder/internal/config"
	applog "childminder/internal/log"
	"childminder/internal/repository"
	"childminder/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")).
		With(applog.FieldComponent, applog.ComponentScheduler)
	logger.Info("Starting schedule-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("Memory backend does not share data with the server, nothing will be materialized")
	}

	stopped := make(chan struct{})
	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func() { <-stopped })

	res := cli.OpenStore(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	reconciler := services.NewReconciler(repository.New(res.Store))
	processor := services.NewScheduleProcessor(reconciler, services.ScheduleProcessorConfig{
		Interval: cfg.ReconcileInterval,
	})

	logger.Info("Schedule processor configured",
		"interval", cfg.ReconcileInterval,
		"backend", cfg.DataBackend)

	err := processor.Run(ctx)
	close(stopped)
	if err != nil {
		logger.Error("Schedule processor failed", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Schedule-worker shutdown complete")
}
