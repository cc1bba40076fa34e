package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"childminder/internal/amqp"
	"childminder/internal/assistant"
	"childminder/internal/cli"
	"childminder/internal/config"
	apphttp "childminder/internal/http"
	applog "childminder/internal/log"
	"childminder/internal/metrics"
	"childminder/internal/repository"
	"childminder/internal/services"
	"childminder/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")).
		With(applog.FieldComponent, applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := cli.OpenStore(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	m := metrics.New()
	repo := repository.New(res.Store)
	opts := []services.Option{services.WithMetrics(m)}

	// A nil *amqp.Client must not reach the service as a non-nil interface.
	var publisher services.InvoicePublisher
	if cfg.DispatchEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to connect to AMQP, invoice dispatch disabled", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, invoices can be viewed but not sent")
	}

	reconciler := services.NewReconciler(repo, opts...)
	children := services.NewChildService(repo, opts...)
	attendance := services.NewAttendanceService(repo, reconciler, opts...)
	invoices := services.NewInvoiceService(repo, publisher, cfg.CurrencySymbol, opts...)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Children:   children,
		Attendance: attendance,
		Reconciler: reconciler,
		Invoices:   invoices,
		Expenses:   services.NewExpenseService(repo),
		Tools:      assistant.NewTools(children, attendance, cfg.CurrencySymbol),
		Metrics:    m,
		Logger: applog.New(applog.Config{
			Level:  applog.ParseLevel(cfg.LogLevel),
			Format: cfg.LogFormat,
			Output: os.Stderr,
		}),
		TrustedProxies: cfg.TrustedProxies,
		Ready: func(ctx context.Context) error {
			_, _, err := res.Store.Read(ctx, storage.KeyChildren)
			return err
		},
	})

	processor := services.NewScheduleProcessor(reconciler, services.ScheduleProcessorConfig{
		Interval:       cfg.ReconcileInterval,
		OnMaterialized: func(int) { srv.InvalidateCache() },
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting childminder server", append([]any{"port", cfg.Port}, configSummary(cfg)...)...)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return processor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// configSummary is logged at startup so operators can see which optional
// integrations are active.
func configSummary(cfg *config.Config) []any {
	return []any{
		"backend", cfg.DataBackend,
		"dispatch", cfg.DispatchEnabled(),
		"reconcile_interval", cfg.ReconcileInterval,
	}
}
