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

	"golang.org/x/sync/errgroup"

	"childminder/internal/amqp"
	"childminder/internal/cli"
	"childminder/internal/config"
	applog "childminder/internal/log"
	"childminder/internal/mail"
	"childminder/internal/metrics"
	"childminder/internal/repository"
	"childminder/internal/services"
	"childminder/internal/sheets"
	gsheet "childminder/internal/sheets/google"
	"childminder/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")).
		With(applog.FieldComponent, applog.ComponentWorker)
	logger.Info("Starting invoice-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.DispatchEnabled() {
		logger.Error("AMQP_URL is required for the invoice worker")
		os.Exit(1)
	}
	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("Memory backend does not share data with the server, invoices will be empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := cli.OpenStore(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	m := metrics.New()
	invoices := services.NewInvoiceService(repository.New(res.Store), nil, cfg.CurrencySymbol,
		services.WithMetrics(m))

	sender := newSender(logger, cfg)
	exporter := newExporter(ctx, logger, cfg)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	w := worker.NewInvoiceWorker(invoices, sender, exporter, m, time.Local)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Consuming invoice dispatch messages", "queue", cfg.AMQPQueue)
		return w.Run(gctx, amqpClient)
	})
	if cfg.WorkerMetricsPort != "" {
		metricsSrv := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Serving worker metrics", "port", cfg.WorkerMetricsPort)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Invoice worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Invoice worker shutdown complete")
}

func newSender(logger *slog.Logger, cfg *config.Config) mail.Sender {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP disabled, invoices will only be logged")
		return mail.LogSender{}
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		logger.Error("Failed to configure SMTP", "error", err)
		os.Exit(1)
	}
	logger.Info("SMTP sender configured", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
	return sender
}

// newExporter returns nil when sheets export is disabled.
func newExporter(ctx context.Context, logger *slog.Logger, cfg *config.Config) sheets.SessionExporter {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
		return nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	return client
}
