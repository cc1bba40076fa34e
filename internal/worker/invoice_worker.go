package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"childminder/internal/amqp"
	"childminder/internal/core"
	"childminder/internal/mail"
	"childminder/internal/metrics"
	"childminder/internal/services"
	"childminder/internal/sheets"
)

// InvoiceBuilder rebuilds and renders a child's invoice.
type InvoiceBuilder interface {
	Build(ctx context.Context, childID string) (services.Invoice, core.Outcome, error)
	Render(inv services.Invoice) string
}

// InvoiceWorker delivers invoices requested over the dispatch queue.
type InvoiceWorker struct {
	invoices InvoiceBuilder
	sender   mail.Sender
	exporter sheets.SessionExporter
	metrics  *metrics.Metrics
	loc      *time.Location
}

// NewInvoiceWorker creates a worker. exporter and m may be nil.
func NewInvoiceWorker(invoices InvoiceBuilder, sender mail.Sender, exporter sheets.SessionExporter, m *metrics.Metrics, loc *time.Location) *InvoiceWorker {
	if loc == nil {
		loc = time.Local
	}
	return &InvoiceWorker{
		invoices: invoices,
		sender:   sender,
		exporter: exporter,
		metrics:  m,
		loc:      loc,
	}
}

// HandleDispatchMessage processes a single invoice dispatch message from AMQP.
// Requests that can never succeed (unknown child, missing e-mail) are dropped;
// build and delivery failures are returned so the message is requeued.
func (w *InvoiceWorker) HandleDispatchMessage(ctx context.Context, msg *amqp.InvoiceDispatchMessage) error {
	slog.InfoContext(ctx, "Processing invoice dispatch",
		"child_id", msg.ChildID,
		"requested_at", msg.RequestedAt)

	inv, outcome, err := w.invoices.Build(ctx, msg.ChildID)
	if err != nil {
		w.metrics.ObserveDispatch("error")
		return fmt.Errorf("build invoice: %w", err)
	}
	if outcome == core.OutcomeNotFound {
		slog.WarnContext(ctx, "Dropping dispatch for unknown child", "child_id", msg.ChildID)
		w.metrics.ObserveDispatch("skipped")
		return nil
	}
	if inv.ParentEmail == "" {
		slog.WarnContext(ctx, "Dropping dispatch for child without parent email",
			"child_id", msg.ChildID,
			"error", services.ErrNoEmail)
		w.metrics.ObserveDispatch("skipped")
		return nil
	}

	err = w.sender.Send(ctx, mail.Message{
		To:      inv.ParentEmail,
		Subject: fmt.Sprintf("Invoice %s for %s", inv.Number, inv.ChildName),
		Body:    w.invoices.Render(inv),
	})
	if err != nil {
		w.metrics.ObserveDispatch("error")
		return fmt.Errorf("send invoice: %w", err)
	}
	w.metrics.ObserveDispatch("sent")

	// The mail is already out; an export failure must not trigger a resend.
	if err := w.export(ctx, inv); err != nil {
		slog.ErrorContext(ctx, "Failed to export sessions to Google Sheets",
			"child_id", msg.ChildID,
			"invoice", inv.Number,
			"error", err)
	}

	slog.InfoContext(ctx, "Invoice delivered",
		"child_id", msg.ChildID,
		"invoice", inv.Number,
		"lines", len(inv.Lines),
		"total", inv.TotalCost.StringFixed(2))
	return nil
}

func (w *InvoiceWorker) export(ctx context.Context, inv services.Invoice) error {
	if w.exporter == nil || len(inv.Lines) == 0 {
		return nil
	}
	ref, err := w.exporter.AppendSessions(ctx, SessionRows(inv, w.loc))
	if err != nil {
		return err
	}
	if ref == "" {
		slog.InfoContext(ctx, "No new sessions to export", "invoice", inv.Number)
		return nil
	}
	slog.InfoContext(ctx, "Exported sessions", "invoice", inv.Number, "sheets_ref", ref)
	return nil
}

// SessionRows flattens invoice lines into spreadsheet rows in loc.
func SessionRows(inv services.Invoice, loc *time.Location) []sheets.SessionRow {
	rows := make([]sheets.SessionRow, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		start := l.StartTime.In(loc)
		rows = append(rows, sheets.SessionRow{
			InvoiceNumber: inv.Number,
			ChildName:     inv.ChildName,
			Date:          start.Format(time.DateOnly),
			Start:         start.Format("15:04"),
			End:           l.EndTime.In(loc).Format("15:04"),
			Hours:         l.Hours,
			Cost:          l.Cost.StringFixed(2),
		})
	}
	return rows
}

// ErrStopped is returned by Run when the consumer ends without a cancelled context.
var ErrStopped = errors.New("dispatch consumer stopped")

// Consumer is the subset of the AMQP client used by Run.
type Consumer interface {
	ConsumeInvoiceDispatch(ctx context.Context, handler func(context.Context, *amqp.InvoiceDispatchMessage) error) error
}

// Run consumes dispatch messages until ctx is cancelled.
func (w *InvoiceWorker) Run(ctx context.Context, consumer Consumer) error {
	err := consumer.ConsumeInvoiceDispatch(ctx, w.HandleDispatchMessage)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		return ErrStopped
	}
	return fmt.Errorf("consume invoice dispatch: %w", err)
}
