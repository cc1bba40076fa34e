package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"childminder/internal/core"
	"childminder/internal/repository"
)

var (
	// ErrNoEmail is returned when an invoice is requested for a child without
	// a parent e-mail address.
	ErrNoEmail = errors.New("child has no parent email")

	// ErrDispatchUnavailable is returned when no message broker is configured.
	ErrDispatchUnavailable = errors.New("invoice dispatch is not configured")
)

// InvoicePublisher queues an invoice for asynchronous delivery.
type InvoicePublisher interface {
	PublishInvoiceDispatch(ctx context.Context, childID string, requestedAt time.Time) error
}

// Invoice is a billable statement of every closed session of one child.
type Invoice struct {
	Number      string    `json:"number"`
	IssuedAt    time.Time `json:"issuedAt"`
	ChildID     string    `json:"childId"`
	ChildName   string    `json:"childName"`
	ParentEmail string    `json:"parentEmail,omitempty"`
	InvoiceSummary
}

// InvoiceNumber formats "INV-YYYY-MM-NAME" with the name upper-cased and
// stripped of whitespace.
func InvoiceNumber(name string, at time.Time) string {
	compact := strings.Join(strings.Fields(name), "")
	return fmt.Sprintf("INV-%04d-%02d-%s", at.Year(), int(at.Month()), strings.ToUpper(compact))
}

// InvoiceService builds invoices and requests their delivery.
type InvoiceService struct {
	repo      *repository.Repository
	publisher InvoicePublisher
	currency  string
	settings
}

// NewInvoiceService creates an invoice service. publisher may be nil, in which
// case RequestDispatch returns ErrDispatchUnavailable.
func NewInvoiceService(repo *repository.Repository, publisher InvoicePublisher, currency string, opts ...Option) *InvoiceService {
	if currency == "" {
		currency = "£"
	}
	return &InvoiceService{
		repo:      repo,
		publisher: publisher,
		currency:  currency,
		settings:  newSettings(opts),
	}
}

// Currency returns the symbol used when rendering amounts.
func (s *InvoiceService) Currency() string {
	return s.currency
}

// Build computes the invoice for a child from all closed sessions.
func (s *InvoiceService) Build(ctx context.Context, childID string) (Invoice, core.Outcome, error) {
	child, outcome, err := s.repo.GetChild(ctx, childID)
	if err != nil {
		return Invoice{}, core.OutcomeNoOp, fmt.Errorf("get child: %w", err)
	}
	if outcome != core.OutcomeOK {
		return Invoice{}, outcome, nil
	}

	records, err := s.repo.ListAttendance(ctx)
	if err != nil {
		return Invoice{}, core.OutcomeNoOp, fmt.Errorf("list attendance: %w", err)
	}

	now := s.today()
	return Invoice{
		Number:         InvoiceNumber(child.Name, now),
		IssuedAt:       now,
		ChildID:        child.ID,
		ChildName:      child.Name,
		ParentEmail:    child.Email,
		InvoiceSummary: InvoiceTotals(child, records),
	}, core.OutcomeOK, nil
}

// Render formats the invoice as plain text.
func (s *InvoiceService) Render(inv Invoice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Childminder Invoice\n\n")
	fmt.Fprintf(&b, "Invoice Number: %s\n", inv.Number)
	fmt.Fprintf(&b, "Date: %s\n", inv.IssuedAt.Format("02/01/2006"))
	fmt.Fprintf(&b, "Child: %s\n", inv.ChildName)
	if inv.ParentEmail != "" {
		fmt.Fprintf(&b, "Parent Email: %s\n", inv.ParentEmail)
	}
	b.WriteString("\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDate\tStart\tEnd\tHours\tCost")
	for _, l := range inv.Lines {
		start := l.StartTime.In(s.loc)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.2f\t%s\n",
			l.Number,
			start.Format("02/01/2006"),
			start.Format("15:04"),
			l.EndTime.In(s.loc).Format("15:04"),
			l.Hours,
			l.Cost.Format(s.currency))
	}
	tw.Flush()

	fmt.Fprintf(&b, "\nTotal Hours: %.2f hrs\n", inv.TotalHours)
	fmt.Fprintf(&b, "Hourly Rate: %s\n", inv.Rate.Round2().Format(s.currency))
	fmt.Fprintf(&b, "Total Due: %s\n", inv.TotalCost.Format(s.currency))
	return b.String()
}

// RequestDispatch queues the child's invoice for e-mail delivery.
func (s *InvoiceService) RequestDispatch(ctx context.Context, childID string) (core.Outcome, error) {
	child, outcome, err := s.repo.GetChild(ctx, childID)
	if err != nil {
		return core.OutcomeNoOp, fmt.Errorf("get child: %w", err)
	}
	if outcome != core.OutcomeOK {
		return outcome, nil
	}
	if !child.CanInvoice() {
		return core.OutcomeNoOp, ErrNoEmail
	}
	if s.publisher == nil {
		slog.WarnContext(ctx, "Invoice dispatch requested but no broker is configured",
			"child_id", childID)
		s.metrics.ObserveDispatch("unavailable")
		return core.OutcomeNoOp, ErrDispatchUnavailable
	}

	if err := s.publisher.PublishInvoiceDispatch(ctx, childID, s.now()); err != nil {
		s.metrics.ObserveDispatch("publish_error")
		return core.OutcomeNoOp, fmt.Errorf("publish invoice dispatch: %w", err)
	}
	s.metrics.ObserveDispatch("queued")
	slog.InfoContext(ctx, "Invoice dispatch queued", "child_id", childID)
	return core.OutcomeOK, nil
}
