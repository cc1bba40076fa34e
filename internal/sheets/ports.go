package sheets

import (
	"context"
	"errors"
)

// SessionRow is one billed session as written to a spreadsheet.
type SessionRow struct {
	InvoiceNumber string
	ChildName     string
	Date          string // 2006-01-02
	Start         string // 15:04
	End           string // 15:04
	Hours         float64
	Cost          string // decimal amount without currency symbol
}

// Validate checks the fields every exporter relies on.
func (r SessionRow) Validate() error {
	if r.InvoiceNumber == "" {
		return errors.New("session row has no invoice number")
	}
	if r.ChildName == "" {
		return errors.New("session row has no child name")
	}
	if r.Date == "" {
		return errors.New("session row has no date")
	}
	return nil
}

// Key identifies the session a row describes: one child on one day from one
// start time. The invoice number is left out so re-sending an invoice in a
// later month does not export its sessions again.
func (r SessionRow) Key() string {
	return SessionKey(r.ChildName, r.Date, r.Start)
}

// SessionKey builds a row key from the child, date and start columns.
func SessionKey(child, date, start string) string {
	return child + "|" + date + "|" + start
}

// Unexported returns the rows whose key is not in exported, keeping the first
// of any repeated key. exported is not modified.
func Unexported(rows []SessionRow, exported map[string]bool) []SessionRow {
	seen := make(map[string]bool, len(exported)+len(rows))
	for k := range exported {
		seen[k] = true
	}
	out := make([]SessionRow, 0, len(rows))
	for _, r := range rows {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		out = append(out, r)
	}
	return out
}

// Ports for outbound adapters.
type (
	// SessionExporter appends billed sessions to an external ledger. Sessions
	// already present are skipped; rowRef is empty when nothing was new.
	SessionExporter interface {
		AppendSessions(ctx context.Context, rows []SessionRow) (rowRef string, err error)
	}
)
