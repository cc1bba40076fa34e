package memory

import (
	"context"
	"fmt"
	"sync"

	"childminder/internal/sheets"
)

// Exporter keeps exported session rows in memory.
type Exporter struct {
	mu   sync.Mutex
	rows []sheets.SessionRow
	keys map[string]bool
}

var _ sheets.SessionExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{keys: map[string]bool{}}
}

// AppendSessions stores the rows not exported before and returns a synthetic
// row reference, or "" when every row was already present.
func (e *Exporter) AppendSessions(_ context.Context, rows []sheets.SessionRow) (string, error) {
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			return "", fmt.Errorf("row %d: %w", i, err)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fresh := sheets.Unexported(rows, e.keys)
	if len(fresh) == 0 {
		return "", nil
	}
	for _, r := range fresh {
		e.keys[r.Key()] = true
	}
	first := len(e.rows) + 1
	e.rows = append(e.rows, fresh...)
	return fmt.Sprintf("mem:%d-%d", first, len(e.rows)), nil
}

// Rows returns a copy of everything exported so far.
func (e *Exporter) Rows() []sheets.SessionRow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sheets.SessionRow(nil), e.rows...)
}
