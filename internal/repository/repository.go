// Package repository owns the persisted Child, AttendanceRecord and Expense
// collections. Every method is a whole-collection read-modify-write against the
// underlying storage.Store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"childminder/internal/core"
	"childminder/internal/storage"
)

// Repository is the sole reader and writer of persisted state. Returned slices
// are snapshots; callers re-fetch after mutating.
type Repository struct {
	mu    sync.Mutex
	store storage.Store
	newID func() string
	now   func() time.Time
}

// Option customises a Repository.
type Option func(*Repository)

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Repository) { r.newID = fn }
}

// WithClock replaces time.Now for expense timestamps.
func WithClock(fn func() time.Time) Option {
	return func(r *Repository) { r.now = fn }
}

// New creates a repository on top of the given store.
func New(store storage.Store, opts ...Option) *Repository {
	r := &Repository{
		store: store,
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close releases the underlying store.
func (r *Repository) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// ListChildren returns all children in insertion order.
func (r *Repository) ListChildren(ctx context.Context) ([]core.Child, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return storage.ReadCollection[core.Child](ctx, r.store, storage.KeyChildren)
}

// GetChild looks a child up by id.
func (r *Repository) GetChild(ctx context.Context, id string) (core.Child, core.Outcome, error) {
	children, err := r.ListChildren(ctx)
	if err != nil {
		return core.Child{}, core.OutcomeNoOp, err
	}
	for _, c := range children {
		if c.ID == id {
			return c, core.OutcomeOK, nil
		}
	}
	return core.Child{}, core.OutcomeNotFound, nil
}

// UpsertChild replaces an existing child in place, or appends a new one when
// ID is empty. The whole record is overwritten. An unknown non-empty ID is
// reported as NotFound and nothing is written.
func (r *Repository) UpsertChild(ctx context.Context, child core.Child) (core.Child, core.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	children, err := storage.ReadCollection[core.Child](ctx, r.store, storage.KeyChildren)
	if err != nil {
		return core.Child{}, core.OutcomeNoOp, err
	}

	if strings.TrimSpace(child.ID) == "" {
		child.ID = r.newID()
		child.Active = true
		children = append(children, child)
		if err := storage.WriteCollection(ctx, r.store, storage.KeyChildren, children); err != nil {
			return core.Child{}, core.OutcomeNoOp, err
		}
		slog.InfoContext(ctx, "Child created", "child_id", child.ID, "name", child.Name)
		return child, core.OutcomeOK, nil
	}

	idx := slices.IndexFunc(children, func(c core.Child) bool { return c.ID == child.ID })
	if idx < 0 {
		return core.Child{}, core.OutcomeNotFound, nil
	}
	children[idx] = child
	if err := storage.WriteCollection(ctx, r.store, storage.KeyChildren, children); err != nil {
		return core.Child{}, core.OutcomeNoOp, err
	}
	slog.InfoContext(ctx, "Child updated", "child_id", child.ID)
	return child, core.OutcomeOK, nil
}

// ListAttendance returns every attendance record in insertion order.
func (r *Repository) ListAttendance(ctx context.Context) ([]core.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return storage.ReadCollection[core.AttendanceRecord](ctx, r.store, storage.KeyAttendance)
}

// AppendAttendance persists the given records in a single write. Records
// without an ID get one assigned. Nothing is written for an empty batch.
func (r *Repository) AppendAttendance(ctx context.Context, records ...core.AttendanceRecord) ([]core.AttendanceRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendAttendanceLocked(ctx, records)
}

func (r *Repository) appendAttendanceLocked(ctx context.Context, records []core.AttendanceRecord) ([]core.AttendanceRecord, error) {
	existing, err := storage.ReadCollection[core.AttendanceRecord](ctx, r.store, storage.KeyAttendance)
	if err != nil {
		return nil, err
	}
	added := make([]core.AttendanceRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = r.newID()
		}
		added = append(added, rec)
	}
	existing = append(existing, added...)
	if err := storage.WriteCollection(ctx, r.store, storage.KeyAttendance, existing); err != nil {
		return nil, err
	}
	return added, nil
}

// AppendAttendanceIf reads the attendance collection, asks build for the
// records to add and appends them, all under the repository lock. It lets
// callers check a guard and write without another writer slipping in between.
func (r *Repository) AppendAttendanceIf(ctx context.Context, build func(current []core.AttendanceRecord, absences []core.AbsenceMarker) []core.AttendanceRecord) ([]core.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := storage.ReadCollection[core.AttendanceRecord](ctx, r.store, storage.KeyAttendance)
	if err != nil {
		return nil, err
	}
	absences, err := storage.ReadCollection[core.AbsenceMarker](ctx, r.store, storage.KeyAbsences)
	if err != nil {
		return nil, err
	}
	records := build(current, absences)
	if len(records) == 0 {
		return nil, nil
	}
	return r.appendAttendanceLocked(ctx, records)
}

// UpdateAttendanceRecord replaces the record with the same ID.
func (r *Repository) UpdateAttendanceRecord(ctx context.Context, record core.AttendanceRecord) (core.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := storage.ReadCollection[core.AttendanceRecord](ctx, r.store, storage.KeyAttendance)
	if err != nil {
		return core.OutcomeNoOp, err
	}
	idx := slices.IndexFunc(records, func(rec core.AttendanceRecord) bool { return rec.ID == record.ID })
	if idx < 0 {
		return core.OutcomeNotFound, nil
	}
	records[idx] = record
	if err := storage.WriteCollection(ctx, r.store, storage.KeyAttendance, records); err != nil {
		return core.OutcomeNoOp, err
	}
	return core.OutcomeOK, nil
}

// UpdateAttendanceFunc applies fn to the first record matching pick and
// persists the result, under the repository lock.
func (r *Repository) UpdateAttendanceFunc(ctx context.Context, pick func(core.AttendanceRecord) bool, fn func(*core.AttendanceRecord)) (core.AttendanceRecord, core.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := storage.ReadCollection[core.AttendanceRecord](ctx, r.store, storage.KeyAttendance)
	if err != nil {
		return core.AttendanceRecord{}, core.OutcomeNoOp, err
	}
	idx := slices.IndexFunc(records, pick)
	if idx < 0 {
		return core.AttendanceRecord{}, core.OutcomeNotFound, nil
	}
	fn(&records[idx])
	if err := storage.WriteCollection(ctx, r.store, storage.KeyAttendance, records); err != nil {
		return core.AttendanceRecord{}, core.OutcomeNoOp, err
	}
	return records[idx], core.OutcomeOK, nil
}

// DeleteAttendanceRecord removes the record with the given ID.
func (r *Repository) DeleteAttendanceRecord(ctx context.Context, id string) (core.Outcome, error) {
	_, outcome, err := r.RemoveAttendanceRecord(ctx, id, nil)
	return outcome, err
}

// RemoveAttendanceRecord deletes a record and, when marker returns a non-nil
// absence marker for it, stores that marker in the same locked section. The
// marker is written before the record is dropped, so a failure never leaves
// a removed scheduled record without its marker. Any error means nothing
// changed and the outcome is NoOp.
func (r *Repository) RemoveAttendanceRecord(ctx context.Context, id string, marker func(core.AttendanceRecord) *core.AbsenceMarker) (core.AttendanceRecord, core.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := storage.ReadCollection[core.AttendanceRecord](ctx, r.store, storage.KeyAttendance)
	if err != nil {
		return core.AttendanceRecord{}, core.OutcomeNoOp, err
	}
	idx := slices.IndexFunc(records, func(rec core.AttendanceRecord) bool { return rec.ID == id })
	if idx < 0 {
		return core.AttendanceRecord{}, core.OutcomeNotFound, nil
	}
	removed := records[idx]

	var rollback func() error
	if marker != nil {
		if m := marker(removed); m != nil {
			rollback, err = r.addAbsenceLocked(ctx, *m)
			if err != nil {
				return core.AttendanceRecord{}, core.OutcomeNoOp, err
			}
		}
	}

	records = slices.Delete(records, idx, idx+1)
	if err := storage.WriteCollection(ctx, r.store, storage.KeyAttendance, records); err != nil {
		if rollback != nil {
			if rerr := rollback(); rerr != nil {
				err = errors.Join(err, fmt.Errorf("restore absences: %w", rerr))
			}
		}
		return core.AttendanceRecord{}, core.OutcomeNoOp, err
	}
	return removed, core.OutcomeOK, nil
}

// ListAbsences returns the stored absence markers.
func (r *Repository) ListAbsences(ctx context.Context) ([]core.AbsenceMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return storage.ReadCollection[core.AbsenceMarker](ctx, r.store, storage.KeyAbsences)
}

// AddAbsence stores an absence marker. A marker for an already-marked
// (child, day) pair is not duplicated.
func (r *Repository) AddAbsence(ctx context.Context, marker core.AbsenceMarker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.addAbsenceLocked(ctx, marker)
	return err
}

// addAbsenceLocked stores marker unless its (child, day) pair is already
// marked. The returned func restores the previous markers; it is nil when
// nothing was written.
func (r *Repository) addAbsenceLocked(ctx context.Context, marker core.AbsenceMarker) (func() error, error) {
	markers, err := storage.ReadCollection[core.AbsenceMarker](ctx, r.store, storage.KeyAbsences)
	if err != nil {
		return nil, err
	}
	for _, m := range markers {
		if m.ChildID == marker.ChildID && m.Day == marker.Day {
			return nil, nil
		}
	}
	if marker.CreatedAt.IsZero() {
		marker.CreatedAt = r.now()
	}
	previous := slices.Clone(markers)
	if err := storage.WriteCollection(ctx, r.store, storage.KeyAbsences, append(markers, marker)); err != nil {
		return nil, err
	}
	return func() error {
		return storage.WriteCollection(ctx, r.store, storage.KeyAbsences, previous)
	}, nil
}

// ListExpenses returns all expenses in insertion order.
func (r *Repository) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return storage.ReadCollection[core.Expense](ctx, r.store, storage.KeyExpenses)
}

// AddExpense appends an expense with a fresh ID, the current timestamp and
// the "expense" type tag, whatever the caller set.
func (r *Repository) AddExpense(ctx context.Context, expense core.Expense) (core.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	expenses, err := storage.ReadCollection[core.Expense](ctx, r.store, storage.KeyExpenses)
	if err != nil {
		return core.Expense{}, err
	}
	expense.ID = r.newID()
	expense.Date = r.now()
	expense.Type = core.ExpenseType
	expenses = append(expenses, expense)
	if err := storage.WriteCollection(ctx, r.store, storage.KeyExpenses, expenses); err != nil {
		return core.Expense{}, err
	}
	slog.InfoContext(ctx, "Expense saved",
		"expense_id", expense.ID,
		"description", expense.Description,
		"amount", expense.Amount.String())
	return expense, nil
}
