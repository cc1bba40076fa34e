package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"childminder/internal/core"
	"childminder/internal/repository"
)

// AttendanceService is the per-child daily attendance state machine.
//
// Guard rejections are reported as core.OutcomeNoOp and unknown ids as
// core.OutcomeNotFound; only storage failures are returned as errors.
type AttendanceService struct {
	repo       *repository.Repository
	reconciler *Reconciler
	settings
}

func NewAttendanceService(repo *repository.Repository, reconciler *Reconciler, opts ...Option) *AttendanceService {
	return &AttendanceService{
		repo:       repo,
		reconciler: reconciler,
		settings:   newSettings(opts),
	}
}

// CheckIn opens a manual session for the child starting now. It is a no-op
// when the child already has an open record, or already has a record for
// today (manual or scheduled), so a day never holds two records.
func (s *AttendanceService) CheckIn(ctx context.Context, childID string) (core.AttendanceRecord, core.Outcome, error) {
	rec, outcome, err := s.checkIn(ctx, childID)
	s.observe("check_in", outcome, err)
	return rec, outcome, err
}

func (s *AttendanceService) checkIn(ctx context.Context, childID string) (core.AttendanceRecord, core.Outcome, error) {
	if _, outcome, err := s.repo.GetChild(ctx, childID); err != nil || outcome != core.OutcomeOK {
		return core.AttendanceRecord{}, outcome, err
	}

	now := s.today()
	day := core.DayKey(now, s.loc)

	added, err := s.repo.AppendAttendanceIf(ctx, func(current []core.AttendanceRecord, _ []core.AbsenceMarker) []core.AttendanceRecord {
		for _, rec := range current {
			if rec.ChildID != childID {
				continue
			}
			if rec.IsOpen() || rec.Day(s.loc) == day {
				return nil
			}
		}
		return []core.AttendanceRecord{{ChildID: childID, StartTime: now}}
	})
	if err != nil {
		return core.AttendanceRecord{}, core.OutcomeNoOp, fmt.Errorf("check in: %w", err)
	}
	if len(added) == 0 {
		slog.InfoContext(ctx, "Check-in ignored, child already has a session",
			"child_id", childID,
			"day", day)
		return core.AttendanceRecord{}, core.OutcomeNoOp, nil
	}

	slog.InfoContext(ctx, "Child checked in", "child_id", childID, "record_id", added[0].ID)
	return added[0], core.OutcomeOK, nil
}

// CheckOut closes the child's open record, whatever its origin, at now.
func (s *AttendanceService) CheckOut(ctx context.Context, childID string) (core.AttendanceRecord, core.Outcome, error) {
	rec, outcome, err := s.checkOut(ctx, childID)
	s.observe("check_out", outcome, err)
	return rec, outcome, err
}

func (s *AttendanceService) checkOut(ctx context.Context, childID string) (core.AttendanceRecord, core.Outcome, error) {
	if _, outcome, err := s.repo.GetChild(ctx, childID); err != nil || outcome != core.OutcomeOK {
		return core.AttendanceRecord{}, outcome, err
	}

	now := s.today()
	rec, outcome, err := s.repo.UpdateAttendanceFunc(ctx,
		func(r core.AttendanceRecord) bool { return r.ChildID == childID && r.IsOpen() },
		func(r *core.AttendanceRecord) { r.EndTime = &now })
	if err != nil {
		return core.AttendanceRecord{}, core.OutcomeNoOp, fmt.Errorf("check out: %w", err)
	}
	if outcome == core.OutcomeNotFound {
		return core.AttendanceRecord{}, core.OutcomeNoOp, nil
	}

	slog.InfoContext(ctx, "Child checked out",
		"child_id", childID,
		"record_id", rec.ID,
		"hours", SessionHours(rec))
	return rec, core.OutcomeOK, nil
}

// MarkAbsent removes a record. When it is today's scheduled record an
// absence marker is stored so the reconciler does not recreate it.
func (s *AttendanceService) MarkAbsent(ctx context.Context, recordID string) (core.Outcome, error) {
	today := core.DayKey(s.today(), s.loc)
	_, outcome, err := s.repo.RemoveAttendanceRecord(ctx, recordID, func(rec core.AttendanceRecord) *core.AbsenceMarker {
		if !rec.IsAuto || rec.Day(s.loc) != today {
			return nil
		}
		return &core.AbsenceMarker{
			ChildID:   rec.ChildID,
			Day:       today,
			RecordID:  rec.ID,
			CreatedAt: s.now(),
		}
	})
	if err != nil {
		err = fmt.Errorf("mark absent: %w", err)
	}
	s.observe("mark_absent", outcome, err)
	if outcome == core.OutcomeOK {
		slog.InfoContext(ctx, "Attendance record marked absent", "record_id", recordID)
	}
	return outcome, err
}

// DeleteRecord removes a record from history. No absence marker is written,
// so a deleted scheduled day is materialized again on the next run.
func (s *AttendanceService) DeleteRecord(ctx context.Context, recordID string) (core.Outcome, error) {
	outcome, err := s.repo.DeleteAttendanceRecord(ctx, recordID)
	if err != nil {
		err = fmt.Errorf("delete record: %w", err)
	}
	s.observe("delete", outcome, err)
	return outcome, err
}

// EditRecord replaces the start and end time of an existing record. The new
// range is not checked against other records of the child.
func (s *AttendanceService) EditRecord(ctx context.Context, recordID string, start time.Time, end *time.Time) (core.AttendanceRecord, core.Outcome, error) {
	rec, outcome, err := s.repo.UpdateAttendanceFunc(ctx,
		func(r core.AttendanceRecord) bool { return r.ID == recordID },
		func(r *core.AttendanceRecord) {
			r.StartTime = start
			r.EndTime = end
		})
	if err != nil {
		err = fmt.Errorf("edit record: %w", err)
	}
	s.observe("edit", outcome, err)
	return rec, outcome, err
}

// Status derives the child's status for the calendar day of day.
func (s *AttendanceService) Status(ctx context.Context, childID string, day time.Time) (core.Status, *core.AttendanceRecord, error) {
	records, err := s.repo.ListAttendance(ctx)
	if err != nil {
		return core.StatusNone, nil, fmt.Errorf("list attendance: %w", err)
	}
	rec := RecordForDay(records, childID, core.DayKey(day, s.loc), s.loc)
	return core.StatusOf(rec), rec, nil
}

// TodayRecord returns the child's record for the current day, if any.
func (s *AttendanceService) TodayRecord(ctx context.Context, childID string) (*core.AttendanceRecord, error) {
	_, rec, err := s.Status(ctx, childID, s.today())
	return rec, err
}

// Location returns the location calendar days are derived in.
func (s *AttendanceService) Location() *time.Location {
	return s.loc
}

// ListRecords returns every record, newest first. A non-empty childID keeps
// only that child's records.
func (s *AttendanceService) ListRecords(ctx context.Context, childID string) ([]core.AttendanceRecord, error) {
	records, err := s.repo.ListAttendance(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	out := make([]core.AttendanceRecord, 0, len(records))
	for _, r := range records {
		if childID == "" || r.ChildID == childID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

// RecordForDay returns the first record of the child starting on day.
func RecordForDay(records []core.AttendanceRecord, childID, day string, loc *time.Location) *core.AttendanceRecord {
	for i := range records {
		if records[i].ChildID == childID && records[i].Day(loc) == day {
			rec := records[i]
			return &rec
		}
	}
	return nil
}

// DashboardEntry is one child's line on the dashboard.
type DashboardEntry struct {
	Child      core.Child             `json:"child"`
	Status     core.Status            `json:"status"`
	Record     *core.AttendanceRecord `json:"record"`
	TotalHours float64                `json:"totalHours"`
}

// Dashboard is the reconciled view of the current day.
type Dashboard struct {
	Day          string           `json:"day"`
	Expected     int              `json:"expected"`
	Materialized int              `json:"materialized"`
	Children     []DashboardEntry `json:"children"`
}

// Dashboard reconciles the current day and then reports every child's
// status, scheduled children first. Children sharing a status keep their
// stored order.
func (s *AttendanceService) Dashboard(ctx context.Context) (Dashboard, error) {
	now := s.today()

	created := 0
	if s.reconciler != nil {
		n, err := s.reconciler.Reconcile(ctx, now)
		if err != nil {
			return Dashboard{}, fmt.Errorf("reconcile: %w", err)
		}
		created = n
	}

	children, err := s.repo.ListChildren(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list children: %w", err)
	}
	records, err := s.repo.ListAttendance(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list attendance: %w", err)
	}

	day := core.DayKey(now, s.loc)
	d := Dashboard{
		Day:          day,
		Materialized: created,
		Children:     make([]DashboardEntry, 0, len(children)),
	}
	for _, c := range children {
		rec := RecordForDay(records, c.ID, day, s.loc)
		status := core.StatusOf(rec)
		if status.Expected() {
			d.Expected++
		}
		d.Children = append(d.Children, DashboardEntry{
			Child:      c,
			Status:     status,
			Record:     rec,
			TotalHours: TotalHoursForChild(records, c.ID),
		})
	}
	sort.SliceStable(d.Children, func(i, j int) bool {
		return d.Children[i].Status.Priority() > d.Children[j].Status.Priority()
	})
	return d, nil
}

func (s *AttendanceService) observe(operation string, outcome core.Outcome, err error) {
	if err != nil {
		s.metrics.ObserveOperation(operation, "error")
		return
	}
	s.metrics.ObserveOperation(operation, outcome.String())
}
