package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"childminder/internal/core"
	"childminder/internal/repository"
)

// Reconciler materializes the day's scheduled attendance. It creates at most
// one record per (child, day) and never touches a day that already has a
// record of any origin, or that was marked absent.
type Reconciler struct {
	repo *repository.Repository
	settings
}

// NewReconciler creates a reconciler over repo.
func NewReconciler(repo *repository.Repository, opts ...Option) *Reconciler {
	return &Reconciler{repo: repo, settings: newSettings(opts)}
}

// Reconcile creates the auto records due on now's calendar day and returns
// how many were created. All new records are persisted in a single write;
// nothing is written when none are due.
func (r *Reconciler) Reconcile(ctx context.Context, now time.Time) (int, error) {
	created, err := r.reconcile(ctx, now)
	r.metrics.ObserveReconcile(created, err)
	return created, err
}

func (r *Reconciler) reconcile(ctx context.Context, now time.Time) (int, error) {
	if r.repo == nil {
		return 0, fmt.Errorf("reconciler not properly initialized")
	}

	now = now.In(r.loc)
	day := core.DayKey(now, r.loc)
	weekday := now.Weekday()

	children, err := r.repo.ListChildren(ctx)
	if err != nil {
		return 0, fmt.Errorf("list children: %w", err)
	}

	due := make([]core.Child, 0, len(children))
	for _, c := range children {
		if c.Schedule.Covers(weekday) {
			due = append(due, c)
		}
	}
	if len(due) == 0 {
		return 0, nil
	}

	added, err := r.repo.AppendAttendanceIf(ctx, func(current []core.AttendanceRecord, absences []core.AbsenceMarker) []core.AttendanceRecord {
		taken := make(map[string]bool, len(current)+len(absences))
		for _, rec := range current {
			if rec.Day(r.loc) == day {
				taken[rec.ChildID] = true
			}
		}
		for _, m := range absences {
			if m.Day == day {
				taken[m.ChildID] = true
			}
		}

		var out []core.AttendanceRecord
		for _, c := range due {
			if taken[c.ID] {
				continue
			}
			start, end, err := c.Schedule.Window(now)
			if err != nil {
				slog.WarnContext(ctx, "Skipping child with invalid schedule",
					"child_id", c.ID,
					"error", err)
				continue
			}
			out = append(out, core.AttendanceRecord{
				ChildID:   c.ID,
				StartTime: start,
				EndTime:   &end,
				IsAuto:    true,
			})
			taken[c.ID] = true
		}
		return out
	})
	if err != nil {
		return 0, fmt.Errorf("materialize scheduled attendance: %w", err)
	}

	if len(added) > 0 {
		slog.InfoContext(ctx, "Scheduled attendance materialized",
			"day", day,
			"created", len(added),
			"scheduled_children", len(due))
	}
	return len(added), nil
}
