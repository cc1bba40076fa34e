package services

import (
	"context"
	"fmt"
	"strings"

	"childminder/internal/core"
	"childminder/internal/repository"
)

// ChildService validates child profiles and serves per-child aggregates.
type ChildService struct {
	repo *repository.Repository
	settings
}

func NewChildService(repo *repository.Repository, opts ...Option) *ChildService {
	return &ChildService{repo: repo, settings: newSettings(opts)}
}

func (s *ChildService) ListChildren(ctx context.Context) ([]core.Child, error) {
	children, err := s.repo.ListChildren(ctx)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return children, nil
}

func (s *ChildService) GetChild(ctx context.Context, id string) (core.Child, core.Outcome, error) {
	return s.repo.GetChild(ctx, id)
}

// SaveChild validates and upserts a child. A child without ID is created.
func (s *ChildService) SaveChild(ctx context.Context, child core.Child) (core.Child, core.Outcome, error) {
	child.Name = strings.TrimSpace(child.Name)
	child.Email = strings.TrimSpace(child.Email)
	if err := child.Validate(); err != nil {
		return core.Child{}, core.OutcomeNoOp, err
	}
	return s.repo.UpsertChild(ctx, child)
}

// ChildHours is the all-time total and the current month's daily buckets.
type ChildHours struct {
	ChildID string    `json:"childId"`
	Total   float64   `json:"total"`
	Month   string    `json:"month"`
	Daily   []float64 `json:"daily"`
}

// Hours aggregates the child's closed sessions.
func (s *ChildService) Hours(ctx context.Context, childID string) (ChildHours, core.Outcome, error) {
	records, outcome, err := s.recordsFor(ctx, childID)
	if err != nil || outcome != core.OutcomeOK {
		return ChildHours{}, outcome, err
	}
	now := s.today()
	return ChildHours{
		ChildID: childID,
		Total:   TotalHoursForChild(records, childID),
		Month:   now.Format("2006-01"),
		Daily:   MonthlyHoursForChild(records, childID, now),
	}, core.OutcomeOK, nil
}

// History lists the child's closed sessions, newest first.
func (s *ChildService) History(ctx context.Context, childID string) ([]core.AttendanceRecord, core.Outcome, error) {
	records, outcome, err := s.recordsFor(ctx, childID)
	if err != nil || outcome != core.OutcomeOK {
		return nil, outcome, err
	}
	return History(records, childID), core.OutcomeOK, nil
}

func (s *ChildService) recordsFor(ctx context.Context, childID string) ([]core.AttendanceRecord, core.Outcome, error) {
	if _, outcome, err := s.repo.GetChild(ctx, childID); err != nil || outcome != core.OutcomeOK {
		return nil, outcome, err
	}
	records, err := s.repo.ListAttendance(ctx)
	if err != nil {
		return nil, core.OutcomeNoOp, fmt.Errorf("list attendance: %w", err)
	}
	return records, core.OutcomeOK, nil
}
