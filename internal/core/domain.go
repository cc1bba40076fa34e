package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// DayLayout is the calendar-day key format used for (child, day) lookups.
const DayLayout = "2006-01-02"

// ExpenseType is the only expense tag currently produced.
const ExpenseType = "expense"

type (
	// Schedule is a recurring weekly booking. Days holds weekday indexes, Sunday = 0.
	Schedule struct {
		Enabled bool   `json:"enabled"`
		Days    []int  `json:"days"`
		Start   string `json:"start"`
		End     string `json:"end"`
	}

	Child struct {
		ID       string    `json:"id"`
		Name     string    `json:"name"`
		Rate     Money     `json:"rate"`
		Email    string    `json:"email,omitempty"`
		Active   bool      `json:"active"`
		Schedule *Schedule `json:"schedule,omitempty"`
	}

	// AttendanceRecord is one session. A nil EndTime means the session is still open.
	AttendanceRecord struct {
		ID        string     `json:"id"`
		ChildID   string     `json:"childId"`
		StartTime time.Time  `json:"startTime"`
		EndTime   *time.Time `json:"endTime"`
		IsAuto    bool       `json:"isAuto,omitempty"`
	}

	Expense struct {
		ID          string    `json:"id"`
		Description string    `json:"description"`
		Amount      Money     `json:"amount"`
		Date        time.Time `json:"date"`
		Type        string    `json:"type"`
	}

	// AbsenceMarker suppresses materialization of a scheduled day after the
	// childminder marked the child absent for it.
	AbsenceMarker struct {
		ChildID   string    `json:"childId"`
		Day       string    `json:"day"`
		RecordID  string    `json:"recordId"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

var (
	ErrEmptyName        = errors.New("empty name")
	ErrNegativeRate     = errors.New("rate must not be negative")
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrInvalidClock     = errors.New("invalid clock time")
	ErrInvalidWeekday   = errors.New("invalid weekday")
	ErrEmptyDescription = errors.New("empty description")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrTooLong          = errors.New("too long (max 200 characters)")
)

// IsValidation reports whether err is one of the validation sentinels above.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyName, ErrNegativeRate, ErrInvalidSchedule, ErrInvalidClock,
		ErrInvalidWeekday, ErrEmptyDescription, ErrNegativeAmount, ErrTooLong,
		ErrInvalidAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ClockTime is a wall-clock time of day in "HH:MM" form.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24h). A single-digit hour is accepted.
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On returns the instant at this clock time on the calendar day of day,
// in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

func (c ClockTime) Before(other ClockTime) bool {
	if c.Hour != other.Hour {
		return c.Hour < other.Hour
	}
	return c.Minute < other.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Validate checks an enabled schedule has at least one weekday and start < end.
// Disabled schedules are not checked.
func (s Schedule) Validate() error {
	if !s.Enabled {
		return nil
	}
	if len(s.Days) == 0 {
		return fmt.Errorf("%w: no days selected", ErrInvalidSchedule)
	}
	for _, d := range s.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: %d", ErrInvalidWeekday, d)
		}
	}
	start, err := ParseClock(s.Start)
	if err != nil {
		return err
	}
	end, err := ParseClock(s.End)
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidSchedule, start, end)
	}
	return nil
}

// Covers reports whether the schedule is enabled for the given weekday.
func (s *Schedule) Covers(day time.Weekday) bool {
	if s == nil || !s.Enabled {
		return false
	}
	return slices.Contains(s.Days, int(day))
}

// Window returns the scheduled start and end instants on the given day.
func (s Schedule) Window(day time.Time) (time.Time, time.Time, error) {
	start, err := ParseClock(s.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseClock(s.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start.On(day), end.On(day), nil
}

func (c Child) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 200 {
		return fmt.Errorf("name %w", ErrTooLong)
	}
	if c.Rate.IsNegative() {
		return ErrNegativeRate
	}
	if c.Schedule != nil {
		if err := c.Schedule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CanInvoice reports whether an invoice can be e-mailed for the child.
func (c Child) CanInvoice() bool {
	return strings.TrimSpace(c.Email) != ""
}

func (r AttendanceRecord) IsOpen() bool {
	return r.EndTime == nil
}

// Day returns the calendar day key of the record's start in loc.
func (r AttendanceRecord) Day(loc *time.Location) string {
	return DayKey(r.StartTime, loc)
}

// DayKey formats t as a calendar day in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return fmt.Errorf("description %w", ErrTooLong)
	}
	if e.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}
