package core

// Outcome tells a caller whether a lenient operation changed anything.
// Guard rejections and unknown ids are not errors; they are NoOp and NotFound.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNoOp
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoOp:
		return "noop"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Applied reports whether the operation changed persisted state.
func (o Outcome) Applied() bool {
	return o == OutcomeOK
}

// Status is the derived daily attendance state of a child.
type Status string

const (
	StatusNone       Status = "none"
	StatusScheduled  Status = "scheduled"
	StatusCheckedIn  Status = "checked-in"
	StatusCheckedOut Status = "checked-out"
)

// Priority orders statuses for the dashboard, highest first.
func (s Status) Priority() int {
	switch s {
	case StatusScheduled:
		return 3
	case StatusCheckedIn:
		return 2
	case StatusCheckedOut:
		return 1
	default:
		return 0
	}
}

// Expected reports whether the child is expected (or present) today.
func (s Status) Expected() bool {
	return s == StatusScheduled || s == StatusCheckedIn
}

// StatusOf derives the status for the (at most one) record of a day.
func StatusOf(r *AttendanceRecord) Status {
	switch {
	case r == nil:
		return StatusNone
	case r.IsAuto:
		return StatusScheduled
	case r.IsOpen():
		return StatusCheckedIn
	default:
		return StatusCheckedOut
	}
}
