package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"childminder/internal/core"
	"childminder/internal/services"
)

// Tool names accepted by Execute.
const (
	ToolAddChild      = "addChild"
	ToolCheckInChild  = "checkInChild"
	ToolCheckOutChild = "checkOutChild"
	ToolMarkAbsent    = "markAbsent"
	ToolListChildren  = "listChildren"
)

// ErrUnknownTool is returned for a tool name Execute does not know.
var ErrUnknownTool = errors.New("unknown tool")

// Args are the arguments of a tool call. Only Name is used.
type Args struct {
	Name string `json:"name"`
}

// Result is the message spoken back to the user.
type Result struct {
	Tool           string `json:"tool"`
	Message        string `json:"message"`
	RequiresReload bool   `json:"requiresReload"`
}

// Tools runs assistant tool calls through the same services the API uses.
type Tools struct {
	children   *services.ChildService
	attendance *services.AttendanceService
	currency   string
}

func NewTools(children *services.ChildService, attendance *services.AttendanceService, currency string) *Tools {
	if currency == "" {
		currency = "£"
	}
	return &Tools{children: children, attendance: attendance, currency: currency}
}

// Names lists the supported tools.
func (t *Tools) Names() []string {
	return []string{ToolAddChild, ToolCheckInChild, ToolCheckOutChild, ToolMarkAbsent, ToolListChildren}
}

// Execute runs one tool. Domain outcomes (unknown child, nothing to do) are
// reported in the message; only storage failures and unknown tools are
// returned as errors.
func (t *Tools) Execute(ctx context.Context, tool string, args Args) (Result, error) {
	var (
		res Result
		err error
	)
	switch tool {
	case ToolAddChild:
		res, err = t.addChild(ctx, args.Name)
	case ToolCheckInChild:
		res, err = t.checkIn(ctx, args.Name)
	case ToolCheckOutChild:
		res, err = t.checkOut(ctx, args.Name)
	case ToolMarkAbsent:
		res, err = t.markAbsent(ctx, args.Name)
	case ToolListChildren:
		res, err = t.listChildren(ctx)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	res.Tool = tool
	if err != nil {
		slog.ErrorContext(ctx, "Assistant tool failed", "tool", tool, "error", err)
		return res, err
	}
	slog.InfoContext(ctx, "Assistant tool executed",
		"tool", tool,
		"name", args.Name,
		"requires_reload", res.RequiresReload)
	return res, nil
}

func (t *Tools) addChild(ctx context.Context, name string) (Result, error) {
	name = strings.TrimSpace(name)
	child, _, err := t.children.SaveChild(ctx, core.Child{Name: name})
	if errors.Is(err, core.ErrEmptyName) {
		return Result{Message: "I need a name to add a child."}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{
		Message:        fmt.Sprintf("Successfully added %s to your childminding list with a rate of %s/hour.", child.Name, child.Rate.Format(t.currency)),
		RequiresReload: true,
	}, nil
}

func (t *Tools) checkIn(ctx context.Context, name string) (Result, error) {
	child, msg, err := t.resolve(ctx, name)
	if err != nil || msg != "" {
		return Result{Message: msg}, err
	}
	rec, outcome, err := t.attendance.CheckIn(ctx, child.ID)
	if err != nil {
		return Result{}, err
	}
	if outcome != core.OutcomeOK {
		return Result{Message: fmt.Sprintf("%s is already checked in or has a session today.", child.Name)}, nil
	}
	return Result{
		Message:        fmt.Sprintf("Successfully checked in %s at %s.", child.Name, rec.StartTime.Format("15:04")),
		RequiresReload: true,
	}, nil
}

func (t *Tools) checkOut(ctx context.Context, name string) (Result, error) {
	child, msg, err := t.resolve(ctx, name)
	if err != nil || msg != "" {
		return Result{Message: msg}, err
	}
	rec, outcome, err := t.attendance.CheckOut(ctx, child.ID)
	if err != nil {
		return Result{}, err
	}
	if outcome != core.OutcomeOK {
		return Result{Message: fmt.Sprintf("%s is not currently checked in.", child.Name)}, nil
	}
	return Result{
		Message:        fmt.Sprintf("Successfully checked out %s at %s.", child.Name, rec.EndTime.Format("15:04")),
		RequiresReload: true,
	}, nil
}

func (t *Tools) markAbsent(ctx context.Context, name string) (Result, error) {
	child, msg, err := t.resolve(ctx, name)
	if err != nil || msg != "" {
		return Result{Message: msg}, err
	}
	rec, err := t.attendance.TodayRecord(ctx, child.ID)
	if err != nil {
		return Result{}, err
	}
	if rec == nil || !rec.IsAuto {
		return Result{Message: fmt.Sprintf("%s doesn't have a scheduled session for today.", child.Name)}, nil
	}
	outcome, err := t.attendance.MarkAbsent(ctx, rec.ID)
	if err != nil {
		return Result{}, err
	}
	if outcome != core.OutcomeOK {
		return Result{Message: fmt.Sprintf("%s doesn't have a scheduled session for today.", child.Name)}, nil
	}
	return Result{
		Message:        fmt.Sprintf("Marked %s as absent for today.", child.Name),
		RequiresReload: true,
	}, nil
}

func (t *Tools) listChildren(ctx context.Context) (Result, error) {
	children, err := t.children.ListChildren(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(children) == 0 {
		return Result{Message: "You don't have any children registered yet."}, nil
	}
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = fmt.Sprintf("%s (%s/hour)", c.Name, c.Rate.Format(t.currency))
	}
	noun := "child"
	if len(children) > 1 {
		noun = "children"
	}
	return Result{
		Message: fmt.Sprintf("You have %d %s registered: %s", len(children), noun, strings.Join(parts, ", ")),
	}, nil
}

// resolve returns either a child, or a message explaining why the name did
// not resolve.
func (t *Tools) resolve(ctx context.Context, name string) (core.Child, string, error) {
	children, err := t.children.ListChildren(ctx)
	if err != nil {
		return core.Child{}, "", err
	}
	child, err := ResolveChild(children, name)
	var ambiguous *AmbiguousNameError
	switch {
	case err == nil:
		return child, "", nil
	case errors.As(err, &ambiguous):
		return core.Child{}, fmt.Sprintf("More than one child matches %s: %s. Which one did you mean?",
			name, strings.Join(ambiguous.Names(), ", ")), nil
	default:
		return core.Child{}, fmt.Sprintf("I couldn't find a child named %s. Please check the name and try again.", name), nil
	}
}
