// Package assistant implements the tool calls a voice assistant can make
// against the attendance engine, and the name resolution they rely on.
package assistant

import (
	"errors"
	"fmt"
	"strings"

	"childminder/internal/core"
)

// ErrChildNotFound is returned when no child matches a spoken name.
var ErrChildNotFound = errors.New("no child matches name")

// AmbiguousNameError lists the children a name could refer to.
type AmbiguousNameError struct {
	Name       string
	Candidates []core.Child
}

func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("name %q matches %d children: %s", e.Name, len(e.Candidates), strings.Join(e.Names(), ", "))
}

// Names returns the candidate names in store order.
func (e *AmbiguousNameError) Names() []string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.Name
	}
	return names
}

// ResolveChild maps a spoken name to a child.
//
// A case-insensitive exact match wins outright. Otherwise every child whose
// name contains the query, or is contained in it, is a candidate: one
// candidate resolves, none yields ErrChildNotFound and several yield an
// *AmbiguousNameError.
func ResolveChild(children []core.Child, name string) (core.Child, error) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return core.Child{}, ErrChildNotFound
	}

	var exact, candidates []core.Child
	for _, c := range children {
		n := strings.ToLower(strings.TrimSpace(c.Name))
		if n == "" {
			continue
		}
		switch {
		case n == query:
			exact = append(exact, c)
		case strings.Contains(n, query) || strings.Contains(query, n):
			candidates = append(candidates, c)
		}
	}

	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		return core.Child{}, &AmbiguousNameError{Name: name, Candidates: exact}
	case len(candidates) == 1:
		return candidates[0], nil
	case len(candidates) > 1:
		return core.Child{}, &AmbiguousNameError{Name: name, Candidates: candidates}
	default:
		return core.Child{}, ErrChildNotFound
	}
}
