package http

import (
	"net/http"

	"childminder/internal/core"
)

// childRequest is the writable part of a child profile.
type childRequest struct {
	Name     string         `json:"name"`
	Rate     core.Money     `json:"rate"`
	Email    string         `json:"email"`
	Active   *bool          `json:"active"`
	Schedule *core.Schedule `json:"schedule"`
}

func (c childRequest) toChild(id string) core.Child {
	child := core.Child{
		ID:       id,
		Name:     c.Name,
		Rate:     c.Rate,
		Email:    c.Email,
		Active:   true,
		Schedule: c.Schedule,
	}
	if c.Active != nil {
		child.Active = *c.Active
	}
	return child
}

func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := s.deps.Children.ListChildren(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to list children")
		return
	}
	writeJSON(w, http.StatusOK, children)
}

func (s *Server) handleGetChild(w http.ResponseWriter, r *http.Request) {
	child, outcome, err := s.deps.Children.GetChild(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to load child")
		return
	}
	if outcome == core.OutcomeNotFound {
		writeError(w, r, http.StatusNotFound, "child not found")
		return
	}
	writeJSON(w, http.StatusOK, child)
}

func (s *Server) handleCreateChild(w http.ResponseWriter, r *http.Request) {
	var req childRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	child, outcome, err := s.deps.Children.SaveChild(r.Context(), req.toChild(""))
	if err != nil {
		writeServiceError(w, r, err, "failed to save child")
		return
	}
	s.invalidate()
	writeOutcome(w, r, outcome, http.StatusCreated, child)
}

func (s *Server) handleUpdateChild(w http.ResponseWriter, r *http.Request) {
	var req childRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	existing, outcome, err := s.deps.Children.GetChild(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "failed to load child")
		return
	}
	if outcome == core.OutcomeNotFound {
		writeError(w, r, http.StatusNotFound, "child not found")
		return
	}
	update := req.toChild(id)
	if req.Active == nil {
		update.Active = existing.Active
	}

	child, outcome, err := s.deps.Children.SaveChild(r.Context(), update)
	if err != nil {
		writeServiceError(w, r, err, "failed to save child")
		return
	}
	if outcome.Applied() {
		s.invalidate()
	}
	writeOutcome(w, r, outcome, http.StatusOK, child)
}

func (s *Server) handleChildHours(w http.ResponseWriter, r *http.Request) {
	hours, outcome, err := s.deps.Children.Hours(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to aggregate hours")
		return
	}
	if outcome == core.OutcomeNotFound {
		writeError(w, r, http.StatusNotFound, "child not found")
		return
	}
	writeJSON(w, http.StatusOK, hours)
}

func (s *Server) handleChildHistory(w http.ResponseWriter, r *http.Request) {
	history, outcome, err := s.deps.Children.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, "failed to load history")
		return
	}
	if outcome == core.OutcomeNotFound {
		writeError(w, r, http.StatusNotFound, "child not found")
		return
	}
	writeJSON(w, http.StatusOK, history)
}
