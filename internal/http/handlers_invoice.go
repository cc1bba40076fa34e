package http

import (
	"errors"
	"net/http"

	"childminder/internal/core"
	applog "childminder/internal/log"
	"childminder/internal/services"
)

type dispatchResponse struct {
	Outcome string `json:"outcome"`
	ChildID string `json:"childId"`
}

// handleInvoice returns the invoice as JSON, or as plain text with ?format=text.
func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	childID := r.PathValue("id")

	inv, ok := s.invoiceCache.Get(childID)
	if !ok {
		built, outcome, err := s.deps.Invoices.Build(r.Context(), childID)
		if err != nil {
			writeServiceError(w, r, err, "failed to build invoice")
			return
		}
		if outcome == core.OutcomeNotFound {
			writeError(w, r, http.StatusNotFound, "child not found")
			return
		}
		s.invoiceCache.Set(childID, built)
		inv = built
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s.deps.Invoices.Render(inv)))
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleSendInvoice(w http.ResponseWriter, r *http.Request) {
	childID := r.PathValue("id")
	outcome, err := s.deps.Invoices.RequestDispatch(r.Context(), childID)
	switch {
	case errors.Is(err, services.ErrNoEmail):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, services.ErrDispatchUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeServiceError(w, r, err, "failed to queue invoice")
		return
	}

	s.structured.LogAttendance(r.Context(), applog.OpDispatch, childID, "", outcome.String())
	if outcome == core.OutcomeOK {
		writeJSON(w, http.StatusAccepted, dispatchResponse{Outcome: outcome.String(), ChildID: childID})
		return
	}
	writeOutcome(w, r, outcome, http.StatusAccepted, nil)
}
