package http

import (
	"net/http"

	"childminder/internal/core"
)

type expenseRequest struct {
	Description string     `json:"description"`
	Amount      core.Money `json:"amount"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Expenses.ListExpenses(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to list expenses")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	expense, err := s.deps.Expenses.AddExpense(r.Context(), core.Expense{
		Description: req.Description,
		Amount:      req.Amount,
	})
	if err != nil {
		writeServiceError(w, r, err, "failed to save expense")
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}
