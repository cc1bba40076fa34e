package services

import (
	"context"
	"fmt"

	"childminder/internal/core"
	"childminder/internal/repository"
)

// ExpenseService validates and records business expenses.
type ExpenseService struct {
	repo *repository.Repository
}

func NewExpenseService(repo *repository.Repository) *ExpenseService {
	return &ExpenseService{repo: repo}
}

// AddExpense validates and appends an expense.
func (s *ExpenseService) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	saved, err := s.repo.AddExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	return saved, nil
}

// ExpenseReport lists every expense with the running total.
type ExpenseReport struct {
	Expenses []core.Expense `json:"expenses"`
	Total    core.Money     `json:"total"`
}

func (s *ExpenseService) ListExpenses(ctx context.Context) (ExpenseReport, error) {
	expenses, err := s.repo.ListExpenses(ctx)
	if err != nil {
		return ExpenseReport{}, fmt.Errorf("list expenses: %w", err)
	}
	total := core.Money{}
	for _, e := range expenses {
		total = core.NewMoney(total.Add(e.Amount.Decimal))
	}
	return ExpenseReport{Expenses: expenses, Total: total.Round2()}, nil
}
