package http

import (
	"net/http"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/services"
)

type expenseRequest struct {
	Amount     core.Money `json:"amount"`
	CategoryID string     `json:"categoryId"`
	Date       string     `json:"date"`
	Currency   string     `json:"currency"`
}

func (req expenseRequest) input() (services.ExpenseInput, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return services.ExpenseInput{}, err
	}
	return services.ExpenseInput{
		Amount:     req.Amount,
		CategoryID: req.CategoryID,
		Date:       date,
		Currency:   sanitizeInput(req.Currency),
	}, nil
}

func decodeExpense(w http.ResponseWriter, r *http.Request) (services.ExpenseInput, error) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return services.ExpenseInput{}, err
	}
	return req.input()
}

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	list, err := s.expenses.ListExpenses(r.Context(), who)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(list))
	return nil
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	in, err := decodeExpense(w, r)
	if err != nil {
		return err
	}

	var e core.Expense
	err = s.withRetry(r.Context(), "add_expense", func() error {
		var err error
		e, err = s.expenses.AddExpense(r.Context(), who, in)
		return err
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, e)
	return nil
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	in, err := decodeExpense(w, r)
	if err != nil {
		return err
	}
	id := r.PathValue("id")

	var e core.Expense
	err = s.withRetry(r.Context(), "update_expense", func() error {
		var err error
		e, err = s.expenses.UpdateExpense(r.Context(), who, id, in)
		return err
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, e)
	return nil
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	id := r.PathValue("id")
	err := s.withRetry(r.Context(), "delete_expense", func() error {
		return s.expenses.DeleteExpense(r.Context(), who, id)
	})
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	cats, err := s.expenses.ListCategories(r.Context(), who)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, nonNil(cats))
	return nil
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	var c core.Category
	err := s.withRetry(r.Context(), "add_category", func() error {
		var err error
		c, err = s.expenses.AddCategory(r.Context(), who, sanitizeInput(req.Name), sanitizeInput(req.Color))
		return err
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, c)
	return nil
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	var b core.Budget
	if err := decodeJSON(w, r, &b); err != nil {
		return err
	}

	var f core.Family
	err := s.withRetry(r.Context(), "set_budget", func() error {
		var err error
		f, err = s.expenses.SetBudget(r.Context(), who, b)
		return err
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, f.Budget)
	return nil
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, who core.Identity) error {
	o, err := s.expenses.Overview(r.Context(), who, parseOverviewFilter(r.URL.Query()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, o)
	return nil
}
