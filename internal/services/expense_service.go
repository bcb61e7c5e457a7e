package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/family"
)

// FamilyResolver returns the caller's family, bootstrapping it if needed.
type FamilyResolver interface {
	GetFamily(ctx context.Context, who core.Identity) (core.Family, error)
}

// ExpenseInput is the editable part of an expense.
type ExpenseInput struct {
	Amount     core.Money `json:"amount"`
	CategoryID string     `json:"categoryId"`
	Date       time.Time  `json:"date"`
	Currency   string     `json:"currency"`
}

// ExpenseService manages the records inside the caller's family: expenses,
// categories and budget settings. Membership changes belong to the coordinator.
type ExpenseService struct {
	store     family.Store
	families  FamilyResolver
	listeners []family.Listener
	newID     func() string
	now       func() time.Time
}

func NewExpenseService(store family.Store, families FamilyResolver, listeners ...family.Listener) *ExpenseService {
	return &ExpenseService{
		store:     store,
		families:  families,
		listeners: listeners,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// ListExpenses returns the expenses of the caller's family.
func (s *ExpenseService) ListExpenses(ctx context.Context, who core.Identity) ([]core.Expense, error) {
	f, err := s.family(ctx, "services.ListExpenses", who)
	if err != nil {
		return nil, err
	}
	return f.Expenses, nil
}

// AddExpense books an expense owned by the caller.
func (s *ExpenseService) AddExpense(ctx context.Context, who core.Identity, in ExpenseInput) (core.Expense, error) {
	const op = "services.AddExpense"
	e := core.Expense{
		ID:         s.newID(),
		Amount:     in.Amount,
		CategoryID: strings.TrimSpace(in.CategoryID),
		Date:       in.Date,
		Currency:   strings.ToUpper(strings.TrimSpace(in.Currency)),
		UserID:     who.UserID,
		UserName:   who.Name,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, core.Invalid(op, err)
	}

	_, err := s.mutate(ctx, op, who, core.EventExpenseChanged, func(tx family.Tx, f core.Family) error {
		if _, ok := f.Category(e.CategoryID); !ok {
			return core.NotFound(op, "category not found")
		}
		return tx.PutExpense(ctx, f.ID, e)
	})
	if err != nil {
		return core.Expense{}, err
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID, "amount_cents", e.Amount.Cents, "category_id", e.CategoryID, "user_id", e.UserID)
	return e, nil
}

// UpdateExpense replaces the editable fields of one of the caller's expenses.
func (s *ExpenseService) UpdateExpense(ctx context.Context, who core.Identity, id string, in ExpenseInput) (core.Expense, error) {
	const op = "services.UpdateExpense"
	var updated core.Expense
	_, err := s.mutate(ctx, op, who, core.EventExpenseChanged, func(tx family.Tx, f core.Family) error {
		e, err := ownedExpense(op, f, who, id)
		if err != nil {
			return err
		}
		e.Amount = in.Amount
		e.CategoryID = strings.TrimSpace(in.CategoryID)
		e.Date = in.Date
		if c := strings.TrimSpace(in.Currency); c != "" {
			e.Currency = strings.ToUpper(c)
		}
		if err := e.Validate(); err != nil {
			return core.Invalid(op, err)
		}
		if _, ok := f.Category(e.CategoryID); !ok {
			return core.NotFound(op, "category not found")
		}
		updated = e
		return tx.PutExpense(ctx, f.ID, e)
	})
	if err != nil {
		return core.Expense{}, err
	}
	return updated, nil
}

// DeleteExpense removes one of the caller's expenses.
func (s *ExpenseService) DeleteExpense(ctx context.Context, who core.Identity, id string) error {
	const op = "services.DeleteExpense"
	_, err := s.mutate(ctx, op, who, core.EventExpenseChanged, func(tx family.Tx, f core.Family) error {
		if _, err := ownedExpense(op, f, who, id); err != nil {
			return err
		}
		return tx.DeleteExpense(ctx, f.ID, id)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Expense deleted", "id", id, "user_id", who.UserID)
	return nil
}

func (s *ExpenseService) ListCategories(ctx context.Context, who core.Identity) ([]core.Category, error) {
	f, err := s.family(ctx, "services.ListCategories", who)
	if err != nil {
		return nil, err
	}
	return f.Categories, nil
}

// AddCategory creates a category owned by the caller.
func (s *ExpenseService) AddCategory(ctx context.Context, who core.Identity, name, color string) (core.Category, error) {
	const op = "services.AddCategory"
	c := core.Category{
		ID:     s.newID(),
		Name:   strings.TrimSpace(name),
		Color:  strings.TrimSpace(color),
		UserID: who.UserID,
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, core.Invalid(op, err)
	}
	_, err := s.mutate(ctx, op, who, core.EventCategoryChanged, func(tx family.Tx, f core.Family) error {
		return tx.PutCategory(ctx, f.ID, c)
	})
	if err != nil {
		return core.Category{}, err
	}
	return c, nil
}

// SetBudget stores the limit on both the caller's profile and their family.
func (s *ExpenseService) SetBudget(ctx context.Context, who core.Identity, b core.Budget) (core.Family, error) {
	const op = "services.SetBudget"
	if b.MonthlyLimit == nil {
		return core.Family{}, core.Invalid(op, errors.New("monthly limit is required"))
	}
	if err := b.Validate(); err != nil {
		return core.Family{}, core.Invalid(op, err)
	}
	return s.mutate(ctx, op, who, core.EventBudgetChanged, func(tx family.Tx, f core.Family) error {
		u, err := tx.GetUser(ctx, who.UserID)
		if err != nil {
			return err
		}
		u.Budget = b.Clone()
		if err := tx.PutUser(ctx, u); err != nil {
			return err
		}
		return tx.SetFamilyBudget(ctx, f.ID, b)
	})
}

// Overview builds the budget report of the caller's family.
func (s *ExpenseService) Overview(ctx context.Context, who core.Identity, filter core.OverviewFilter) (core.Overview, error) {
	f, err := s.family(ctx, "services.Overview", who)
	if err != nil {
		return core.Overview{}, err
	}
	return core.BuildOverview(f, filter, s.now()), nil
}

func (s *ExpenseService) family(ctx context.Context, op string, who core.Identity) (core.Family, error) {
	if !who.Authenticated() {
		return core.Family{}, core.Unauthenticated(op)
	}
	return s.families.GetFamily(ctx, who)
}

// mutate runs fn in a transaction against the caller's current family,
// bumping its version, and notifies listeners after commit.
func (s *ExpenseService) mutate(ctx context.Context, op string, who core.Identity, event string, fn func(family.Tx, core.Family) error) (core.Family, error) {
	if _, err := s.family(ctx, op, who); err != nil {
		return core.Family{}, err
	}

	var fam core.Family
	err := s.store.InTx(ctx, func(tx family.Tx) error {
		u, err := tx.GetUser(ctx, who.UserID)
		if err != nil {
			return err
		}
		if u.FamilyID == "" {
			return core.NotFound(op, "user does not belong to a family")
		}
		f, err := tx.GetFamily(ctx, u.FamilyID)
		if err != nil {
			return err
		}
		if !f.HasMember(who.UserID) {
			return core.Unauthorized(op, "you are not a member of this family")
		}
		if err := tx.LockFamily(ctx, f.ID, f.Version); err != nil {
			return err
		}
		if err := fn(tx, f); err != nil {
			return err
		}
		fam, err = tx.GetFamily(ctx, f.ID)
		return err
	})
	if err != nil {
		return core.Family{}, err
	}

	change := core.FamilyChange{Event: event, FamilyIDs: []string{fam.ID}, ActorID: who.UserID, At: s.now().UTC()}
	for _, l := range s.listeners {
		l.FamilyChanged(ctx, change)
	}
	return fam, nil
}

func ownedExpense(op string, f core.Family, who core.Identity, id string) (core.Expense, error) {
	e, ok := f.Expense(id)
	if !ok {
		return core.Expense{}, core.NotFound(op, "expense not found")
	}
	if e.UserID != who.UserID {
		return core.Expense{}, core.Unauthorized(op, "only the owner can change this expense")
	}
	return e, nil
}
