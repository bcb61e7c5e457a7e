package family

import (
	"context"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
)

// Ports for the family store adapters.
type (
	// Reader covers the lookups that need no coordination.
	Reader interface {
		// GetUser returns a core NotFound error when the profile does not exist.
		GetUser(ctx context.Context, id string) (core.UserProfile, error)
		// GetFamily assembles the family aggregate with members, categories and
		// expenses in insertion order.
		GetFamily(ctx context.Context, id string) (core.Family, error)
		GetInvitation(ctx context.Context, id string) (core.Invitation, error)
		// ListInvitations returns matches newest first.
		ListInvitations(ctx context.Context, q core.InvitationQuery) ([]core.Invitation, error)
		SearchUsers(ctx context.Context, query string, limit int) ([]core.UserProfile, error)
	}

	// Tx is a unit of work. Writes become visible only when the enclosing
	// InTx call returns nil.
	Tx interface {
		Reader

		PutUser(ctx context.Context, u core.UserProfile) error

		// CreateFamily inserts the family row together with its members,
		// categories and expenses.
		CreateFamily(ctx context.Context, f core.Family) error
		DeleteFamily(ctx context.Context, id string) error
		// LockFamily bumps the family version. It fails with a Conflict
		// error when the stored version differs from version.
		LockFamily(ctx context.Context, id string, version int64) error
		SetFamilyBudget(ctx context.Context, familyID string, b core.Budget) error

		AddMember(ctx context.Context, familyID string, m core.FamilyMember) error
		UpdateMember(ctx context.Context, familyID string, m core.FamilyMember) error
		RemoveMember(ctx context.Context, familyID, memberID string) error

		// PutCategory and PutExpense upsert by id. A row that already lives
		// in another family is moved to familyID.
		PutCategory(ctx context.Context, familyID string, c core.Category) error
		PutExpense(ctx context.Context, familyID string, e core.Expense) error
		DeleteExpense(ctx context.Context, familyID, expenseID string) error

		CreateInvitation(ctx context.Context, inv core.Invitation) error
		// SetInvitationStatus moves an invitation from one status to another
		// and fails with a Conflict error if it is no longer in from.
		SetInvitationStatus(ctx context.Context, id string, from, to core.InvitationStatus) error
	}

	// Store is implemented by the sqlite repository and the in-memory store.
	Store interface {
		Reader
		InTx(ctx context.Context, fn func(Tx) error) error
	}

	// Listener is told about every committed change. Listeners run after the
	// transaction and their failures never reach the caller.
	Listener interface {
		FamilyChanged(ctx context.Context, change core.FamilyChange)
	}

	// Recorder receives operation outcomes for metrics.
	Recorder interface {
		ObserveOperation(op string, kind core.Kind, ok bool)
	}
)

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, change core.FamilyChange)

func (f ListenerFunc) FamilyChanged(ctx context.Context, change core.FamilyChange) {
	f(ctx, change)
}
