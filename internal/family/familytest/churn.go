// Package familytest drives a family.Store through concurrent membership
// changes and checks the store is consistent afterwards.
package familytest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/family"
)

// Store is a family.Store that can enumerate its families.
type Store interface {
	family.Store
	FamilyIDs(ctx context.Context) ([]string, error)
}

// Churn registers users, each with one category and one expense, and then
// runs rounds of invites followed by accepts racing removals. Rejections
// the protocol allows under contention are tolerated; anything else fails
// the test. The store is checked once all rounds are done.
func Churn(t *testing.T, store Store, coord *family.Coordinator, users, rounds int) {
	t.Helper()
	ctx := context.Background()

	ids := make([]string, users)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%d", i)
		who := identity(ids[i])
		if _, err := coord.RegisterUser(ctx, who); err != nil {
			t.Fatalf("register %s: %v", who.UserID, err)
		}
		f, err := coord.GetFamily(ctx, who)
		if err != nil {
			t.Fatalf("family of %s: %v", who.UserID, err)
		}
		err = store.InTx(ctx, func(tx family.Tx) error {
			cat := core.Category{ID: "cat-" + who.UserID, Name: "Cat " + who.UserID, UserID: who.UserID}
			if err := tx.PutCategory(ctx, f.ID, cat); err != nil {
				return err
			}
			return tx.PutExpense(ctx, f.ID, core.Expense{
				ID: "exp-" + who.UserID, UserID: who.UserID, CategoryID: cat.ID,
				Amount: core.Money{Cents: 500}, Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			})
		})
		if err != nil {
			t.Fatalf("seed %s: %v", who.UserID, err)
		}
	}

	for r := range rounds {
		run(t, users, func(i int) error {
			to := ids[(i+r+1)%users]
			_, err := coord.Invite(ctx, identity(ids[i]), to)
			return err
		})

		run(t, users, func(i int) error {
			who := identity(ids[i])
			if (i+r)%3 == 0 {
				return removeSomeone(ctx, store, coord, who)
			}
			pending, err := coord.PendingInvitations(ctx, who)
			if err != nil || len(pending) == 0 {
				return err
			}
			_, err = coord.Accept(ctx, who, pending[0].ID)
			return err
		})
	}

	Check(t, store, ids)
}

// Check asserts that every user's familyId names a family listing them, that
// every stored family is non-empty and consistent with its expenses filed
// under categories it holds, and that each user is a member exactly once
// with their expense in their own family.
func Check(t *testing.T, store Store, users []string) {
	t.Helper()
	ctx := context.Background()

	known := make(map[string]bool, len(users))
	for _, id := range users {
		known[id] = true
		u, err := store.GetUser(ctx, id)
		if err != nil {
			t.Fatalf("user %s: %v", id, err)
		}
		f, err := store.GetFamily(ctx, u.FamilyID)
		if err != nil {
			t.Fatalf("user %s points at %q: %v", id, u.FamilyID, err)
		}
		if !f.HasMember(id) {
			t.Errorf("family %s does not list user %s", f.ID, id)
		}
		if _, ok := f.Expense("exp-" + id); !ok {
			t.Errorf("expense of %s is not in their family %s", id, f.ID)
		}
	}

	familyIDs, err := store.FamilyIDs(ctx)
	if err != nil {
		t.Fatalf("list families: %v", err)
	}
	members, expenses := 0, 0
	for _, fid := range familyIDs {
		f, err := store.GetFamily(ctx, fid)
		if err != nil {
			t.Fatalf("family %s: %v", fid, err)
		}
		if len(f.Members) == 0 {
			t.Errorf("family %s is empty", fid)
		}
		if err := core.CheckFamily(f); err != nil {
			t.Errorf("family %s: %v", fid, err)
		}
		for _, e := range f.Expenses {
			if _, ok := f.Category(e.CategoryID); !ok {
				t.Errorf("family %s: expense %s references missing category %s", fid, e.ID, e.CategoryID)
			}
		}
		for _, m := range f.Members {
			if !known[m.ID] {
				t.Errorf("family %s lists unknown member %s", fid, m.ID)
			}
		}
		members += len(f.Members)
		expenses += len(f.Expenses)
	}
	if members != len(users) {
		t.Errorf("member entries = %d, want %d", members, len(users))
	}
	if expenses != len(users) {
		t.Errorf("expenses = %d, want %d", expenses, len(users))
	}
}

func identity(id string) core.Identity {
	return core.Identity{UserID: id, Name: "User " + id, Email: id + "@example.com"}
}

// removeSomeone removes the first other member of the caller's family.
func removeSomeone(ctx context.Context, store Store, coord *family.Coordinator, who core.Identity) error {
	u, err := store.GetUser(ctx, who.UserID)
	if err != nil {
		return err
	}
	f, err := store.GetFamily(ctx, u.FamilyID)
	if err != nil {
		return err
	}
	for _, m := range f.Members {
		if m.ID != who.UserID {
			_, err := coord.RemoveMember(ctx, who, m.ID)
			return err
		}
	}
	return nil
}

// run calls fn for every user concurrently. Errors that only say another
// operation got there first are expected.
func run(t *testing.T, users int, fn func(i int) error) {
	t.Helper()
	var wg sync.WaitGroup
	for i := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(i)
			switch core.KindOf(err) {
			case core.KindConflict, core.KindInvalidState, core.KindNotFound, core.KindAuthorization:
			default:
				if err != nil {
					t.Errorf("user %d: %v", i, err)
				}
			}
		}()
	}
	wg.Wait()
}
