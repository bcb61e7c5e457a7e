package family_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/family"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/family/familytest"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/storage/memory"
)

type changeLog struct {
	mu      sync.Mutex
	changes []core.FamilyChange
}

func (l *changeLog) FamilyChanged(_ context.Context, c core.FamilyChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, c)
}

func (l *changeLog) events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.changes))
	for i, c := range l.changes {
		out[i] = c.Event
	}
	return out
}

type fixture struct {
	store *memory.Store
	coord *family.Coordinator
	log   *changeLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	n := 0
	var mu sync.Mutex
	ids := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	store := memory.New()
	log := &changeLog{}
	coord := family.NewCoordinator(store,
		family.WithListener(log),
		family.WithIDGenerator(ids),
		family.WithClock(func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }),
	)
	return &fixture{store: store, coord: coord, log: log}
}

func user(id string) core.Identity {
	return core.Identity{UserID: id, Name: "User " + id, Email: id + "@example.com"}
}

// register signs the user in and gives them a category and an expense.
func (fx *fixture) register(t *testing.T, who core.Identity) core.Family {
	t.Helper()
	ctx := context.Background()
	if _, err := fx.coord.RegisterUser(ctx, who); err != nil {
		t.Fatalf("register %s: %v", who.UserID, err)
	}
	f, err := fx.coord.GetFamily(ctx, who)
	if err != nil {
		t.Fatalf("get family %s: %v", who.UserID, err)
	}
	err = fx.store.InTx(ctx, func(tx family.Tx) error {
		cat := core.Category{ID: "cat-" + who.UserID, Name: "Cat " + who.UserID, UserID: who.UserID}
		if err := tx.PutCategory(ctx, f.ID, cat); err != nil {
			return err
		}
		return tx.PutExpense(ctx, f.ID, core.Expense{
			ID: "exp-" + who.UserID, UserID: who.UserID, CategoryID: cat.ID,
			Amount: core.Money{Cents: 1000}, Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		})
	})
	if err != nil {
		t.Fatalf("seed records for %s: %v", who.UserID, err)
	}
	f, _ = fx.store.GetFamily(ctx, f.ID)
	return f
}

func (fx *fixture) invite(t *testing.T, from, to core.Identity) core.Invitation {
	t.Helper()
	inv, err := fx.coord.Invite(context.Background(), from, to.UserID)
	if err != nil {
		t.Fatalf("invite %s -> %s: %v", from.UserID, to.UserID, err)
	}
	return inv
}

// checkConsistency asserts that every user's family exists, lists the user,
// and owns only records of its members.
func (fx *fixture) checkConsistency(t *testing.T, users ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range users {
		u, err := fx.store.GetUser(ctx, id)
		if err != nil {
			t.Fatalf("user %s: %v", id, err)
		}
		f, err := fx.store.GetFamily(ctx, u.FamilyID)
		if err != nil {
			t.Fatalf("user %s points at %q: %v", id, u.FamilyID, err)
		}
		if !f.HasMember(id) {
			t.Fatalf("family %s does not list user %s", f.ID, id)
		}
		if err := core.CheckFamily(f); err != nil {
			t.Fatalf("invariant: %v", err)
		}
	}
}

func familyOf(t *testing.T, fx *fixture, id string) core.Family {
	t.Helper()
	ctx := context.Background()
	u, err := fx.store.GetUser(ctx, id)
	if err != nil {
		t.Fatalf("user %s: %v", id, err)
	}
	f, err := fx.store.GetFamily(ctx, u.FamilyID)
	if err != nil {
		t.Fatalf("family of %s: %v", id, err)
	}
	return f
}

func TestGetFamilyBootstrapsOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := user("a")

	first, err := fx.coord.GetFamily(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	second, err := fx.coord.GetFamily(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("bootstrap is not idempotent: %s vs %s", first.ID, second.ID)
	}
	if len(first.Members) != 1 || first.Members[0].Name != "User a" {
		t.Fatalf("unexpected members: %+v", first.Members)
	}
	if first.MonthlyLimit == nil || first.MonthlyLimit.Cents != core.DefaultMonthlyLimitCents {
		t.Fatalf("expected default budget, got %+v", first.Budget)
	}
	if got := fx.log.events(); len(got) != 1 || got[0] != core.EventFamilyCreated {
		t.Fatalf("expected one family.created event, got %v", got)
	}
	fx.checkConsistency(t, "a")
}

func TestGetFamilyConcurrentFirstAccess(t *testing.T) {
	fx := newFixture(t)
	a := user("a")

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := fx.coord.GetFamily(context.Background(), a)
			if err != nil {
				t.Errorf("get family: %v", err)
				return
			}
			ids[i] = f.ID
		}()
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("concurrent bootstrap produced several families: %v", ids)
		}
	}
}

func TestGetFamilyRequiresIdentity(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.coord.GetFamily(context.Background(), core.Identity{})
	if core.KindOf(err) != core.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestAcceptScenario(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a, b := user("a"), user("b")
	f1 := fx.register(t, a)
	f2 := fx.register(t, b)

	inv := fx.invite(t, a, b)
	if inv.Status != core.InvitationPending || inv.ToUserName != "User b" {
		t.Fatalf("unexpected invitation: %+v", inv)
	}

	joined, err := fx.coord.Accept(ctx, b, inv.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if joined.ID != f1.ID || len(joined.Members) != 2 {
		t.Fatalf("expected F1={a,b}, got %+v", joined.Members)
	}
	if _, ok := joined.Expense("exp-b"); !ok {
		t.Fatal("b's expense should have moved to F1")
	}
	if _, ok := joined.Category("cat-b"); !ok {
		t.Fatal("b's category should have moved to F1")
	}
	if _, err := fx.store.GetFamily(ctx, f2.ID); !core.IsNotFound(err) {
		t.Fatalf("emptied F2 should be deleted, got %v", err)
	}
	ub, _ := fx.store.GetUser(ctx, "b")
	if ub.FamilyID != f1.ID {
		t.Fatalf("b.familyId = %s, want %s", ub.FamilyID, f1.ID)
	}
	got, _ := fx.store.GetInvitation(ctx, inv.ID)
	if got.Status != core.InvitationAccepted {
		t.Fatalf("invitation status = %s", got.Status)
	}
	fx.checkConsistency(t, "a", "b")

	// A removes B: F1 keeps A, B lands in a new F3 with their expense.
	remaining, err := fx.coord.RemoveMember(ctx, a, "b")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if remaining.ID != f1.ID || len(remaining.Members) != 1 || remaining.Members[0].ID != "a" {
		t.Fatalf("expected F1={a}, got %+v", remaining.Members)
	}
	f3 := familyOf(t, fx, "b")
	if f3.ID == f1.ID || f3.ID == f2.ID {
		t.Fatalf("b should be in a brand-new family, got %s", f3.ID)
	}
	if _, ok := f3.Expense("exp-b"); !ok {
		t.Fatal("b's expense should be in F3")
	}
	if _, ok := remaining.Expense("exp-b"); ok {
		t.Fatal("b's expense should have left F1")
	}
	if f3.MonthlyLimit != nil || f3.WarningPercentage != nil {
		t.Fatalf("split family must start without a budget: %+v", f3.Budget)
	}
	fx.checkConsistency(t, "a", "b")
}

func TestAcceptAdoptsTargetBudgetAndKeepsSharedSource(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a, b, c := user("a"), user("b"), user("c")
	fx.register(t, a)
	fx.register(t, b)
	fx.register(t, c)

	// c joins b's family, then a invites b away from it.
	if _, err := fx.coord.Accept(ctx, c, fx.invite(t, b, c).ID); err != nil {
		t.Fatal(err)
	}
	source := familyOf(t, fx, "b")

	limit := core.Money{Cents: 55000}
	pct := 35
	targetID := familyOf(t, fx, "a").ID
	err := fx.store.InTx(ctx, func(tx family.Tx) error {
		return tx.SetFamilyBudget(ctx, targetID, core.Budget{MonthlyLimit: &limit, WarningPercentage: &pct})
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fx.coord.Accept(ctx, b, fx.invite(t, a, b).ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	left, err := fx.store.GetFamily(ctx, source.ID)
	if err != nil {
		t.Fatalf("source family with remaining members must persist: %v", err)
	}
	if left.HasMember("b") || !left.HasMember("c") {
		t.Fatalf("unexpected source members: %+v", left.Members)
	}
	if _, ok := left.Expense("exp-b"); ok {
		t.Fatal("b's expense should have left the source family")
	}
	ub, _ := fx.store.GetUser(ctx, "b")
	if ub.MonthlyLimit == nil || ub.MonthlyLimit.Cents != 55000 || *ub.WarningPercentage != 35 {
		t.Fatalf("b should adopt the target budget, got %+v", ub.Budget)
	}
	fx.checkConsistency(t, "a", "b", "c")
}

func TestAcceptClonesCategoriesOwnedByOthers(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a, b, c := user("a"), user("b"), user("c")
	fx.register(t, a)
	fx.register(t, b)
	fx.register(t, c)
	if _, err := fx.coord.Accept(ctx, c, fx.invite(t, b, c).ID); err != nil {
		t.Fatal(err)
	}

	// c books an expense in b's category.
	shared := familyOf(t, fx, "b")
	err := fx.store.InTx(ctx, func(tx family.Tx) error {
		return tx.PutExpense(ctx, shared.ID, core.Expense{
			ID: "exp-c2", UserID: "c", CategoryID: "cat-b",
			Amount: core.Money{Cents: 250}, Date: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fx.coord.Accept(ctx, c, fx.invite(t, a, c).ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	target := familyOf(t, fx, "c")
	moved, ok := target.Expense("exp-c2")
	if !ok {
		t.Fatal("c's expense should have moved")
	}
	cat, ok := target.Category(moved.CategoryID)
	if !ok || cat.ID == "cat-b" || cat.Name != "Cat b" || cat.UserID != "c" {
		t.Fatalf("expected a clone of b's category owned by c, got %+v", cat)
	}
	if _, err := fx.store.GetFamily(ctx, shared.ID); err != nil {
		t.Fatalf("b's family should persist: %v", err)
	}
	if _, ok := familyOf(t, fx, "b").Category("cat-b"); !ok {
		t.Fatal("b keeps their own category")
	}
	fx.checkConsistency(t, "a", "b", "c")
}

func TestAcceptErrors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a, b, c := user("a"), user("b"), user("c")
	fx.register(t, a)
	fx.register(t, b)
	inv := fx.invite(t, a, b)

	tests := []struct {
		name string
		who  core.Identity
		id   string
		want core.Kind
	}{
		{"unauthenticated", core.Identity{}, inv.ID, core.KindAuth},
		{"missing invitation", b, "nope", core.KindNotFound},
		{"addressed to someone else", c, inv.ID, core.KindAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.coord.Accept(ctx, tt.who, tt.id)
			if core.KindOf(err) != tt.want {
				t.Fatalf("kind = %v, want %v (err %v)", core.KindOf(err), tt.want, err)
			}
		})
	}

	got, _ := fx.store.GetInvitation(ctx, inv.ID)
	if got.Status != core.InvitationPending {
		t.Fatalf("failed accepts must not touch the invitation, status %s", got.Status)
	}
}

func TestAcceptInviterWithoutFamilyRollsBack(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	b := user("b")
	fx.register(t, b)

	// ghost never signed in, so they have no profile and no family.
	inv, err := fx.coord.Invite(ctx, user("ghost"), "b")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.coord.Accept(ctx, b, inv.ID); core.KindOf(err) != core.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
	got, _ := fx.store.GetInvitation(ctx, inv.ID)
	if got.Status != core.InvitationPending {
		t.Fatalf("aborted accept left status %s", got.Status)
	}
	fx.checkConsistency(t, "b")
}

func TestAcceptWithoutPriorFamily(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := user("a")
	f1 := fx.register(t, a)

	inv := fx.invite(t, a, user("newbie"))
	joined, err := fx.coord.Accept(ctx, user("newbie"), inv.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if joined.ID != f1.ID || !joined.HasMember("newbie") {
		t.Fatalf("newbie should join F1: %+v", joined.Members)
	}
	fx.checkConsistency(t, "a", "newbie")
}

func TestAcceptTwiceFails(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a, b := user("a"), user("b")
	fx.register(t, a)
	fx.register(t, b)
	inv := fx.invite(t, a, b)

	if _, err := fx.coord.Accept(ctx, b, inv.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.coord.Accept(ctx, b, inv.ID); core.KindOf(err) != core.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestRejectIsTerminal(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a, b := user("a"), user("b")
	fa := fx.register(t, a)
	fb := fx.register(t, b)
	inv := fx.invite(t, a, b)

	if err := fx.coord.Reject(ctx, a, inv.ID); core.KindOf(err) != core.KindAuthorization {
		t.Fatalf("sender cannot reject, got %v", err)
	}
	if err := fx.coord.Reject(ctx, b, inv.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := fx.coord.Reject(ctx, b, inv.ID); core.KindOf(err) != core.KindInvalidState {
		t.Fatalf("second reject should fail with invalid state, got %v", err)
	}
	if _, err := fx.coord.Accept(ctx, b, inv.ID); core.KindOf(err) != core.KindInvalidState {
		t.Fatalf("rejected invitation cannot be accepted, got %v", err)
	}

	got, _ := fx.store.GetInvitation(ctx, inv.ID)
	if got.Status != core.InvitationRejected {
		t.Fatalf("status = %s", got.Status)
	}
	if familyOf(t, fx, "a").ID != fa.ID || familyOf(t, fx, "b").ID != fb.ID {
		t.Fatal("reject must not move anyone")
	}
	if pending, _ := fx.coord.PendingInvitations(ctx, b); len(pending) != 0 {
		t.Fatalf("expected no pending invitations, got %v", pending)
	}
}

func TestRemoveMemberPreservesSharedCategories(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a, b := user("a"), user("b")
	f1 := fx.register(t, a)
	fx.register(t, b)
	if _, err := fx.coord.Accept(ctx, b, fx.invite(t, a, b).ID); err != nil {
		t.Fatal(err)
	}

	// a uses b's category; b uses a's category.
	err := fx.store.InTx(ctx, func(tx family.Tx) error {
		day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
		if err := tx.PutExpense(ctx, f1.ID, core.Expense{ID: "exp-a2", UserID: "a", CategoryID: "cat-b", Amount: core.Money{Cents: 10}, Date: day}); err != nil {
			return err
		}
		return tx.PutExpense(ctx, f1.ID, core.Expense{ID: "exp-b2", UserID: "b", CategoryID: "cat-a", Amount: core.Money{Cents: 20}, Date: day})
	})
	if err != nil {
		t.Fatal(err)
	}

	remaining, err := fx.coord.RemoveMember(ctx, a, "b")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	kept, ok := remaining.Category("cat-b")
	if !ok {
		t.Fatal("b's category used by a must stay in F1")
	}
	if kept.UserID != "a" {
		t.Fatalf("kept category should be owned by a remaining member, got %s", kept.UserID)
	}

	split := familyOf(t, fx, "b")
	for _, id := range []string{"exp-b", "exp-b2"} {
		e, ok := split.Expense(id)
		if !ok {
			t.Fatalf("%s should be in b's new family", id)
		}
		if _, ok := split.Category(e.CategoryID); !ok {
			t.Fatalf("%s points at category %s missing from the new family", id, e.CategoryID)
		}
	}
	for _, e := range remaining.Expenses {
		if e.UserID == "b" {
			t.Fatalf("F1 still holds b's expense %s", e.ID)
		}
	}
	fx.checkConsistency(t, "a", "b")
}

func TestRemoveMemberErrors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := user("a")
	fx.register(t, a)

	if _, err := fx.coord.RemoveMember(ctx, a, "stranger"); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := fx.coord.RemoveMember(ctx, a, "a"); core.KindOf(err) != core.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := fx.coord.RemoveMember(ctx, user("nobody"), "a"); !core.IsNotFound(err) {
		t.Fatalf("caller without family should get not found, got %v", err)
	}
	fx.checkConsistency(t, "a")
}

func TestInviteAllowsDuplicatesAndMissingProfiles(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := user("a")
	fx.register(t, a)

	first := fx.invite(t, a, core.Identity{UserID: "unknown"})
	second := fx.invite(t, a, core.Identity{UserID: "unknown"})
	if first.ID == second.ID {
		t.Fatal("expected two distinct invitations")
	}
	if first.ToUserName != "" || core.DisplayName(first.ToUserName) != "Unknown" {
		t.Fatalf("missing profile should leave the name empty, got %q", first.ToUserName)
	}
	sent, err := fx.coord.SentInvitations(ctx, a)
	if err != nil || len(sent) != 2 {
		t.Fatalf("sent = %v, err = %v", sent, err)
	}

	if _, err := fx.coord.Invite(ctx, a, "a"); core.KindOf(err) != core.KindValidation {
		t.Fatalf("self invite should fail validation, got %v", err)
	}
	if _, err := fx.coord.Invite(ctx, core.Identity{}, "b"); core.KindOf(err) != core.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestUpdateMemberAndListings(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a, b := user("a"), user("b")
	fx.register(t, a)
	fx.register(t, b)
	if _, err := fx.coord.Accept(ctx, b, fx.invite(t, a, b).ID); err != nil {
		t.Fatal(err)
	}

	name := "Bobby"
	f, err := fx.coord.UpdateMember(ctx, a, "b", family.MemberUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if m, _ := f.Member("b"); m.Name != "Bobby" || m.Email != "b@example.com" {
		t.Fatalf("unexpected member: %+v", m)
	}

	members, err := fx.coord.GetFamilyMembers(ctx, a, []string{"a", "b", "ghost"})
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 3 || members[1].Name != "User b" || members[2].Name != "" {
		t.Fatalf("unexpected members: %+v", members)
	}

	found, err := fx.coord.SearchUsers(ctx, a, "USER B")
	if err != nil || len(found) != 1 || found[0].ID != "b" {
		t.Fatalf("search = %v, err = %v", found, err)
	}
}

func TestMutationsNotifyListeners(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a, b := user("a"), user("b")
	fx.register(t, a)
	fx.register(t, b)
	if _, err := fx.coord.Accept(ctx, b, fx.invite(t, a, b).ID); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.coord.RemoveMember(ctx, a, "b"); err != nil {
		t.Fatal(err)
	}

	want := []string{
		core.EventFamilyCreated, core.EventFamilyCreated,
		core.EventInvitationCreated, core.EventInvitationAccepted, core.EventMemberRemoved,
	}
	got := fx.log.events()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	last := fx.log.changes[len(fx.log.changes)-1]
	if len(last.FamilyIDs) != 2 {
		t.Fatalf("member removal should name both families, got %v", last.FamilyIDs)
	}
}

func TestConcurrentMembershipChanges(t *testing.T) {
	fx := newFixture(t)
	familytest.Churn(t, fx.store, fx.coord, 6, 4)
}

func TestAcceptRefilesExpensesUnderLeavingCategory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a, b, c := user("a"), user("b"), user("c")
	f1 := fx.register(t, a)
	fx.register(t, b)
	fx.register(t, c)

	if _, err := fx.coord.Accept(ctx, b, fx.invite(t, a, b).ID); err != nil {
		t.Fatalf("b joins a: %v", err)
	}
	err := fx.store.InTx(ctx, func(tx family.Tx) error {
		return tx.PutExpense(ctx, f1.ID, core.Expense{
			ID: "exp-a-fuel", UserID: "a", CategoryID: "cat-b",
			Amount: core.Money{Cents: 250}, Date: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fx.coord.Accept(ctx, b, fx.invite(t, c, b).ID); err != nil {
		t.Fatalf("b joins c: %v", err)
	}

	left := familyOf(t, fx, "a")
	e, ok := left.Expense("exp-a-fuel")
	if !ok {
		t.Fatal("a's expense must stay with a")
	}
	cat, ok := left.Category(e.CategoryID)
	if !ok || cat.ID == "cat-b" || cat.Name != "Cat b" || cat.UserID != "a" {
		t.Fatalf("expense should be filed under a copy owned by a, got %+v (found=%v)", cat, ok)
	}
	if _, ok := familyOf(t, fx, "b").Category("cat-b"); !ok {
		t.Fatal("b's category should move with b")
	}
	fx.checkConsistency(t, "a", "b", "c")
}
