package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/family"
)

// Store is an in-memory family store. Transactions run one at a time on a
// copy of the state that replaces the live state on success.
type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

type (
	familyRow struct {
		budget  core.Budget
		version int64
	}

	memberKey struct{ family, user string }

	row[T any] struct {
		family string
		seq    int64
		v      T
	}

	state struct {
		seq         int64
		users       map[string]core.UserProfile
		families    map[string]familyRow
		members     map[memberKey]row[core.FamilyMember]
		categories  map[string]row[core.Category]
		expenses    map[string]row[core.Expense]
		invitations map[string]row[core.Invitation]
	}
)

func newState() *state {
	return &state{
		users:       map[string]core.UserProfile{},
		families:    map[string]familyRow{},
		members:     map[memberKey]row[core.FamilyMember]{},
		categories:  map[string]row[core.Category]{},
		expenses:    map[string]row[core.Expense]{},
		invitations: map[string]row[core.Invitation]{},
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:         s.seq,
		users:       make(map[string]core.UserProfile, len(s.users)),
		families:    make(map[string]familyRow, len(s.families)),
		members:     make(map[memberKey]row[core.FamilyMember], len(s.members)),
		categories:  make(map[string]row[core.Category], len(s.categories)),
		expenses:    make(map[string]row[core.Expense], len(s.expenses)),
		invitations: make(map[string]row[core.Invitation], len(s.invitations)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.families {
		c.families[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.expenses {
		c.expenses[k] = v
	}
	for k, v := range s.invitations {
		c.invitations[k] = v
	}
	return c
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// InTx runs fn against a private copy of the state and publishes the copy
// when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(family.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&tx{st: s.st}).GetUser(ctx, id)
}

func (s *Store) GetFamily(ctx context.Context, id string) (core.Family, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&tx{st: s.st}).GetFamily(ctx, id)
}

func (s *Store) GetInvitation(ctx context.Context, id string) (core.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&tx{st: s.st}).GetInvitation(ctx, id)
}

func (s *Store) ListInvitations(ctx context.Context, q core.InvitationQuery) ([]core.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&tx{st: s.st}).ListInvitations(ctx, q)
}

func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&tx{st: s.st}).SearchUsers(ctx, query, limit)
}

// FamilyIDs lists every stored family.
func (s *Store) FamilyIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.st.families))
	for id := range s.st.families {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Close() error { return nil }

type tx struct {
	st *state
}

func (t *tx) GetUser(_ context.Context, id string) (core.UserProfile, error) {
	u, ok := t.st.users[id]
	if !ok {
		return core.UserProfile{}, core.NotFound("memory.GetUser", "user not found")
	}
	u.Budget = u.Budget.Clone()
	return u, nil
}

func (t *tx) GetFamily(_ context.Context, id string) (core.Family, error) {
	fr, ok := t.st.families[id]
	if !ok {
		return core.Family{}, core.NotFound("memory.GetFamily", "family not found")
	}
	f := core.Family{
		ID:         id,
		Budget:     fr.budget.Clone(),
		Version:    fr.version,
		Members:    []core.FamilyMember{},
		Expenses:   []core.Expense{},
		Categories: []core.Category{},
	}
	for _, r := range sorted(t.st.members, id) {
		f.Members = append(f.Members, r)
	}
	for _, r := range sorted(t.st.categories, id) {
		f.Categories = append(f.Categories, r)
	}
	for _, r := range sorted(t.st.expenses, id) {
		f.Expenses = append(f.Expenses, r)
	}
	return f, nil
}

// sorted returns the values of the rows that belong to family in insertion order.
func sorted[K comparable, T any](rows map[K]row[T], family string) []T {
	var matched []row[T]
	for _, r := range rows {
		if r.family == family {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	out := make([]T, len(matched))
	for i, r := range matched {
		out[i] = r.v
	}
	return out
}

func (t *tx) GetInvitation(_ context.Context, id string) (core.Invitation, error) {
	r, ok := t.st.invitations[id]
	if !ok {
		return core.Invitation{}, core.NotFound("memory.GetInvitation", "invitation not found")
	}
	return r.v, nil
}

func (t *tx) ListInvitations(_ context.Context, q core.InvitationQuery) ([]core.Invitation, error) {
	var matched []row[core.Invitation]
	for _, r := range t.st.invitations {
		inv := r.v
		if q.FromUserID != "" && inv.FromUserID != q.FromUserID {
			continue
		}
		if q.ToUserID != "" && inv.ToUserID != q.ToUserID {
			continue
		}
		if q.Status != "" && inv.Status != q.Status {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })
	out := make([]core.Invitation, len(matched))
	for i, r := range matched {
		out[i] = r.v
	}
	return out, nil
}

func (t *tx) SearchUsers(_ context.Context, query string, limit int) ([]core.UserProfile, error) {
	q := core.SearchKey(strings.TrimSpace(query))
	out := []core.UserProfile{}
	for _, u := range t.st.users {
		if strings.Contains(core.SearchKey(u.Name), q) || strings.Contains(core.SearchKey(u.Email), q) {
			u.Budget = u.Budget.Clone()
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) PutUser(_ context.Context, u core.UserProfile) error {
	u.Budget = u.Budget.Clone()
	t.st.users[u.ID] = u
	return nil
}

func (t *tx) CreateFamily(ctx context.Context, f core.Family) error {
	if _, ok := t.st.families[f.ID]; ok {
		return core.Conflict("memory.CreateFamily", nil)
	}
	t.st.families[f.ID] = familyRow{budget: f.Budget.Clone(), version: 1}
	for _, m := range f.Members {
		if err := t.AddMember(ctx, f.ID, m); err != nil {
			return err
		}
	}
	for _, c := range f.Categories {
		if err := t.PutCategory(ctx, f.ID, c); err != nil {
			return err
		}
	}
	for _, e := range f.Expenses {
		if err := t.PutExpense(ctx, f.ID, e); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) DeleteFamily(_ context.Context, id string) error {
	if _, ok := t.st.families[id]; !ok {
		return core.NotFound("memory.DeleteFamily", "family not found")
	}
	delete(t.st.families, id)
	for k := range t.st.members {
		if k.family == id {
			delete(t.st.members, k)
		}
	}
	for k, r := range t.st.categories {
		if r.family == id {
			delete(t.st.categories, k)
		}
	}
	for k, r := range t.st.expenses {
		if r.family == id {
			delete(t.st.expenses, k)
		}
	}
	for k, u := range t.st.users {
		if u.FamilyID == id {
			u.FamilyID = ""
			t.st.users[k] = u
		}
	}
	return nil
}

func (t *tx) LockFamily(_ context.Context, id string, version int64) error {
	fr, ok := t.st.families[id]
	if !ok {
		return core.NotFound("memory.LockFamily", "family not found")
	}
	if fr.version != version {
		return core.Conflict("memory.LockFamily", nil)
	}
	fr.version++
	t.st.families[id] = fr
	return nil
}

func (t *tx) SetFamilyBudget(_ context.Context, familyID string, b core.Budget) error {
	fr, ok := t.st.families[familyID]
	if !ok {
		return core.NotFound("memory.SetFamilyBudget", "family not found")
	}
	fr.budget = b.Clone()
	t.st.families[familyID] = fr
	return nil
}

func (t *tx) AddMember(_ context.Context, familyID string, m core.FamilyMember) error {
	if _, ok := t.st.families[familyID]; !ok {
		return core.NotFound("memory.AddMember", "family not found")
	}
	k := memberKey{familyID, m.ID}
	if _, ok := t.st.members[k]; ok {
		return core.InvalidState("memory.AddMember", "user is already a member of this family")
	}
	t.st.members[k] = row[core.FamilyMember]{family: familyID, seq: t.st.next(), v: m}
	return nil
}

func (t *tx) UpdateMember(_ context.Context, familyID string, m core.FamilyMember) error {
	k := memberKey{familyID, m.ID}
	r, ok := t.st.members[k]
	if !ok {
		return core.NotFound("memory.UpdateMember", "member not found in the family")
	}
	r.v = m
	t.st.members[k] = r
	return nil
}

func (t *tx) RemoveMember(_ context.Context, familyID, memberID string) error {
	k := memberKey{familyID, memberID}
	if _, ok := t.st.members[k]; !ok {
		return core.NotFound("memory.RemoveMember", "member not found in the family")
	}
	delete(t.st.members, k)
	return nil
}

func (t *tx) PutCategory(_ context.Context, familyID string, c core.Category) error {
	if _, ok := t.st.families[familyID]; !ok {
		return core.NotFound("memory.PutCategory", "family not found")
	}
	r, ok := t.st.categories[c.ID]
	if !ok || r.family != familyID {
		r.seq = t.st.next()
	}
	r.family, r.v = familyID, c
	t.st.categories[c.ID] = r
	return nil
}

func (t *tx) PutExpense(_ context.Context, familyID string, e core.Expense) error {
	if _, ok := t.st.families[familyID]; !ok {
		return core.NotFound("memory.PutExpense", "family not found")
	}
	r, ok := t.st.expenses[e.ID]
	if !ok || r.family != familyID {
		r.seq = t.st.next()
	}
	r.family, r.v = familyID, e
	t.st.expenses[e.ID] = r
	return nil
}

func (t *tx) DeleteExpense(_ context.Context, familyID, expenseID string) error {
	r, ok := t.st.expenses[expenseID]
	if !ok || r.family != familyID {
		return core.NotFound("memory.DeleteExpense", "expense not found")
	}
	delete(t.st.expenses, expenseID)
	return nil
}

func (t *tx) CreateInvitation(_ context.Context, inv core.Invitation) error {
	if _, ok := t.st.invitations[inv.ID]; ok {
		return core.Conflict("memory.CreateInvitation", nil)
	}
	t.st.invitations[inv.ID] = row[core.Invitation]{seq: t.st.next(), v: inv}
	return nil
}

func (t *tx) SetInvitationStatus(_ context.Context, id string, from, to core.InvitationStatus) error {
	r, ok := t.st.invitations[id]
	if !ok {
		return core.NotFound("memory.SetInvitationStatus", "invitation not found")
	}
	if r.v.Status != from {
		return core.Conflict("memory.SetInvitationStatus", nil)
	}
	r.v.Status = to
	t.st.invitations[id] = r
	return nil
}
