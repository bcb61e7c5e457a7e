// Package family implements the membership coordinator: family bootstrap,
// invitations and the transfer of a user's records between families. Every
// mutation runs as one store transaction.
package family

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
)

const (
	searchLimit       = 50
	lookupConcurrency = 8
)

// Coordinator is the sole writer of family membership.
type Coordinator struct {
	store     Store
	listeners []Listener
	recorder  Recorder
	defaults  core.Budget
	newID     func() string
	now       func() time.Time
}

type Option func(*Coordinator)

// WithListener registers a listener notified after each commit.
func WithListener(l Listener) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.listeners = append(c.listeners, l)
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithDefaultBudget sets the budget given to bootstrapped families and new profiles.
func WithDefaultBudget(b core.Budget) Option {
	return func(c *Coordinator) { c.defaults = b.Clone() }
}

func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(c *Coordinator) { c.now = fn }
}

func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		defaults: core.DefaultBudget(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MemberUpdate carries the optional fields of a member edit.
type MemberUpdate struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// RegisterUser records the caller's profile on first sign-in and makes sure
// they own a family. Existing profiles only get their name and email refreshed.
func (c *Coordinator) RegisterUser(ctx context.Context, who core.Identity) (core.UserProfile, error) {
	const op = "family.RegisterUser"
	if !who.Authenticated() {
		return core.UserProfile{}, c.done(op, core.Unauthenticated(op))
	}

	var (
		profile core.UserProfile
		created *core.Family
	)
	err := c.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.GetUser(ctx, who.UserID)
		switch {
		case core.IsNotFound(err):
			u = core.UserProfile{ID: who.UserID, Budget: c.defaults.Clone()}
		case err != nil:
			return err
		}
		if who.Name != "" {
			u.Name = who.Name
		}
		if who.Email != "" {
			u.Email = who.Email
		}
		if err := tx.PutUser(ctx, u); err != nil {
			return err
		}
		_, fam, err := c.ensureFamily(ctx, tx, who)
		if err != nil {
			return err
		}
		created = fam
		profile, err = tx.GetUser(ctx, who.UserID)
		return err
	})
	if err != nil {
		return core.UserProfile{}, c.done(op, err)
	}
	if created != nil {
		c.notify(ctx, core.EventFamilyCreated, who.UserID, "", created.ID)
	}
	return profile, c.done(op, nil)
}

// GetFamily returns the caller's family, creating a singleton family on first
// access.
func (c *Coordinator) GetFamily(ctx context.Context, who core.Identity) (core.Family, error) {
	const op = "family.GetFamily"
	if !who.Authenticated() {
		return core.Family{}, c.done(op, core.Unauthenticated(op))
	}

	u, err := c.store.GetUser(ctx, who.UserID)
	if err != nil && !core.IsNotFound(err) {
		return core.Family{}, c.done(op, err)
	}
	if err == nil && u.FamilyID != "" {
		f, err := c.store.GetFamily(ctx, u.FamilyID)
		if err == nil {
			return f, c.done(op, nil)
		}
		if !core.IsNotFound(err) {
			return core.Family{}, c.done(op, err)
		}
	}

	var (
		fam     core.Family
		created *core.Family
	)
	err = c.store.InTx(ctx, func(tx Tx) error {
		var err error
		fam, created, err = c.ensureFamily(ctx, tx, who)
		return err
	})
	if err != nil {
		return core.Family{}, c.done(op, err)
	}
	if created != nil {
		c.notify(ctx, core.EventFamilyCreated, who.UserID, "", created.ID)
	}
	return fam, c.done(op, nil)
}

// ensureFamily resolves the caller's family inside tx, creating a singleton
// family and profile link when there is none. The second result is non-nil
// when a family was created.
func (c *Coordinator) ensureFamily(ctx context.Context, tx Tx, who core.Identity) (core.Family, *core.Family, error) {
	u, err := tx.GetUser(ctx, who.UserID)
	switch {
	case core.IsNotFound(err):
		u = core.UserProfile{ID: who.UserID, Name: who.Name, Email: who.Email, Budget: c.defaults.Clone()}
	case err != nil:
		return core.Family{}, nil, err
	}

	if u.FamilyID != "" {
		f, err := tx.GetFamily(ctx, u.FamilyID)
		if err == nil {
			return f, nil, nil
		}
		if !core.IsNotFound(err) {
			return core.Family{}, nil, err
		}
		slog.WarnContext(ctx, "User points at a missing family, creating a new one",
			"user_id", u.ID, "family_id", u.FamilyID)
	}

	f := core.Family{
		ID:      c.newID(),
		Members: []core.FamilyMember{who.Member(u)},
		Budget:  c.defaults.Clone(),
	}
	if err := tx.CreateFamily(ctx, f); err != nil {
		return core.Family{}, nil, err
	}
	u.FamilyID = f.ID
	if err := tx.PutUser(ctx, u); err != nil {
		return core.Family{}, nil, err
	}
	created, err := tx.GetFamily(ctx, f.ID)
	if err != nil {
		return core.Family{}, nil, err
	}

	slog.InfoContext(ctx, "Family created", "family_id", f.ID, "user_id", u.ID)
	return created, &created, nil
}

// GetFamilyMembers returns member entries for the given user ids, or for the
// caller when ids is empty. Missing profiles yield entries with empty name and
// email.
func (c *Coordinator) GetFamilyMembers(ctx context.Context, who core.Identity, ids []string) ([]core.FamilyMember, error) {
	const op = "family.GetFamilyMembers"
	if !who.Authenticated() {
		return nil, c.done(op, core.Unauthenticated(op))
	}
	if len(ids) == 0 {
		ids = []string{who.UserID}
	}

	out := make([]core.FamilyMember, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = core.FamilyMember{ID: id}
			u, err := c.store.GetUser(gctx, id)
			if core.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			out[i].Name, out[i].Email = u.Name, u.Email
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, c.done(op, err)
	}
	return out, c.done(op, nil)
}

// SearchUsers matches the query against user names and emails, ignoring case.
func (c *Coordinator) SearchUsers(ctx context.Context, who core.Identity, query string) ([]core.FamilyMember, error) {
	const op = "family.SearchUsers"
	if !who.Authenticated() {
		return nil, c.done(op, core.Unauthenticated(op))
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []core.FamilyMember{}, c.done(op, nil)
	}

	users, err := c.store.SearchUsers(ctx, query, searchLimit)
	if err != nil {
		return nil, c.done(op, err)
	}
	out := make([]core.FamilyMember, 0, len(users))
	for _, u := range users {
		out = append(out, core.FamilyMember{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	return out, c.done(op, nil)
}

// Invite records a pending invitation from the caller to toUserID. Duplicate
// pending invitations are allowed.
func (c *Coordinator) Invite(ctx context.Context, who core.Identity, toUserID string) (core.Invitation, error) {
	const op = "family.Invite"
	if !who.Authenticated() {
		return core.Invitation{}, c.done(op, core.Unauthenticated(op))
	}
	toUserID = strings.TrimSpace(toUserID)
	if toUserID == "" {
		return core.Invitation{}, c.done(op, core.Invalid(op, errors.New("target user id is required")))
	}
	if toUserID == who.UserID {
		return core.Invitation{}, c.done(op, core.Invalid(op, errors.New("you cannot invite yourself")))
	}

	var from, to core.UserProfile
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lookupOptional(gctx, c.store, who.UserID, &from) })
	g.Go(func() error { return lookupOptional(gctx, c.store, toUserID, &to) })
	if err := g.Wait(); err != nil {
		return core.Invitation{}, c.done(op, err)
	}

	inv := core.Invitation{
		ID:           c.newID(),
		FromUserID:   who.UserID,
		FromUserName: firstNonEmpty(from.Name, who.Name, who.Email),
		ToUserID:     toUserID,
		ToUserName:   firstNonEmpty(to.Name, to.Email),
		Status:       core.InvitationPending,
		CreatedAt:    c.now().UTC(),
	}
	err := c.store.InTx(ctx, func(tx Tx) error {
		return tx.CreateInvitation(ctx, inv)
	})
	if err != nil {
		return core.Invitation{}, c.done(op, err)
	}

	slog.InfoContext(ctx, "Invitation created",
		"invitation_id", inv.ID, "from_user_id", inv.FromUserID, "to_user_id", inv.ToUserID)
	c.notify(ctx, core.EventInvitationCreated, who.UserID, inv.ID, from.FamilyID)
	return inv, c.done(op, nil)
}

// Accept moves the caller into the inviter's family. The caller's expenses and
// categories follow them, the source family shrinks or is deleted when empty,
// and the caller adopts the target family's budget.
func (c *Coordinator) Accept(ctx context.Context, who core.Identity, invitationID string) (core.Family, error) {
	const op = "family.Accept"
	if !who.Authenticated() {
		return core.Family{}, c.done(op, core.Unauthenticated(op))
	}

	var (
		target   core.Family
		affected []string
	)
	err := c.store.InTx(ctx, func(tx Tx) error {
		inv, err := c.pendingInvitation(ctx, tx, op, who, invitationID)
		if err != nil {
			return err
		}
		if err := tx.SetInvitationStatus(ctx, inv.ID, core.InvitationPending, core.InvitationAccepted); err != nil {
			return err
		}

		target, err = c.inviterFamily(ctx, tx, op, inv.FromUserID)
		if err != nil {
			return err
		}
		if target.HasMember(who.UserID) {
			return core.InvalidState(op, "you already belong to this family")
		}
		if err := tx.LockFamily(ctx, target.ID, target.Version); err != nil {
			return err
		}
		affected = []string{target.ID}

		caller, err := tx.GetUser(ctx, who.UserID)
		switch {
		case core.IsNotFound(err):
			caller = core.UserProfile{ID: who.UserID, Name: who.Name, Email: who.Email}
		case err != nil:
			return err
		}

		if caller.FamilyID != "" && caller.FamilyID != target.ID {
			source, err := tx.GetFamily(ctx, caller.FamilyID)
			switch {
			case core.IsNotFound(err):
				slog.WarnContext(ctx, "Caller family missing, joining without transfer",
					"user_id", who.UserID, "family_id", caller.FamilyID)
			case err != nil:
				return err
			default:
				if err := tx.LockFamily(ctx, source.ID, source.Version); err != nil {
					return err
				}
				plan := core.PlanAccept(source, who.UserID, c.newID)
				if err := applyPlan(ctx, tx, source.ID, target.ID, plan); err != nil {
					return err
				}
				if plan.SourceEmpty() {
					if err := tx.DeleteFamily(ctx, source.ID); err != nil {
						return err
					}
					slog.InfoContext(ctx, "Empty family deleted", "family_id", source.ID)
				}
				affected = append(affected, source.ID)
			}
		}

		if err := tx.AddMember(ctx, target.ID, who.Member(caller)); err != nil {
			return err
		}
		caller.FamilyID = target.ID
		caller.Budget = target.Budget.Clone()
		if err := tx.PutUser(ctx, caller); err != nil {
			return err
		}

		target, err = tx.GetFamily(ctx, target.ID)
		return err
	})
	if err != nil {
		return core.Family{}, c.done(op, err)
	}

	slog.InfoContext(ctx, "Invitation accepted",
		"invitation_id", invitationID, "user_id", who.UserID, "family_id", target.ID)
	c.notify(ctx, core.EventInvitationAccepted, who.UserID, invitationID, affected...)
	return target, c.done(op, nil)
}

// Reject marks a pending invitation addressed to the caller as rejected.
func (c *Coordinator) Reject(ctx context.Context, who core.Identity, invitationID string) error {
	const op = "family.Reject"
	if !who.Authenticated() {
		return c.done(op, core.Unauthenticated(op))
	}

	err := c.store.InTx(ctx, func(tx Tx) error {
		inv, err := c.pendingInvitation(ctx, tx, op, who, invitationID)
		if err != nil {
			return err
		}
		return tx.SetInvitationStatus(ctx, inv.ID, core.InvitationPending, core.InvitationRejected)
	})
	if err != nil {
		return c.done(op, err)
	}

	slog.InfoContext(ctx, "Invitation rejected", "invitation_id", invitationID, "user_id", who.UserID)
	c.notify(ctx, core.EventInvitationRejected, who.UserID, invitationID)
	return c.done(op, nil)
}

// RemoveMember moves memberID out of the caller's family into a new singleton
// family with no budget. Categories of the removed member that other members'
// expenses still use stay behind.
func (c *Coordinator) RemoveMember(ctx context.Context, who core.Identity, memberID string) (core.Family, error) {
	const op = "family.RemoveMember"
	if !who.Authenticated() {
		return core.Family{}, c.done(op, core.Unauthenticated(op))
	}

	var (
		fam   core.Family
		split core.Family
	)
	err := c.store.InTx(ctx, func(tx Tx) error {
		var err error
		fam, err = c.callerFamily(ctx, tx, op, who)
		if err != nil {
			return err
		}
		member, ok := fam.Member(memberID)
		if !ok {
			return core.NotFound(op, "member not found in the family")
		}
		if memberID == who.UserID {
			return core.InvalidState(op, "you cannot remove yourself from your family")
		}
		if err := tx.LockFamily(ctx, fam.ID, fam.Version); err != nil {
			return err
		}

		plan := core.PlanRemoval(fam, memberID, c.newID)
		split = core.Family{ID: c.newID(), Members: []core.FamilyMember{member}}
		if err := tx.CreateFamily(ctx, split); err != nil {
			return err
		}
		if err := applyPlan(ctx, tx, fam.ID, split.ID, plan); err != nil {
			return err
		}

		profile, err := tx.GetUser(ctx, memberID)
		switch {
		case core.IsNotFound(err):
			profile = core.UserProfile{ID: memberID, Name: member.Name, Email: member.Email}
		case err != nil:
			return err
		}
		profile.FamilyID = split.ID
		if err := tx.PutUser(ctx, profile); err != nil {
			return err
		}

		fam, err = tx.GetFamily(ctx, fam.ID)
		return err
	})
	if err != nil {
		return core.Family{}, c.done(op, err)
	}

	slog.InfoContext(ctx, "Family member removed",
		"family_id", fam.ID, "member_id", memberID, "new_family_id", split.ID)
	c.notify(ctx, core.EventMemberRemoved, who.UserID, "", fam.ID, split.ID)
	return fam, c.done(op, nil)
}

// UpdateMember edits a member entry of the caller's family.
func (c *Coordinator) UpdateMember(ctx context.Context, who core.Identity, memberID string, upd MemberUpdate) (core.Family, error) {
	const op = "family.UpdateMember"
	if !who.Authenticated() {
		return core.Family{}, c.done(op, core.Unauthenticated(op))
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return core.Family{}, c.done(op, core.Invalid(op, errors.New("name cannot be empty")))
	}

	var fam core.Family
	err := c.store.InTx(ctx, func(tx Tx) error {
		var err error
		fam, err = c.callerFamily(ctx, tx, op, who)
		if err != nil {
			return err
		}
		m, ok := fam.Member(memberID)
		if !ok {
			return core.NotFound(op, "member not found in the family")
		}
		if upd.Name != nil {
			m.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Email != nil {
			m.Email = strings.TrimSpace(*upd.Email)
		}
		if err := tx.LockFamily(ctx, fam.ID, fam.Version); err != nil {
			return err
		}
		if err := tx.UpdateMember(ctx, fam.ID, m); err != nil {
			return err
		}
		fam, err = tx.GetFamily(ctx, fam.ID)
		return err
	})
	if err != nil {
		return core.Family{}, c.done(op, err)
	}
	c.notify(ctx, core.EventMemberUpdated, who.UserID, "", fam.ID)
	return fam, c.done(op, nil)
}

// PendingInvitations lists pending invitations addressed to the caller.
func (c *Coordinator) PendingInvitations(ctx context.Context, who core.Identity) ([]core.Invitation, error) {
	const op = "family.PendingInvitations"
	if !who.Authenticated() {
		return nil, c.done(op, core.Unauthenticated(op))
	}
	out, err := c.store.ListInvitations(ctx, core.InvitationQuery{ToUserID: who.UserID, Status: core.InvitationPending})
	return out, c.done(op, err)
}

// SentInvitations lists the caller's own invitations that are still pending.
func (c *Coordinator) SentInvitations(ctx context.Context, who core.Identity) ([]core.Invitation, error) {
	const op = "family.SentInvitations"
	if !who.Authenticated() {
		return nil, c.done(op, core.Unauthenticated(op))
	}
	out, err := c.store.ListInvitations(ctx, core.InvitationQuery{FromUserID: who.UserID, Status: core.InvitationPending})
	return out, c.done(op, err)
}

func (c *Coordinator) pendingInvitation(ctx context.Context, tx Tx, op string, who core.Identity, id string) (core.Invitation, error) {
	inv, err := tx.GetInvitation(ctx, id)
	if err != nil {
		return core.Invitation{}, err
	}
	if inv.ToUserID != who.UserID {
		return core.Invitation{}, core.Unauthorized(op, "invitation is not addressed to you")
	}
	if inv.Status != core.InvitationPending {
		return core.Invitation{}, core.InvalidState(op, "invitation has already been %s", inv.Status)
	}
	return inv, nil
}

func (c *Coordinator) inviterFamily(ctx context.Context, tx Tx, op, inviterID string) (core.Family, error) {
	inviter, err := tx.GetUser(ctx, inviterID)
	if core.IsNotFound(err) || (err == nil && inviter.FamilyID == "") {
		return core.Family{}, core.InvalidState(op, "inviting user does not have a family")
	}
	if err != nil {
		return core.Family{}, err
	}
	f, err := tx.GetFamily(ctx, inviter.FamilyID)
	if core.IsNotFound(err) {
		return core.Family{}, core.InvalidState(op, "inviting user does not have a family")
	}
	return f, err
}

// callerFamily loads the family the caller belongs to.
func (c *Coordinator) callerFamily(ctx context.Context, tx Tx, op string, who core.Identity) (core.Family, error) {
	u, err := tx.GetUser(ctx, who.UserID)
	if core.IsNotFound(err) || (err == nil && u.FamilyID == "") {
		return core.Family{}, core.NotFound(op, "user does not belong to a family")
	}
	if err != nil {
		return core.Family{}, err
	}
	f, err := tx.GetFamily(ctx, u.FamilyID)
	if err != nil {
		return core.Family{}, err
	}
	if !f.HasMember(who.UserID) {
		return core.Family{}, core.Unauthorized(op, "you are not a member of this family")
	}
	return f, nil
}

// applyPlan writes a transfer plan: reowned categories and substitutes stay
// in source, the rest of the user's records and any clones land in dest, and
// the user's member entry leaves source.
func applyPlan(ctx context.Context, tx Tx, sourceID, destID string, plan core.TransferPlan) error {
	for _, cat := range slices.Concat(plan.Reowned, plan.Substitutes) {
		if err := tx.PutCategory(ctx, sourceID, cat); err != nil {
			return err
		}
	}
	for _, e := range plan.Repointed {
		if err := tx.PutExpense(ctx, sourceID, e); err != nil {
			return err
		}
	}
	for _, cat := range plan.Categories {
		if err := tx.PutCategory(ctx, destID, cat); err != nil {
			return err
		}
	}
	for _, cat := range plan.Clones {
		if err := tx.PutCategory(ctx, destID, cat); err != nil {
			return err
		}
	}
	for _, e := range plan.Expenses {
		if err := tx.PutExpense(ctx, destID, e); err != nil {
			return err
		}
	}
	return tx.RemoveMember(ctx, sourceID, plan.UserID)
}

func lookupOptional(ctx context.Context, r Reader, id string, dst *core.UserProfile) error {
	u, err := r.GetUser(ctx, id)
	if core.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	*dst = u
	return nil
}

func (c *Coordinator) notify(ctx context.Context, event, actorID, invitationID string, familyIDs ...string) {
	var ids []string
	for _, id := range familyIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	change := core.FamilyChange{
		Event:        event,
		FamilyIDs:    ids,
		ActorID:      actorID,
		InvitationID: invitationID,
		At:           c.now().UTC(),
	}
	for _, l := range c.listeners {
		l.FamilyChanged(ctx, change)
	}
}

// done reports the outcome to the recorder and returns err unchanged.
func (c *Coordinator) done(op string, err error) error {
	if c.recorder != nil {
		c.recorder.ObserveOperation(op, core.KindOf(err), err == nil)
	}
	if err != nil && core.KindOf(err) == core.KindInternal {
		slog.Error("Family operation failed", "operation", op, "error", err)
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
