// Package core holds the BudgetPal domain: users, families, invitations,
// expenses and categories, plus the pure algorithms that move records
// between families.
package core

import (
	"errors"
	"strings"
	"time"
)

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

// Defaults applied to families created at sign-up or bootstrap.
const (
	DefaultMonthlyLimitCents = 200000
	DefaultWarningPercentage = 20
)

type (
	InvitationStatus string

	// Identity is the authenticated caller as supplied by the auth provider.
	Identity struct {
		UserID string
		Name   string
		Email  string
	}

	// Budget carries the optional monthly limit settings. Nil fields mean
	// the limit has not been set.
	Budget struct {
		MonthlyLimit      *Money `json:"monthlyLimit"`
		WarningPercentage *int   `json:"warningPercentage"`
	}

	UserProfile struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		FamilyID string `json:"familyId,omitempty"`
		Budget
	}

	FamilyMember struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	Family struct {
		ID         string         `json:"id"`
		Members    []FamilyMember `json:"members"`
		Expenses   []Expense      `json:"expenses"`
		Categories []Category     `json:"categories"`
		Budget

		// Version increments on every committed write to the family.
		Version int64 `json:"-"`
	}

	Expense struct {
		ID         string    `json:"id"`
		Amount     Money     `json:"amount"`
		CategoryID string    `json:"categoryId"`
		Date       time.Time `json:"date"`
		Currency   string    `json:"currency"`
		UserID     string    `json:"userId"`
		UserName   string    `json:"userName"`
	}

	Category struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Color  string `json:"color"`
		UserID string `json:"userId"`
	}

	Invitation struct {
		ID           string           `json:"id"`
		FromUserID   string           `json:"fromUserId"`
		FromUserName string           `json:"fromUserName"`
		ToUserID     string           `json:"toUserId"`
		ToUserName   string           `json:"toUserName"`
		Status       InvitationStatus `json:"status"`
		CreatedAt    time.Time        `json:"createdAt"`
	}

	// InvitationQuery filters invitation listings. Empty fields match anything.
	InvitationQuery struct {
		FromUserID string
		ToUserID   string
		Status     InvitationStatus
	}

	// FamilyChange describes a committed mutation for downstream listeners.
	FamilyChange struct {
		Event        string
		FamilyIDs    []string
		ActorID      string
		InvitationID string
		At           time.Time
	}
)

// Events emitted after a commit.
const (
	EventFamilyCreated      = "family.created"
	EventInvitationCreated  = "invitation.created"
	EventInvitationAccepted = "invitation.accepted"
	EventInvitationRejected = "invitation.rejected"
	EventMemberRemoved      = "member.removed"
	EventMemberUpdated      = "member.updated"
	EventExpenseChanged     = "expense.changed"
	EventCategoryChanged    = "category.changed"
	EventBudgetChanged      = "budget.changed"
)

var (
	ErrEmptyName      = errors.New("empty category name")
	ErrMissingDate    = errors.New("missing expense date")
	ErrEmptyCategory  = errors.New("empty category id")
	ErrInvalidPercent = errors.New("warning percentage must be between 0 and 100")
)

// Authenticated reports whether the identity names a user.
func (i Identity) Authenticated() bool {
	return strings.TrimSpace(i.UserID) != ""
}

// Member builds the family member entry for the identity, preferring the
// stored profile fields when the token carries none.
func (i Identity) Member(profile UserProfile) FamilyMember {
	m := FamilyMember{ID: i.UserID, Name: i.Name, Email: i.Email}
	if m.Name == "" {
		m.Name = profile.Name
	}
	if m.Email == "" {
		m.Email = profile.Email
	}
	return m
}

// Terminal reports whether the status admits no further transitions.
func (s InvitationStatus) Terminal() bool {
	return s == InvitationAccepted || s == InvitationRejected
}

// Valid reports whether s is a known status.
func (s InvitationStatus) Valid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationRejected:
		return true
	default:
		return false
	}
}

// DefaultBudget returns the budget given to freshly created families.
func DefaultBudget() Budget {
	limit := Money{Cents: DefaultMonthlyLimitCents}
	pct := DefaultWarningPercentage
	return Budget{MonthlyLimit: &limit, WarningPercentage: &pct}
}

// Clone returns a copy that shares no pointers with b.
func (b Budget) Clone() Budget {
	var out Budget
	if b.MonthlyLimit != nil {
		m := *b.MonthlyLimit
		out.MonthlyLimit = &m
	}
	if b.WarningPercentage != nil {
		p := *b.WarningPercentage
		out.WarningPercentage = &p
	}
	return out
}

func (b Budget) Validate() error {
	if b.MonthlyLimit != nil {
		if err := b.MonthlyLimit.Validate(); err != nil {
			return err
		}
	}
	if b.WarningPercentage != nil && (*b.WarningPercentage < 0 || *b.WarningPercentage > 100) {
		return ErrInvalidPercent
	}
	return nil
}

// HasMember reports whether userID is listed in the family.
func (f Family) HasMember(userID string) bool {
	_, ok := f.Member(userID)
	return ok
}

// Member returns the member entry for userID.
func (f Family) Member(userID string) (FamilyMember, bool) {
	for _, m := range f.Members {
		if m.ID == userID {
			return m, true
		}
	}
	return FamilyMember{}, false
}

// Category looks up a category by id.
func (f Family) Category(id string) (Category, bool) {
	for _, c := range f.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// Expense looks up an expense by id.
func (f Family) Expense(id string) (Expense, bool) {
	for _, e := range f.Expenses {
		if e.ID == id {
			return e, true
		}
	}
	return Expense{}, false
}

// MemberIDs returns the member ids in list order.
func (f Family) MemberIDs() []string {
	ids := make([]string, len(f.Members))
	for i, m := range f.Members {
		ids[i] = m.ID
	}
	return ids
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return ErrMissingDate
	}
	if strings.TrimSpace(e.CategoryID) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("category name too long (max 100 characters)")
	}
	return nil
}

// SearchKey folds s for case-insensitive user search. Stores compare keys
// built by this function so matching is the same on every backend.
func SearchKey(s string) string {
	return strings.ToLower(s)
}

// DisplayName applies the presentation fallback for optional name fields.
func DisplayName(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return "Unknown"
}
