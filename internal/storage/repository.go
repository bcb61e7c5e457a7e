package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
	"github.com/WouterMerckaert-dev/BudgetPal/internal/family"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

// DSN enables foreign keys, waits on locks for up to five seconds and starts
// every transaction with BEGIN IMMEDIATE so writers serialize up front.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InTx implements family.Store.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(family.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr("storage.Begin", err)
	}
	if err := fn(r.tx(r.queries.WithTx(sqlTx))); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapErr("storage.Commit", err)
	}
	return nil
}

func (r *SQLiteRepository) tx(q *Queries) *tx {
	return &tx{q: q, now: r.now}
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.UserProfile, error) {
	return r.tx(r.queries).GetUser(ctx, id)
}

// GetFamily reads the family aggregate inside a transaction so the member,
// category and expense lists come from the same snapshot.
func (r *SQLiteRepository) GetFamily(ctx context.Context, id string) (core.Family, error) {
	var f core.Family
	err := r.InTx(ctx, func(t family.Tx) error {
		var err error
		f, err = t.GetFamily(ctx, id)
		return err
	})
	return f, err
}

func (r *SQLiteRepository) GetInvitation(ctx context.Context, id string) (core.Invitation, error) {
	return r.tx(r.queries).GetInvitation(ctx, id)
}

func (r *SQLiteRepository) ListInvitations(ctx context.Context, q core.InvitationQuery) ([]core.Invitation, error) {
	return r.tx(r.queries).ListInvitations(ctx, q)
}

func (r *SQLiteRepository) SearchUsers(ctx context.Context, query string, limit int) ([]core.UserProfile, error) {
	return r.tx(r.queries).SearchUsers(ctx, query, limit)
}

// FamilyIDs lists every stored family.
func (r *SQLiteRepository) FamilyIDs(ctx context.Context) ([]string, error) {
	ids, err := r.queries.ListFamilyIDs(ctx)
	if err != nil {
		return nil, mapErr("storage.FamilyIDs", err)
	}
	return ids, nil
}

// RecordEvent appends one audit row per affected family. Recording the same
// change twice is a no-op.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, change core.FamilyChange) error {
	now := r.now()
	at := change.At
	if at.IsZero() {
		at = now
	}
	for _, id := range change.FamilyIDs {
		err := r.queries.InsertMembershipEvent(ctx, MembershipEvent{
			Event:        change.Event,
			FamilyID:     id,
			ActorID:      change.ActorID,
			InvitationID: change.InvitationID,
			OccurredAt:   formatTime(at),
		}, now)
		if err != nil {
			return mapErr("storage.RecordEvent", err)
		}
	}
	slog.DebugContext(ctx, "Membership event recorded", "event", change.Event, "families", len(change.FamilyIDs))
	return nil
}

// ListEvents returns the latest audit rows of a family, newest first.
func (r *SQLiteRepository) ListEvents(ctx context.Context, familyID string, limit int) ([]core.FamilyChange, error) {
	rows, err := r.queries.ListMembershipEvents(ctx, familyID, limit)
	if err != nil {
		return nil, mapErr("storage.ListEvents", err)
	}
	out := make([]core.FamilyChange, 0, len(rows))
	for _, e := range rows {
		at, err := parseTime(e.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse event time %q: %w", e.OccurredAt, err)
		}
		out = append(out, core.FamilyChange{
			Event:        e.Event,
			FamilyIDs:    []string{e.FamilyID},
			ActorID:      e.ActorID,
			InvitationID: e.InvitationID,
			At:           at,
		})
	}
	return out, nil
}

// tx implements family.Tx on top of a Queries bound to a transaction or to
// the database itself.
type tx struct {
	q   *Queries
	now func() time.Time
}

func (t *tx) GetUser(ctx context.Context, id string) (core.UserProfile, error) {
	u, err := t.q.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserProfile{}, core.NotFound("storage.GetUser", "user not found")
	}
	if err != nil {
		return core.UserProfile{}, mapErr("storage.GetUser", err)
	}
	return userFromRow(u), nil
}

func (t *tx) GetFamily(ctx context.Context, id string) (core.Family, error) {
	const op = "storage.GetFamily"
	row, err := t.q.GetFamily(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Family{}, core.NotFound(op, "family not found")
	}
	if err != nil {
		return core.Family{}, mapErr(op, err)
	}

	f := core.Family{
		ID:         row.ID,
		Budget:     budgetFromColumns(row.MonthlyLimitCents, row.WarningPercentage),
		Version:    row.Version,
		Members:    []core.FamilyMember{},
		Expenses:   []core.Expense{},
		Categories: []core.Category{},
	}

	members, err := t.q.ListMembers(ctx, id)
	if err != nil {
		return core.Family{}, mapErr(op, err)
	}
	for _, m := range members {
		f.Members = append(f.Members, core.FamilyMember{ID: m.UserID, Name: m.Name, Email: m.Email})
	}

	cats, err := t.q.ListCategories(ctx, id)
	if err != nil {
		return core.Family{}, mapErr(op, err)
	}
	for _, c := range cats {
		f.Categories = append(f.Categories, core.Category{ID: c.ID, Name: c.Name, Color: c.Color, UserID: c.UserID})
	}

	exps, err := t.q.ListExpenses(ctx, id)
	if err != nil {
		return core.Family{}, mapErr(op, err)
	}
	for _, e := range exps {
		date, err := parseTime(e.Date)
		if err != nil {
			return core.Family{}, fmt.Errorf("parse expense %s date %q: %w", e.ID, e.Date, err)
		}
		f.Expenses = append(f.Expenses, core.Expense{
			ID:         e.ID,
			Amount:     core.Money{Cents: e.AmountCents},
			CategoryID: e.CategoryID,
			Date:       date,
			Currency:   e.Currency,
			UserID:     e.UserID,
			UserName:   e.UserName,
		})
	}
	return f, nil
}

func (t *tx) GetInvitation(ctx context.Context, id string) (core.Invitation, error) {
	i, err := t.q.GetInvitation(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invitation{}, core.NotFound("storage.GetInvitation", "invitation not found")
	}
	if err != nil {
		return core.Invitation{}, mapErr("storage.GetInvitation", err)
	}
	return invitationFromRow(i)
}

func (t *tx) ListInvitations(ctx context.Context, q core.InvitationQuery) ([]core.Invitation, error) {
	rows, err := t.q.ListInvitations(ctx, q.FromUserID, q.ToUserID, string(q.Status))
	if err != nil {
		return nil, mapErr("storage.ListInvitations", err)
	}
	out := make([]core.Invitation, 0, len(rows))
	for _, row := range rows {
		inv, err := invitationFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (t *tx) SearchUsers(ctx context.Context, query string, limit int) ([]core.UserProfile, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := t.q.SearchUsers(ctx, query, limit)
	if err != nil {
		return nil, mapErr("storage.SearchUsers", err)
	}
	out := make([]core.UserProfile, 0, len(rows))
	for _, u := range rows {
		out = append(out, userFromRow(u))
	}
	return out, nil
}

func (t *tx) PutUser(ctx context.Context, u core.UserProfile) error {
	limit, pct := budgetColumns(u.Budget)
	row := User{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		FamilyID:          sql.NullString{String: u.FamilyID, Valid: u.FamilyID != ""},
		MonthlyLimitCents: limit,
		WarningPercentage: pct,
	}
	return mapErr("storage.PutUser", t.q.UpsertUser(ctx, row, t.now()))
}

func (t *tx) CreateFamily(ctx context.Context, f core.Family) error {
	const op = "storage.CreateFamily"
	limit, pct := budgetColumns(f.Budget)
	if err := t.q.InsertFamily(ctx, FamilyRow{ID: f.ID, MonthlyLimitCents: limit, WarningPercentage: pct}, t.now()); err != nil {
		return mapErr(op, err)
	}
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

func (t *tx) DeleteFamily(ctx context.Context, id string) error {
	n, err := t.q.DeleteFamily(ctx, id)
	if err != nil {
		return mapErr("storage.DeleteFamily", err)
	}
	if n == 0 {
		return core.NotFound("storage.DeleteFamily", "family not found")
	}
	return nil
}

func (t *tx) LockFamily(ctx context.Context, id string, version int64) error {
	const op = "storage.LockFamily"
	n, err := t.q.BumpFamilyVersion(ctx, id, version, t.now())
	if err != nil {
		return mapErr(op, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := t.q.GetFamily(ctx, id); errors.Is(err, sql.ErrNoRows) {
		return core.NotFound(op, "family not found")
	}
	return core.Conflict(op, fmt.Errorf("family %s changed since version %d", id, version))
}

func (t *tx) SetFamilyBudget(ctx context.Context, familyID string, b core.Budget) error {
	limit, pct := budgetColumns(b)
	n, err := t.q.UpdateFamilyBudget(ctx, FamilyRow{ID: familyID, MonthlyLimitCents: limit, WarningPercentage: pct}, t.now())
	if err != nil {
		return mapErr("storage.SetFamilyBudget", err)
	}
	if n == 0 {
		return core.NotFound("storage.SetFamilyBudget", "family not found")
	}
	return nil
}

func (t *tx) AddMember(ctx context.Context, familyID string, m core.FamilyMember) error {
	err := t.q.InsertMember(ctx, familyID, Member{UserID: m.ID, Name: m.Name, Email: m.Email})
	if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
		return core.InvalidState("storage.AddMember", "user is already a member of this family")
	}
	return mapErr("storage.AddMember", err)
}

func (t *tx) UpdateMember(ctx context.Context, familyID string, m core.FamilyMember) error {
	n, err := t.q.UpdateMember(ctx, familyID, Member{UserID: m.ID, Name: m.Name, Email: m.Email})
	if err != nil {
		return mapErr("storage.UpdateMember", err)
	}
	if n == 0 {
		return core.NotFound("storage.UpdateMember", "member not found in the family")
	}
	return nil
}

func (t *tx) RemoveMember(ctx context.Context, familyID, memberID string) error {
	n, err := t.q.DeleteMember(ctx, familyID, memberID)
	if err != nil {
		return mapErr("storage.RemoveMember", err)
	}
	if n == 0 {
		return core.NotFound("storage.RemoveMember", "member not found in the family")
	}
	return nil
}

func (t *tx) PutCategory(ctx context.Context, familyID string, c core.Category) error {
	err := t.q.UpsertCategory(ctx, familyID, Category{ID: c.ID, UserID: c.UserID, Name: c.Name, Color: c.Color})
	return mapErr("storage.PutCategory", err)
}

func (t *tx) PutExpense(ctx context.Context, familyID string, e core.Expense) error {
	err := t.q.UpsertExpense(ctx, familyID, Expense{
		ID:          e.ID,
		UserID:      e.UserID,
		UserName:    e.UserName,
		CategoryID:  e.CategoryID,
		AmountCents: e.Amount.Cents,
		Currency:    e.Currency,
		Date:        formatTime(e.Date),
	})
	return mapErr("storage.PutExpense", err)
}

func (t *tx) DeleteExpense(ctx context.Context, familyID, expenseID string) error {
	n, err := t.q.DeleteExpense(ctx, expenseID, familyID)
	if err != nil {
		return mapErr("storage.DeleteExpense", err)
	}
	if n == 0 {
		return core.NotFound("storage.DeleteExpense", "expense not found")
	}
	return nil
}

func (t *tx) CreateInvitation(ctx context.Context, inv core.Invitation) error {
	created := inv.CreatedAt
	if created.IsZero() {
		created = t.now()
	}
	err := t.q.InsertInvitation(ctx, Invitation{
		ID:           inv.ID,
		FromUserID:   inv.FromUserID,
		FromUserName: inv.FromUserName,
		ToUserID:     inv.ToUserID,
		ToUserName:   inv.ToUserName,
		Status:       string(inv.Status),
		CreatedAt:    formatTime(created),
	})
	return mapErr("storage.CreateInvitation", err)
}

func (t *tx) SetInvitationStatus(ctx context.Context, id string, from, to core.InvitationStatus) error {
	const op = "storage.SetInvitationStatus"
	n, err := t.q.UpdateInvitationStatus(ctx, id, string(from), string(to), t.now())
	if err != nil {
		return mapErr(op, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := t.q.GetInvitation(ctx, id); errors.Is(err, sql.ErrNoRows) {
		return core.NotFound(op, "invitation not found")
	}
	return core.Conflict(op, fmt.Errorf("invitation %s is no longer %s", id, from))
}

func userFromRow(u User) core.UserProfile {
	return core.UserProfile{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		FamilyID: u.FamilyID.String,
		Budget:   budgetFromColumns(u.MonthlyLimitCents, u.WarningPercentage),
	}
}

func invitationFromRow(i Invitation) (core.Invitation, error) {
	created, err := parseTime(i.CreatedAt)
	if err != nil {
		return core.Invitation{}, fmt.Errorf("parse invitation %s created_at %q: %w", i.ID, i.CreatedAt, err)
	}
	return core.Invitation{
		ID:           i.ID,
		FromUserID:   i.FromUserID,
		FromUserName: i.FromUserName,
		ToUserID:     i.ToUserID,
		ToUserName:   i.ToUserName,
		Status:       core.InvitationStatus(i.Status),
		CreatedAt:    created,
	}, nil
}

func budgetColumns(b core.Budget) (sql.NullInt64, sql.NullInt64) {
	var limit, pct sql.NullInt64
	if b.MonthlyLimit != nil {
		limit = sql.NullInt64{Int64: b.MonthlyLimit.Cents, Valid: true}
	}
	if b.WarningPercentage != nil {
		pct = sql.NullInt64{Int64: int64(*b.WarningPercentage), Valid: true}
	}
	return limit, pct
}

func budgetFromColumns(limit, pct sql.NullInt64) core.Budget {
	var b core.Budget
	if limit.Valid {
		b.MonthlyLimit = &core.Money{Cents: limit.Int64}
	}
	if pct.Valid {
		p := int(pct.Int64)
		b.WarningPercentage = &p
	}
	return b
}

// mapErr turns lock contention and uniqueness violations into Conflict
// errors and wraps everything else. Core errors pass through unchanged.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return core.Conflict(op, err)
		}
		if se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return core.Conflict(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConstraint(err error, code int) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == code
}
