package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

type (
	User struct {
		ID                string
		Name              string
		Email             string
		FamilyID          sql.NullString
		MonthlyLimitCents sql.NullInt64
		WarningPercentage sql.NullInt64
	}

	FamilyRow struct {
		ID                string
		MonthlyLimitCents sql.NullInt64
		WarningPercentage sql.NullInt64
		Version           int64
	}

	Member struct {
		UserID string
		Name   string
		Email  string
	}

	Category struct {
		ID     string
		UserID string
		Name   string
		Color  string
	}

	Expense struct {
		ID          string
		UserID      string
		UserName    string
		CategoryID  string
		AmountCents int64
		Currency    string
		Date        string
	}

	Invitation struct {
		ID           string
		FromUserID   string
		FromUserName string
		ToUserID     string
		ToUserName   string
		Status       string
		CreatedAt    string
	}

	MembershipEvent struct {
		ID           int64
		Event        string
		FamilyID     string
		ActorID      string
		InvitationID string
		OccurredAt   string
	}
)

const getUser = `SELECT id, name, email, family_id, monthly_limit_cents, warning_percentage
FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.FamilyID, &u.MonthlyLimitCents, &u.WarningPercentage)
	return u, err
}

const upsertUser = `INSERT INTO users (id, name, email, family_id, monthly_limit_cents, warning_percentage, name_key, email_key, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?8, ?9, ?7, ?7)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    email = excluded.email,
    name_key = excluded.name_key,
    email_key = excluded.email_key,
    family_id = excluded.family_id,
    monthly_limit_cents = excluded.monthly_limit_cents,
    warning_percentage = excluded.warning_percentage,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertUser(ctx context.Context, u User, now time.Time) error {
	_, err := q.db.ExecContext(ctx, upsertUser,
		u.ID, u.Name, u.Email, u.FamilyID, u.MonthlyLimitCents, u.WarningPercentage, formatTime(now),
		core.SearchKey(u.Name), core.SearchKey(u.Email))
	return err
}

const searchUsers = `SELECT id, name, email, family_id, monthly_limit_cents, warning_percentage
FROM users
WHERE instr(name_key, ?1) > 0 OR instr(email_key, ?1) > 0
ORDER BY name, id
LIMIT ?2`

func (q *Queries) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, searchUsers, core.SearchKey(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.FamilyID, &u.MonthlyLimitCents, &u.WarningPercentage); err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

const getFamily = `SELECT id, monthly_limit_cents, warning_percentage, version FROM families WHERE id = ?`

func (q *Queries) GetFamily(ctx context.Context, id string) (FamilyRow, error) {
	var f FamilyRow
	err := q.db.QueryRowContext(ctx, getFamily, id).Scan(&f.ID, &f.MonthlyLimitCents, &f.WarningPercentage, &f.Version)
	return f, err
}

const listFamilyIDs = `SELECT id FROM families ORDER BY id`

func (q *Queries) ListFamilyIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listFamilyIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const insertFamily = `INSERT INTO families (id, monthly_limit_cents, warning_percentage, version, created_at, updated_at)
VALUES (?1, ?2, ?3, 1, ?4, ?4)`

func (q *Queries) InsertFamily(ctx context.Context, f FamilyRow, now time.Time) error {
	_, err := q.db.ExecContext(ctx, insertFamily, f.ID, f.MonthlyLimitCents, f.WarningPercentage, formatTime(now))
	return err
}

const deleteFamily = `DELETE FROM families WHERE id = ?`

func (q *Queries) DeleteFamily(ctx context.Context, id string) (int64, error) {
	return q.exec(ctx, deleteFamily, id)
}

const bumpFamilyVersion = `UPDATE families SET version = version + 1, updated_at = ?3
WHERE id = ?1 AND version = ?2`

func (q *Queries) BumpFamilyVersion(ctx context.Context, id string, version int64, now time.Time) (int64, error) {
	return q.exec(ctx, bumpFamilyVersion, id, version, formatTime(now))
}

const updateFamilyBudget = `UPDATE families SET monthly_limit_cents = ?2, warning_percentage = ?3, updated_at = ?4
WHERE id = ?1`

func (q *Queries) UpdateFamilyBudget(ctx context.Context, f FamilyRow, now time.Time) (int64, error) {
	return q.exec(ctx, updateFamilyBudget, f.ID, f.MonthlyLimitCents, f.WarningPercentage, formatTime(now))
}

const listMembers = `SELECT user_id, name, email FROM family_members WHERE family_id = ? ORDER BY position`

func (q *Queries) ListMembers(ctx context.Context, familyID string) ([]Member, error) {
	rows, err := q.db.QueryContext(ctx, listMembers, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Name, &m.Email); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const insertMember = `INSERT INTO family_members (family_id, user_id, name, email, position)
VALUES (?1, ?2, ?3, ?4, (SELECT COALESCE(MAX(position), 0) + 1 FROM family_members WHERE family_id = ?1))`

func (q *Queries) InsertMember(ctx context.Context, familyID string, m Member) error {
	_, err := q.db.ExecContext(ctx, insertMember, familyID, m.UserID, m.Name, m.Email)
	return err
}

const updateMember = `UPDATE family_members SET name = ?3, email = ?4 WHERE family_id = ?1 AND user_id = ?2`

func (q *Queries) UpdateMember(ctx context.Context, familyID string, m Member) (int64, error) {
	return q.exec(ctx, updateMember, familyID, m.UserID, m.Name, m.Email)
}

const deleteMember = `DELETE FROM family_members WHERE family_id = ? AND user_id = ?`

func (q *Queries) DeleteMember(ctx context.Context, familyID, userID string) (int64, error) {
	return q.exec(ctx, deleteMember, familyID, userID)
}

const listCategories = `SELECT id, user_id, name, color FROM categories WHERE family_id = ? ORDER BY position`

func (q *Queries) ListCategories(ctx context.Context, familyID string) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Color); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// A row moving to another family is appended to the end of its new list.
const upsertCategory = `INSERT INTO categories (id, family_id, user_id, name, color, position)
VALUES (?1, ?2, ?3, ?4, ?5, (SELECT COALESCE(MAX(position), 0) + 1 FROM categories WHERE family_id = ?2))
ON CONFLICT(id) DO UPDATE SET
    position = CASE WHEN categories.family_id = excluded.family_id THEN categories.position ELSE excluded.position END,
    family_id = excluded.family_id,
    user_id = excluded.user_id,
    name = excluded.name,
    color = excluded.color`

func (q *Queries) UpsertCategory(ctx context.Context, familyID string, c Category) error {
	_, err := q.db.ExecContext(ctx, upsertCategory, c.ID, familyID, c.UserID, c.Name, c.Color)
	return err
}

const listExpenses = `SELECT id, user_id, user_name, category_id, amount_cents, currency, date
FROM expenses WHERE family_id = ? ORDER BY position`

func (q *Queries) ListExpenses(ctx context.Context, familyID string) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpenses, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserName, &e.CategoryID, &e.AmountCents, &e.Currency, &e.Date); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

const upsertExpense = `INSERT INTO expenses (id, family_id, user_id, user_name, category_id, amount_cents, currency, date, position)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, (SELECT COALESCE(MAX(position), 0) + 1 FROM expenses WHERE family_id = ?2))
ON CONFLICT(id) DO UPDATE SET
    position = CASE WHEN expenses.family_id = excluded.family_id THEN expenses.position ELSE excluded.position END,
    family_id = excluded.family_id,
    user_id = excluded.user_id,
    user_name = excluded.user_name,
    category_id = excluded.category_id,
    amount_cents = excluded.amount_cents,
    currency = excluded.currency,
    date = excluded.date`

func (q *Queries) UpsertExpense(ctx context.Context, familyID string, e Expense) error {
	_, err := q.db.ExecContext(ctx, upsertExpense,
		e.ID, familyID, e.UserID, e.UserName, e.CategoryID, e.AmountCents, e.Currency, e.Date)
	return err
}

const deleteExpense = `DELETE FROM expenses WHERE id = ? AND family_id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id, familyID string) (int64, error) {
	return q.exec(ctx, deleteExpense, id, familyID)
}

const getInvitation = `SELECT id, from_user_id, from_user_name, to_user_id, to_user_name, status, created_at
FROM invitations WHERE id = ?`

func (q *Queries) GetInvitation(ctx context.Context, id string) (Invitation, error) {
	var i Invitation
	err := q.db.QueryRowContext(ctx, getInvitation, id).Scan(
		&i.ID, &i.FromUserID, &i.FromUserName, &i.ToUserID, &i.ToUserName, &i.Status, &i.CreatedAt)
	return i, err
}

const insertInvitation = `INSERT INTO invitations (id, from_user_id, from_user_name, to_user_id, to_user_name, status, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?7)`

func (q *Queries) InsertInvitation(ctx context.Context, i Invitation) error {
	_, err := q.db.ExecContext(ctx, insertInvitation,
		i.ID, i.FromUserID, i.FromUserName, i.ToUserID, i.ToUserName, i.Status, i.CreatedAt)
	return err
}

// Empty filter arguments match every row.
const listInvitations = `SELECT id, from_user_id, from_user_name, to_user_id, to_user_name, status, created_at
FROM invitations
WHERE (?1 = '' OR from_user_id = ?1)
  AND (?2 = '' OR to_user_id = ?2)
  AND (?3 = '' OR status = ?3)
ORDER BY created_at DESC, rowid DESC`

func (q *Queries) ListInvitations(ctx context.Context, fromUserID, toUserID, status string) ([]Invitation, error) {
	rows, err := q.db.QueryContext(ctx, listInvitations, fromUserID, toUserID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Invitation
	for rows.Next() {
		var i Invitation
		if err := rows.Scan(&i.ID, &i.FromUserID, &i.FromUserName, &i.ToUserID, &i.ToUserName, &i.Status, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const updateInvitationStatus = `UPDATE invitations SET status = ?3, updated_at = ?4 WHERE id = ?1 AND status = ?2`

func (q *Queries) UpdateInvitationStatus(ctx context.Context, id, from, to string, now time.Time) (int64, error) {
	return q.exec(ctx, updateInvitationStatus, id, from, to, formatTime(now))
}

// insertMembershipEvent ignores a change that is already recorded, so a
// redelivered message leaves a single row.
const insertMembershipEvent = `INSERT OR IGNORE INTO membership_events (event, family_id, actor_id, invitation_id, occurred_at, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertMembershipEvent(ctx context.Context, e MembershipEvent, now time.Time) error {
	_, err := q.db.ExecContext(ctx, insertMembershipEvent,
		e.Event, e.FamilyID, e.ActorID, e.InvitationID, e.OccurredAt, formatTime(now))
	return err
}

const listMembershipEvents = `SELECT id, event, family_id, actor_id, invitation_id, occurred_at
FROM membership_events WHERE family_id = ? ORDER BY id DESC LIMIT ?`

func (q *Queries) ListMembershipEvents(ctx context.Context, familyID string, limit int) ([]MembershipEvent, error) {
	rows, err := q.db.QueryContext(ctx, listMembershipEvents, familyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MembershipEvent
	for rows.Next() {
		var e MembershipEvent
		if err := rows.Scan(&e.ID, &e.Event, &e.FamilyID, &e.ActorID, &e.InvitationID, &e.OccurredAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
