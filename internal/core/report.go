package core

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

type SortOrder string

const (
	SortByDate     SortOrder = "date"
	SortByCategory SortOrder = "category"
	SortByAmount   SortOrder = "amount"
)

// OverviewFilter selects the expenses shown in a budget overview. Empty
// CategoryID and UserID match everything.
type OverviewFilter struct {
	CategoryID string
	UserID     string
	Period     Period
	Sort       SortOrder
}

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Amount     Money  `json:"amount"`
}

// BudgetStatus compares this month's spending with the family limit.
type BudgetStatus struct {
	MonthlyLimit     *Money   `json:"monthlyLimit"`
	Spent            Money    `json:"spent"`
	Remaining        *Money   `json:"remaining"`
	RemainingPercent *float64 `json:"remainingPercent"`
	Warning          bool     `json:"warning"`
}

// Overview is the budget report for one family.
type Overview struct {
	FamilyID   string           `json:"familyId"`
	Period     Period           `json:"period"`
	From       time.Time        `json:"from"`
	Expenses   []Expense        `json:"expenses"`
	Total      Money            `json:"total"`
	ByCategory []CategoryAmount `json:"byCategory"`
	Budget     BudgetStatus     `json:"budget"`
}

// ParsePeriod maps a query value to a Period, defaulting to PeriodAll.
func ParsePeriod(s string) Period {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodWeek:
		return PeriodWeek
	case PeriodMonth:
		return PeriodMonth
	case PeriodYear:
		return PeriodYear
	default:
		return PeriodAll
	}
}

// ParseSort maps a query value to a SortOrder, defaulting to SortByDate.
func ParseSort(s string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case SortByCategory:
		return SortByCategory
	case SortByAmount:
		return SortByAmount
	default:
		return SortByDate
	}
}

// PeriodStart returns the first instant of the period containing now.
// Weeks start on Sunday. PeriodAll returns the zero time.
func PeriodStart(p Period, now time.Time) time.Time {
	y, m, d := now.Date()
	switch p {
	case PeriodWeek:
		return time.Date(y, m, d-int(now.Weekday()), 0, 0, 0, 0, now.Location())
	case PeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	case PeriodYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, now.Location())
	default:
		return time.Time{}
	}
}

// BuildOverview filters, sorts and aggregates the family's expenses.
func BuildOverview(f Family, filter OverviewFilter, now time.Time) Overview {
	if filter.Period == "" {
		filter.Period = PeriodAll
	}
	from := PeriodStart(filter.Period, now)

	out := Overview{FamilyID: f.ID, Period: filter.Period, From: from, Expenses: []Expense{}}
	for _, e := range f.Expenses {
		if filter.CategoryID != "" && e.CategoryID != filter.CategoryID {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.Period != PeriodAll && (e.Date.Before(from) || e.Date.After(now)) {
			continue
		}
		out.Expenses = append(out.Expenses, e)
	}

	categoryName := func(id string) string {
		if c, ok := f.Category(id); ok {
			return c.Name
		}
		return ""
	}
	switch filter.Sort {
	case SortByCategory:
		sort.SliceStable(out.Expenses, func(i, j int) bool {
			return categoryName(out.Expenses[i].CategoryID) < categoryName(out.Expenses[j].CategoryID)
		})
	case SortByAmount:
		sort.SliceStable(out.Expenses, func(i, j int) bool {
			return out.Expenses[i].Amount.Cents > out.Expenses[j].Amount.Cents
		})
	default:
		sort.SliceStable(out.Expenses, func(i, j int) bool {
			return out.Expenses[i].Date.After(out.Expenses[j].Date)
		})
	}

	index := make(map[string]int)
	for _, e := range out.Expenses {
		out.Total = out.Total.Add(e.Amount)
		i, ok := index[e.CategoryID]
		if !ok {
			c, _ := f.Category(e.CategoryID)
			i = len(out.ByCategory)
			index[e.CategoryID] = i
			out.ByCategory = append(out.ByCategory, CategoryAmount{CategoryID: e.CategoryID, Name: c.Name, Color: c.Color})
		}
		out.ByCategory[i].Amount = out.ByCategory[i].Amount.Add(e.Amount)
	}

	out.Budget = Status(f, now)
	return out
}

// Status computes the family's spending against its monthly limit for the
// month containing now. Warning is set once the remaining budget is at or
// below the warning percentage of the limit.
func Status(f Family, now time.Time) BudgetStatus {
	from := PeriodStart(PeriodMonth, now)
	var st BudgetStatus
	for _, e := range f.Expenses {
		if !e.Date.Before(from) && !e.Date.After(now) {
			st.Spent = st.Spent.Add(e.Amount)
		}
	}
	if f.MonthlyLimit == nil || f.MonthlyLimit.Cents <= 0 {
		return st
	}
	limit := *f.MonthlyLimit
	remaining := Money{Cents: limit.Cents - st.Spent.Cents}
	st.MonthlyLimit = &limit
	st.Remaining = &remaining

	pct := remaining.Decimal().Div(limit.Decimal()).Mul(decimal.NewFromInt(100)).Round(2)
	pf := pct.InexactFloat64()
	st.RemainingPercent = &pf
	if f.WarningPercentage != nil {
		st.Warning = pct.LessThanOrEqual(decimal.NewFromInt(int64(*f.WarningPercentage)))
	}
	return st
}
