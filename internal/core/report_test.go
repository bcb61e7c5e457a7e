package core

import (
	"testing"
	"time"
)

func TestPeriodStart(t *testing.T) {
	// Wednesday.
	now := time.Date(2025, 3, 12, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		p    Period
		want time.Time
	}{
		{PeriodWeek, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)},
		{PeriodMonth, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodYear, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodAll, time.Time{}},
	}
	for _, tt := range tests {
		if got := PeriodStart(tt.p, now); !got.Equal(tt.want) {
			t.Errorf("PeriodStart(%s) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestParsePeriodAndSort(t *testing.T) {
	if ParsePeriod(" Month ") != PeriodMonth {
		t.Error("expected month")
	}
	if ParsePeriod("decade") != PeriodAll {
		t.Error("unknown period should fall back to all")
	}
	if ParseSort("AMOUNT") != SortByAmount {
		t.Error("expected amount")
	}
	if ParseSort("") != SortByDate {
		t.Error("empty sort should fall back to date")
	}
}

func TestBuildOverview(t *testing.T) {
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	at := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 9, 0, 0, 0, time.UTC) }
	limit := Money{Cents: 10000}
	pct := 20
	f := Family{
		ID:      "f",
		Members: []FamilyMember{{ID: "a"}, {ID: "b"}},
		Categories: []Category{
			{ID: "food", Name: "Food", UserID: "a"},
			{ID: "bills", Name: "Bills", UserID: "b"},
		},
		Expenses: []Expense{
			{ID: "1", UserID: "a", CategoryID: "food", Amount: Money{Cents: 3000}, Date: at(3, 2)},
			{ID: "2", UserID: "b", CategoryID: "bills", Amount: Money{Cents: 5000}, Date: at(3, 15)},
			{ID: "3", UserID: "a", CategoryID: "food", Amount: Money{Cents: 1000}, Date: at(2, 10)},
		},
		Budget: Budget{MonthlyLimit: &limit, WarningPercentage: &pct},
	}

	t.Run("month sorted by amount", func(t *testing.T) {
		o := BuildOverview(f, OverviewFilter{Period: PeriodMonth, Sort: SortByAmount}, now)
		if len(o.Expenses) != 2 || o.Expenses[0].ID != "2" {
			t.Fatalf("unexpected expenses: %+v", o.Expenses)
		}
		if o.Total.Cents != 8000 {
			t.Fatalf("total = %d", o.Total.Cents)
		}
		if len(o.ByCategory) != 2 {
			t.Fatalf("by category: %+v", o.ByCategory)
		}
	})

	t.Run("all filtered by user and category", func(t *testing.T) {
		o := BuildOverview(f, OverviewFilter{UserID: "a", CategoryID: "food"}, now)
		if len(o.Expenses) != 2 || o.Expenses[0].ID != "1" {
			t.Fatalf("expected newest first, got %+v", o.Expenses)
		}
		if o.Total.Cents != 4000 || o.ByCategory[0].Name != "Food" {
			t.Fatalf("unexpected aggregate: %+v", o)
		}
	})

	t.Run("sort by category name", func(t *testing.T) {
		o := BuildOverview(f, OverviewFilter{Sort: SortByCategory}, now)
		if o.Expenses[0].CategoryID != "bills" {
			t.Fatalf("expected Bills first, got %+v", o.Expenses)
		}
	})

	t.Run("budget warning", func(t *testing.T) {
		st := Status(f, now)
		if st.Spent.Cents != 8000 || st.Remaining == nil || st.Remaining.Cents != 2000 {
			t.Fatalf("unexpected status: %+v", st)
		}
		if *st.RemainingPercent != 20 || !st.Warning {
			t.Fatalf("20%% remaining should warn at 20%%: %+v", st)
		}
	})

	t.Run("no limit", func(t *testing.T) {
		g := f
		g.Budget = Budget{}
		st := Status(g, now)
		if st.MonthlyLimit != nil || st.Warning {
			t.Fatalf("unexpected status: %+v", st)
		}
	})
}
