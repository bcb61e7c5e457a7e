package google

import (
	"fmt"
	"sort"
	"strings"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
)

var ledgerHeader = []any{"Date", "Member", "Category", "Amount", "Currency", "Expense ID"}

// ledgerRows renders the family's expenses oldest first, followed by a total row.
func ledgerRows(f core.Family) [][]any {
	expenses := append([]core.Expense(nil), f.Expenses...)
	sort.SliceStable(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].Date.Before(expenses[j].Date)
		}
		return expenses[i].ID < expenses[j].ID
	})

	rows := make([][]any, 0, len(expenses)+2)
	rows = append(rows, ledgerHeader)

	var total core.Money
	for _, e := range expenses {
		member := e.UserName
		if m, ok := f.Member(e.UserID); ok {
			member = core.DisplayName(m.Name, e.UserName, m.Email)
		}
		category := ""
		if c, ok := f.Category(e.CategoryID); ok {
			category = c.Name
		}
		rows = append(rows, []any{
			e.Date.UTC().Format("2006-01-02"),
			core.DisplayName(member),
			category,
			e.Amount.String(),
			e.Currency,
			e.ID,
		})
		total = total.Add(e.Amount)
	}
	rows = append(rows, []any{"", "", "Total", total.String(), "", ""})
	return rows
}

func sheetTitle(prefix, familyID string) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", prefix, familyID))
}

// quoteRange builds an A1 range, escaping quotes in the sheet title.
func quoteRange(title, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(title, "'", "''"), cells)
}
