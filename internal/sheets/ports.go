package sheets

import (
	"context"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerExporter mirrors a family's expense ledger to an external sheet.
	LedgerExporter interface {
		// ExportFamily replaces the family's ledger with its current expenses.
		ExportFamily(ctx context.Context, f core.Family) error
		// RemoveFamily drops the ledger of a family that no longer exists.
		RemoveFamily(ctx context.Context, familyID string) error
	}
)
