package sheets

import (
	"context"

	"bilancio/internal/core"
)

// Ports for outbound adapters.
type (
	CategoryReader interface {
		ListCategories(ctx context.Context) ([]core.CategorySummary, error)
	}

	// RecordReader returns the sparse monthly overrides stored for a year.
	RecordReader interface {
		ListBudgetRecords(ctx context.Context, year int) ([]core.MonthlyBudgetRecord, error)
	}

	// BudgetWriter persists a complete serialized draft. Every call is a
	// full replacement of the covered months, never an incremental patch.
	BudgetWriter interface {
		ReplaceBudgets(ctx context.Context, records []core.MonthlyBudgetRecord) error
	}
)
