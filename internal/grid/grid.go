// Package grid derives dense month-by-category budget grids from the sparse
// records persisted in the remote sheet, and tracks draft edits against them.
package grid

import (
	"fmt"
	"sort"
	"time"

	"bilancio/internal/core"
)

// DefaultHorizon is the number of consecutive months a grid covers when the
// caller does not ask for a specific span.
const DefaultHorizon = 12

type (
	// Month is one column of the grid, in chronological order.
	Month struct {
		ID    string // "2025-03"
		Month int    // 1-12
		Year  int
		Index int
	}

	// Cell is the derived budget for one (category, month) pair. Generated
	// is true when no stored override existed and Amount fell back to the
	// category's MonthlyBudget.
	Cell struct {
		RecordID        string
		CategoryID      string
		Month           int
		Year            int
		Amount          core.Money
		RolloverBalance core.Money
		Generated       bool
	}

	// Row holds all cells of one category across the horizon.
	Row struct {
		Category core.CategorySummary
		Cells    []Cell
	}

	// Grid is the dense month-by-category matrix: exactly one cell per
	// (category, month) pair, months ordered chronologically and rows
	// ordered by (SortOrder, Label).
	Grid struct {
		Months []Month
		Rows   []Row
	}
)

type recordKey struct {
	categoryID string
	year       int
	month      int
}

// Build expands categories and sparse records into a complete grid starting
// at the first day of start's month. It is pure: identical inputs always
// produce a structurally identical grid, and the input slices are never
// mutated.
func Build(categories []core.CategorySummary, records []core.MonthlyBudgetRecord, start time.Time, horizon int) Grid {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	months := buildMonths(start, horizon)

	sorted := make([]core.CategorySummary, len(categories))
	copy(sorted, categories)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortOrder != sorted[j].SortOrder {
			return sorted[i].SortOrder < sorted[j].SortOrder
		}
		return sorted[i].Label < sorted[j].Label
	})

	index := make(map[recordKey]core.MonthlyBudgetRecord, len(records))
	for _, r := range records {
		index[recordKey{r.CategoryID, r.Year, r.Month}] = r
	}

	rows := make([]Row, 0, len(sorted))
	for _, cat := range sorted {
		cells := make([]Cell, 0, len(months))
		for _, m := range months {
			cell := Cell{
				CategoryID: cat.ID,
				Month:      m.Month,
				Year:       m.Year,
			}
			if rec, ok := index[recordKey{cat.ID, m.Year, m.Month}]; ok {
				cell.RecordID = rec.ID
				cell.Amount = rec.Amount
			} else {
				cell.Amount = cat.MonthlyBudget
				cell.Generated = true
			}
			cells = append(cells, cell)
		}
		accumulateRollover(cat, cells)
		rows = append(rows, Row{Category: cat, Cells: cells})
	}

	return Grid{Months: months, Rows: rows}
}

func buildMonths(start time.Time, horizon int) []Month {
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := make([]Month, 0, horizon)
	for i := 0; i < horizon; i++ {
		d := first.AddDate(0, i, 0)
		months = append(months, Month{
			ID:    fmt.Sprintf("%04d-%02d", d.Year(), int(d.Month())),
			Month: int(d.Month()),
			Year:  d.Year(),
			Index: i,
		})
	}
	return months
}

// accumulateRollover walks a category's cells in chronological order and
// fills each cell's opening rollover balance. Ineligible categories always
// carry a zero balance; the running balance never goes negative.
func accumulateRollover(cat core.CategorySummary, cells []Cell) {
	if !cat.Rollover {
		for i := range cells {
			cells[i].RolloverBalance = core.Money{}
		}
		return
	}
	var running int64
	for i := range cells {
		opening := max64(0, running)
		cells[i].RolloverBalance = core.Money{Cents: opening}
		diff := cat.MonthlyBudget.Cents - cells[i].Amount.Cents
		running = max64(0, opening+diff)
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
