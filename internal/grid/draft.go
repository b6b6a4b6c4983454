package grid

import (
	"errors"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

var (
	ErrCategoryNotFound = errors.New("category not found in draft")
	ErrMonthOutOfRange  = errors.New("month index out of range")
)

type (
	// DraftCell is a grid cell plus the amount it had when the draft was
	// opened. A cell is dirty iff Amount != Baseline.
	DraftCell struct {
		Cell
		Baseline core.Money
	}

	DraftRow struct {
		Category core.CategorySummary
		Cells    []DraftCell
	}

	// Draft is a mutable, dirty-tracked copy of a derived grid. Edits are
	// applied through ApplyAmountChange, which returns a fresh revision so
	// two revisions never alias the same row or cell.
	Draft struct {
		Months []Month
		Rows   []DraftRow
	}
)

// NewDraft deep-copies the grid and records every cell's amount as its
// baseline.
func NewDraft(g Grid) *Draft {
	months := make([]Month, len(g.Months))
	copy(months, g.Months)

	rows := make([]DraftRow, 0, len(g.Rows))
	for _, r := range g.Rows {
		cells := make([]DraftCell, 0, len(r.Cells))
		for _, c := range r.Cells {
			cells = append(cells, DraftCell{Cell: c, Baseline: c.Amount})
		}
		rows = append(rows, DraftRow{Category: r.Category, Cells: cells})
	}
	return &Draft{Months: months, Rows: rows}
}

// ApplyAmountChange sets one cell's amount and recomputes the rollover chain
// for the whole edited row, so every later month's opening balance stays
// consistent with the edit. It returns a new draft revision; the receiver is
// left untouched and unedited rows are value-copied with fresh identity.
func (d *Draft) ApplyAmountChange(categoryID string, monthIndex int, amount core.Money) (*Draft, error) {
	rowIdx := -1
	for i, r := range d.Rows {
		if r.Category.ID == categoryID {
			rowIdx = i
			break
		}
	}
	if rowIdx == -1 {
		return nil, ErrCategoryNotFound
	}
	if monthIndex < 0 || monthIndex >= len(d.Rows[rowIdx].Cells) {
		return nil, ErrMonthOutOfRange
	}
	if err := amount.Validate(); err != nil {
		return nil, err
	}

	next := &Draft{
		Months: append([]Month(nil), d.Months...),
		Rows:   make([]DraftRow, 0, len(d.Rows)),
	}
	for i, r := range d.Rows {
		row := DraftRow{
			Category: r.Category,
			Cells:    append([]DraftCell(nil), r.Cells...),
		}
		if i == rowIdx {
			row.Cells[monthIndex].Amount = amount
			row.Cells[monthIndex].Generated = false
			recomputeRow(&row)
		}
		next.Rows = append(next.Rows, row)
	}
	return next, nil
}

// recomputeRow re-runs the rollover accumulation across the entire row from
// month zero forward.
func recomputeRow(row *DraftRow) {
	cells := make([]Cell, len(row.Cells))
	for i, c := range row.Cells {
		cells[i] = c.Cell
	}
	accumulateRollover(row.Category, cells)
	for i := range row.Cells {
		row.Cells[i].Cell = cells[i]
	}
}

// Dirty reports whether any cell's amount differs from its baseline.
func (d *Draft) Dirty() bool {
	for _, r := range d.Rows {
		for _, c := range r.Cells {
			if c.Amount != c.Baseline {
				return true
			}
		}
	}
	return false
}

// Serialize flattens the draft back into rows*months flat records: every
// cell, not only dirty ones, because a save always replaces the full horizon
// rather than patching a diff. Cells that never had a stored record are
// assigned a fresh record ID, which is written back into the draft so a
// repeated serialize of the same draft stays stable.
func (d *Draft) Serialize() []core.MonthlyBudgetRecord {
	records := make([]core.MonthlyBudgetRecord, 0, len(d.Rows)*len(d.Months))
	for i := range d.Rows {
		for j := range d.Rows[i].Cells {
			c := &d.Rows[i].Cells[j]
			if c.RecordID == "" {
				c.RecordID = uuid.NewString()
			}
			records = append(records, core.MonthlyBudgetRecord{
				ID:              c.RecordID,
				CategoryID:      c.CategoryID,
				Month:           c.Month,
				Year:            c.Year,
				Amount:          c.Amount,
				RolloverBalance: c.RolloverBalance,
			})
		}
	}
	return records
}

// Reconcile resets every cell's baseline to its current amount. Call it
// after a save has been confirmed by the store; the draft is clean again.
func (d *Draft) Reconcile() {
	for i := range d.Rows {
		for j := range d.Rows[i].Cells {
			cell := &d.Rows[i].Cells[j]
			cell.Baseline = cell.Amount
			cell.Generated = false
		}
	}
}
