package google

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"bilancio/internal/core"
)

// parseCategories converts a values matrix (as returned by the Sheets API)
// into category summaries. Expected columns: ID, Label, Color, Rollover,
// MonthlyBudget, Currency, SortOrder. Blank and comment rows are skipped;
// a malformed row fails the whole read so a broken sheet never silently
// produces a half-empty grid.
func parseCategories(values [][]interface{}) ([]core.CategorySummary, error) {
	out := make([]core.CategorySummary, 0, len(values))
	for i, row := range values {
		cols := toStrings(row)
		id := safeGet(cols, 0)
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		label := safeGet(cols, 1)
		budgetCents, ok := parseAmountCents(safeGet(cols, 4))
		if !ok {
			return nil, fmt.Errorf("row %d: bad monthly budget %q", i+2, safeGet(cols, 4))
		}
		sortOrder := 0
		if s := safeGet(cols, 6); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad sort order %q", i+2, s)
			}
			sortOrder = n
		}
		cat := core.CategorySummary{
			ID:            id,
			Label:         label,
			Color:         safeGet(cols, 2),
			Rollover:      parseBoolCell(safeGet(cols, 3)),
			MonthlyBudget: core.Money{Cents: budgetCents},
			Currency:      safeGet(cols, 5),
			SortOrder:     sortOrder,
		}
		if err := cat.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, cat)
	}
	return out, nil
}

// parseBudgetRows converts a values matrix into sparse budget records.
// Expected columns: ID, CategoryID, Year, Month, Amount, RolloverBalance.
// Rows that do not parse are skipped rather than failing the read, so one
// bad cell cannot blank the whole grid.
func parseBudgetRows(values [][]interface{}, fallbackYear int) []core.MonthlyBudgetRecord {
	var out []core.MonthlyBudgetRecord
	for _, row := range values {
		cols := toStrings(row)
		if len(cols) < 5 {
			continue
		}
		id := safeGet(cols, 0)
		categoryID := safeGet(cols, 1)
		if id == "" || categoryID == "" || strings.HasPrefix(id, "#") {
			continue
		}
		year := fallbackYear
		if y, err := strconv.Atoi(safeGet(cols, 2)); err == nil && y > 1900 && y < 3000 {
			year = y
		}
		month, err := strconv.Atoi(safeGet(cols, 3))
		if err != nil || month < 1 || month > 12 {
			continue
		}
		amountCents, ok := parseAmountCents(safeGet(cols, 4))
		if !ok {
			continue
		}
		rolloverCents := int64(0)
		if c, ok := parseAmountCents(safeGet(cols, 5)); ok {
			rolloverCents = c
		}
		out = append(out, core.MonthlyBudgetRecord{
			ID:              id,
			CategoryID:      categoryID,
			Month:           month,
			Year:            year,
			Amount:          core.Money{Cents: amountCents},
			RolloverBalance: core.Money{Cents: rolloverCents},
		})
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// parseAmountCents accepts both dot and comma decimal separators, as cells
// come back formatted per the spreadsheet locale. Amounts are non-negative;
// negative cells are rejected.
func parseAmountCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return int64(math.Round(f * 100.0)), true
}

func parseBoolCell(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "x":
		return true
	default:
		return false
	}
}
