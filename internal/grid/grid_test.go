package grid

import (
	"reflect"
	"testing"
	"time"

	"bilancio/internal/core"
)

func travelCategory() core.CategorySummary {
	return core.CategorySummary{
		ID:            "travel",
		Label:         "Travel",
		Rollover:      true,
		MonthlyBudget: core.Money{Cents: 50000},
		Currency:      "EUR",
	}
}

func TestBuildMonthSequence(t *testing.T) {
	g := Build(nil, nil, time.Date(2025, 11, 15, 10, 30, 0, 0, time.UTC), 4)

	if len(g.Months) != 4 {
		t.Fatalf("expected 4 months, got %d", len(g.Months))
	}
	want := []struct {
		id    string
		month int
		year  int
	}{
		{"2025-11", 11, 2025},
		{"2025-12", 12, 2025},
		{"2026-01", 1, 2026},
		{"2026-02", 2, 2026},
	}
	for i, w := range want {
		m := g.Months[i]
		if m.ID != w.id || m.Month != w.month || m.Year != w.year || m.Index != i {
			t.Fatalf("month %d: expected %+v, got %+v", i, w, m)
		}
	}
}

func TestBuildDefaultHorizon(t *testing.T) {
	g := Build(nil, nil, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 0)
	if len(g.Months) != DefaultHorizon {
		t.Fatalf("expected %d months, got %d", DefaultHorizon, len(g.Months))
	}
}

func TestBuildSortsCategories(t *testing.T) {
	cats := []core.CategorySummary{
		{ID: "c", Label: "Zoo", SortOrder: 1, MonthlyBudget: core.Money{Cents: 100}},
		{ID: "a", Label: "Bar", SortOrder: 2, MonthlyBudget: core.Money{Cents: 100}},
		{ID: "b", Label: "Apple", SortOrder: 1, MonthlyBudget: core.Money{Cents: 100}},
	}
	g := Build(cats, nil, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 1)

	got := []string{g.Rows[0].Category.ID, g.Rows[1].Category.ID, g.Rows[2].Category.ID}
	want := []string{"b", "c", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected row order %v, got %v", want, got)
	}
	// Input slice must stay untouched.
	if cats[0].ID != "c" {
		t.Fatalf("input categories were mutated")
	}
}

func TestBuildGeneratedCells(t *testing.T) {
	cat := core.CategorySummary{ID: "food", Label: "Food", MonthlyBudget: core.Money{Cents: 30000}}
	records := []core.MonthlyBudgetRecord{
		{ID: "rec-1", CategoryID: "food", Year: 2025, Month: 2, Amount: core.Money{Cents: 11111}},
	}
	g := Build([]core.CategorySummary{cat}, records, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 3)

	cells := g.Rows[0].Cells
	if !cells[0].Generated || cells[0].Amount.Cents != 30000 || cells[0].RecordID != "" {
		t.Fatalf("month 0 should be generated from default: %+v", cells[0])
	}
	if cells[1].Generated || cells[1].Amount.Cents != 11111 || cells[1].RecordID != "rec-1" {
		t.Fatalf("month 1 should come from the stored record: %+v", cells[1])
	}
	if !cells[2].Generated || cells[2].Amount.Cents != 30000 {
		t.Fatalf("month 2 should be generated from default: %+v", cells[2])
	}
}

func TestBuildRolloverScenario(t *testing.T) {
	// Travel, budget 500, amounts [300, 500, 700]:
	// month 0 opens at 0 (diff +200 -> R 200), month 1 opens at 200
	// (diff 0 -> R 200), month 2 opens at 200 (diff -200 -> R 0).
	cat := travelCategory()
	records := []core.MonthlyBudgetRecord{
		{ID: "r1", CategoryID: "travel", Year: 2025, Month: 1, Amount: core.Money{Cents: 30000}},
		{ID: "r2", CategoryID: "travel", Year: 2025, Month: 2, Amount: core.Money{Cents: 50000}},
		{ID: "r3", CategoryID: "travel", Year: 2025, Month: 3, Amount: core.Money{Cents: 70000}},
	}
	g := Build([]core.CategorySummary{cat}, records, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 3)

	want := []int64{0, 20000, 20000}
	for i, w := range want {
		if got := g.Rows[0].Cells[i].RolloverBalance.Cents; got != w {
			t.Fatalf("month %d: expected rollover %d, got %d", i, w, got)
		}
	}
}

func TestBuildRolloverNeverNegative(t *testing.T) {
	cat := travelCategory()
	records := []core.MonthlyBudgetRecord{
		// Overspend right away; the running balance must clamp at zero.
		{ID: "r1", CategoryID: "travel", Year: 2025, Month: 1, Amount: core.Money{Cents: 90000}},
		{ID: "r2", CategoryID: "travel", Year: 2025, Month: 2, Amount: core.Money{Cents: 40000}},
	}
	g := Build([]core.CategorySummary{cat}, records, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 3)

	cells := g.Rows[0].Cells
	if cells[1].RolloverBalance.Cents != 0 {
		t.Fatalf("overspend must not carry a negative balance, got %d", cells[1].RolloverBalance.Cents)
	}
	if cells[2].RolloverBalance.Cents != 10000 {
		t.Fatalf("expected 10000 carried into month 2, got %d", cells[2].RolloverBalance.Cents)
	}
}

func TestBuildNonRolloverAlwaysZero(t *testing.T) {
	cat := core.CategorySummary{ID: "rent", Label: "Rent", Rollover: false, MonthlyBudget: core.Money{Cents: 80000}}
	records := []core.MonthlyBudgetRecord{
		{ID: "r1", CategoryID: "rent", Year: 2025, Month: 1, Amount: core.Money{Cents: 10000}},
	}
	g := Build([]core.CategorySummary{cat}, records, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 6)

	for i, c := range g.Rows[0].Cells {
		if c.RolloverBalance.Cents != 0 {
			t.Fatalf("month %d: non-rollover category must report 0, got %d", i, c.RolloverBalance.Cents)
		}
	}
}

func TestBuildIsPure(t *testing.T) {
	cats := []core.CategorySummary{travelCategory()}
	records := []core.MonthlyBudgetRecord{
		{ID: "r1", CategoryID: "travel", Year: 2025, Month: 2, Amount: core.Money{Cents: 12300}},
	}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	a := Build(cats, records, start, 6)
	b := Build(cats, records, start, 6)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("two builds with identical inputs differ")
	}
}
