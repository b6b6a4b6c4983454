package memory

import (
	"context"
	"testing"

	"bilancio/internal/core"
)

func TestListCategoriesCopies(t *testing.T) {
	cats := []core.CategorySummary{
		{ID: "a", Label: "A", MonthlyBudget: core.Money{Cents: 100}},
	}
	s := New(cats, nil)

	got, err := s.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got[0].Label = "mutated"

	again, _ := s.ListCategories(context.Background())
	if again[0].Label != "A" {
		t.Fatalf("store leaked its internal slice")
	}
}

func TestReplaceBudgetsIsFullReplacement(t *testing.T) {
	s := New(nil, []core.MonthlyBudgetRecord{
		{ID: "old-1", CategoryID: "a", Year: 2025, Month: 1, Amount: core.Money{Cents: 100}},
		{ID: "old-2", CategoryID: "a", Year: 2025, Month: 2, Amount: core.Money{Cents: 200}},
	})

	err := s.ReplaceBudgets(context.Background(), []core.MonthlyBudgetRecord{
		{ID: "new-1", CategoryID: "a", Year: 2025, Month: 3, Amount: core.Money{Cents: 300}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := s.ListBudgetRecords(context.Background(), 2025)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].ID != "new-1" {
		t.Fatalf("expected the year to be rewritten wholesale, got %+v", records)
	}
}

func TestReplaceBudgetsValidates(t *testing.T) {
	s := New(nil, nil)
	err := s.ReplaceBudgets(context.Background(), []core.MonthlyBudgetRecord{
		{ID: "bad", CategoryID: "a", Year: 2025, Month: 13, Amount: core.Money{Cents: 1}},
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}
