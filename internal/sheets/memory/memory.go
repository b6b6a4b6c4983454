// Package memory is an in-memory implementation of the budget ports, used
// by tests and as the default backend for local development.
package memory

import (
	"context"
	"sync"

	"bilancio/internal/core"
	ports "bilancio/internal/sheets"
)

type Store struct {
	mu      sync.Mutex
	cats    []core.CategorySummary
	records map[int][]core.MonthlyBudgetRecord // keyed by year
}

var (
	_ ports.CategoryReader = (*Store)(nil)
	_ ports.RecordReader   = (*Store)(nil)
	_ ports.BudgetWriter   = (*Store)(nil)
)

func New(cats []core.CategorySummary, records []core.MonthlyBudgetRecord) *Store {
	s := &Store{
		cats:    append([]core.CategorySummary(nil), cats...),
		records: make(map[int][]core.MonthlyBudgetRecord),
	}
	for _, r := range records {
		s.records[r.Year] = append(s.records[r.Year], r)
	}
	return s
}

// ListCategories implements ports.CategoryReader.
func (s *Store) ListCategories(_ context.Context) ([]core.CategorySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.CategorySummary(nil), s.cats...), nil
}

// ListBudgetRecords implements ports.RecordReader.
func (s *Store) ListBudgetRecords(_ context.Context, year int) ([]core.MonthlyBudgetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.MonthlyBudgetRecord(nil), s.records[year]...), nil
}

// ReplaceBudgets implements ports.BudgetWriter with the same full-replacement
// semantics as the sheet: every year touched by the records is rewritten
// wholesale.
func (s *Store) ReplaceBudgets(_ context.Context, records []core.MonthlyBudgetRecord) error {
	byYear := make(map[int][]core.MonthlyBudgetRecord)
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		byYear[r.Year] = append(byYear[r.Year], r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for year, recs := range byYear {
		s.records[year] = recs
	}
	return nil
}
