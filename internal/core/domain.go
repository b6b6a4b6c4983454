package core

import (
	"errors"
	"strings"
)

type (
	Money struct {
		Cents int64
	}

	// CategorySummary describes one budget category as maintained in the
	// remote spreadsheet. It is read-only for this application; edits to
	// categories happen directly in the sheet.
	CategorySummary struct {
		ID            string
		Label         string
		Color         string
		Rollover      bool
		MonthlyBudget Money
		Currency      string
		SortOrder     int
	}

	// MonthlyBudgetRecord is a persisted per-month override of a category
	// budget. Only months that were explicitly edited exist in the store;
	// every other month falls back to the category's MonthlyBudget.
	// Unique per (CategoryID, Year, Month).
	MonthlyBudgetRecord struct {
		ID              string
		CategoryID      string
		Month           int // 1-12
		Year            int
		Amount          Money
		RolloverBalance Money
	}
)

var (
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidYear     = errors.New("invalid year")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyCategoryID = errors.New("empty category id")
	ErrEmptyLabel      = errors.New("empty category label")
)

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c CategorySummary) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyCategoryID
	}
	if strings.TrimSpace(c.Label) == "" {
		return ErrEmptyLabel
	}
	if err := c.MonthlyBudget.Validate(); err != nil {
		return err
	}
	return nil
}

func (r MonthlyBudgetRecord) Validate() error {
	if strings.TrimSpace(r.CategoryID) == "" {
		return ErrEmptyCategoryID
	}
	if r.Month < 1 || r.Month > 12 {
		return ErrInvalidMonth
	}
	if r.Year < 1900 || r.Year > 3000 {
		return ErrInvalidYear
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	return nil
}
