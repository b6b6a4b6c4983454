// Package google adapts the budget ports onto a Google Sheets spreadsheet.
// Categories live on one sheet; monthly overrides live on one year-prefixed
// sheet per year. Every remote call goes through the retry executor.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bilancio/internal/core"
	"bilancio/internal/retry"
	ports "bilancio/internal/sheets"
)

const (
	categoriesRange = "A2:G"
	budgetsRange    = "A2:F"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Categories are timeless; the sheet name is used as-is.
	categoriesSheet string
	// Budgets are kept per year; the base name gets a year prefix
	// (e.g. "2025 Budgets").
	budgetsBase string
	retryOpts   retry.Options
}

// Ensure interface conformance
var (
	_ ports.CategoryReader = (*Client)(nil)
	_ ports.RecordReader   = (*Client)(nil)
	_ ports.BudgetWriter   = (*Client)(nil)
)

// Config holds the spreadsheet coordinates and retry behavior.
type Config struct {
	SpreadsheetID   string
	CategoriesSheet string // default "Categories"
	BudgetsSheet    string // base name, default "Budgets"
	Retry           retry.Options
}

// New creates a Sheets client from explicit configuration, authenticating
// with service account credentials from the environment.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.CategoriesSheet == "" {
		cfg.CategoriesSheet = "Categories"
	}
	if cfg.BudgetsSheet == "" {
		cfg.BudgetsSheet = "Budgets"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:             svc,
		spreadsheetID:   cfg.SpreadsheetID,
		categoriesSheet: cfg.CategoriesSheet,
		budgetsBase:     cfg.BudgetsSheet,
		retryOpts:       cfg.Retry,
	}, nil
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional sheet names: GOOGLE_CATEGORIES_SHEET_NAME (default "Categories"),
// GOOGLE_BUDGETS_SHEET_NAME (default "Budgets").
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, Config{
		SpreadsheetID:   strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		CategoriesSheet: strings.TrimSpace(os.Getenv("GOOGLE_CATEGORIES_SHEET_NAME")),
		BudgetsSheet:    strings.TrimSpace(os.Getenv("GOOGLE_BUDGETS_SHEET_NAME")),
		Retry:           retry.DefaultOptions(),
	})
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ListCategories implements ports.CategoryReader.
func (c *Client) ListCategories(ctx context.Context) ([]core.CategorySummary, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", c.categoriesSheet, categoriesRange)

	var resp *gsheet.ValueRange
	err := retry.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		return err
	}, c.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	cats, err := parseCategories(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	return cats, nil
}

// ListBudgetRecords implements ports.RecordReader. Only months with an
// explicit override exist on the sheet.
func (c *Client) ListBudgetRecords(ctx context.Context, year int) ([]core.MonthlyBudgetRecord, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", c.budgetsSheetName(year), budgetsRange)

	var resp *gsheet.ValueRange
	err := retry.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		return err
	}, c.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	return parseBudgetRows(resp.Values, year), nil
}

// ReplaceBudgets implements ports.BudgetWriter. Records are grouped by year;
// each year's sheet is cleared and rewritten wholesale, so a save is always
// a full replacement of the month-by-category matrix.
func (c *Client) ReplaceBudgets(ctx context.Context, records []core.MonthlyBudgetRecord) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	byYear := map[int][]core.MonthlyBudgetRecord{}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("validation failed for record %s: %w", r.ID, err)
		}
		byYear[r.Year] = append(byYear[r.Year], r)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, year := range years {
		if err := c.replaceYear(ctx, year, byYear[year]); err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "Replaced budget records",
		"records", len(records),
		"years", len(years))
	return nil
}

func (c *Client) replaceYear(ctx context.Context, year int, records []core.MonthlyBudgetRecord) error {
	sheet := c.budgetsSheetName(year)
	rng := fmt.Sprintf("%s!%s", sheet, budgetsRange)

	err := retry.Do(ctx, func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
			Context(ctx).Do()
		return err
	}, c.retryOpts)
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	values := make([][]any, 0, len(records))
	for _, r := range records {
		values = append(values, []any{
			r.ID,
			r.CategoryID,
			r.Year,
			r.Month,
			r.Amount.Units(),
			r.RolloverBalance.Units(),
		})
	}
	vr := &gsheet.ValueRange{Values: values}

	err = retry.Do(ctx, func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		return err
	}, c.retryOpts)
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// budgetsSheetName returns "<year> <base>" unless base already starts with a
// 4-digit year.
func (c *Client) budgetsSheetName(year int) string {
	return yearPrefixedName(c.budgetsBase, year)
}

func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
