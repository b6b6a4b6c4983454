// Package storage caches remote sheet data in a local SQLite database so
// grids can still be derived while the network is down. It is a read-side
// cache: the pending mutation queue is deliberately not persisted here.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bilancio/internal/core"
	ports "bilancio/internal/sheets"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

// The repository can stand in for the remote ports (local-only backend).
var (
	_ ports.CategoryReader = (*SQLiteRepository)(nil)
	_ ports.RecordReader   = (*SQLiteRepository)(nil)
	_ ports.BudgetWriter   = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ReplaceCategories rewrites the cached category set and stamps the sync
// time.
func (r *SQLiteRepository) ReplaceCategories(ctx context.Context, cats []core.CategorySummary) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range cats {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("category %s: %w", c.ID, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, label, color, rollover, monthly_budget_cents, currency, sort_order, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Label, c.Color, boolToInt(c.Rollover), c.MonthlyBudget.Cents, c.Currency, c.SortOrder, now)
		if err != nil {
			return fmt.Errorf("insert category %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit categories: %w", err)
	}

	slog.InfoContext(ctx, "Categories cached to SQLite", "count", len(cats))
	return nil
}

// ListCategories implements ports.CategoryReader from the local cache.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.CategorySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, color, rollover, monthly_budget_cents, currency, sort_order
		FROM categories
		ORDER BY sort_order, label`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []core.CategorySummary
	for rows.Next() {
		var c core.CategorySummary
		var rollover int
		var budgetCents int64
		if err := rows.Scan(&c.ID, &c.Label, &c.Color, &rollover, &budgetCents, &c.Currency, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Rollover = rollover != 0
		c.MonthlyBudget = core.Money{Cents: budgetCents}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CategoryCount returns the number of cached categories.
func (r *SQLiteRepository) CategoryCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return count, nil
}

// CategoryLastSync returns when the category cache was last rewritten.
func (r *SQLiteRepository) CategoryLastSync(ctx context.Context) (time.Time, error) {
	var last string
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(synced_at), '') FROM categories`).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("query last sync: %w", err)
	}
	if last == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, last)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last sync %q: %w", last, err)
	}
	return ts, nil
}

// ReplaceBudgetRecords rewrites all cached records for one year.
func (r *SQLiteRepository) ReplaceBudgetRecords(ctx context.Context, year int, records []core.MonthlyBudgetRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM budget_records WHERE year = ?`, year); err != nil {
		return fmt.Errorf("clear budget records for %d: %w", year, err)
	}

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO budget_records (id, category_id, year, month, amount_cents, rollover_balance_cents)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.CategoryID, rec.Year, rec.Month, rec.Amount.Cents, rec.RolloverBalance.Cents)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit budget records: %w", err)
	}
	return nil
}

// ListBudgetRecords implements ports.RecordReader from the local cache.
func (r *SQLiteRepository) ListBudgetRecords(ctx context.Context, year int) ([]core.MonthlyBudgetRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category_id, year, month, amount_cents, rollover_balance_cents
		FROM budget_records
		WHERE year = ?
		ORDER BY category_id, month`, year)
	if err != nil {
		return nil, fmt.Errorf("query budget records: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlyBudgetRecord
	for rows.Next() {
		var rec core.MonthlyBudgetRecord
		var amountCents, rolloverCents int64
		if err := rows.Scan(&rec.ID, &rec.CategoryID, &rec.Year, &rec.Month, &amountCents, &rolloverCents); err != nil {
			return nil, fmt.Errorf("scan budget record: %w", err)
		}
		rec.Amount = core.Money{Cents: amountCents}
		rec.RolloverBalance = core.Money{Cents: rolloverCents}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReplaceBudgets implements ports.BudgetWriter against the local cache,
// grouping records by year so the repository can also serve as a local-only
// backend.
func (r *SQLiteRepository) ReplaceBudgets(ctx context.Context, records []core.MonthlyBudgetRecord) error {
	byYear := make(map[int][]core.MonthlyBudgetRecord)
	for _, rec := range records {
		byYear[rec.Year] = append(byYear[rec.Year], rec)
	}
	for year, recs := range byYear {
		if err := r.ReplaceBudgetRecords(ctx, year, recs); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
