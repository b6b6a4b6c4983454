// Package services orchestrates budget reads and saves across the chosen
// backend, the local SQLite cache, the offline queue, and the event bus.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/backend"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/grid"
	"bilancio/internal/netstate"
	"bilancio/internal/queue"
	"bilancio/internal/storage"
)

// LocalCache is the subset of the SQLite repository the service uses for
// offline reads and write-through caching.
type LocalCache interface {
	ReplaceCategories(ctx context.Context, cats []core.CategorySummary) error
	ListCategories(ctx context.Context) ([]core.CategorySummary, error)
	CategoryCount(ctx context.Context) (int64, error)
	CategoryLastSync(ctx context.Context) (time.Time, error)
	ListBudgetRecords(ctx context.Context, year int) ([]core.MonthlyBudgetRecord, error)
	ReplaceBudgetRecords(ctx context.Context, year int, records []core.MonthlyBudgetRecord) error
	ReplaceBudgets(ctx context.Context, records []core.MonthlyBudgetRecord) error
}

var _ LocalCache = (*storage.SQLiteRepository)(nil)

// EventPublisher publishes save events for downstream consumers.
type EventPublisher interface {
	PublishBudgetSaved(ctx context.Context, years []int, recordCount int) error
}

var _ EventPublisher = (*amqp.Client)(nil)

// BudgetServiceOptions tunes the service; zero values pick defaults.
type BudgetServiceOptions struct {
	// Horizon is the number of months a grid covers (default: grid.DefaultHorizon).
	Horizon int

	// FlushDebounce is forwarded to the offline queue.
	FlushDebounce time.Duration

	// GridCacheSize caps the memoized grid cache (default: 16).
	GridCacheSize int

	// GridCacheTTL bounds how long a memoized grid may serve (default: 5m).
	GridCacheTTL time.Duration
}

func (o *BudgetServiceOptions) withDefaults() {
	if o.Horizon <= 0 {
		o.Horizon = grid.DefaultHorizon
	}
	if o.GridCacheSize <= 0 {
		o.GridCacheSize = 16
	}
	if o.GridCacheTTL <= 0 {
		o.GridCacheTTL = 5 * time.Minute
	}
}

// BudgetService orchestrates budget operations: it derives grids from the
// backend (falling back to the local cache while offline), routes saves
// through the offline queue, and announces successful saves on the event bus.
type BudgetService struct {
	backend backend.Backend
	local   LocalCache
	net     netstate.Observer
	events  EventPublisher // may be nil

	queue *queue.Queue[[]core.MonthlyBudgetRecord]
	grids *cache.LRUCache[grid.Grid]

	horizon int
}

func NewBudgetService(
	be backend.Backend,
	local LocalCache,
	net netstate.Observer,
	events EventPublisher,
	opts BudgetServiceOptions,
) *BudgetService {
	opts.withDefaults()

	s := &BudgetService{
		backend: be,
		local:   local,
		net:     net,
		events:  events,
		grids:   cache.NewLRUCache[grid.Grid](opts.GridCacheSize, opts.GridCacheTTL),
		horizon: opts.Horizon,
	}
	s.queue = queue.New(s.saveRecords, net, queue.Options{
		FlushDebounce: opts.FlushDebounce,
		OnReconnect:   s.grids.Purge,
	})
	return s
}

// Close detaches the service from the connectivity observer.
func (s *BudgetService) Close() {
	s.queue.Close()
}

// QueueState exposes the offline queue's slot state for UI indicators.
func (s *BudgetService) QueueState() queue.State {
	return s.queue.State()
}

// LoadGrid derives the dense budget grid starting at start's month. Reads go
// to the backend while online; when offline, or when the backend read fails
// while offline, the local cache serves instead.
func (s *BudgetService) LoadGrid(ctx context.Context, start time.Time, horizon int) (grid.Grid, error) {
	if horizon <= 0 {
		horizon = s.horizon
	}

	key := fmt.Sprintf("%04d-%02d|%d", start.Year(), int(start.Month()), horizon)
	if g, ok := s.grids.Get(key); ok {
		return g, nil
	}

	cats, err := s.loadCategories(ctx)
	if err != nil {
		return grid.Grid{}, fmt.Errorf("load categories: %w", err)
	}

	records, err := s.loadRecords(ctx, start, horizon)
	if err != nil {
		return grid.Grid{}, fmt.Errorf("load budget records: %w", err)
	}

	g := grid.Build(cats, records, start, horizon)
	s.grids.Set(key, g)
	return g, nil
}

// Save serializes the draft's full horizon and hands it to the offline queue.
// The returned ticket settles once the records reach the backend (or the
// backend rejects them); callers should Reconcile the draft after a
// successful wait.
func (s *BudgetService) Save(ctx context.Context, d *grid.Draft) *queue.Ticket {
	return s.queue.Enqueue(ctx, d.Serialize())
}

// SaveAndWait saves the draft and blocks until the ticket settles, then marks
// the draft clean on success.
func (s *BudgetService) SaveAndWait(ctx context.Context, d *grid.Draft) error {
	if err := s.Save(ctx, d).Wait(ctx); err != nil {
		return err
	}
	d.Reconcile()
	return nil
}

// RefreshCategories pulls categories from the backend into the local cache
// when the cache is empty, stale, or force is set.
func (s *BudgetService) RefreshCategories(ctx context.Context, maxAge time.Duration, force bool) error {
	if !force {
		count, err := s.local.CategoryCount(ctx)
		if err != nil {
			return fmt.Errorf("count cached categories: %w", err)
		}
		if count > 0 {
			last, err := s.local.CategoryLastSync(ctx)
			if err != nil {
				return fmt.Errorf("read category sync time: %w", err)
			}
			if !last.IsZero() && time.Since(last) < maxAge {
				return nil
			}
		}
	}

	cats, err := s.backend.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("fetch categories: %w", err)
	}
	if err := s.local.ReplaceCategories(ctx, cats); err != nil {
		return fmt.Errorf("cache categories: %w", err)
	}
	s.grids.Purge()

	slog.InfoContext(ctx, "Refreshed category cache", "categories", len(cats))
	return nil
}

// saveRecords is the queue's saver: backend write first, then write-through
// to the local cache and a best-effort event publish.
func (s *BudgetService) saveRecords(ctx context.Context, records []core.MonthlyBudgetRecord) error {
	if err := s.backend.ReplaceBudgets(ctx, records); err != nil {
		return err
	}

	if err := s.local.ReplaceBudgets(ctx, records); err != nil {
		// The backend already holds the truth; a cache miss only degrades
		// offline reads.
		slog.WarnContext(ctx, "Failed to cache saved budgets locally", "error", err)
	}

	s.grids.Purge()
	s.publishSaved(ctx, records)
	return nil
}

func (s *BudgetService) publishSaved(ctx context.Context, records []core.MonthlyBudgetRecord) {
	if s.events == nil {
		return
	}
	seen := map[int]bool{}
	years := make([]int, 0, 2)
	for _, r := range records {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	if err := s.events.PublishBudgetSaved(ctx, years, len(records)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish budget saved event", "error", err)
	}
}

func (s *BudgetService) loadCategories(ctx context.Context) ([]core.CategorySummary, error) {
	if !s.net.Online() {
		slog.InfoContext(ctx, "Offline, reading categories from local cache")
		return s.local.ListCategories(ctx)
	}
	cats, err := s.backend.ListCategories(ctx)
	if err != nil {
		if !s.net.Online() {
			slog.WarnContext(ctx, "Backend read failed offline, using cached categories", "error", err)
			return s.local.ListCategories(ctx)
		}
		return nil, err
	}
	if err := s.local.ReplaceCategories(ctx, cats); err != nil {
		slog.WarnContext(ctx, "Failed to cache categories locally", "error", err)
	}
	return cats, nil
}

func (s *BudgetService) loadRecords(ctx context.Context, start time.Time, horizon int) ([]core.MonthlyBudgetRecord, error) {
	var all []core.MonthlyBudgetRecord
	for _, year := range yearsSpanned(start, horizon) {
		records, err := s.loadYear(ctx, year)
		if err != nil {
			return nil, fmt.Errorf("year %d: %w", year, err)
		}
		all = append(all, records...)
	}
	return all, nil
}

func (s *BudgetService) loadYear(ctx context.Context, year int) ([]core.MonthlyBudgetRecord, error) {
	if !s.net.Online() {
		return s.local.ListBudgetRecords(ctx, year)
	}
	records, err := s.backend.ListBudgetRecords(ctx, year)
	if err != nil {
		if !s.net.Online() {
			slog.WarnContext(ctx, "Backend read failed offline, using cached records",
				"year", year, "error", err)
			return s.local.ListBudgetRecords(ctx, year)
		}
		return nil, err
	}
	if err := s.local.ReplaceBudgetRecords(ctx, year, records); err != nil {
		slog.WarnContext(ctx, "Failed to cache budget records locally",
			"year", year, "error", err)
	}
	return records, nil
}

// yearsSpanned returns the distinct calendar years the horizon touches,
// starting from the first day of start's month.
func yearsSpanned(start time.Time, horizon int) []int {
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, horizon-1, 0)
	years := make([]int, 0, last.Year()-first.Year()+1)
	for y := first.Year(); y <= last.Year(); y++ {
		years = append(years, y)
	}
	return years
}
