package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RefreshProcessorConfig holds configuration for the category refresh processor
type RefreshProcessorConfig struct {
	// PollInterval is how often to check whether the cache needs a refresh (default: 1h)
	PollInterval time.Duration

	// MaxAge is how old the cached categories may get before a refresh (default: 168h)
	MaxAge time.Duration
}

// DefaultRefreshProcessorConfig returns sensible defaults
func DefaultRefreshProcessorConfig() RefreshProcessorConfig {
	return RefreshProcessorConfig{
		PollInterval: time.Hour,
		MaxAge:       7 * 24 * time.Hour,
	}
}

// RefreshProcessor keeps the local category cache warm in the background.
type RefreshProcessor struct {
	service *BudgetService
	config  RefreshProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRefreshProcessor(service *BudgetService, config RefreshProcessorConfig) *RefreshProcessor {
	defaults := DefaultRefreshProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.MaxAge <= 0 {
		config.MaxAge = defaults.MaxAge
	}
	return &RefreshProcessor{
		service: service,
		config:  config,
	}
}

// Start begins the refresh loop. Returns an error if already running.
func (p *RefreshProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("refresh processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Refresh processor started",
		"poll_interval", p.config.PollInterval,
		"max_age", p.config.MaxAge)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *RefreshProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Refresh processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Refresh processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *RefreshProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RefreshProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Refresh immediately on startup
	p.refresh(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *RefreshProcessor) refresh(ctx context.Context) {
	if !p.service.net.Online() {
		slog.DebugContext(ctx, "Skipping category refresh while offline")
		return
	}
	if err := p.service.RefreshCategories(ctx, p.config.MaxAge, false); err != nil {
		slog.ErrorContext(ctx, "Category refresh failed", "error", err)
	}
}
