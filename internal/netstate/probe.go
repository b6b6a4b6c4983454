package netstate

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	DefaultProbeURL      = "https://www.google.com/generate_204"
	DefaultProbeInterval = 15 * time.Second
)

// Probe derives connectivity from periodic HTTP requests against a
// lightweight endpoint. It embeds a Manual observer for state bookkeeping
// and subscriptions.
type Probe struct {
	*Manual
	url      string
	interval time.Duration
	client   *http.Client
}

type ProbeConfig struct {
	URL      string
	Interval time.Duration
	// Client overrides the pooled default, mainly for tests.
	Client *http.Client
}

// NewProbe creates a probe that starts out optimistic (online) until the
// first check says otherwise.
func NewProbe(cfg ProbeConfig) *Probe {
	if cfg.URL == "" {
		cfg.URL = DefaultProbeURL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProbeInterval
	}
	client := cfg.Client
	if client == nil {
		client = newProbeHTTPClient()
	}
	return &Probe{
		Manual:   NewManual(true),
		url:      cfg.URL,
		interval: cfg.Interval,
		client:   client,
	}
}

// Run probes until ctx is done. It blocks; run it in its own goroutine.
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Probe) check(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, p.url, nil)
	if err != nil {
		slog.ErrorContext(ctx, "Invalid probe request", "url", p.url, "error", err)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if p.Online() {
			slog.WarnContext(ctx, "Connectivity lost", "url", p.url, "error", err)
		}
		p.Set(false)
		return
	}
	resp.Body.Close()

	online := resp.StatusCode < 500
	if online && !p.Online() {
		slog.InfoContext(ctx, "Connectivity restored", "url", p.url, "status", resp.StatusCode)
	}
	p.Set(online)
}

// newProbeHTTPClient builds a small pooled client with conservative
// timeouts; a hung probe must never wedge the state machine.
func newProbeHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   15 * time.Second,
	}
}
