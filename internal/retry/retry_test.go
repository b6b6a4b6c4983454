package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func fastOptions() Options {
	return Options{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, fastOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesRateLimitUntilSuccess(t *testing.T) {
	// Four 429s then success: with a budget of 5 the call resolves and run
	// was invoked exactly 5 times.
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls <= 4 {
			return &googleapi.Error{Code: 429, Message: "rate limited"}
		}
		return nil
	}, fastOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 5 {
		t.Fatalf("expected 5 calls, got %d", calls)
	}
}

func TestDoDoesNotRetryApplicationErrors(t *testing.T) {
	calls := 0
	bad := &googleapi.Error{Code: 400, Message: "bad request"}
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return bad
	}, fastOptions())
	if !errors.Is(err, bad) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-retryable errors must fail after 1 call, got %d", calls)
	}
}

func TestDoSurfacesLastErrorOnExhaustion(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, &googleapi.Error{Code: 503})
	}, fastOptions())
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if calls != 5 {
		t.Fatalf("expected 5 calls, got %d", calls)
	}
	// The last real error must surface, never a generic message.
	if !strings.Contains(err.Error(), "attempt 5") {
		t.Fatalf("expected the last observed error, got %q", err.Error())
	}
	if errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("generic exhaustion error must not replace a real one")
	}
}

func TestDoRespectsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	opts := Options{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, func(context.Context) error {
		calls++
		return &googleapi.Error{Code: 503}
	}, opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

type statusErr struct{ code int }

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) HTTPStatusCode() int { return e.code }

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"googleapi 429", &googleapi.Error{Code: 429}, true},
		{"googleapi 503", &googleapi.Error{Code: 503}, true},
		{"googleapi 400", &googleapi.Error{Code: 400}, false},
		{"googleapi 401", &googleapi.Error{Code: 401}, false},
		{"status interface 408", statusErr{408}, true},
		{"status interface 425", statusErr{425}, true},
		{"status interface 404", statusErr{404}, false},
		{"wrapped retryable", fmt.Errorf("call: %w", &googleapi.Error{Code: 502}), true},
		{"plain error", errors.New("boom"), false},
		{"nil-ish sentinel", context.Canceled, false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	opts := Options{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 5}
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(attempt, opts)
		if d > opts.MaxDelay {
			t.Fatalf("attempt %d: delay %v exceeds max %v", attempt, d, opts.MaxDelay)
		}
		if d < opts.BaseDelay/2 && attempt == 0 {
			t.Fatalf("attempt 0: delay %v below jitter floor", d)
		}
	}
}
