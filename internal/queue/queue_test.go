package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bilancio/internal/netstate"
)

// recordingSaver collects every payload the queue hands to the mutation.
type recordingSaver struct {
	mu    sync.Mutex
	calls []string
	fail  error
	hook  func(vars string) // runs before returning, under no lock
}

func (s *recordingSaver) save(_ context.Context, vars string) error {
	s.mu.Lock()
	s.calls = append(s.calls, vars)
	fail := s.fail
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(vars)
	}
	return fail
}

func (s *recordingSaver) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *recordingSaver) lastCall() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return ""
	}
	return s.calls[len(s.calls)-1]
}

func (s *recordingSaver) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func testOptions() Options {
	return Options{FlushDebounce: 10 * time.Millisecond}
}

func waitSettled(t *testing.T, ticket *Ticket) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := ticket.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ticket never settled")
	}
	return err
}

func TestEnqueueOnlineRunsImmediately(t *testing.T) {
	net := netstate.NewManual(true)
	saver := &recordingSaver{}
	q := New(saver.save, net, testOptions())
	defer q.Close()

	ticket := q.Enqueue(context.Background(), "a")
	if err := waitSettled(t, ticket); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saver.callCount() != 1 || saver.lastCall() != "a" {
		t.Fatalf("expected one immediate call with %q, got %v", "a", saver.calls)
	}
	if q.Pending() {
		t.Fatalf("slot must be empty after an immediate save")
	}
}

func TestEnqueueSurfacesApplicationErrors(t *testing.T) {
	net := netstate.NewManual(true)
	saver := &recordingSaver{fail: errors.New("validation failed")}
	q := New(saver.save, net, testOptions())
	defer q.Close()

	ticket := q.Enqueue(context.Background(), "a")
	if err := waitSettled(t, ticket); err == nil {
		t.Fatalf("expected application error to surface")
	}
	if q.Pending() {
		t.Fatalf("application failures must never be queued")
	}

	// The queue keeps accepting work afterwards.
	saver.setFail(nil)
	ticket = q.Enqueue(context.Background(), "b")
	if err := waitSettled(t, ticket); err != nil {
		t.Fatalf("queue wedged after an application error: %v", err)
	}
}

func TestOfflineEnqueueCoalescesLastWriteWins(t *testing.T) {
	net := netstate.NewManual(false)
	saver := &recordingSaver{}
	reconnected := make(chan struct{}, 1)
	opts := testOptions()
	opts.OnReconnect = func() { reconnected <- struct{}{} }
	q := New(saver.save, net, opts)
	defer q.Close()

	t1 := q.Enqueue(context.Background(), "a")
	t2 := q.Enqueue(context.Background(), "b")
	if t1 != t2 {
		t.Fatalf("all enqueues of one offline window must share a ticket")
	}
	if saver.callCount() != 0 {
		t.Fatalf("nothing may be sent while offline")
	}
	if !q.Pending() {
		t.Fatalf("expected a pending entry while offline")
	}

	net.Set(true)
	if err := waitSettled(t, t1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saver.callCount() != 1 || saver.lastCall() != "b" {
		t.Fatalf("expected exactly one replay with the last payload, got %v", saver.calls)
	}

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatalf("reconnect callback never fired")
	}
}

func TestImmediateFailureAttributedToConnectivityQueues(t *testing.T) {
	net := netstate.NewManual(true)
	saver := &recordingSaver{}
	saver.fail = errors.New("connection reset")
	saver.hook = func(string) {
		// The platform signal accompanies the failed round trip.
		net.Set(false)
	}
	q := New(saver.save, net, testOptions())
	defer q.Close()

	ticket := q.Enqueue(context.Background(), "a")
	select {
	case <-ticket.Done():
		t.Fatalf("connectivity failures must stay invisible to the caller")
	case <-time.After(50 * time.Millisecond):
	}
	if !q.Pending() {
		t.Fatalf("payload must be parked after a connectivity failure")
	}

	saver.setFail(nil)
	saver.mu.Lock()
	saver.hook = nil
	saver.mu.Unlock()
	net.Set(true)

	if err := waitSettled(t, ticket); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saver.callCount() != 2 {
		t.Fatalf("expected the failed attempt plus one replay, got %d", saver.callCount())
	}
}

func TestFlushConnectivityFailureKeepsEntryQueued(t *testing.T) {
	net := netstate.NewManual(false)
	saver := &recordingSaver{}
	q := New(saver.save, net, testOptions())
	defer q.Close()

	ticket := q.Enqueue(context.Background(), "a")

	// The drain loses the network mid-flight.
	saver.setFail(errors.New("broken pipe"))
	saver.hook = func(string) { net.Set(false) }

	net.Set(true)
	time.Sleep(100 * time.Millisecond)

	select {
	case <-ticket.Done():
		t.Fatalf("ticket must not settle on a connectivity failure")
	default:
	}
	if !q.Pending() {
		t.Fatalf("entry must remain queued for the next reconnect")
	}
}

func TestCoalesceDuringInFlightSendRetransmits(t *testing.T) {
	net := netstate.NewManual(true)
	release := make(chan struct{})
	started := make(chan struct{})

	var saver recordingSaver
	saver.hook = func(vars string) {
		if vars == "a" {
			close(started)
			<-release
		}
	}
	q := New(saver.save, net, testOptions())
	defer q.Close()

	go q.Enqueue(context.Background(), "a")
	<-started

	// Coalesce a newer payload while "a" is in flight.
	ticket2 := q.Enqueue(context.Background(), "b")
	close(release)

	if err := waitSettled(t, ticket2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	saver.mu.Lock()
	calls := append([]string(nil), saver.calls...)
	saver.mu.Unlock()
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("expected the newer payload to be retransmitted, got %v", calls)
	}
}

func TestFlushDebounceResetsOnFlapping(t *testing.T) {
	net := netstate.NewManual(false)
	saver := &recordingSaver{}
	opts := Options{FlushDebounce: 60 * time.Millisecond}
	q := New(saver.save, net, opts)
	defer q.Close()

	q.Enqueue(context.Background(), "a")

	// Rapid flapping keeps resetting the timer; no flush may happen yet.
	for i := 0; i < 3; i++ {
		net.Set(true)
		time.Sleep(20 * time.Millisecond)
		net.Set(false)
	}
	if saver.callCount() != 0 {
		t.Fatalf("flush fired during flapping")
	}

	net.Set(true)
	deadline := time.Now().Add(2 * time.Second)
	for saver.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if saver.callCount() != 1 {
		t.Fatalf("expected exactly one flush after the debounce, got %d", saver.callCount())
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateEmpty:    "empty",
		StatePending:  "pending",
		StateFlushing: "flushing",
		State(42):     "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("expected %q, got %q", want, s.String())
		}
	}
}
