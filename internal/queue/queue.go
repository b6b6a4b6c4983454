// Package queue provides an offline-aware, coalescing mutation queue.
//
// A Queue wraps exactly one logical save operation. While online, enqueued
// payloads are sent immediately; when the network drops, the latest payload
// is parked in a single slot and replayed once on reconnect. Intermediate
// payloads enqueued while offline are intentionally dropped (last-write-wins)
// to avoid redundant full-replacement writes.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"bilancio/internal/netstate"
)

// DefaultFlushDebounce is how long the queue waits after an online signal
// before flushing, so connectivity flapping cannot trigger overlapping
// drains.
const DefaultFlushDebounce = 500 * time.Millisecond

// State is the queue's single-slot state machine.
type State int

const (
	StateEmpty State = iota
	StatePending
	StateFlushing
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePending:
		return "pending"
	case StateFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// Saver executes the underlying save mutation for one payload.
type Saver[V any] func(ctx context.Context, vars V) error

type Options struct {
	// FlushDebounce delays the reconnect-triggered flush (default: 500ms).
	// The timer resets on every online signal.
	FlushDebounce time.Duration

	// OnReconnect, when set, runs after a reconnect-triggered flush has
	// completed while the network is still up.
	OnReconnect func()
}

// Ticket is the shared promise for one coalescing window: every Enqueue call
// of that window receives the same ticket, settled exactly once when the
// payload is eventually flushed or rejected.
type Ticket struct {
	done chan struct{}
	err  error
}

func newTicket() *Ticket {
	return &Ticket{done: make(chan struct{})}
}

func settled(err error) *Ticket {
	t := newTicket()
	t.settle(err)
	return t
}

func (t *Ticket) settle(err error) {
	t.err = err
	close(t.done)
}

// Done is closed once the save has been flushed or rejected.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the ticket settles or ctx is done.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type entry[V any] struct {
	vars   V
	gen    int // bumped on every coalesced overwrite
	ticket *Ticket
}

// Queue serializes edit intents for one save operation into a single pending
// slot. Connectivity is judged through the injected observer, never by
// inspecting error types.
type Queue[V any] struct {
	save Saver[V]
	net  netstate.Observer
	opts Options

	mu     sync.Mutex
	state  State
	entry  *entry[V] // non-nil iff state != StateEmpty
	timer  *time.Timer
	unsub  func()
	closed bool

	flights singleflight.Group
}

func New[V any](save Saver[V], net netstate.Observer, opts Options) *Queue[V] {
	if opts.FlushDebounce <= 0 {
		opts.FlushDebounce = DefaultFlushDebounce
	}
	q := &Queue[V]{
		save: save,
		net:  net,
		opts: opts,
	}
	q.unsub = net.Subscribe(q.onNetChange)
	return q
}

// Close detaches the queue from the connectivity observer and stops any
// scheduled flush. A pending entry is left unsettled.
func (q *Queue[V]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if q.unsub != nil {
		q.unsub()
		q.unsub = nil
	}
}

// Pending reports whether a payload is waiting to be flushed.
func (q *Queue[V]) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state != StateEmpty
}

// Online reports the observer's current connectivity state.
func (q *Queue[V]) Online() bool { return q.net.Online() }

// State returns the current slot state, mainly for UI indicators.
func (q *Queue[V]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Enqueue registers one save intent and returns its ticket.
//
// While online with an empty slot the mutation runs immediately and the
// returned ticket is already settled with its result. If that immediate call
// fails and the observer reports the network down, the payload is parked
// instead and the ticket settles after a later flush. While a slot is
// occupied, vars overwrites the pending payload in place and the existing
// shared ticket is returned.
func (q *Queue[V]) Enqueue(ctx context.Context, vars V) *Ticket {
	q.mu.Lock()
	if q.state != StateEmpty {
		q.entry.vars = vars
		q.entry.gen++
		t := q.entry.ticket
		q.mu.Unlock()
		slog.DebugContext(ctx, "Coalesced save intent into pending slot")
		return t
	}
	t := q.parkLocked(vars)
	online := q.net.Online()
	q.mu.Unlock()

	if online {
		if err := q.Flush(ctx); err != nil {
			// The ticket already carries the rejection; nothing else to do.
			slog.DebugContext(ctx, "Immediate save rejected", "error", err)
		}
	} else {
		slog.InfoContext(ctx, "Offline, save queued for replay")
	}
	return t
}

func (q *Queue[V]) parkLocked(vars V) *Ticket {
	q.entry = &entry[V]{vars: vars, ticket: newTicket()}
	q.state = StatePending
	return q.entry.ticket
}

// Flush drains the pending slot while online. Re-entrant calls share the
// in-flight drain instead of racing a second loop. Connectivity-attributed
// failures leave the entry queued and return nil; application failures
// reject the entry's ticket and are returned.
func (q *Queue[V]) Flush(ctx context.Context) error {
	for {
		_, err, _ := q.flights.Do("flush", func() (any, error) {
			return nil, q.drain(ctx)
		})
		if err != nil {
			return err
		}
		// An entry parked in the tail of the shared drain would otherwise
		// be missed; loop until the slot is empty or we went offline.
		q.mu.Lock()
		again := q.state == StatePending && q.net.Online()
		q.mu.Unlock()
		if !again {
			return nil
		}
	}
}

func (q *Queue[V]) drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.state != StatePending || !q.net.Online() {
			q.mu.Unlock()
			return nil
		}
		e := q.entry
		gen := e.gen
		vars := e.vars
		q.state = StateFlushing
		q.mu.Unlock()

		err := q.save(ctx, vars)

		q.mu.Lock()
		if err != nil {
			if !q.net.Online() {
				// Connectivity loss: invisible to the caller, replayed on
				// the next reconnect.
				q.state = StatePending
				q.mu.Unlock()
				slog.WarnContext(ctx, "Save hit connectivity loss, kept queued", "error", err)
				return nil
			}
			// Application failure: reject and clear so the queue never
			// blocks on a payload the store will keep refusing.
			q.state = StateEmpty
			q.entry = nil
			q.mu.Unlock()
			e.ticket.settle(err)
			slog.ErrorContext(ctx, "Save rejected by store", "error", err)
			return err
		}
		if e.gen != gen {
			// A newer payload was coalesced in during the round trip;
			// send that one before settling the shared ticket.
			q.state = StatePending
			q.mu.Unlock()
			continue
		}
		q.state = StateEmpty
		q.entry = nil
		q.mu.Unlock()
		e.ticket.settle(nil)
	}
}

func (q *Queue[V]) onNetChange(online bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if !online {
		return
	}
	q.timer = time.AfterFunc(q.opts.FlushDebounce, q.reconnectFlush)
}

func (q *Queue[V]) reconnectFlush() {
	ctx := context.Background()
	if err := q.Flush(ctx); err != nil {
		// Already settled on the caller's ticket; just record it.
		slog.ErrorContext(ctx, "Reconnect flush rejected a queued save", "error", err)
		return
	}
	if q.net.Online() && q.opts.OnReconnect != nil {
		q.opts.OnReconnect()
	}
}
