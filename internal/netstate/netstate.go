// Package netstate abstracts the platform online/offline signal behind an
// injectable observer, so queue and sync logic stays unit-testable without
// simulating real network events.
package netstate

import (
	"sync"
)

// Observer exposes the current connectivity state and change notifications.
type Observer interface {
	// Online reports the last known connectivity state.
	Online() bool

	// Subscribe registers fn to run on every state change. The returned
	// cancel function removes the subscription.
	Subscribe(fn func(online bool)) (cancel func())
}

// Manual is an Observer whose state is toggled by the caller. It backs the
// HTTP probe and doubles as the test double.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

var _ Observer = (*Manual)(nil)

func NewManual(online bool) *Manual {
	return &Manual{
		online: online,
		subs:   make(map[int]func(bool)),
	}
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set updates the state and notifies subscribers when it actually changed.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	// Notify outside the lock so subscribers may call back into Online.
	for _, fn := range fns {
		fn(online)
	}
}

func (m *Manual) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}
