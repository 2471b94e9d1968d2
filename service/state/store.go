package state

import (
	"sync"
	"sync/atomic"
	"time"
)

// Updater derives the next snapshot from the previous one. It must be pure.
type Updater func(prev ClientState) ClientState

// Listener observes every applied update.
type Listener func(next ClientState)

// Store is the observable state container owned by a single client.
//
// Updates are serialized so each one runs to completion before the next is
// applied, and listeners run synchronously on the goroutine that called
// SetState, in update order. A listener must not call SetState itself.
//
// Replaying the same updaters over the initial snapshot reproduces the
// store's state exactly, except that a store built WithClock also stamps
// LastUpdatedAt after each updater runs. LastUpdatedAt is the only field
// the store writes; compare replays with it cleared, or use a fixed clock.
type Store struct {
	initial ClientState
	current atomic.Pointer[ClientState]
	now     func() time.Time

	// mu serializes SetState and listener dispatch.
	mu sync.Mutex

	lmu       sync.RWMutex
	listeners []listenerEntry
	nextID    uint64
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock stamps LastUpdatedAt with now() on every applied update,
// overwriting whatever the updater set. Without it the store applies
// updaters verbatim.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store holding initial.
func NewStore(initial ClientState, opts ...StoreOption) *Store {
	s := &Store{initial: initial}
	for _, opt := range opts {
		opt(s)
	}
	snapshot := initial
	s.current.Store(&snapshot)
	return s
}

// GetState returns the current snapshot.
func (s *Store) GetState() ClientState {
	return *s.current.Load()
}

// SetState applies update and publishes the result to all listeners.
func (s *Store) SetState(update Updater) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := update(*s.current.Load())
	if s.now != nil {
		next.LastUpdatedAt = s.now()
	}
	s.current.Store(&next)

	s.lmu.RLock()
	listeners := make([]listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.lmu.RUnlock()

	for _, l := range listeners {
		l.fn(next)
	}
}

// Subscribe registers fn and returns a func that removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.lmu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			defer s.lmu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// SubscribeCurrent registers fn after delivering the current snapshot to it.
// Both happen under the update lock, so fn sees that snapshot and then every
// later update in order, never an older snapshot after a newer one.
func (s *Store) SubscribeCurrent(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(*s.current.Load())
	return s.Subscribe(fn)
}

// Reset restores the snapshot the store was created with and notifies listeners.
func (s *Store) Reset() {
	initial := s.initial
	s.SetState(func(ClientState) ClientState { return initial })
}
