// Package viewstate holds the canonical state of a view. Each fetch takes a
// ticket before going to the network; only the newest ticket that is still
// valid may replace the stored value.
package viewstate

import "sync"

// Ticket tags one in-flight request
type Ticket struct {
	seq uint64
}

// Seq returns the sequence number of the ticket
func (t Ticket) Seq() uint64 {
	return t.seq
}

// Store is a last-write-wins container for one view's data
type Store[T any] struct {
	mu      sync.RWMutex
	name    string
	issued  uint64
	applied uint64
	floor   uint64
	closed  bool
	has     bool
	value   T

	onStale func(name string)
}

// Option configures a Store
type Option[T any] func(*Store[T])

// WithStaleHook registers a callback for discarded responses
func WithStaleHook[T any](fn func(name string)) Option[T] {
	return func(s *Store[T]) {
		s.onStale = fn
	}
}

// New creates an empty store. name identifies the view in hooks.
func New[T any](name string, opts ...Option[T]) *Store[T] {
	s := &Store[T]{name: name}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin issues a ticket for a request about to be sent
func (s *Store[T]) Begin() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return Ticket{seq: s.issued}
}

// Commit replaces the value if the ticket is newer than the last applied
// one, was issued after the last invalidation, and the store is open.
func (s *Store[T]) Commit(t Ticket, value T) bool {
	s.mu.Lock()
	accepted := !s.closed && t.seq > s.applied && t.seq > s.floor
	if accepted {
		s.value = value
		s.applied = t.seq
		s.has = true
	}
	hook := s.onStale
	s.mu.Unlock()

	if !accepted && hook != nil {
		hook(s.name)
	}
	return accepted
}

// Invalidate discards every request issued so far. Used when the filters
// change under an in-flight fetch.
func (s *Store[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floor = s.issued
}

// Close rejects all later commits; the view is gone
func (s *Store[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close was called
func (s *Store[T]) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Snapshot returns the current value, its sequence number, and whether any
// value was committed yet
func (s *Store[T]) Snapshot() (T, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.applied, s.has
}

// Value returns the current value, or the zero value when empty
func (s *Store[T]) Value() T {
	v, _, _ := s.Snapshot()
	return v
}
