package pagination

import (
	"context"
	"strings"
	"sync"
)

type memoKey struct {
	version uint64
	search  string
}

// Local filters and pages an in-memory collection. The collection is only
// ever replaced as a whole; the filtered view is memoized per
// (collection version, search term).
type Local[T any] struct {
	mu       sync.Mutex
	items    []T
	version  uint64
	key      func(T) string
	pageSize int

	memo     memoKey
	memoSet  bool
	filtered []T
}

// NewLocal creates a local source searching on key
func NewLocal[T any](key func(T) string, pageSize int) *Local[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Local[T]{key: key, pageSize: pageSize}
}

// Replace swaps in a new snapshot of the collection
func (l *Local[T]) Replace(items []T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = items
	l.version++
	l.memoSet = false
	l.filtered = nil
}

// Version returns the number of snapshots installed so far
func (l *Local[T]) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Len returns the size of the unfiltered collection
func (l *Local[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Fetch returns the requested page of the filtered collection. It does not
// clamp the page; callers reset to page 1 when filters change.
func (l *Local[T]) Fetch(_ context.Context, state FilterState) (Result[T], error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	filtered := l.filteredLocked(state.SearchQuery)
	page := state.Page
	if page < 1 {
		page = 1
	}
	return Result[T]{
		Items:      Slice(filtered, page, l.pageSize),
		Page:       page,
		TotalPages: TotalPages(len(filtered), l.pageSize),
		Total:      len(filtered),
	}, nil
}

func (l *Local[T]) filteredLocked(search string) []T {
	k := memoKey{version: l.version, search: strings.ToLower(search)}
	if l.memoSet && l.memo == k {
		return l.filtered
	}
	l.filtered = Filter(l.items, k.search, l.key)
	l.memo = k
	l.memoSet = true
	return l.filtered
}
