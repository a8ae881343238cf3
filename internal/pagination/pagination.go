package pagination

import (
	"context"
	"strings"
)

// Result is one page of a filtered collection
type Result[T any] struct {
	Items      []T
	Page       int
	TotalPages int
	// Total is the filtered count when known, -1 when the source only
	// reports pages.
	Total int
}

// Empty reports whether the filtered set has no items at all. Views
// render an explicit empty state instead of pagination controls.
func (r Result[T]) Empty() bool {
	return r.TotalPages == 0
}

// ShowControls reports whether pagination controls should be rendered
func (r Result[T]) ShowControls() bool {
	return r.TotalPages > 1
}

// CanPrev reports whether the previous-page control is enabled
func (r Result[T]) CanPrev() bool {
	return r.Page > 1
}

// CanNext reports whether the next-page control is enabled
func (r Result[T]) CanNext() bool {
	return r.Page < r.TotalPages
}

// Source produces pages for a filter state. Local and remote collections
// implement the same contract.
type Source[T any] interface {
	Fetch(ctx context.Context, state FilterState) (Result[T], error)
}

// TotalPages returns ceil(count/size), 0 for an empty set
func TotalPages(count, size int) int {
	if count <= 0 {
		return 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	return (count + size - 1) / size
}

// Filter keeps the items whose key contains term, ignoring case. Only the
// empty term keeps everything; whitespace is part of the term.
func Filter[T any](items []T, term string, key func(T) string) []T {
	if term == "" {
		return items
	}
	term = strings.ToLower(term)
	out := make([]T, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(key(item)), term) {
			out = append(out, item)
		}
	}
	return out
}

// Slice returns the items of a 1-based page. Pages past the end are empty.
func Slice[T any](items []T, page, size int) []T {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
