package pagination

import (
	"context"
	"net/url"
	"strconv"
)

// RemoteFetchFunc performs the server query. The server filters and slices;
// it returns the page items and the total page count.
type RemoteFetchFunc[T any] func(ctx context.Context, params url.Values) (items []T, totalPages int, err error)

// Remote delegates filtering and paging to a server through query params
type Remote[T any] struct {
	fetch    RemoteFetchFunc[T]
	pageSize int
}

// NewRemote creates a remote source
func NewRemote[T any](fetch RemoteFetchFunc[T], pageSize int) *Remote[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Remote[T]{fetch: fetch, pageSize: pageSize}
}

// Fetch sends the filter state to the server and wraps the reply
func (r *Remote[T]) Fetch(ctx context.Context, state FilterState) (Result[T], error) {
	page := state.Page
	if page < 1 {
		page = 1
	}

	params := FilterParams(state)
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(r.pageSize))

	items, totalPages, err := r.fetch(ctx, params)
	if err != nil {
		return Result[T]{}, err
	}
	if totalPages < 0 {
		totalPages = 0
	}
	if len(items) > 0 && totalPages < page {
		// server under-reported; the page we hold is evidently real
		totalPages = page
	}
	if items == nil {
		items = []T{}
	}

	return Result[T]{
		Items:      items,
		Page:       page,
		TotalPages: totalPages,
		Total:      -1,
	}, nil
}

// FilterParams encodes the non-empty filter dimensions. Absent dimensions
// mean "no filter", never "filter on empty string". Page is not included.
func FilterParams(state FilterState) url.Values {
	params := url.Values{}
	if state.SearchQuery != "" {
		params.Set("search", state.SearchQuery)
	}
	if state.CampaignID != "" {
		params.Set("campaign_id", state.CampaignID)
	}
	if state.Sentiment != "" {
		params.Set("sentiment", state.Sentiment)
	}
	if state.StartDate != "" {
		params.Set("start_date", state.StartDate)
	}
	if state.EndDate != "" {
		params.Set("end_date", state.EndDate)
	}
	return params
}
