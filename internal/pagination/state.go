package pagination

// DefaultPageSize is the number of items shown per page
const DefaultPageSize = 20

// FilterState is the client-owned filter and page selection for a view.
// Changing any filter dimension resets Page to 1; changing Page never
// touches the filters.
type FilterState struct {
	SearchQuery string
	CampaignID  string
	Sentiment   string
	StartDate   string
	EndDate     string
	Page        int
}

// NewFilterState returns an empty filter on page 1
func NewFilterState() FilterState {
	return FilterState{Page: 1}
}

func (s *FilterState) SetSearch(q string) {
	s.SearchQuery = q
	s.Page = 1
}

func (s *FilterState) SetCampaign(id string) {
	s.CampaignID = id
	s.Page = 1
}

func (s *FilterState) SetSentiment(sentiment string) {
	s.Sentiment = sentiment
	s.Page = 1
}

func (s *FilterState) SetDateRange(start, end string) {
	s.StartDate = start
	s.EndDate = end
	s.Page = 1
}

// SetPage selects a page without touching the filters. Values below 1
// are treated as 1.
func (s *FilterState) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	s.Page = page
}

// Next advances one page unless already on the last one
func (s *FilterState) Next(totalPages int) bool {
	if s.Page >= totalPages {
		return false
	}
	s.Page++
	return true
}

// Prev goes back one page unless already on page 1
func (s *FilterState) Prev() bool {
	if s.Page <= 1 {
		return false
	}
	s.Page--
	return true
}

// Clear drops every filter and returns to page 1
func (s *FilterState) Clear() {
	*s = NewFilterState()
}

// Filtered reports whether any non-page dimension is set
func (s FilterState) Filtered() bool {
	return s.SearchQuery != "" ||
		s.CampaignID != "" ||
		s.Sentiment != "" ||
		s.StartDate != "" ||
		s.EndDate != ""
}

// SameFilters reports whether two states differ only by page
func (s FilterState) SameFilters(o FilterState) bool {
	s.Page, o.Page = 0, 0
	return s == o
}

// Clamp bounds page into [1, max(totalPages, 1)]
func Clamp(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}
