package pagination

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"testing"
)

type campaign struct {
	ID   int
	Name string
}

func campaignName(c campaign) string { return c.Name }

func makeCampaigns(n int, names map[int]string) []campaign {
	out := make([]campaign, n)
	for i := range out {
		name := fmt.Sprintf("Campaign %d", i+1)
		if v, ok := names[i]; ok {
			name = v
		}
		out[i] = campaign{ID: i + 1, Name: name}
	}
	return out
}

// serverFor emulates a backend that filters on `search` and slices pages
func serverFor(items []campaign) RemoteFetchFunc[campaign] {
	return func(_ context.Context, params url.Values) ([]campaign, int, error) {
		filtered := Filter(items, params.Get("search"), campaignName)
		page, _ := strconv.Atoi(params.Get("page"))
		size, _ := strconv.Atoi(params.Get("per_page"))
		return Slice(filtered, page, size), TotalPages(len(filtered), size), nil
	}
}

// sources returns both realizations of the contract over the same data
func sources(items []campaign) map[string]Source[campaign] {
	local := NewLocal(campaignName, DefaultPageSize)
	local.Replace(items)
	return map[string]Source[campaign]{
		"local":  local,
		"remote": NewRemote(serverFor(items), DefaultPageSize),
	}
}

func TestSourceContract(t *testing.T) {
	items := makeCampaigns(45, map[int]string{
		3:  "Summer SALE",
		17: "Flash sale weekend",
		40: "wholesale partners",
	})

	tests := []struct {
		name       string
		search     string
		page       int
		wantItems  int
		wantPages  int
		wantCtrls  bool
		wantEmpty  bool
		wantPrev   bool
		wantNext   bool
	}{
		{name: "first page unfiltered", page: 1, wantItems: 20, wantPages: 3, wantCtrls: true, wantNext: true},
		{name: "middle page", page: 2, wantItems: 20, wantPages: 3, wantCtrls: true, wantPrev: true, wantNext: true},
		{name: "last partial page", page: 3, wantItems: 5, wantPages: 3, wantCtrls: true, wantPrev: true},
		{name: "search sale matches three", search: "sale", page: 1, wantItems: 3, wantPages: 1},
		{name: "search is case insensitive", search: "SALE", page: 1, wantItems: 3, wantPages: 1},
		{name: "no match", search: "nothing-here", page: 1, wantItems: 0, wantPages: 0, wantEmpty: true},
		{name: "leading space is part of the term", search: " sale", page: 1, wantItems: 2, wantPages: 1},
		{name: "blank search matches literally", search: "   ", page: 1, wantItems: 0, wantPages: 0, wantEmpty: true},
	}

	for srcName, src := range sources(items) {
		for _, tt := range tests {
			t.Run(srcName+"/"+tt.name, func(t *testing.T) {
				state := NewFilterState()
				state.SetSearch(tt.search)
				state.SetPage(tt.page)

				res, err := src.Fetch(context.Background(), state)
				if err != nil {
					t.Fatalf("Fetch() error = %v", err)
				}
				if len(res.Items) != tt.wantItems {
					t.Errorf("items = %d, want %d", len(res.Items), tt.wantItems)
				}
				if res.TotalPages != tt.wantPages {
					t.Errorf("TotalPages = %d, want %d", res.TotalPages, tt.wantPages)
				}
				if res.ShowControls() != tt.wantCtrls {
					t.Errorf("ShowControls() = %v, want %v", res.ShowControls(), tt.wantCtrls)
				}
				if res.Empty() != tt.wantEmpty {
					t.Errorf("Empty() = %v, want %v", res.Empty(), tt.wantEmpty)
				}
				if res.CanPrev() != tt.wantPrev {
					t.Errorf("CanPrev() = %v, want %v", res.CanPrev(), tt.wantPrev)
				}
				if res.CanNext() != tt.wantNext {
					t.Errorf("CanNext() = %v, want %v", res.CanNext(), tt.wantNext)
				}
				for _, c := range res.Items {
					if !strings.Contains(strings.ToLower(c.Name), strings.ToLower(tt.search)) {
						t.Errorf("item %q does not match %q", c.Name, tt.search)
					}
				}
			})
		}
	}
}

func TestFilter(t *testing.T) {
	items := makeCampaigns(10, map[int]string{2: "Holiday Sale", 5: "sales kickoff"})

	if got := Filter(items, "", campaignName); len(got) != len(items) {
		t.Errorf("Filter(empty) = %d items, want %d", len(got), len(items))
	}

	spaced := []campaign{{1, "wholesale"}, {2, "Summer sale"}, {3, "Spring"}}
	if got := Filter(spaced, " sale", campaignName); len(got) != 1 || got[0].Name != "Summer sale" {
		t.Errorf("Filter(\" sale\") = %v, want only Summer sale", got)
	}
	if got := Filter(spaced, "   ", campaignName); len(got) != 0 {
		t.Errorf("Filter(blank) = %v, want none", got)
	}

	got := Filter(items, "SaLe", campaignName)
	if len(got) != 2 {
		t.Fatalf("Filter(SaLe) = %d items, want 2", len(got))
	}
	if got[0].Name != "Holiday Sale" || got[1].Name != "sales kickoff" {
		t.Errorf("Filter order not preserved: %v", got)
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		count, size, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{45, 20, 3},
		{5, 0, 1},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.count, tt.size); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.count, tt.size, got, tt.want)
		}
	}
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := Slice(items, 2, 2); len(got) != 2 || got[0] != 3 {
		t.Errorf("Slice page 2 = %v", got)
	}
	if got := Slice(items, 4, 2); len(got) != 0 {
		t.Errorf("Slice past end = %v, want empty", got)
	}
	if got := Slice(items, 0, 2); len(got) != 2 || got[0] != 1 {
		t.Errorf("Slice page 0 = %v, want first page", got)
	}
}

func TestFilterStateResetsPage(t *testing.T) {
	setters := map[string]func(*FilterState){
		"search":    func(s *FilterState) { s.SetSearch("sale") },
		"campaign":  func(s *FilterState) { s.SetCampaign("c-1") },
		"sentiment": func(s *FilterState) { s.SetSentiment("complaint") },
		"dates":     func(s *FilterState) { s.SetDateRange("2024-01-01", "2024-01-31") },
	}

	for name, set := range setters {
		t.Run(name, func(t *testing.T) {
			s := NewFilterState()
			s.SetPage(4)
			set(&s)
			if s.Page != 1 {
				t.Errorf("Page = %d after %s change, want 1", s.Page, name)
			}
		})
	}
}

func TestFilterStateSetPageKeepsFilters(t *testing.T) {
	s := NewFilterState()
	s.SetSearch("sale")
	s.SetSentiment("urgent")
	before := s

	s.SetPage(3)
	if s.SearchQuery != "sale" || s.Sentiment != "urgent" {
		t.Errorf("SetPage altered filters: %+v", s)
	}
	if !s.SameFilters(before) {
		t.Error("SameFilters() = false after page change")
	}
	s.SetPage(-2)
	if s.Page != 1 {
		t.Errorf("SetPage(-2) Page = %d, want 1", s.Page)
	}
}

func TestFilterStateNavigation(t *testing.T) {
	s := NewFilterState()

	if s.Prev() {
		t.Error("Prev() on page 1 should be a no-op")
	}
	if s.Page != 1 {
		t.Errorf("Page = %d, want 1", s.Page)
	}

	if !s.Next(3) || !s.Next(3) {
		t.Fatal("Next() should advance to page 3")
	}
	if s.Next(3) {
		t.Error("Next() on last page should be a no-op")
	}
	if s.Page != 3 {
		t.Errorf("Page = %d, want 3", s.Page)
	}

	if s.Next(0) {
		t.Error("Next() with zero pages should be a no-op")
	}
}

func TestFilterStateClearAndFiltered(t *testing.T) {
	s := NewFilterState()
	if s.Filtered() {
		t.Error("new state reports Filtered()")
	}
	s.SetCampaign("abc")
	s.SetPage(2)
	if !s.Filtered() {
		t.Error("Filtered() = false with campaign set")
	}
	s.Clear()
	if s.Filtered() || s.Page != 1 {
		t.Errorf("Clear() left %+v", s)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		page, total, want int
	}{
		{1, 0, 1},
		{5, 0, 1},
		{5, 3, 3},
		{0, 3, 1},
		{2, 3, 2},
	}
	for _, tt := range tests {
		if got := Clamp(tt.page, tt.total); got != tt.want {
			t.Errorf("Clamp(%d, %d) = %d, want %d", tt.page, tt.total, got, tt.want)
		}
	}
}

func TestLocalMemoization(t *testing.T) {
	calls := 0
	key := func(c campaign) string {
		calls++
		return c.Name
	}
	local := NewLocal(key, 10)
	local.Replace(makeCampaigns(30, nil))

	state := NewFilterState()
	state.SetSearch("campaign 1")

	if _, err := local.Fetch(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	first := calls

	state.SetPage(2)
	if _, err := local.Fetch(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	if calls != first {
		t.Errorf("page change re-filtered: key calls %d -> %d", first, calls)
	}

	local.Replace(makeCampaigns(5, nil))
	if local.Version() != 2 {
		t.Errorf("Version() = %d, want 2", local.Version())
	}
	res, _ := local.Fetch(context.Background(), state)
	if calls == first {
		t.Error("Replace() did not invalidate the memo")
	}
	if res.TotalPages != 1 || res.Page != 2 || len(res.Items) != 0 {
		t.Errorf("stale page after shrink = %+v", res)
	}
}

func TestRemoteParams(t *testing.T) {
	var got url.Values
	remote := NewRemote(func(_ context.Context, params url.Values) ([]campaign, int, error) {
		got = params
		return nil, 0, nil
	}, 20)

	state := NewFilterState()
	state.SetCampaign("c-9")
	state.SetSentiment("question")
	state.SetPage(2)

	res, err := remote.Fetch(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if got.Get("page") != "2" || got.Get("per_page") != "20" {
		t.Errorf("pagination params = %v", got)
	}
	if got.Get("campaign_id") != "c-9" || got.Get("sentiment") != "question" {
		t.Errorf("filter params = %v", got)
	}
	for _, absent := range []string{"search", "start_date", "end_date"} {
		if _, ok := got[absent]; ok {
			t.Errorf("param %q sent while empty", absent)
		}
	}
	if !res.Empty() || res.Items == nil {
		t.Errorf("empty remote result = %+v", res)
	}
}

func TestRemoteError(t *testing.T) {
	remote := NewRemote(func(context.Context, url.Values) ([]campaign, int, error) {
		return nil, 0, fmt.Errorf("boom")
	}, 20)
	if _, err := remote.Fetch(context.Background(), NewFilterState()); err == nil {
		t.Error("expected error")
	}
}
