// Package replies implements the reply inbox view: server-side filtered and
// paged replies, with analytics scoped to the selected campaign.
package replies

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"

	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/metrics"
	"github.com/foxzi/bulkdash/internal/pagination"
	"github.com/foxzi/bulkdash/internal/viewstate"
)

const (
	viewName          = "replies"
	analyticsViewName = "reply_analytics"
	campaignsViewName = "reply_campaigns"
)

// Empty-state texts
const (
	EmptyMessage = "No replies found for the selected filters."
	EmptyHint    = "Make sure your webhook is configured and people are replying to your campaigns!"
)

// Client is the part of the backend the view reads from
type Client interface {
	ListReplies(ctx context.Context, params url.Values) (*backend.RepliesResponse, error)
	ReplyAnalytics(ctx context.Context, campaignID string) (*backend.AnalyticsSnapshot, error)
	ListCampaigns(ctx context.Context) ([]backend.Campaign, error)
}

// CampaignOption is one entry of the campaign selector
type CampaignOption struct {
	ID       string
	Name     string
	Selected bool
}

// View is what the reply inbox renders
type View struct {
	Rows         []Row
	Filters      pagination.FilterState
	Filtered     bool
	Page         int
	TotalPages   int
	ShowControls bool
	CanPrev      bool
	CanNext      bool
	Loaded       bool
	Empty        bool
	EmptyMessage string
	EmptyHint    string
	// ResultCount is the number of replies on the current page
	ResultCount int
	CanExport   bool

	Analytics       backend.AnalyticsSnapshot
	AnalyticsLoaded bool
	Breakdown       []SentimentCount
	Campaigns       []CampaignOption
	Sentiments      []SentimentStyle
}

// page pairs a server page with the filters that produced it
type page struct {
	state  pagination.FilterState
	result pagination.Result[backend.Reply]
}

// scopedAnalytics pairs analytics with the campaign they cover
type scopedAnalytics struct {
	campaignID string
	snap       backend.AnalyticsSnapshot
}

// Replies is the reply inbox. Every fetch is tagged; changing a filter
// invalidates fetches already in flight so a late answer for old filters
// never replaces the current page.
type Replies struct {
	client Client
	source *pagination.Remote[backend.Reply]
	logger *slog.Logger

	mu        sync.Mutex
	state     pagination.FilterState
	pages     *viewstate.Store[page]
	analytics *viewstate.Store[scopedAnalytics]
	campaigns *viewstate.Store[[]backend.Campaign]
}

// New creates an inbox on page 1 with no filters
func New(client Client, pageSize int, logger *slog.Logger) *Replies {
	r := &Replies{
		client: client,
		logger: logger.With("component", "replies"),
		state:  pagination.NewFilterState(),
		pages:  viewstate.New(viewName, viewstate.WithStaleHook[page](metrics.IncStaleResponses)),
		analytics: viewstate.New(analyticsViewName,
			viewstate.WithStaleHook[scopedAnalytics](metrics.IncStaleResponses)),
		campaigns: viewstate.New(campaignsViewName,
			viewstate.WithStaleHook[[]backend.Campaign](metrics.IncStaleResponses)),
	}
	r.source = pagination.NewRemote(r.fetchPage, pageSize)
	return r
}

func (r *Replies) fetchPage(ctx context.Context, params url.Values) ([]backend.Reply, int, error) {
	resp, err := r.client.ListReplies(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return resp.Replies, resp.TotalPages, nil
}

// Filters returns the current filter state
func (r *Replies) Filters() pagination.FilterState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Apply replaces every filter dimension and the page at once, as a form
// submit does
func (r *Replies) Apply(state pagination.FilterState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state.Page < 1 {
		state.Page = 1
	}
	if !state.SameFilters(r.state) {
		state.Page = 1
	}
	if state.CampaignID != r.state.CampaignID {
		r.analytics.Invalidate()
	}
	if state != r.state {
		r.pages.Invalidate()
	}
	r.state = state
}

// SetCampaign scopes replies and analytics to a campaign; "" means all
func (r *Replies) SetCampaign(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.state.CampaignID {
		return
	}
	r.state.SetCampaign(id)
	r.pages.Invalidate()
	r.analytics.Invalidate()
}

// SetSentiment filters replies by sentiment. Analytics are not affected.
func (r *Replies) SetSentiment(sentiment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sentiment == r.state.Sentiment {
		return
	}
	r.state.SetSentiment(sentiment)
	r.pages.Invalidate()
}

// SetDateRange filters replies by received date (YYYY-MM-DD, either end
// may be empty)
func (r *Replies) SetDateRange(start, end string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if start == r.state.StartDate && end == r.state.EndDate {
		return
	}
	r.state.SetDateRange(start, end)
	r.pages.Invalidate()
}

// Clear drops every filter
func (r *Replies) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.CampaignID != "" {
		r.analytics.Invalidate()
	}
	r.state.Clear()
	r.pages.Invalidate()
}

// SetPage selects a page, clamped to the last known page count
func (r *Replies) SetPage(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if total, ok := r.knownPagesLocked(); ok {
		n = pagination.Clamp(n, total)
	}
	r.setPageLocked(n)
}

// NextPage advances unless the current page is the last one
func (r *Replies) NextPage() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	total, ok := r.knownPagesLocked()
	if !ok || r.state.Page >= total {
		return false
	}
	r.setPageLocked(r.state.Page + 1)
	return true
}

// PrevPage goes back unless on page 1
func (r *Replies) PrevPage() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Page <= 1 {
		return false
	}
	r.setPageLocked(r.state.Page - 1)
	return true
}

func (r *Replies) setPageLocked(n int) {
	if n < 1 {
		n = 1
	}
	if n == r.state.Page {
		return
	}
	r.state.SetPage(n)
	r.pages.Invalidate()
}

// knownPagesLocked returns the page count of the stored page if it was
// fetched for the current filters
func (r *Replies) knownPagesLocked() (int, bool) {
	pg, _, ok := r.pages.Snapshot()
	if !ok || !pg.state.SameFilters(r.state) {
		return 0, false
	}
	return pg.result.TotalPages, true
}

// Refresh reloads the page, analytics and campaign selector concurrently.
// Failures are logged and the last accepted data stays in place.
func (r *Replies) Refresh(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(what string, fn func(context.Context) error) {
		defer wg.Done()
		if err := fn(ctx); err != nil {
			r.logger.Warn("refresh failed", "part", what, "error", err)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Add(3)
	go run("page", r.RefreshPage)
	go run("analytics", r.RefreshAnalytics)
	go run("campaigns", r.RefreshCampaigns)
	wg.Wait()
	return errors.Join(errs...)
}

// RefreshPage fetches the page for the current filters
func (r *Replies) RefreshPage(ctx context.Context) error {
	return r.refreshPage(ctx, true)
}

func (r *Replies) refreshPage(ctx context.Context, clamp bool) error {
	r.mu.Lock()
	state := r.state
	ticket := r.pages.Begin()
	r.mu.Unlock()

	res, err := r.source.Fetch(ctx, state)
	if err != nil {
		return err
	}

	if clamp && len(res.Items) == 0 && res.TotalPages > 0 && res.Page > res.TotalPages {
		// the result set shrank below the selected page
		r.mu.Lock()
		if r.state == state {
			r.state.SetPage(res.TotalPages)
			r.pages.Invalidate()
		}
		r.mu.Unlock()
		return r.refreshPage(ctx, false)
	}

	if !r.pages.Commit(ticket, page{state: state, result: res}) {
		r.logger.Debug("discarded stale replies page", "seq", ticket.Seq(), "page", state.Page)
	}
	return nil
}

// RefreshAnalytics fetches the analytics for the selected campaign
func (r *Replies) RefreshAnalytics(ctx context.Context) error {
	r.mu.Lock()
	campaignID := r.state.CampaignID
	ticket := r.analytics.Begin()
	r.mu.Unlock()

	snap, err := r.client.ReplyAnalytics(ctx, campaignID)
	if err != nil {
		return err
	}
	if !r.analytics.Commit(ticket, scopedAnalytics{campaignID: campaignID, snap: *snap}) {
		r.logger.Debug("discarded stale reply analytics", "seq", ticket.Seq(), "campaign_id", campaignID)
	}
	return nil
}

// RefreshCampaigns fetches the campaign selector entries
func (r *Replies) RefreshCampaigns(ctx context.Context) error {
	ticket := r.campaigns.Begin()
	list, err := r.client.ListCampaigns(ctx)
	if err != nil {
		return err
	}
	r.campaigns.Commit(ticket, list)
	return nil
}

// Close discards anything still in flight. The view cannot be reused.
func (r *Replies) Close() {
	r.pages.Close()
	r.analytics.Close()
	r.campaigns.Close()
}

// View renders the current state. The page is only shown once it was
// fetched for the current filters.
func (r *Replies) View() View {
	r.mu.Lock()
	state := r.state
	pg, _, hasPage := r.pages.Snapshot()
	r.mu.Unlock()

	v := View{
		Filters:    state,
		Filtered:   state.Filtered(),
		Page:       state.Page,
		Sentiments: Sentiments,
	}

	if hasPage && pg.state == state {
		res := pg.result
		v.Loaded = true
		v.Rows = make([]Row, len(res.Items))
		for i, reply := range res.Items {
			v.Rows[i] = NewRow(reply)
		}
		v.Page = res.Page
		v.TotalPages = res.TotalPages
		v.ShowControls = res.ShowControls()
		v.CanPrev = res.CanPrev()
		v.CanNext = res.CanNext()
		v.ResultCount = len(res.Items)
		v.Empty = len(res.Items) == 0
		if v.Empty {
			v.EmptyMessage = EmptyMessage
			v.EmptyHint = EmptyHint
		}
		v.CanExport = !v.Empty
	}

	if a, _, ok := r.analytics.Snapshot(); ok && a.campaignID == state.CampaignID {
		v.Analytics = a.snap
		v.AnalyticsLoaded = true
		v.Breakdown = Breakdown(a.snap.SentimentBreakdown)
	}

	if list, _, ok := r.campaigns.Snapshot(); ok {
		v.Campaigns = make([]CampaignOption, len(list))
		for i, c := range list {
			v.Campaigns[i] = CampaignOption{ID: c.ID, Name: c.Name, Selected: c.ID == state.CampaignID}
		}
	}
	return v
}
