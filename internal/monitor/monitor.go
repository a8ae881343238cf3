package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/metrics"
	"github.com/foxzi/bulkdash/internal/pagination"
	"github.com/foxzi/bulkdash/internal/poller"
	"github.com/foxzi/bulkdash/internal/viewstate"
)

const viewName = "campaigns"

// Empty-state texts
const (
	NoMatchesMessage   = "No campaigns match your search."
	NoCampaignsMessage = "No campaigns found. Create your first campaign!"
)

// Lister fetches campaign snapshots
type Lister interface {
	ListCampaigns(ctx context.Context) ([]backend.Campaign, error)
}

// Options tunes a Monitor
type Options struct {
	Interval time.Duration
	PageSize int
}

// View is what the campaign list renders
type View struct {
	Rows         []Row
	Search       string
	Page         int
	TotalPages   int
	Total        int
	ShowControls bool
	CanPrev      bool
	CanNext      bool
	Loaded       bool
	Empty        bool
	EmptyMessage string
	UpdatedAt    time.Time
}

// Monitor is the campaign list view. While active it polls the backend;
// each accepted snapshot replaces the local collection whole.
type Monitor struct {
	lister   Lister
	interval time.Duration
	logger   *slog.Logger
	source   *pagination.Local[backend.Campaign]

	mu        sync.Mutex
	state     pagination.FilterState
	store     *viewstate.Store[[]backend.Campaign]
	poller    *poller.Poller
	updatedAt time.Time
	onUpdate  func(View)
}

// New creates an inactive monitor
func New(lister Lister, opts Options, logger *slog.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = poller.DefaultInterval
	}
	m := &Monitor{
		lister:   lister,
		interval: opts.Interval,
		logger:   logger.With("component", "monitor"),
		source: pagination.NewLocal(func(c backend.Campaign) string {
			return c.Name
		}, opts.PageSize),
		state: pagination.NewFilterState(),
	}
	m.store = m.newStore()
	return m
}

func (m *Monitor) newStore() *viewstate.Store[[]backend.Campaign] {
	return viewstate.New(viewName, viewstate.WithStaleHook[[]backend.Campaign](metrics.IncStaleResponses))
}

// OnUpdate registers a callback fired after every accepted refresh
func (m *Monitor) OnUpdate(fn func(View)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// Activate mounts the view and starts polling. The first refresh runs
// immediately. Polling also stops when ctx is cancelled.
func (m *Monitor) Activate(ctx context.Context) {
	m.mu.Lock()
	if m.poller != nil && m.poller.Running() {
		m.mu.Unlock()
		return
	}
	if m.store.Closed() {
		m.store = m.newStore()
	}
	m.poller = poller.New(viewName, m.interval, m.Refresh, m.logger)
	p := m.poller
	m.mu.Unlock()

	metrics.ViewMounted(viewName)
	p.Start(ctx)
}

// Deactivate stops polling and discards any response still in flight
func (m *Monitor) Deactivate() {
	m.mu.Lock()
	p := m.poller
	m.poller = nil
	store := m.store
	m.mu.Unlock()

	if p == nil {
		return
	}
	store.Close()
	p.Stop()
	metrics.ViewUnmounted(viewName)
}

// Active reports whether the monitor is polling
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poller != nil && m.poller.Running()
}

// Refresh fetches a new snapshot. On error the previous snapshot stays.
func (m *Monitor) Refresh(ctx context.Context) error {
	m.mu.Lock()
	store := m.store
	m.mu.Unlock()

	ticket := store.Begin()
	campaigns, err := m.lister.ListCampaigns(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if !store.Commit(ticket, campaigns) {
		m.mu.Unlock()
		m.logger.Debug("discarded stale campaign snapshot", "seq", ticket.Seq())
		return nil
	}
	m.source.Replace(campaigns)
	m.updatedAt = time.Now()
	fn := m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(m.View())
	}
	return nil
}

// SetSearch changes the search term and returns to page 1
func (m *Monitor) SetSearch(q string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SetSearch(q)
}

// SetPage jumps to a page, clamped to the current bounds
func (m *Monitor) SetPage(page int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.fetchLocked()
	m.state.SetPage(pagination.Clamp(page, res.TotalPages))
}

// NextPage advances unless on the last page
func (m *Monitor) NextPage() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.fetchLocked()
	return m.state.Next(res.TotalPages)
}

// PrevPage goes back unless on the first page
func (m *Monitor) PrevPage() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Prev()
}

func (m *Monitor) fetchLocked() pagination.Result[backend.Campaign] {
	// local fetches never fail
	res, _ := m.source.Fetch(context.Background(), m.state)
	if res.TotalPages > 0 && res.Page > res.TotalPages {
		// the collection shrank under us
		m.state.SetPage(res.TotalPages)
		res, _ = m.source.Fetch(context.Background(), m.state)
	}
	return res
}

// View renders the current page
func (m *Monitor) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := m.fetchLocked()
	_, _, loaded := m.store.Snapshot()

	rows := make([]Row, len(res.Items))
	for i, c := range res.Items {
		rows[i] = NewRow(c)
	}

	v := View{
		Rows:         rows,
		Search:       m.state.SearchQuery,
		Page:         res.Page,
		TotalPages:   res.TotalPages,
		Total:        res.Total,
		ShowControls: res.ShowControls(),
		CanPrev:      res.CanPrev(),
		CanNext:      res.CanNext(),
		Loaded:       loaded || m.source.Version() > 0,
		Empty:        res.Empty(),
		UpdatedAt:    m.updatedAt,
	}
	if v.Loaded && v.Empty {
		if m.state.SearchQuery != "" {
			v.EmptyMessage = NoMatchesMessage
		} else {
			v.EmptyMessage = NoCampaignsMessage
		}
	}
	return v
}
