// Package optout implements the compliance view: opt-out analytics, the
// confirmation queue and the bulk "send pending" action.
package optout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/foxzi/bulkdash/internal/audit"
	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/metrics"
	"github.com/foxzi/bulkdash/internal/viewstate"
)

// QueuePreviewSize is how many queue items the view lists
const QueuePreviewSize = 10

// Empty-state texts
const (
	EmptyQueueMessage = "No opt-out confirmations in queue."
	EmptyQueueHint    = "Confirmations are automatically scheduled when customers opt out."
)

var (
	ErrNothingPending = errors.New("no pending opt-out confirmations")
	ErrSendInProgress = errors.New("opt-out confirmations are already being sent")
	ErrNoCampaign     = errors.New("campaign id is required")
)

// Opt-out rate levels
const (
	RateOK       = "ok"
	RateElevated = "elevated"
	RateHigh     = "high"
)

// RateLevel grades a campaign opt-out rate in percent
func RateLevel(rate float64) string {
	switch {
	case rate > 5:
		return RateHigh
	case rate > 2:
		return RateElevated
	default:
		return RateOK
	}
}

// Client is the part of the backend the view talks to
type Client interface {
	OptOutAnalytics(ctx context.Context) (*backend.AnalyticsSnapshot, error)
	OptOutQueue(ctx context.Context) ([]backend.OptOutQueueItem, error)
	CompliantTemplates(ctx context.Context) (string, error)
	SendPendingConfirmations(ctx context.Context) (*backend.SendPendingResponse, error)
	CleanOptOuts(ctx context.Context, campaignID string) (string, error)
}

// SendReport is the outcome of a send-pending run. A partial run is not an
// error.
type SendReport struct {
	Sent   int
	Total  int
	Errors []string
}

// Partial reports whether some confirmations were not sent
func (r SendReport) Partial() bool {
	return r.Sent < r.Total || len(r.Errors) > 0
}

// Message is the operator-facing summary
func (r SendReport) Message() string {
	return fmt.Sprintf("Sent %d out of %d opt-out confirmations", r.Sent, r.Total)
}

// QueueRow is one rendered queue item
type QueueRow struct {
	ID        int
	Sender    string
	Phone     string
	Status    string
	Sent      bool
	Tone      string
	Scheduled string
	SentAt    string
}

// NewQueueRow derives the display fields of a queue item
func NewQueueRow(item backend.OptOutQueueItem) QueueRow {
	row := QueueRow{
		ID:        item.ID,
		Sender:    item.SenderName,
		Phone:     item.PhoneNumber,
		Status:    item.Status,
		Sent:      item.Sent,
		Tone:      "warning",
		Scheduled: item.ScheduledTime.String(),
	}
	if row.Sender == "" {
		row.Sender = "Unknown"
	}
	if item.Sent {
		row.Tone = "success"
		if item.SentAt != nil {
			row.SentAt = item.SentAt.String()
		}
	}
	return row
}

// RateRow is one campaign in the opt-out rate table
type RateRow struct {
	Campaign      string
	CampaignID    string
	OptOuts       int
	TotalContacts int
	Rate          string
	Level         string
	CanClean      bool
}

// NewRateRow derives the display fields of a campaign rate
func NewRateRow(r backend.CampaignOptOutRate) RateRow {
	return RateRow{
		Campaign:      r.Campaign,
		CampaignID:    r.CampaignID,
		OptOuts:       r.OptOuts,
		TotalContacts: r.TotalContacts,
		Rate:          strconv.FormatFloat(r.OptOutRate, 'f', -1, 64) + "%",
		Level:         RateLevel(r.OptOutRate),
		CanClean:      r.CampaignID != "",
	}
}

// View is what the compliance page renders
type View struct {
	Analytics       backend.AnalyticsSnapshot
	AnalyticsLoaded bool
	Rates           []RateRow

	Queue        []QueueRow
	QueueTotal   int
	QueueLoaded  bool
	QueueEmpty   bool
	EmptyMessage string
	EmptyHint    string

	Templates string

	Pending        int
	Sending        bool
	CanSendPending bool
}

// Queue is the compliance view
type Queue struct {
	client Client
	audit  audit.Recorder
	logger *slog.Logger

	analytics *viewstate.Store[backend.AnalyticsSnapshot]
	queue     *viewstate.Store[[]backend.OptOutQueueItem]
	templates *viewstate.Store[string]
	sending   atomic.Bool
}

// New creates the view. A nil recorder disables auditing.
func New(client Client, rec audit.Recorder, logger *slog.Logger) *Queue {
	if rec == nil {
		rec = audit.Discard
	}
	return &Queue{
		client: client,
		audit:  rec,
		logger: logger.With("component", "optout"),
		analytics: viewstate.New("optout_analytics",
			viewstate.WithStaleHook[backend.AnalyticsSnapshot](metrics.IncStaleResponses)),
		queue: viewstate.New("optout_queue",
			viewstate.WithStaleHook[[]backend.OptOutQueueItem](metrics.IncStaleResponses)),
		templates: viewstate.New("optout_templates",
			viewstate.WithStaleHook[string](metrics.IncStaleResponses)),
	}
}

// Refresh reloads analytics, queue and templates concurrently. Failures are
// logged and the previous data stays.
func (q *Queue) Refresh(ctx context.Context) error {
	return q.refresh(ctx, q.RefreshAnalytics, q.RefreshQueue, q.RefreshTemplates)
}

func (q *Queue) refresh(ctx context.Context, fns ...func(context.Context) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				q.logger.Warn("refresh failed", "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// RefreshAnalytics fetches the opt-out aggregates
func (q *Queue) RefreshAnalytics(ctx context.Context) error {
	ticket := q.analytics.Begin()
	snap, err := q.client.OptOutAnalytics(ctx)
	if err != nil {
		return fmt.Errorf("opt-out analytics: %w", err)
	}
	q.analytics.Commit(ticket, *snap)
	return nil
}

// RefreshQueue fetches the confirmation queue
func (q *Queue) RefreshQueue(ctx context.Context) error {
	ticket := q.queue.Begin()
	items, err := q.client.OptOutQueue(ctx)
	if err != nil {
		return fmt.Errorf("opt-out queue: %w", err)
	}
	q.queue.Commit(ticket, items)
	return nil
}

// RefreshTemplates fetches the compliant template examples
func (q *Queue) RefreshTemplates(ctx context.Context) error {
	ticket := q.templates.Begin()
	text, err := q.client.CompliantTemplates(ctx)
	if err != nil {
		return fmt.Errorf("compliant templates: %w", err)
	}
	q.templates.Commit(ticket, text)
	return nil
}

// Sending reports whether a send-pending run is in progress
func (q *Queue) Sending() bool {
	return q.sending.Load()
}

// SendPending sends every scheduled confirmation now. It refuses while a
// run is in progress or when the last analytics report nothing pending.
// Queue and analytics are refreshed afterwards whatever the outcome.
func (q *Queue) SendPending(ctx context.Context, source string) (*SendReport, error) {
	if _, _, ok := q.analytics.Snapshot(); !ok {
		if err := q.RefreshAnalytics(ctx); err != nil {
			q.logger.Warn("refresh failed", "error", err)
		}
	}
	if snap, _, ok := q.analytics.Snapshot(); ok && snap.PendingConfirmations == 0 {
		return nil, ErrNothingPending
	}
	if !q.sending.CompareAndSwap(false, true) {
		return nil, ErrSendInProgress
	}
	defer q.sending.Store(false)
	defer q.refresh(ctx, q.RefreshQueue, q.RefreshAnalytics)

	entry := &audit.Entry{Action: audit.ActionSendPending, Source: source}
	resp, err := q.client.SendPendingConfirmations(ctx)
	if err != nil {
		entry.Outcome = audit.OutcomeError
		entry.Detail = err.Error()
		q.record(ctx, entry)
		q.logger.Error("sending opt-out confirmations failed", "error", err)
		return nil, fmt.Errorf("send pending confirmations: %w", err)
	}

	report := &SendReport{
		Sent:   resp.SentCount,
		Total:  resp.TotalConfirmations,
		Errors: resp.Errors,
	}
	metrics.AddConfirmations(report.Sent, len(report.Errors))
	for _, e := range report.Errors {
		q.logger.Warn("opt-out confirmation not sent", "error", e)
	}

	entry.Outcome = audit.OutcomeOK
	entry.Detail = report.Message()
	if report.Partial() {
		entry.Outcome = audit.OutcomePartial
	}
	q.record(ctx, entry)
	q.logger.Info("opt-out confirmations sent",
		"sent", report.Sent,
		"total", report.Total,
		"errors", len(report.Errors),
	)
	return report, nil
}

// CleanCampaign removes opted-out contacts from a campaign and returns the
// backend message. Analytics are refreshed afterwards.
func (q *Queue) CleanCampaign(ctx context.Context, campaignID, source string) (string, error) {
	if campaignID == "" {
		return "", ErrNoCampaign
	}
	defer func() {
		if err := q.RefreshAnalytics(ctx); err != nil {
			q.logger.Warn("refresh failed", "error", err)
		}
	}()

	entry := &audit.Entry{Action: audit.ActionCleanOptOuts, CampaignID: campaignID, Source: source}
	msg, err := q.client.CleanOptOuts(ctx, campaignID)
	if err != nil {
		entry.Outcome = audit.OutcomeError
		entry.Detail = err.Error()
		q.record(ctx, entry)
		q.logger.Error("cleaning opt-outs failed", "campaign_id", campaignID, "error", err)
		return "", fmt.Errorf("clean opt-outs: %w", err)
	}
	entry.Outcome = audit.OutcomeOK
	entry.Detail = msg
	q.record(ctx, entry)
	q.logger.Info("opt-outs cleaned", "campaign_id", campaignID)
	return msg, nil
}

func (q *Queue) record(ctx context.Context, e *audit.Entry) {
	if err := q.audit.Record(ctx, e); err != nil {
		q.logger.Warn("failed to record audit entry", "action", e.Action, "error", err)
	}
}

// Close discards responses still in flight
func (q *Queue) Close() {
	q.analytics.Close()
	q.queue.Close()
	q.templates.Close()
}

// View renders the current state
func (q *Queue) View() View {
	v := View{Sending: q.sending.Load()}

	if snap, _, ok := q.analytics.Snapshot(); ok {
		v.Analytics = snap
		v.AnalyticsLoaded = true
		v.Pending = snap.PendingConfirmations
		for _, r := range snap.CampaignOptOutRates {
			v.Rates = append(v.Rates, NewRateRow(r))
		}
	}
	v.CanSendPending = v.AnalyticsLoaded && v.Pending > 0 && !v.Sending

	if items, _, ok := q.queue.Snapshot(); ok {
		v.QueueLoaded = true
		v.QueueTotal = len(items)
		n := min(len(items), QueuePreviewSize)
		v.Queue = make([]QueueRow, n)
		for i := range n {
			v.Queue[i] = NewQueueRow(items[i])
		}
		if len(items) == 0 {
			v.QueueEmpty = true
			v.EmptyMessage = EmptyQueueMessage
			v.EmptyHint = EmptyQueueHint
		}
	}

	v.Templates, _, _ = q.templates.Snapshot()
	return v
}
