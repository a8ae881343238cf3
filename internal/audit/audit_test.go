package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	bolt "go.etcd.io/bbolt"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "data", "audit.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndList(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{Action: ActionCampaignStart, CampaignID: "c1", Campaign: "Spring", RecordedAt: base},
		{Action: ActionSendPending, Outcome: OutcomePartial, Detail: "Sent 7 out of 10 opt-out confirmations", RecordedAt: base.Add(time.Minute)},
		{Action: ActionCleanOptOuts, CampaignID: "c1", RecordedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := l.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if e.ID == "" {
			t.Error("Record() did not assign an ID")
		}
	}

	all, err := l.List(ctx, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Action != ActionCleanOptOuts || all[2].Action != ActionCampaignStart {
		t.Errorf("List() order = %v", actions(all))
	}
	if all[2].Outcome != OutcomeOK {
		t.Errorf("default outcome = %q", all[2].Outcome)
	}

	byCampaign, _ := l.List(ctx, ListFilter{CampaignID: "c1"})
	if len(byCampaign) != 2 {
		t.Errorf("campaign filter = %v", actions(byCampaign))
	}

	byAction, _ := l.List(ctx, ListFilter{Action: ActionSendPending})
	if len(byAction) != 1 || byAction[0].Outcome != OutcomePartial {
		t.Errorf("action filter = %v", actions(byAction))
	}

	page, _ := l.List(ctx, ListFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].Action != ActionSendPending {
		t.Errorf("offset/limit = %v", actions(page))
	}
}

func TestKeysSortAcrossSubsecondWidths(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// RFC3339Nano would render these as ...:00Z and ...:00.5Z, which sort
	// the wrong way round
	l.Record(ctx, &Entry{Action: ActionExport, Detail: "later", RecordedAt: base.Add(500 * time.Millisecond)})
	l.Record(ctx, &Entry{Action: ActionExport, Detail: "earlier", RecordedAt: base})

	got, _ := l.List(ctx, ListFilter{})
	if len(got) != 2 || got[0].Detail != "later" {
		t.Errorf("newest-first order broken: %v", got)
	}
}

func TestPrune(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	l.Record(ctx, &Entry{Action: ActionExport, RecordedAt: time.Now().Add(-48 * time.Hour)})
	l.Record(ctx, &Entry{Action: ActionExport, RecordedAt: time.Now()})

	n, err := l.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	left, _ := l.List(ctx, ListFilter{})
	if len(left) != 1 {
		t.Errorf("%d entries left, want 1", len(left))
	}
	if n, _ := l.Prune(ctx, 0); n != 0 {
		t.Errorf("Prune(0) = %d, want 0", n)
	}
}

func TestNewSharedDB(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "shared.db"), 0600, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	l, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	// Close on a borrowed database leaves it open
	if err := l.Record(context.Background(), &Entry{Action: ActionExport}); err != nil {
		t.Errorf("Record() after borrowed Close = %v", err)
	}
}

func TestRecordTakesRequestID(t *testing.T) {
	l := openTestLog(t)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "host/abc-000001")

	e := &Entry{Action: ActionExport}
	if err := l.Record(ctx, e); err != nil {
		t.Fatal(err)
	}
	if e.RequestID != "host/abc-000001" {
		t.Errorf("RequestID = %q", e.RequestID)
	}
}

func TestDiscard(t *testing.T) {
	if err := Discard.Record(context.Background(), &Entry{}); err != nil {
		t.Error(err)
	}
}

func actions(entries []*Entry) []Action {
	out := make([]Action, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}
