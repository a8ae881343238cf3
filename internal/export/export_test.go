package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/foxzi/bulkdash/internal/audit"
	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/backend/backendtest"
	"github.com/foxzi/bulkdash/internal/pagination"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memRecorder struct {
	entries []audit.Entry
}

func (m *memRecorder) Record(_ context.Context, e *audit.Entry) error {
	m.entries = append(m.entries, *e)
	return nil
}

func TestEncodeDeterministic(t *testing.T) {
	a := pagination.FilterState{Sentiment: "urgent", CampaignID: "c1", StartDate: "2024-01-01", Page: 3}
	b := pagination.FilterState{StartDate: "2024-01-01", CampaignID: "c1", Sentiment: "urgent", Page: 1}

	got := Encode(a)
	if got != Encode(b) {
		t.Errorf("Encode differs by page: %q vs %q", got, Encode(b))
	}
	if want := "campaign_id=c1&sentiment=urgent&start_date=2024-01-01"; got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
	if got := Encode(pagination.NewFilterState()); got != "" {
		t.Errorf("Encode(empty) = %q", got)
	}
}

func TestFilenameFromDisposition(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"quoted", `attachment; filename="whatsapp_replies_20240101_120000.xlsx"`, "whatsapp_replies_20240101_120000.xlsx"},
		{"bare", `attachment; filename=report.xlsx`, "report.xlsx"},
		{"rfc5987", `attachment; filename*=UTF-8''r%C3%A9ponses.xlsx`, "réponses.xlsx"},
		{"unquoted space", `attachment; filename=my replies.xlsx`, "my replies.xlsx"},
		{"single quotes", `attachment; filename='x.xlsx'`, "x.xlsx"},
		{"path stripped", `attachment; filename="../../etc/passwd"`, "passwd"},
		{"windows path", `attachment; filename="C:\reports\out.xlsx"`, "out.xlsx"},
		{"empty", "", DefaultFilename},
		{"no filename", "attachment", DefaultFilename},
		{"empty filename", `attachment; filename=""`, DefaultFilename},
		{"dots", `attachment; filename=".."`, DefaultFilename},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilenameFromDisposition(tt.header); got != tt.want {
				t.Errorf("FilenameFromDisposition(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestDefaultFilename(t *testing.T) {
	if got := FilenameFromDisposition(""); got != "whatsapp_replies.xlsx" {
		t.Errorf("fallback filename = %q, want whatsapp_replies.xlsx", got)
	}
}

func seedReplies(srv *backendtest.Server) {
	srv.SetReplies([]backend.Reply{
		{ID: 1, PhoneNumber: "254700000001", MessageContent: "yes please", Sentiment: "interested", CampaignID: "c1"},
		{ID: 2, PhoneNumber: "254700000002", MessageContent: "STOP", Sentiment: "desired_opt_out", CampaignID: "c1"},
		{ID: 3, PhoneNumber: "254700000003", MessageContent: "when?", Sentiment: "question", CampaignID: "c2"},
	})
}

func TestDownload(t *testing.T) {
	srv := backendtest.New(t)
	seedReplies(srv)
	rec := &memRecorder{}
	d := NewDownloader(srv.BackendClient(), rec, discardLogger())
	dir := t.TempDir()

	filters := pagination.FilterState{CampaignID: "c1", Page: 2}
	res, err := d.Download(context.Background(), filters, 2, dir, "cli")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if res.Filename != "whatsapp_replies_20240101_120000.xlsx" || res.Bytes == 0 {
		t.Errorf("result = %+v", res)
	}
	if d.Downloading() {
		t.Error("Downloading() still true")
	}

	calls := srv.Calls("/api/replies/download")
	if q := calls[0].Query; q.Get("campaign_id") != "c1" || q.Has("page") {
		t.Errorf("download query = %v", q)
	}

	sum, err := Summarize(res.Path)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if sum.Sheet != "WhatsApp Replies" || sum.Rows != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if len(rec.entries) != 1 || rec.entries[0].Outcome != audit.OutcomeOK || rec.entries[0].CampaignID != "c1" {
		t.Errorf("audit = %+v", rec.entries)
	}
}

func TestDownloadEmptyRefused(t *testing.T) {
	srv := backendtest.New(t)
	d := NewDownloader(srv.BackendClient(), nil, discardLogger())

	_, err := d.Download(context.Background(), pagination.NewFilterState(), 0, t.TempDir(), "web")
	if !errors.Is(err, ErrEmptyExport) {
		t.Errorf("Download() error = %v, want ErrEmptyExport", err)
	}
	if len(srv.Calls("/api/replies/download")) != 0 {
		t.Error("backend contacted for an empty export")
	}
}

func TestDownloadBackendError(t *testing.T) {
	srv := backendtest.New(t)
	d := NewDownloader(srv.BackendClient(), nil, discardLogger())
	dir := t.TempDir()

	// the view thought there were results, the backend disagrees
	_, err := d.Download(context.Background(), pagination.FilterState{Sentiment: "urgent"}, 1, dir, "web")
	var dlErr *backend.DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("Download() error = %v, want *backend.DownloadError", err)
	}
	if dlErr.Message != "No replies found for the specified filters" {
		t.Errorf("Message = %q", dlErr.Message)
	}
	if d.Downloading() {
		t.Error("Downloading() still true after failure")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("files written on failure: %v", entries)
	}
}

func TestStreamInProgress(t *testing.T) {
	srv := backendtest.New(t)
	seedReplies(srv)
	d := NewDownloader(srv.BackendClient(), nil, discardLogger())

	_, err := d.Stream(context.Background(), pagination.NewFilterState(), 3, "web",
		func(filename, contentType string, body io.Reader) (int64, error) {
			if !d.Downloading() {
				t.Error("Downloading() = false inside stream")
			}
			_, err := d.Stream(context.Background(), pagination.NewFilterState(), 3, "web",
				func(string, string, io.Reader) (int64, error) { return 0, nil })
			if !errors.Is(err, ErrDownloadInProgress) {
				t.Errorf("nested Stream() error = %v, want ErrDownloadInProgress", err)
			}
			return io.Copy(io.Discard, body)
		})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSummarizeMissing(t *testing.T) {
	if _, err := Summarize(filepath.Join(t.TempDir(), "nope.xlsx")); err == nil {
		t.Error("Summarize() on a missing file succeeded")
	}
}
