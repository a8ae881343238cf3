package launcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/foxzi/bulkdash/internal/audit"
	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/backend/backendtest"
	"github.com/foxzi/bulkdash/internal/compliance"
	"github.com/foxzi/bulkdash/internal/contacts"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func contactSheet(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetRow("Sheet1", "A1", &[]string{"phone", "name"})
	f.SetSheetRow("Sheet1", "A2", &[]string{"0712345678", "Amina"})
	f.SetSheetRow("Sheet1", "A3", &[]string{"0798765432", "Brian"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type memRecorder struct {
	entries []*audit.Entry
}

func (m *memRecorder) Record(_ context.Context, e *audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

type failingStarter struct{ calls int }

func (f *failingStarter) StartCampaign(context.Context, *backend.StartCampaignRequest) (*backend.StartCampaignResponse, error) {
	f.calls++
	return nil, &backend.APIError{Status: 400, Message: "Invalid Twilio credentials"}
}

func validRequest(t *testing.T) StartRequest {
	return StartRequest{
		FileName: "contacts.xlsx",
		File:     contactSheet(t),
		Template: "Hi {name}, our spring offer is live",
		Name:     "Spring",
		APIKey:   "sk-test",
	}
}

func TestLaunchEnforcesFooter(t *testing.T) {
	srv := backendtest.New(t)
	rec := &memRecorder{}
	l := New(srv.BackendClient(), compliance.NewPolicy("Acme"), rec, discardLogger())

	res, err := l.Launch(context.Background(), validRequest(t), "cli")
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if !res.FooterAdded {
		t.Error("FooterAdded = false")
	}
	if res.Report.Contacts != 2 {
		t.Errorf("Contacts = %d", res.Report.Contacts)
	}

	starts := srv.Starts()
	if len(starts) != 1 {
		t.Fatalf("backend saw %d starts", len(starts))
	}
	sent := starts[0].Fields["message_template"]
	if sent != "Hi {name}, our spring offer is live\n\nReply STOP to opt out | Acme" {
		t.Errorf("message_template = %q", sent)
	}
	if starts[0].Fields["rate_limit"] != "2" {
		t.Errorf("rate_limit = %q, want default 2", starts[0].Fields["rate_limit"])
	}
	if starts[0].FileName != "contacts.xlsx" || starts[0].Fields["api_key"] != "sk-test" {
		t.Errorf("start = %+v", starts[0])
	}

	if len(rec.entries) != 1 || rec.entries[0].CampaignID != res.CampaignID || rec.entries[0].Source != "cli" {
		t.Fatalf("audit entries = %+v", rec.entries)
	}
	if rec.entries[0].Outcome != audit.OutcomeOK {
		t.Errorf("Outcome = %q, want %q", rec.entries[0].Outcome, audit.OutcomeOK)
	}
}

func TestNilPolicyUsesDefaultBrand(t *testing.T) {
	srv := backendtest.New(t)
	l := New(srv.BackendClient(), nil, nil, discardLogger())

	if _, err := l.Launch(context.Background(), validRequest(t), "cli"); err != nil {
		t.Fatal(err)
	}
	sent := srv.Starts()[0].Fields["message_template"]
	if !strings.HasSuffix(sent, "| "+compliance.DefaultBrand) {
		t.Errorf("message_template = %q, want default brand footer", sent)
	}
}

func TestLaunchKeepsExistingFooter(t *testing.T) {
	srv := backendtest.New(t)
	l := New(srv.BackendClient(), compliance.NewPolicy(""), nil, discardLogger())

	req := validRequest(t)
	req.Template = "Hi {name}. reply STOP to opt out anytime."
	res, err := l.Launch(context.Background(), req, "web")
	if err != nil {
		t.Fatal(err)
	}
	if res.FooterAdded || srv.Starts()[0].Fields["message_template"] != req.Template {
		t.Errorf("template altered: %q", srv.Starts()[0].Fields["message_template"])
	}
}

func TestValidationBeforeRequest(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StartRequest)
		want   string
	}{
		{name: "missing file", mutate: func(r *StartRequest) { r.File = nil; r.FileName = "" }, want: "contact file is required"},
		{name: "blank template", mutate: func(r *StartRequest) { r.Template = "   " }, want: "message template is required"},
		{name: "missing name", mutate: func(r *StartRequest) { r.Name = "" }, want: "campaign name is required"},
		{name: "missing key", mutate: func(r *StartRequest) { r.APIKey = "" }, want: "API key is required"},
		{name: "rate too high", mutate: func(r *StartRequest) { r.RateLimit = 11 }, want: "rate limit must be between 1 and 10"},
		{name: "rate negative", mutate: func(r *StartRequest) { r.RateLimit = -1 }, want: "rate limit must be between 1 and 10"},
		{name: "csv file", mutate: func(r *StartRequest) { r.FileName = "contacts.csv" }, want: "must be an .xlsx"},
		{name: "bad sheet", mutate: func(r *StartRequest) { r.File = []byte("not a workbook") }, want: "contact file:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &failingStarter{}
			rec := &memRecorder{}
			l := New(starter, compliance.NewPolicy(""), rec, discardLogger())

			req := validRequest(t)
			tt.mutate(&req)
			_, err := l.Launch(context.Background(), req, "cli")

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if !strings.Contains(verr.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", verr.Error(), tt.want)
			}
			if starter.calls != 0 {
				t.Error("request sent despite validation failure")
			}
			if len(rec.entries) != 0 {
				t.Error("invalid submission was audited")
			}
		})
	}
}

func TestValidationUnwrapsContactErrors(t *testing.T) {
	l := New(&failingStarter{}, compliance.NewPolicy(""), nil, discardLogger())
	req := validRequest(t)
	req.FileName = "contacts.txt"
	_, err := l.Validate(&req)
	if !errors.Is(err, contacts.ErrUnsupportedFile) {
		t.Errorf("error = %v, want ErrUnsupportedFile", err)
	}
}

func TestLaunchBackendErrorVerbatim(t *testing.T) {
	starter := &failingStarter{}
	rec := &memRecorder{}
	l := New(starter, compliance.NewPolicy(""), rec, discardLogger())

	_, err := l.Launch(context.Background(), validRequest(t), "web")
	if err == nil || err.Error() != "Invalid Twilio credentials" {
		t.Errorf("error = %v, want backend message verbatim", err)
	}
	if starter.calls != 1 {
		t.Errorf("backend called %d times, want exactly 1 (no retry)", starter.calls)
	}
	if len(rec.entries) != 1 || rec.entries[0].Outcome != audit.OutcomeError {
		t.Errorf("audit = %+v", rec.entries)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.xlsx")
	f := excelize.NewFile()
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	var req StartRequest
	if err := ReadFile(path, &req); err != nil {
		t.Fatal(err)
	}
	if req.FileName != "list.xlsx" || len(req.File) == 0 {
		t.Errorf("req = %q %d bytes", req.FileName, len(req.File))
	}
	if err := ReadFile(filepath.Join(t.TempDir(), "nope.xlsx"), &req); err == nil {
		t.Error("missing file accepted")
	}
}
