// Package backendtest provides an in-memory campaign backend for tests.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/foxzi/bulkdash/internal/backend"
)

// Call is one request seen by the server
type Call struct {
	Method string
	Path   string
	Query  url.Values
}

// Start is one received campaign start
type Start struct {
	Fields   map[string]string
	FileName string
	File     []byte
}

type failure struct {
	status  int
	message string
}

// Server emulates the backend endpoints the dashboard consumes
type Server struct {
	*httptest.Server

	mu              sync.Mutex
	campaigns       []backend.Campaign
	replies         []backend.Reply
	replyAnalytics  backend.AnalyticsSnapshot
	optOutAnalytics backend.AnalyticsSnapshot
	queue           []backend.OptOutQueueItem
	templates       string
	sendPending     backend.SendPendingResponse
	failures        map[string]failure
	calls           []Call
	starts          []Start
	hold            map[string]chan struct{}
}

// New starts a server that is closed when the test ends
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		failures:  make(map[string]failure),
		hold:      make(map[string]chan struct{}),
		templates: "Hi {name}!\n\nReply STOP to opt out | Bulkdash",
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// BackendClient returns a client pointed at the server without throttling
func (s *Server) BackendClient() *backend.Client {
	return backend.NewClient(s.URL, backend.Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Get("/api/campaigns", s.handleCampaigns)
	r.Get("/api/campaign-status/{id}", s.handleCampaignStatus)
	r.Post("/api/start-campaign", s.handleStart)
	r.Get("/api/opt-out/analytics", s.handleOptOutAnalytics)
	r.Get("/api/opt-out/queue", s.handleQueue)
	r.Get("/api/templates/compliant", s.handleTemplates)
	r.Post("/api/opt-out/send-pending", s.handleSendPending)
	r.Post("/api/campaigns/{id}/clean-opt-outs", s.handleClean)
	r.Get("/api/replies", s.handleReplies)
	r.Get("/api/replies/analytics", s.handleReplyAnalytics)
	r.Get("/api/replies/download", s.handleDownload)
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()})
		f, failing := s.failures[r.URL.Path]
		gate := s.hold[r.URL.Path]
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			writeJSON(w, f.status, backend.ErrorResponse{Error: f.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// SetCampaigns replaces the campaign list
func (s *Server) SetCampaigns(c []backend.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns = c
}

// SetReplies replaces the reply store
func (s *Server) SetReplies(r []backend.Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = r
}

// SetReplyAnalytics sets the reply analytics payload
func (s *Server) SetReplyAnalytics(a backend.AnalyticsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyAnalytics = a
}

// SetOptOutAnalytics sets the opt-out analytics payload
func (s *Server) SetOptOutAnalytics(a backend.AnalyticsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optOutAnalytics = a
}

// SetQueue replaces the confirmation queue
func (s *Server) SetQueue(q []backend.OptOutQueueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = q
}

// SetSendPending sets the send-pending response
func (s *Server) SetSendPending(r backend.SendPendingResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendPending = r
}

// Fail makes every request to path answer status with {error: message}
func (s *Server) Fail(path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = failure{status: status, message: message}
}

// Recover undoes Fail
func (s *Server) Recover(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, path)
}

// Hold blocks requests to path until the returned release func is called
func (s *Server) Hold(path string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold[path] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.hold, path)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns the requests made to path
func (s *Server) Calls(path string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Starts returns the received campaign starts
func (s *Server) Starts() []Start {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Start(nil), s.starts...)
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c := s.campaigns
	s.mu.Unlock()
	if c == nil {
		c = []backend.Campaign{}
	}
	writeJSON(w, http.StatusOK, backend.CampaignsResponse{Campaigns: c})
}

func (s *Server) handleCampaignStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.campaigns {
		if c.ID == id {
			writeJSON(w, http.StatusOK, backend.CampaignStatusResponse{
				Campaign: c,
				Stats: map[string]int{
					"sent":      c.SentMessages,
					"delivered": c.DeliveredMessages,
					"failed":    c.FailedMessages,
				},
			})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, backend.ErrorResponse{Error: "Campaign not found"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, backend.ErrorResponse{Error: "Missing required fields"})
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, backend.ErrorResponse{Error: "No file uploaded"})
		return
	}
	defer f.Close()
	data, _ := io.ReadAll(f)

	fields := make(map[string]string)
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	s.mu.Lock()
	s.starts = append(s.starts, Start{Fields: fields, FileName: hdr.Filename, File: data})
	id := fmt.Sprintf("cmp-%d", len(s.starts))
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, backend.StartCampaignResponse{CampaignID: id, Message: "Campaign started"})
}

func (s *Server) handleOptOutAnalytics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a := s.optOutAnalytics
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		q = []backend.OptOutQueueItem{}
	}
	writeJSON(w, http.StatusOK, backend.OptOutQueueResponse{Queue: q})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	t := s.templates
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, backend.TemplatesResponse{Templates: t})
}

func (s *Server) handleSendPending(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := s.sendPending
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, backend.MessageResponse{Message: "Removed opted-out contacts from campaign " + id})
}

// filterReplies applies campaign_id and sentiment the way the backend does
func (s *Server) filterReplies(q url.Values) []backend.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []backend.Reply
	for _, r := range s.replies {
		if v := q.Get("campaign_id"); v != "" && r.CampaignID != v {
			continue
		}
		if v := q.Get("sentiment"); v != "" && r.Sentiment != v {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *Server) handleReplies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	all := s.filterReplies(q)
	start := (page - 1) * perPage
	items := []backend.Reply{}
	if start < len(all) {
		end := min(start+perPage, len(all))
		items = all[start:end]
	}
	writeJSON(w, http.StatusOK, backend.RepliesResponse{
		Replies:    items,
		TotalCount: len(all),
		Page:       page,
		PerPage:    perPage,
		TotalPages: (len(all) + perPage - 1) / perPage,
	})
}

func (s *Server) handleReplyAnalytics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a := s.replyAnalytics
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rows := s.filterReplies(r.URL.Query())
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, backend.ErrorResponse{Error: "No replies found for the specified filters"})
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "WhatsApp Replies"
	f.SetSheetName("Sheet1", sheet)
	f.SetSheetRow(sheet, "A1", &[]any{"Phone Number", "Sender Name", "Message", "Sentiment"})
	for i, reply := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		f.SetSheetRow(sheet, cell, &[]any{reply.PhoneNumber, reply.SenderName, reply.MessageContent, reply.Sentiment})
	}

	name := "whatsapp_replies_20240101_120000"
	if v := r.URL.Query().Get("sentiment"); v != "" {
		name += "_sentiment_" + strings.ReplaceAll(v, " ", "_")
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.xlsx"`)
	f.Write(w)
}
