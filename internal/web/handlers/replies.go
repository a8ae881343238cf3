package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/export"
	"github.com/foxzi/bulkdash/internal/pagination"
	"github.com/foxzi/bulkdash/internal/replies"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type repliesData struct {
	replies.View
	LoadError string
	ExportURL string
	PrevURL   string
	NextURL   string
}

// filtersFromQuery reads the reply filters. Unknown sentiments and
// malformed dates are dropped.
func filtersFromQuery(q url.Values) pagination.FilterState {
	s := pagination.FilterState{
		CampaignID: strings.TrimSpace(q.Get("campaign_id")),
		Sentiment:  q.Get("sentiment"),
		StartDate:  validDate(q.Get("start_date")),
		EndDate:    validDate(q.Get("end_date")),
		Page:       atoi(q.Get("page"), 1),
	}
	if !replies.ValidSentiment(s.Sentiment) {
		s.Sentiment = ""
	}
	if s.Page < 1 {
		s.Page = 1
	}
	return s
}

func validDate(s string) string {
	s = strings.TrimSpace(s)
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return ""
	}
	return s
}

func (h *Handlers) newReplies(state pagination.FilterState) *replies.Replies {
	v := replies.New(h.client, h.cfg.Dashboard.PageSize, h.logger)
	v.Apply(state)
	v.SetPage(state.Page)
	return v
}

func (h *Handlers) repliesData(v replies.View) repliesData {
	params := pagination.FilterParams(v.Filters)
	return repliesData{
		View:      v,
		ExportURL: pageURL("/replies/export", params, 1),
		PrevURL:   pageURL("/replies", params, v.Page-1),
		NextURL:   pageURL("/replies", params, v.Page+1),
	}
}

// ReplyList renders the reply inbox for the filters in the query
func (h *Handlers) ReplyList(w http.ResponseWriter, r *http.Request) {
	v := h.newReplies(filtersFromQuery(r.URL.Query()))
	defer v.Close()

	err := v.Refresh(r.Context())
	data := h.repliesData(v.View())
	if err != nil {
		data.LoadError = "Failed to load replies: " + errorMessage(err)
	}
	h.render(w, r, http.StatusOK, "replies", page{Title: "Replies", Nav: "replies", Data: data})
}

// ReplyExport streams the spreadsheet for the filters in the query. The
// current page is loaded first so an empty result set is refused locally.
func (h *Handlers) ReplyExport(w http.ResponseWriter, r *http.Request) {
	v := h.newReplies(filtersFromQuery(r.URL.Query()))
	defer v.Close()

	if err := v.RefreshPage(r.Context()); err != nil {
		h.exportFailed(w, r, v, backendStatus(err), "Failed to load replies: "+errorMessage(err))
		return
	}
	view := v.View()

	started := false
	_, err := h.exports.Stream(r.Context(), view.Filters, view.ResultCount, Source,
		func(filename, contentType string, body io.Reader) (int64, error) {
			if contentType == "" {
				contentType = xlsxContentType
			}
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
			w.WriteHeader(http.StatusOK)
			started = true
			return io.Copy(w, body)
		})
	if err == nil || started {
		return
	}

	var dlErr *backend.DownloadError
	switch {
	case errors.Is(err, export.ErrEmptyExport):
		h.exportFailed(w, r, v, http.StatusUnprocessableEntity, "No replies to export for the selected filters.")
	case errors.Is(err, export.ErrDownloadInProgress):
		h.exportFailed(w, r, v, http.StatusConflict, "Another export is already downloading.")
	case errors.As(err, &dlErr):
		h.exportFailed(w, r, v, http.StatusBadGateway, "Export failed: "+errorMessage(err))
	default:
		h.exportFailed(w, r, v, backendStatus(err), "Export failed: "+errorMessage(err))
	}
}

func (h *Handlers) exportFailed(w http.ResponseWriter, r *http.Request, v *replies.Replies, status int, message string) {
	data := h.repliesData(v.View())
	h.render(w, r, status, "replies", page{Title: "Replies", Nav: "replies", Error: message, Data: data})
}
