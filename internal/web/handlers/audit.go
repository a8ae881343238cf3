package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/foxzi/bulkdash/internal/audit"
)

const auditPageSize = 50

type auditData struct {
	Entries []*audit.Entry
	NextURL string
}

// AuditLog lists recorded operator actions, newest first
func (h *Handlers) AuditLog(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	offset := max(atoi(q.Get("offset"), 0), 0)
	filter := audit.ListFilter{
		Action:     audit.Action(q.Get("action")),
		CampaignID: q.Get("campaign_id"),
		Limit:      auditPageSize + 1,
		Offset:     offset,
	}

	entries, err := h.audit.List(r.Context(), filter)
	if err != nil {
		h.error(w, r, http.StatusInternalServerError, "Failed to read audit log")
		return
	}

	data := auditData{Entries: entries}
	if len(entries) > auditPageSize {
		data.Entries = entries[:auditPageSize]
		next := url.Values{}
		if filter.Action != "" {
			next.Set("action", string(filter.Action))
		}
		if filter.CampaignID != "" {
			next.Set("campaign_id", filter.CampaignID)
		}
		next.Set("offset", strconv.Itoa(offset+auditPageSize))
		data.NextURL = "/audit?" + next.Encode()
	}

	h.render(w, r, http.StatusOK, "audit", page{Title: "Audit log", Nav: "audit", Data: data})
}
