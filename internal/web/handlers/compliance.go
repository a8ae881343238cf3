package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/bulkdash/internal/optout"
)

type complianceData struct {
	optout.View
	LoadError string
	Report    *optout.SendReport
}

func (h *Handlers) complianceData(ctx context.Context) complianceData {
	var data complianceData
	if v := h.optout.View(); !v.AnalyticsLoaded || !v.QueueLoaded || v.Templates == "" {
		if err := h.optout.Refresh(ctx); err != nil {
			data.LoadError = "Some compliance data failed to load: " + errorMessage(err)
		}
	}
	data.View = h.optout.View()
	return data
}

// Compliance renders opt-out analytics, the confirmation queue and the
// compliant templates
func (h *Handlers) Compliance(w http.ResponseWriter, r *http.Request) {
	var data complianceData
	if err := h.optout.Refresh(r.Context()); err != nil {
		data.LoadError = "Some compliance data failed to load: " + errorMessage(err)
	}
	data.View = h.optout.View()
	h.render(w, r, http.StatusOK, "compliance", page{Title: "Compliance", Nav: "compliance", Data: data})
}

// SendPending sends every pending opt-out confirmation
func (h *Handlers) SendPending(w http.ResponseWriter, r *http.Request) {
	report, err := h.optout.SendPending(r.Context(), Source)
	data := h.complianceData(r.Context())
	p := page{Title: "Compliance", Nav: "compliance", Data: &data}

	switch {
	case err == nil:
		data.Report = report
		h.render(w, r, http.StatusOK, "compliance", p)
	case errors.Is(err, optout.ErrNothingPending), errors.Is(err, optout.ErrSendInProgress):
		p.Error = err.Error()
		h.render(w, r, http.StatusConflict, "compliance", p)
	default:
		p.Error = "Failed to send confirmations: " + errorMessage(err)
		h.render(w, r, backendStatus(err), "compliance", p)
	}
}

// CleanCampaign removes opted-out contacts from one campaign
func (h *Handlers) CleanCampaign(w http.ResponseWriter, r *http.Request) {
	msg, err := h.optout.CleanCampaign(r.Context(), chi.URLParam(r, "id"), Source)
	data := h.complianceData(r.Context())
	p := page{Title: "Compliance", Nav: "compliance", Data: data}

	if err != nil {
		p.Error = "Failed to clean campaign: " + errorMessage(err)
		status := backendStatus(err)
		if errors.Is(err, optout.ErrNoCampaign) {
			status = http.StatusBadRequest
		}
		h.render(w, r, status, "compliance", p)
		return
	}
	p.Flash = msg
	h.render(w, r, http.StatusOK, "compliance", p)
}
