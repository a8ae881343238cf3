package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/foxzi/bulkdash/internal/launcher"
	"github.com/foxzi/bulkdash/internal/monitor"
)

// maxUpload bounds the multipart body of a campaign start
const maxUpload = 10 << 20

type campaignsData struct {
	monitor.View
	Started   string
	LoadError string
	StreamURL string
	PrevURL   string
	NextURL   string
}

func (h *Handlers) newMonitor() *monitor.Monitor {
	return monitor.New(h.client, monitor.Options{
		Interval: h.cfg.Dashboard.PollInterval,
		PageSize: h.cfg.Dashboard.PageSize,
	}, h.logger)
}

func campaignsDataFor(v monitor.View, params url.Values) campaignsData {
	return campaignsData{
		View:      v,
		StreamURL: pageURL("/campaigns/stream", params, v.Page),
		PrevURL:   pageURL("/campaigns", params, v.Page-1),
		NextURL:   pageURL("/campaigns", params, v.Page+1),
	}
}

// CampaignList renders one snapshot of the campaign list. The page keeps
// itself current through CampaignStream.
func (h *Handlers) CampaignList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	m := h.newMonitor()
	m.SetSearch(q.Get("search"))
	err := m.Refresh(r.Context())
	m.SetPage(atoi(q.Get("page"), 1))

	data := campaignsDataFor(m.View(), url.Values{"search": {q.Get("search")}})
	data.Started = q.Get("started")
	if err != nil {
		h.logger.Warn("failed to load campaigns", "error", err)
		data.LoadError = errorMessage(err)
	}

	h.render(w, r, http.StatusOK, "campaigns", page{Title: "Campaigns", Nav: "campaigns", Data: data})
}

// CampaignStream pushes the rendered campaign list as server-sent events
// while the client stays connected. Polling stops when it disconnects.
func (h *Handlers) CampaignStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.error(w, r, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	q := r.URL.Query()
	params := url.Values{"search": {q.Get("search")}}
	wantPage := atoi(q.Get("page"), 1)

	m := h.newMonitor()
	m.SetSearch(q.Get("search"))

	// single producer: the poller never runs two refreshes at once
	updates := make(chan monitor.View, 1)
	m.OnUpdate(func(v monitor.View) {
		select {
		case <-updates:
		default:
		}
		updates <- v
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	m.Activate(ctx)
	defer m.Deactivate()

	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-updates:
			if first {
				first = false
				m.SetPage(wantPage)
				v = m.View()
			}
			var buf bytes.Buffer
			if err := h.views.RenderPartial(&buf, "campaign_list", campaignsDataFor(v, params)); err != nil {
				h.logger.Error("template render failed", "template", "campaign_list", "error", err)
				return
			}
			if err := writeEvent(w, "update", buf.String()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes one server-sent event. Every line of data gets its own
// data field.
func writeEvent(w io.Writer, event, data string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", event)
	for _, line := range strings.Split(strings.TrimRight(data, "\n"), "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimRight(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

type campaignForm struct {
	Name          string
	Template      string
	RateLimit     int
	MinRate       int
	MaxRate       int
	Footer        string
	HasDefaultKey bool
}

func (h *Handlers) campaignForm() campaignForm {
	return campaignForm{
		RateLimit:     launcher.DefaultRateLimit,
		MinRate:       launcher.MinRateLimit,
		MaxRate:       launcher.MaxRateLimit,
		Footer:        h.policy.Footer(),
		HasDefaultKey: h.cfg.Backend.APIKey != "",
	}
}

func (h *Handlers) CampaignNew(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "campaign_new", page{Title: "New campaign", Nav: "new", Data: h.campaignForm()})
}

// CampaignCreate validates the upload and starts the campaign. The API key
// falls back to the configured one.
func (h *Handlers) CampaignCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+1<<20)
	form := h.campaignForm()
	p := page{Title: "New campaign", Nav: "new"}

	if err := r.ParseMultipartForm(maxUpload); err != nil {
		p.Error = "Invalid form: " + err.Error()
		p.Data = form
		h.render(w, r, http.StatusBadRequest, "campaign_new", p)
		return
	}

	req := launcher.StartRequest{
		Name:     r.FormValue("campaign_name"),
		Template: r.FormValue("message_template"),
		APIKey:   strings.TrimSpace(r.FormValue("api_key")),
	}
	if req.APIKey == "" {
		req.APIKey = h.cfg.Backend.APIKey
	}
	if v := strings.TrimSpace(r.FormValue("rate_limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			n = -1
		}
		req.RateLimit = n
	}
	if f, hdr, err := r.FormFile("file"); err == nil {
		data, err := io.ReadAll(f)
		f.Close()
		if err == nil {
			req.File = data
			req.FileName = hdr.Filename
		}
	}

	form.Name = req.Name
	form.Template = req.Template
	if req.RateLimit != 0 {
		form.RateLimit = req.RateLimit
	}
	p.Data = form

	res, err := h.launcher.Launch(r.Context(), req, Source)
	if err != nil {
		var verr *launcher.ValidationError
		if errors.As(err, &verr) {
			p.Errors = verr.Problems
			h.render(w, r, http.StatusUnprocessableEntity, "campaign_new", p)
			return
		}
		p.Error = "Failed to start campaign: " + errorMessage(err)
		h.render(w, r, backendStatus(err), "campaign_new", p)
		return
	}

	http.Redirect(w, r, "/campaigns?started="+url.QueryEscape(res.CampaignID), http.StatusSeeOther)
}
