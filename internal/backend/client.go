// Package backend is the HTTP client for the campaign backend. Every call
// has an explicit timeout and is never retried.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/foxzi/bulkdash/internal/metrics"
)

// DefaultTimeout bounds every backend request
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx response carrying the backend's {error} message
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Options tunes the client
type Options struct {
	Timeout time.Duration
	// RequestsPerSecond throttles outbound calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// Client is a campaign backend API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new backend client
func NewClient(baseURL string, opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "backend"),
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// BaseURL returns the backend root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// do throttles, sends and measures one request. The caller owns the body.
func (c *Client) do(req *http.Request, endpoint string) (*http.Response, error) {
	if c.limiter != nil {
		if c.limiter.Tokens() < 1 {
			metrics.IncBackendThrottled()
		}
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.ObserveBackendRequest(endpoint, "error", elapsed)
		metrics.IncBackendErrors(endpoint, classifyTransportError(err))
		c.logger.Debug("backend request failed",
			"endpoint", endpoint,
			"request_id", req.Header.Get("X-Request-ID"),
			"error", err,
		)
		return nil, fmt.Errorf("do request: %w", err)
	}

	metrics.ObserveBackendRequest(endpoint, strconv.Itoa(resp.StatusCode), elapsed)
	if resp.StatusCode >= 400 {
		metrics.IncBackendErrors(endpoint, "http_"+strconv.Itoa(resp.StatusCode))
	}
	return resp, nil
}

func classifyTransportError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "timeout"
		}
		return "transport"
	}
}

// request performs a JSON round trip. Non-2xx responses become *APIError.
func (c *Client) request(ctx context.Context, endpoint, method, path string, query url.Values, body io.Reader, contentType string, result any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.do(req, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp); err == nil {
		apiErr.Message = errResp.Error
	}
	return apiErr
}

// ListCampaigns gets every campaign snapshot
func (c *Client) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	var resp CampaignsResponse
	if err := c.request(ctx, "campaigns", http.MethodGet, "/api/campaigns", nil, nil, "", &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &APIError{Status: http.StatusOK, Message: resp.Error}
	}
	if resp.Campaigns == nil {
		resp.Campaigns = []Campaign{}
	}
	return resp.Campaigns, nil
}

// CampaignStatus gets one campaign with its per-status message counts
func (c *Client) CampaignStatus(ctx context.Context, id string) (*CampaignStatusResponse, error) {
	var resp CampaignStatusResponse
	path := "/api/campaign-status/" + url.PathEscape(id)
	if err := c.request(ctx, "campaign_status", http.MethodGet, path, nil, nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartCampaign uploads the contact sheet and starts a campaign. The
// template is sent as given; callers enforce the compliance footer.
func (c *Client) StartCampaign(ctx context.Context, in *StartCampaignRequest) (*StartCampaignResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", in.FileName)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(in.File); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	fields := [][2]string{
		{"message_template", in.MessageTemplate},
		{"campaign_name", in.CampaignName},
		{"rate_limit", strconv.Itoa(in.RateLimit)},
		{"api_key", in.APIKey},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	var resp StartCampaignResponse
	if err := c.request(ctx, "start_campaign", http.MethodPost, "/api/start-campaign", nil, &buf, w.FormDataContentType(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OptOutAnalytics gets the opt-out aggregates
func (c *Client) OptOutAnalytics(ctx context.Context) (*AnalyticsSnapshot, error) {
	var resp AnalyticsSnapshot
	if err := c.request(ctx, "optout_analytics", http.MethodGet, "/api/opt-out/analytics", nil, nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OptOutQueue gets the scheduled opt-out confirmations
func (c *Client) OptOutQueue(ctx context.Context) ([]OptOutQueueItem, error) {
	var resp OptOutQueueResponse
	if err := c.request(ctx, "optout_queue", http.MethodGet, "/api/opt-out/queue", nil, nil, "", &resp); err != nil {
		return nil, err
	}
	if resp.Queue == nil {
		resp.Queue = []OptOutQueueItem{}
	}
	return resp.Queue, nil
}

// CompliantTemplates gets the backend's compliant template examples
func (c *Client) CompliantTemplates(ctx context.Context) (string, error) {
	var resp TemplatesResponse
	if err := c.request(ctx, "compliant_templates", http.MethodGet, "/api/templates/compliant", nil, nil, "", &resp); err != nil {
		return "", err
	}
	return resp.Templates, nil
}

// SendPendingConfirmations asks the backend to send every due confirmation
func (c *Client) SendPendingConfirmations(ctx context.Context) (*SendPendingResponse, error) {
	var resp SendPendingResponse
	if err := c.request(ctx, "send_pending", http.MethodPost, "/api/opt-out/send-pending", nil, nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CleanOptOuts removes opted-out contacts from a campaign
func (c *Client) CleanOptOuts(ctx context.Context, campaignID string) (string, error) {
	var resp MessageResponse
	path := "/api/campaigns/" + url.PathEscape(campaignID) + "/clean-opt-outs"
	if err := c.request(ctx, "clean_optouts", http.MethodPost, path, nil, nil, "", &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ListReplies gets one server-sliced page of replies. params carries the
// page, per_page and non-empty filter dimensions.
func (c *Client) ListReplies(ctx context.Context, params url.Values) (*RepliesResponse, error) {
	var resp RepliesResponse
	if err := c.request(ctx, "replies", http.MethodGet, "/api/replies", params, nil, "", &resp); err != nil {
		return nil, err
	}
	if resp.Replies == nil {
		resp.Replies = []Reply{}
	}
	return &resp, nil
}

// ReplyAnalytics gets reply aggregates, scoped to a campaign when campaignID
// is set
func (c *Client) ReplyAnalytics(ctx context.Context, campaignID string) (*AnalyticsSnapshot, error) {
	var query url.Values
	if campaignID != "" {
		query = url.Values{"campaign_id": {campaignID}}
	}
	var resp AnalyticsSnapshot
	if err := c.request(ctx, "reply_analytics", http.MethodGet, "/api/replies/analytics", query, nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
