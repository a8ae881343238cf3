package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrorResponse is the backend error body
type ErrorResponse struct {
	Error string `json:"error"`
}

// Timestamp accepts the formats the backend emits: RFC3339, naive ISO with
// fractional seconds, and "2006-01-02 15:04:05". Naive values are UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses a backend timestamp string
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// String renders the timestamp the way the dashboard shows it
func (t Timestamp) String() string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

// Campaign is one campaign snapshot. Counters are pointers because the
// backend may omit any of them.
type Campaign struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Status            string    `json:"status"`
	TotalContacts     *int      `json:"total_contacts,omitempty"`
	TotalMessages     *int      `json:"total_messages,omitempty"`
	SentMessages      int       `json:"sent_messages"`
	DeliveredMessages int       `json:"delivered_messages"`
	FailedMessages    int       `json:"failed_messages"`
	CreatedAt         Timestamp `json:"created_at"`
}

// CampaignsResponse is returned by GET /api/campaigns. The backend reports
// some failures as 200 with an empty list and an error string.
type CampaignsResponse struct {
	Campaigns []Campaign `json:"campaigns"`
	Error     string     `json:"error,omitempty"`
}

// CampaignStatusResponse is returned by GET /api/campaign-status/{id}
type CampaignStatusResponse struct {
	Campaign Campaign       `json:"campaign"`
	Stats    map[string]int `json:"stats"`
}

// StartCampaignRequest holds the multipart fields of POST /api/start-campaign
type StartCampaignRequest struct {
	FileName        string
	File            []byte
	MessageTemplate string
	CampaignName    string
	RateLimit       int
	APIKey          string
}

// StartCampaignResponse is the success body of a campaign start
type StartCampaignResponse struct {
	CampaignID    string `json:"campaign_id"`
	Message       string `json:"message,omitempty"`
	TotalContacts int    `json:"total_contacts,omitempty"`
}

// Reply is an inbound message classified by the backend
type Reply struct {
	ID                int       `json:"id"`
	PhoneNumber       string    `json:"phone_number"`
	SenderName        string    `json:"sender_name"`
	MessageContent    string    `json:"message_content"`
	ReceivedAt        Timestamp `json:"received_at"`
	CampaignID        string    `json:"campaign_id"`
	CampaignName      string    `json:"campaign_name"`
	MediaURL          string    `json:"media_url"`
	MediaType         string    `json:"media_type"`
	Sentiment         string    `json:"sentiment"`
	IsOptOut          bool      `json:"is_opt_out"`
	RequiresAttention bool      `json:"requires_attention"`
	ConfidenceScore   *float64  `json:"confidence_score,omitempty"`
}

// RepliesResponse is one server-sliced page of replies
type RepliesResponse struct {
	Replies    []Reply `json:"replies"`
	TotalCount int     `json:"total_count"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	TotalPages int     `json:"total_pages"`
}

// CampaignOptOutRate is one row of the per-campaign opt-out table
type CampaignOptOutRate struct {
	Campaign      string  `json:"campaign"`
	CampaignID    string  `json:"campaign_id,omitempty"`
	OptOuts       int     `json:"opt_outs"`
	TotalContacts int     `json:"total_contacts"`
	OptOutRate    float64 `json:"opt_out_rate"`
}

// AnalyticsSnapshot holds the server-computed aggregates. Opt-out and reply
// analytics share this shape; fields absent from a payload stay zero.
type AnalyticsSnapshot struct {
	TotalOptOuts         int                  `json:"total_opt_outs"`
	RecentOptOuts24h     int                  `json:"recent_opt_outs_24h"`
	PendingConfirmations int                  `json:"pending_confirmations"`
	ReplyRate            float64              `json:"reply_rate"`
	SentimentBreakdown   map[string]int       `json:"sentiment_breakdown,omitempty"`
	RecentReplies24h     int                  `json:"recent_replies_24h"`
	CampaignOptOutRates  []CampaignOptOutRate `json:"campaign_opt_out_rates,omitempty"`
}

// OptOutQueueItem is one scheduled opt-out confirmation
type OptOutQueueItem struct {
	ID            int        `json:"id"`
	PhoneNumber   string     `json:"phone_number"`
	SenderName    string     `json:"sender_name"`
	Status        string     `json:"status"`
	Sent          bool       `json:"sent"`
	ScheduledTime Timestamp  `json:"scheduled_time"`
	SentAt        *Timestamp `json:"sent_at,omitempty"`
	CreatedAt     Timestamp  `json:"created_at"`
}

// OptOutQueueResponse is returned by GET /api/opt-out/queue
type OptOutQueueResponse struct {
	Queue []OptOutQueueItem `json:"queue"`
}

// TemplatesResponse is returned by GET /api/templates/compliant
type TemplatesResponse struct {
	Templates string `json:"templates"`
}

// SendPendingResponse reports a bulk confirmation run
type SendPendingResponse struct {
	SentCount          int      `json:"sent_count"`
	TotalConfirmations int      `json:"total_confirmations"`
	Errors             []string `json:"errors,omitempty"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}
