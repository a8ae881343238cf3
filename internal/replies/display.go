package replies

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/foxzi/bulkdash/internal/backend"
)

// Tones map onto the stylesheet badge classes
const (
	ToneSuccess  = "success"
	TonePositive = "positive"
	ToneDanger   = "danger"
	ToneInfo     = "info"
	ToneCritical = "critical"
	ToneWarning  = "warning"
	ToneMuted    = "muted"
)

// Sentiment values assigned by the backend classifier
const (
	SentimentInterested       = "interested"
	SentimentPositiveFeedback = "positive_feedback"
	SentimentComplaint        = "complaint"
	SentimentQuestion         = "question"
	SentimentOptOut           = "desired_opt_out"
	SentimentUrgent           = "urgent"
	SentimentNeutral          = "neutral"
)

// SentimentStyle is how one sentiment renders
type SentimentStyle struct {
	Value string
	Emoji string
	Label string
	Tone  string
}

// Sentiments lists the filterable sentiments in selector order
var Sentiments = []SentimentStyle{
	{Value: SentimentInterested, Emoji: "😊", Label: "Interested", Tone: ToneSuccess},
	{Value: SentimentPositiveFeedback, Emoji: "🌟", Label: "Positive Feedback", Tone: TonePositive},
	{Value: SentimentQuestion, Emoji: "❓", Label: "Questions", Tone: ToneInfo},
	{Value: SentimentComplaint, Emoji: "😞", Label: "Complaints", Tone: ToneDanger},
	{Value: SentimentOptOut, Emoji: "🚫", Label: "Opt-out Requests", Tone: ToneCritical},
	{Value: SentimentUrgent, Emoji: "🚨", Label: "Urgent", Tone: ToneWarning},
	{Value: SentimentNeutral, Emoji: "😐", Label: "Neutral", Tone: ToneMuted},
}

// Sentiment returns the style for a sentiment value. Anything outside the
// known set renders as neutral, labelled with the raw value.
func Sentiment(value string) SentimentStyle {
	for _, s := range Sentiments {
		if s.Value == value {
			return s
		}
	}
	label := strings.ReplaceAll(strings.TrimSpace(value), "_", " ")
	if label == "" {
		label = "Unknown"
	}
	return SentimentStyle{Value: value, Emoji: "😐", Label: label, Tone: ToneMuted}
}

// ValidSentiment reports whether value can be used as a filter
func ValidSentiment(value string) bool {
	for _, s := range Sentiments {
		if s.Value == value {
			return true
		}
	}
	return false
}

// Confidence levels
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Badge is a small labelled marker on a reply row
type Badge struct {
	Text string
	Tone string
}

// Confidence classifies a classifier score. ok is false when the backend
// reported no score.
func Confidence(score *float64) (level string, percent int, ok bool) {
	if score == nil {
		return "", 0, false
	}
	s := *score
	switch {
	case s > 0.8:
		level = ConfidenceHigh
	case s > 0.6:
		level = ConfidenceMedium
	default:
		level = ConfidenceLow
	}
	return level, int(math.Round(s * 100)), true
}

func confidenceTone(level string) string {
	switch level {
	case ConfidenceHigh:
		return ToneSuccess
	case ConfidenceMedium:
		return ToneWarning
	default:
		return ToneMuted
	}
}

// Badges returns the flags shown next to a reply. Attention and opt-out are
// independent and may both appear.
func Badges(r backend.Reply) []Badge {
	var out []Badge
	if r.RequiresAttention {
		out = append(out, Badge{Text: "⚠️ Needs Attention", Tone: ToneWarning})
	}
	if r.IsOptOut {
		out = append(out, Badge{Text: "🚫 Opt-out", Tone: ToneDanger})
	}
	if level, pct, ok := Confidence(r.ConfidenceScore); ok {
		out = append(out, Badge{Text: fmt.Sprintf("🎯 %d%%", pct), Tone: confidenceTone(level)})
	}
	return out
}

// Media describes an attachment
type Media struct {
	URL   string
	Type  string
	Image bool
	Label string
}

// MediaOf returns the attachment of a reply, if any. Images are shown
// inline, everything else as a link.
func MediaOf(r backend.Reply) (Media, bool) {
	if r.MediaURL == "" {
		return Media{}, false
	}
	m := Media{URL: r.MediaURL, Type: r.MediaType}
	if strings.HasPrefix(r.MediaType, "image/") {
		m.Image = true
		m.Label = "Media attachment"
	} else {
		m.Label = fmt.Sprintf("📎 View Media (%s)", r.MediaType)
	}
	return m, true
}

// Row is one rendered reply
type Row struct {
	ID         int
	Sender     string
	Phone      string
	Message    string
	ReceivedAt string
	Campaign   string
	Sentiment  SentimentStyle
	Badges     []Badge
	Media      *Media
	Highlight  bool
}

// NewRow derives the display fields of a reply
func NewRow(r backend.Reply) Row {
	sender := r.SenderName
	if sender == "" {
		sender = r.PhoneNumber
	}
	row := Row{
		ID:         r.ID,
		Sender:     sender,
		Phone:      r.PhoneNumber,
		Message:    r.MessageContent,
		ReceivedAt: r.ReceivedAt.String(),
		Campaign:   r.CampaignName,
		Sentiment:  Sentiment(r.Sentiment),
		Badges:     Badges(r),
		Highlight:  r.RequiresAttention,
	}
	if m, ok := MediaOf(r); ok {
		row.Media = &m
	}
	return row
}

// SentimentCount is one line of the sentiment breakdown
type SentimentCount struct {
	Style SentimentStyle
	Count int
}

// Breakdown orders the analytics sentiment counts the way the selector
// does; values outside the known set follow in name order.
func Breakdown(counts map[string]int) []SentimentCount {
	out := make([]SentimentCount, 0, len(counts))
	seen := make(map[string]bool, len(Sentiments))
	for _, s := range Sentiments {
		seen[s.Value] = true
		if n, ok := counts[s.Value]; ok {
			out = append(out, SentimentCount{Style: s, Count: n})
		}
	}
	var rest []string
	for k := range counts {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	for _, k := range rest {
		out = append(out, SentimentCount{Style: Sentiment(k), Count: counts[k]})
	}
	return out
}
