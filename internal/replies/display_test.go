package replies

import (
	"testing"

	"github.com/foxzi/bulkdash/internal/backend"
)

func score(v float64) *float64 {
	return &v
}

func TestSentiment(t *testing.T) {
	tests := []struct {
		value string
		emoji string
		tone  string
		label string
	}{
		{"interested", "😊", ToneSuccess, "Interested"},
		{"positive_feedback", "🌟", TonePositive, "Positive Feedback"},
		{"complaint", "😞", ToneDanger, "Complaints"},
		{"question", "❓", ToneInfo, "Questions"},
		{"desired_opt_out", "🚫", ToneCritical, "Opt-out Requests"},
		{"urgent", "🚨", ToneWarning, "Urgent"},
		{"neutral", "😐", ToneMuted, "Neutral"},
		{"sarcastic_praise", "😐", ToneMuted, "sarcastic praise"},
		{"", "😐", ToneMuted, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got := Sentiment(tt.value)
			if got.Emoji != tt.emoji || got.Tone != tt.tone || got.Label != tt.label {
				t.Errorf("Sentiment(%q) = %+v", tt.value, got)
			}
		})
	}
}

func TestValidSentiment(t *testing.T) {
	if !ValidSentiment("urgent") {
		t.Error("urgent should be a valid filter")
	}
	if ValidSentiment("unknown") || ValidSentiment("") {
		t.Error("unknown sentiments must not be valid filters")
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name    string
		score   *float64
		level   string
		percent int
		ok      bool
	}{
		{"absent", nil, "", 0, false},
		{"high", score(0.92), ConfidenceHigh, 92, true},
		{"boundary high", score(0.8), ConfidenceMedium, 80, true},
		{"medium", score(0.7), ConfidenceMedium, 70, true},
		{"boundary medium", score(0.6), ConfidenceLow, 60, true},
		{"zero", score(0), ConfidenceLow, 0, true},
		{"rounding", score(0.875), ConfidenceHigh, 88, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, pct, ok := Confidence(tt.score)
			if level != tt.level || pct != tt.percent || ok != tt.ok {
				t.Errorf("Confidence() = %q, %d, %v; want %q, %d, %v", level, pct, ok, tt.level, tt.percent, tt.ok)
			}
		})
	}
}

func TestBadgesAdditive(t *testing.T) {
	r := backend.Reply{RequiresAttention: true, IsOptOut: true, ConfidenceScore: score(0.95)}
	badges := Badges(r)
	if len(badges) != 3 {
		t.Fatalf("got %d badges, want 3: %+v", len(badges), badges)
	}
	want := []string{"⚠️ Needs Attention", "🚫 Opt-out", "🎯 95%"}
	for i, b := range badges {
		if b.Text != want[i] {
			t.Errorf("badge %d = %q, want %q", i, b.Text, want[i])
		}
	}

	if got := Badges(backend.Reply{}); len(got) != 0 {
		t.Errorf("plain reply badges = %+v", got)
	}
	if got := Badges(backend.Reply{IsOptOut: true}); len(got) != 1 || got[0].Tone != ToneDanger {
		t.Errorf("opt-out only badges = %+v", got)
	}
}

func TestMediaOf(t *testing.T) {
	if _, ok := MediaOf(backend.Reply{MediaType: "image/png"}); ok {
		t.Error("media without URL should be absent")
	}

	m, ok := MediaOf(backend.Reply{MediaURL: "https://cdn/x.jpg", MediaType: "image/jpeg"})
	if !ok || !m.Image {
		t.Errorf("image media = %+v, %v", m, ok)
	}

	m, ok = MediaOf(backend.Reply{MediaURL: "https://cdn/x.pdf", MediaType: "application/pdf"})
	if !ok || m.Image || m.Label != "📎 View Media (application/pdf)" {
		t.Errorf("document media = %+v, %v", m, ok)
	}
}

func TestNewRow(t *testing.T) {
	row := NewRow(backend.Reply{
		ID:                7,
		PhoneNumber:       "254712345678",
		MessageContent:    "STOP",
		Sentiment:         "desired_opt_out",
		RequiresAttention: true,
		CampaignName:      "Promo",
	})
	if row.Sender != "254712345678" {
		t.Errorf("Sender = %q, want phone fallback", row.Sender)
	}
	if !row.Highlight || row.Sentiment.Emoji != "🚫" || row.Media != nil {
		t.Errorf("row = %+v", row)
	}
	if row.ReceivedAt != "-" {
		t.Errorf("ReceivedAt = %q", row.ReceivedAt)
	}
}

func TestBreakdown(t *testing.T) {
	got := Breakdown(map[string]int{
		"neutral":    4,
		"interested": 2,
		"zzz":        1,
		"aaa":        3,
	})
	order := []string{"interested", "neutral", "aaa", "zzz"}
	if len(got) != len(order) {
		t.Fatalf("len = %d", len(got))
	}
	for i, v := range order {
		if got[i].Style.Value != v {
			t.Errorf("position %d = %q, want %q", i, got[i].Style.Value, v)
		}
	}
}
