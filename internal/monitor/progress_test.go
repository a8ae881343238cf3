package monitor

import (
	"testing"

	"github.com/foxzi/bulkdash/internal/backend"
)

func intPtr(v int) *int { return &v }

func TestTotal(t *testing.T) {
	tests := []struct {
		name string
		c    backend.Campaign
		want int
	}{
		{name: "messages win", c: backend.Campaign{TotalMessages: intPtr(200), TotalContacts: intPtr(50)}, want: 200},
		{name: "contacts fallback", c: backend.Campaign{TotalContacts: intPtr(50)}, want: 50},
		{name: "reported zero wins", c: backend.Campaign{TotalMessages: intPtr(0), TotalContacts: intPtr(50)}, want: 0},
		{name: "nothing reported", c: backend.Campaign{}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Total(tt.c); got != tt.want {
				t.Errorf("Total() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name  string
		total *int
		sent  int
		want  int
	}{
		{name: "zero total ignores sent", total: intPtr(0), sent: 10, want: 0},
		{name: "no total", total: nil, sent: 10, want: 0},
		{name: "three quarters", total: intPtr(200), sent: 150, want: 75},
		{name: "complete", total: intPtr(37), sent: 37, want: 100},
		{name: "rounds half up", total: intPtr(8), sent: 1, want: 13},
		{name: "rounds down", total: intPtr(3), sent: 1, want: 33},
		{name: "over-reported sent capped", total: intPtr(10), sent: 12, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := backend.Campaign{TotalMessages: tt.total, SentMessages: tt.sent}
			if got := ProgressPercent(c); got != tt.want {
				t.Errorf("ProgressPercent() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProgressPercentBounds(t *testing.T) {
	for total := 1; total <= 60; total++ {
		for sent := 0; sent <= total; sent++ {
			p := ProgressPercent(backend.Campaign{TotalMessages: intPtr(total), SentMessages: sent})
			if p < 0 || p > 100 {
				t.Fatalf("ProgressPercent(%d/%d) = %d out of range", sent, total, p)
			}
			if sent == total && p != 100 {
				t.Fatalf("ProgressPercent(%d/%d) = %d, want 100", sent, total, p)
			}
		}
	}
}

func TestStatusCategory(t *testing.T) {
	tests := []struct {
		status string
		want   Category
	}{
		{"running", CategoryRunning},
		{"completed", CategoryCompleted},
		{"failed", CategoryFailed},
		{"paused", CategoryPaused},
		{"Running", CategoryRunning},
		{"queued", CategoryDefault},
		{"", CategoryDefault},
	}
	for _, tt := range tests {
		if got := StatusCategory(tt.status); got != tt.want {
			t.Errorf("StatusCategory(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		status, want string
	}{
		{"running", "Running"},
		{"completed", "Completed"},
		{"", "Unknown"},
		{"on hold", "On Hold"},
	}
	for _, tt := range tests {
		if got := StatusLabel(tt.status); got != tt.want {
			t.Errorf("StatusLabel(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestNewRow(t *testing.T) {
	row := NewRow(backend.Campaign{
		ID:            "c1",
		Name:          "Spring",
		Status:        "running",
		TotalMessages: intPtr(200),
		SentMessages:  150,
	})
	if row.Percent != 75 {
		t.Errorf("Percent = %d, want 75", row.Percent)
	}
	if row.ProgressLabel != "150/200 messages sent" {
		t.Errorf("ProgressLabel = %q", row.ProgressLabel)
	}
	if row.Category != CategoryRunning || row.StatusLabel != "Running" {
		t.Errorf("status = %q %q", row.Category, row.StatusLabel)
	}
	if row.CreatedAt != "-" {
		t.Errorf("CreatedAt = %q, want - for zero time", row.CreatedAt)
	}
}
