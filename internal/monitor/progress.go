// Package monitor derives campaign progress figures and runs the polled
// campaign list view.
package monitor

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/foxzi/bulkdash/internal/backend"
)

// Category is the display class of a campaign status
type Category string

const (
	CategoryRunning   Category = "running"
	CategoryCompleted Category = "completed"
	CategoryFailed    Category = "failed"
	CategoryPaused    Category = "paused"
	CategoryDefault   Category = "default"
)

// Total is the campaign size: total_messages when reported, otherwise
// total_contacts, otherwise 0. A reported zero still wins.
func Total(c backend.Campaign) int {
	switch {
	case c.TotalMessages != nil:
		return *c.TotalMessages
	case c.TotalContacts != nil:
		return *c.TotalContacts
	default:
		return 0
	}
}

// ProgressPercent returns round(sent/total*100) in [0, 100], 0 for an
// empty campaign
func ProgressPercent(c backend.Campaign) int {
	total := Total(c)
	if total <= 0 || c.SentMessages <= 0 {
		return 0
	}
	p := int(math.Round(float64(c.SentMessages) / float64(total) * 100))
	return min(p, 100)
}

// StatusCategory maps a raw status to its display class. Unknown values
// fall back to CategoryDefault.
func StatusCategory(status string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(status))) {
	case CategoryRunning:
		return CategoryRunning
	case CategoryCompleted:
		return CategoryCompleted
	case CategoryFailed:
		return CategoryFailed
	case CategoryPaused:
		return CategoryPaused
	default:
		return CategoryDefault
	}
}

// StatusLabel renders a status for display
func StatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "Unknown"
	}
	// a Caser keeps state, so one per call
	return cases.Title(language.English).String(status)
}

// Row is one rendered campaign line
type Row struct {
	ID            string
	Name          string
	Status        string
	StatusLabel   string
	Category      Category
	Total         int
	Sent          int
	Delivered     int
	Failed        int
	Percent       int
	ProgressLabel string
	CreatedAt     string
}

// NewRow derives the display row of a campaign snapshot
func NewRow(c backend.Campaign) Row {
	total := Total(c)
	return Row{
		ID:            c.ID,
		Name:          c.Name,
		Status:        c.Status,
		StatusLabel:   StatusLabel(c.Status),
		Category:      StatusCategory(c.Status),
		Total:         total,
		Sent:          c.SentMessages,
		Delivered:     c.DeliveredMessages,
		Failed:        c.FailedMessages,
		Percent:       ProgressPercent(c),
		ProgressLabel: fmt.Sprintf("%d/%d messages sent", c.SentMessages, total),
		CreatedAt:     c.CreatedAt.String(),
	}
}
