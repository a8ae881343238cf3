package compliance

import (
	"regexp"
	"strings"
)

// Marker is the phrase whose presence (case-insensitive, anywhere in the
// template) satisfies the opt-out disclosure requirement.
const Marker = "reply stop to opt out"

// DefaultBrand is used when no brand is configured.
const DefaultBrand = "Bulkdash"

// Policy enforces the opt-out footer on outgoing message templates
type Policy struct {
	Brand string
}

// NewPolicy creates a policy for the given brand
func NewPolicy(brand string) *Policy {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		brand = DefaultBrand
	}
	return &Policy{Brand: brand}
}

var defaultPolicy = NewPolicy(DefaultBrand)

// Footer returns the canonical disclosure sentence
func (p *Policy) Footer() string {
	return "Reply STOP to opt out | " + p.Brand
}

// Enforce appends the footer, separated by a blank line, unless the
// template already carries the marker. Applying it twice is a no-op.
func (p *Policy) Enforce(template string) string {
	if HasFooter(template) {
		return template
	}
	return template + "\n\n" + p.Footer()
}

// Enforce applies the default policy
func Enforce(template string) string {
	return defaultPolicy.Enforce(template)
}

// HasFooter reports whether template contains the opt-out marker
func HasFooter(template string) bool {
	return strings.Contains(strings.ToLower(template), Marker)
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Placeholders returns the {field} tokens of a template in first-seen order
func Placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool, len(matches))
	fields := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		fields = append(fields, name)
	}
	return fields
}
