package compliance

import (
	"reflect"
	"testing"
)

func TestEnforce(t *testing.T) {
	footer := NewPolicy(DefaultBrand).Footer()

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "appends footer",
			template: "hi",
			want:     "hi\n\n" + footer,
		},
		{
			name:     "marker upper case in the middle",
			template: "hi REPLY STOP TO OPT OUT now",
			want:     "hi REPLY STOP TO OPT OUT now",
		},
		{
			name:     "marker mixed case at the end",
			template: "Hello {name}\n\nReply Stop to Opt Out | Acme",
			want:     "Hello {name}\n\nReply Stop to Opt Out | Acme",
		},
		{
			name:     "empty template",
			template: "",
			want:     "\n\n" + footer,
		},
		{
			name:     "partial marker is not enough",
			template: "reply stop",
			want:     "reply stop\n\n" + footer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Enforce(tt.template)
			if got != tt.want {
				t.Errorf("Enforce(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestEnforceIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"hi",
		"Hi {name}, new stock is in!",
		"reply stop to opt out",
		"multi\nline\n\ntemplate",
	}

	p := NewPolicy("Acme Lingerie")
	for _, in := range inputs {
		once := p.Enforce(in)
		twice := p.Enforce(once)
		if once != twice {
			t.Errorf("Enforce not idempotent for %q: %q != %q", in, once, twice)
		}
		if !HasFooter(once) {
			t.Errorf("Enforce(%q) result lacks marker", in)
		}
	}
}

func TestNewPolicyBrand(t *testing.T) {
	if got := NewPolicy("  ").Brand; got != DefaultBrand {
		t.Errorf("Brand = %q, want %q", got, DefaultBrand)
	}
	if got := NewPolicy("Acme").Footer(); got != "Reply STOP to opt out | Acme" {
		t.Errorf("Footer() = %q", got)
	}
}

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		template string
		want     []string
	}{
		{"Hi {name}!", []string{"name"}},
		{"{name} bought {last_product}, thanks {name}", []string{"name", "last_product"}},
		{"no tokens", []string{}},
		{"{ spaced } and {}", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			got := Placeholders(tt.template)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Placeholders(%q) = %v, want %v", tt.template, got, tt.want)
			}
		})
	}
}
