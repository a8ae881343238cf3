package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseAllowList(t *testing.T) {
	tests := []struct {
		name      string
		entries   []string
		wantCount int
	}{
		{name: "empty list", entries: nil, wantCount: 0},
		{name: "single IP", entries: []string{"192.168.1.1"}, wantCount: 1},
		{name: "CIDR notation", entries: []string{"192.168.0.0/16", "10.0.0.0/8"}, wantCount: 2},
		{name: "with invalid", entries: []string{"192.168.1.1", "invalid", "10.0.0.0/33"}, wantCount: 1},
		{name: "blank entries", entries: []string{" ", ""}, wantCount: 0},
		{name: "IPv6", entries: []string{"::1", "fe80::/10"}, wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAllowList(tt.entries, discardLogger())
			if len(got) != tt.wantCount {
				t.Errorf("expected %d prefixes, got %d", tt.wantCount, len(got))
			}
		})
	}
}

func TestIsAllowed(t *testing.T) {
	s := NewServer(New(), "", "", []string{"192.168.1.100", "10.0.0.0/8", "::1"}, discardLogger())

	tests := []struct {
		ip   string
		want bool
	}{
		{"192.168.1.100", true},
		{"192.168.1.101", false},
		{"10.20.30.40", true},
		{"::1", true},
		{"8.8.8.8", false},
	}
	for _, tt := range tests {
		if got := s.isAllowed(netip.MustParseAddr(tt.ip)); got != tt.want {
			t.Errorf("isAllowed(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote addr", remoteAddr: "1.2.3.4:5678", want: "1.2.3.4"},
		{name: "forwarded first hop", remoteAddr: "10.0.0.1:1", headers: map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"}, want: "5.6.7.8"},
		{name: "real ip", remoteAddr: "10.0.0.1:1", headers: map[string]string{"X-Real-IP": "9.9.9.9"}, want: "9.9.9.9"},
		{name: "no port", remoteAddr: "4.4.4.4", want: "4.4.4.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			got, ok := clientIP(req)
			if !ok || got.String() != tt.want {
				t.Errorf("clientIP() = %v, %v, want %s", got, ok, tt.want)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.UptimeSeconds.Set(12)
	s := NewServer(m, "", "", []string{"192.168.1.0/24"}, discardLogger())
	h := s.Handler()

	t.Run("allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.RemoteAddr = "192.168.1.7:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "bulkdash_uptime_seconds 12") {
			t.Error("uptime gauge missing from exposition")
		}
	})

	t.Run("denied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("health unfiltered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}
