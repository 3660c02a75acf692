package api

import (
	"net/http/httptest"
	"testing"
)

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		host    string
		allowed []string
		want    bool
	}{
		{name: "no origin header", origin: "", host: "localhost:8080", want: true},
		{name: "same host", origin: "http://localhost:8080", host: "localhost:8080", want: true},
		{name: "same host different port", origin: "http://localhost:3000", host: "localhost:8080", want: true},
		{name: "foreign host", origin: "http://evil.example", host: "localhost:8080", want: false},
		{name: "allowlist match", origin: "http://app.example", host: "localhost:8080", allowed: []string{"app.example"}, want: true},
		{name: "allowlist full origin", origin: "https://app.example", host: "localhost:8080", allowed: []string{"https://app.example"}, want: true},
		{name: "allowlist miss", origin: "http://other.example", host: "localhost:8080", allowed: []string{"app.example"}, want: false},
		{name: "wildcard", origin: "http://anywhere.example", host: "localhost:8080", allowed: []string{"*"}, want: true},
		{name: "malformed origin", origin: "://bad", host: "localhost:8080", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://"+tt.host+"/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := isOriginAllowed(r, tt.allowed); got != tt.want {
				t.Fatalf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

func TestHostOnly(t *testing.T) {
	tests := []struct {
		hostport string
		want     string
	}{
		{"localhost:8080", "localhost"},
		{"localhost", "localhost"},
		{"[::1]:8080", "::1"},
		{"[::1]", "::1"},
		{"192.168.1.5:3000", "192.168.1.5"},
	}
	for _, tt := range tests {
		if got := hostOnly(tt.hostport); got != tt.want {
			t.Fatalf("hostOnly(%q) = %q, want %q", tt.hostport, got, tt.want)
		}
	}
}
