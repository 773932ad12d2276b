package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientTimeoutApplied(t *testing.T) {
	timeout := 50 * time.Millisecond
	client := NewClient(timeout, 1)
	defer client.CloseIdleConnections()

	if client.Timeout != timeout {
		t.Fatalf("expected client timeout %s, got %s", timeout, client.Timeout)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(timeout * 3)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed < timeout {
		t.Fatalf("request returned too quickly: %s < %s", elapsed, timeout)
	}
	if got := StatusCode(err); got != "TIMEOUT" {
		t.Errorf("StatusCode(timeout) = %q, want TIMEOUT", got)
	}
}

func TestClientPoolSizedForVUs(t *testing.T) {
	tests := []struct {
		vus  int
		want int
	}{
		{vus: 1, want: 32},
		{vus: 300, want: 300},
	}
	for _, tt := range tests {
		client := NewClient(time.Second, tt.vus)
		transport, ok := client.Transport.(*http.Transport)
		if !ok {
			t.Fatalf("unexpected transport %T", client.Transport)
		}
		if transport.MaxIdleConnsPerHost != tt.want {
			t.Errorf("vus=%d MaxIdleConnsPerHost = %d, want %d", tt.vus, transport.MaxIdleConnsPerHost, tt.want)
		}
	}
}

func TestNegativeTimeoutDisablesLimit(t *testing.T) {
	if got := NewClient(-time.Second, 1).Timeout; got != 0 {
		t.Errorf("Timeout = %s, want 0", got)
	}
}

func TestParseHeaders(t *testing.T) {
	headers, err := ParseHeaders(map[string]string{
		"x-canary-team": "radix",
		"Accept":        "application/json",
		"X-Empty":       "",
	})
	if err != nil {
		t.Fatalf("ParseHeaders() error = %v", err)
	}
	if headers.Get("X-Canary-Team") != "radix" {
		t.Errorf("expected canonical X-Canary-Team header, got %v", headers)
	}
	if _, ok := headers["X-Empty"]; !ok {
		t.Errorf("empty header values should be allowed")
	}
}

func TestParseHeadersRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"empty key":        {" ": "v"},
		"newline in key":   {"X-Bad\nKey": "v"},
		"colon in key":     {"X-Bad:": "v"},
		"newline in value": {"X-Ok": "a\r\nInjected: yes"},
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseHeaders(raw); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
