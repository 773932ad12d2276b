package httpclient

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// NewClient returns a client tuned for hammering a single canary host from
// many VUs. idlePerHost should be at least the VU count so keep-alive
// connections are reused instead of re-dialled every iteration.
func NewClient(timeout time.Duration, idlePerHost int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if idlePerHost < 32 {
		idlePerHost = 32
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          idlePerHost * 2,
		MaxIdleConnsPerHost:   idlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// ParseHeaders validates and canonicalizes static request headers.
func ParseHeaders(raw map[string]string) (http.Header, error) {
	headers := http.Header{}
	for key, value := range raw {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(trimmedKey, "\r\n: ") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}
	return headers, nil
}
