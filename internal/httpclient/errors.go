package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// HTTPError is returned for responses with status >= 400.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus lets the metrics package classify the error without importing
// httpclient.
func (e *HTTPError) HTTPStatus() int { return e.StatusCode }

// StatusCode returns the status bucket for a failed request: the HTTP status
// for HTTPError, otherwise a short transport classification.
func StatusCode(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode > 0 {
		return strconv.Itoa(httpErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}
	if errors.Is(err, context.Canceled) {
		return "CANCELED"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "TIMEOUT"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "DNS_ERROR"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return sanitizeStatusCode(opErr.Op + "_error")
	}
	return fallbackStatusCode(err)
}

func sanitizeStatusCode(status string) string {
	trimmed := strings.TrimSpace(status)
	if trimmed == "" {
		return "UNKNOWN"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", ".", "_", "-", "_")
	normalized := replacer.Replace(trimmed)
	normalized = strings.ToUpper(normalized)
	normalized = strings.Trim(normalized, "_")
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

func fallbackStatusCode(err error) string {
	typeName := fmt.Sprintf("%T", err)
	typeName = strings.TrimPrefix(typeName, "*")
	if idx := strings.LastIndex(typeName, "/"); idx != -1 {
		typeName = typeName[idx+1:]
	}
	if idx := strings.LastIndex(typeName, "."); idx != -1 {
		typeName = typeName[idx+1:]
	}
	return sanitizeStatusCode(typeName)
}
