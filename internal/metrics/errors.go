package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"unicode"
)

// Error kinds reported for failed probe requests.
const (
	ErrKindHTTP       = "HTTP error response"
	ErrKindTimeout    = "Timeout"
	ErrKindCanceled   = "Canceled"
	ErrKindDNS        = "DNS lookup failed"
	ErrKindRefused    = "Connection refused"
	ErrKindReset      = "Connection reset"
	ErrKindTLS        = "TLS error"
	ErrKindNetwork    = "Network error"
	ErrKindRequestURL = "Request URL error"
	ErrKindUnknown    = "Unknown error"
)

type httpStatusError interface {
	HTTPStatus() int
}

// FriendlyErrorName classifies a failed request into the kind shown in the
// error breakdown of reports and the dashboard. The most specific cause wins:
// a DNS failure wrapped in *url.Error is reported as a DNS failure.
func FriendlyErrorName(err error) string {
	if err == nil {
		return ErrKindUnknown
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		return ErrKindHTTP
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCanceled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrKindDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrKindRefused
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return ErrKindReset
	}
	if isTLSError(err) {
		return ErrKindTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrKindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrKindNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrKindRequestURL
	}
	return typeLabel(err)
}

func isTLSError(err error) bool {
	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

// typeLabel turns an unrecognised error type such as *pkg.brokenPipeError
// into "Broken Pipe Error (pkg)".
func typeLabel(err error) string {
	name := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	pkg := ""
	if idx := strings.Index(name, "."); idx != -1 {
		pkg, name = name[:idx], name[idx+1:]
	}
	pretty := humanizeTypeName(name)
	if pretty == "" {
		return ErrKindUnknown
	}
	if pkg != "" && pkg != "main" {
		return fmt.Sprintf("%s (%s)", pretty, pkg)
	}
	return pretty
}

func humanizeTypeName(name string) string {
	if name == "" {
		return ""
	}

	var words []string
	var current []rune
	runes := []rune(name)

	appendWord := func() {
		if len(current) == 0 {
			return
		}
		word := string(current)
		if isAllUpper(word) {
			words = append(words, word)
		} else {
			words = append(words, capitalize(word))
		}
		current = current[:0]
	}

	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsUpper(r) && (unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower)) {
				appendWord()
			} else if unicode.IsDigit(r) && !unicode.IsDigit(prev) {
				appendWord()
			}
		}
		current = append(current, r)
	}
	appendWord()

	return strings.Join(words, " ")
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	runes := []rune(lower)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
