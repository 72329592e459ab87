package crawler

import (
	"context"
	"errors"
	"net"
	"net/url"
)

var (
	// ErrCircuitOpen is returned when a domain's circuit breaker is open
	// and requests to it are short-circuited without a network call.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrRateLimitTimeout is returned when a rate-limit slot could not be
	// acquired within the configured wait ceiling.
	ErrRateLimitTimeout = errors.New("rate limiter wait ceiling exceeded")
	// ErrInvalidSeedURL is returned when the seed URL cannot be normalized.
	ErrInvalidSeedURL = errors.New("invalid seed URL")
)

// ErrorKind classifies a fetch failure for retry decisions.
type ErrorKind int

const (
	// KindNone marks a successful attempt.
	KindNone ErrorKind = iota
	// KindTransient covers connection resets, DNS failures and other
	// network-level errors that may succeed on retry.
	KindTransient
	// KindTimeout covers per-attempt deadline expiry.
	KindTimeout
	// KindHTTPServer covers HTTP 5xx responses.
	KindHTTPServer
	// KindThrottled covers HTTP 429 responses.
	KindThrottled
	// KindHTTPClient covers HTTP 4xx responses other than 429.
	KindHTTPClient
	// KindRateLimited covers tasks that exhausted the rate limiter's
	// wait ceiling. Handled by a single requeue, not by the retry loop.
	KindRateLimited
	// KindMalformedURL covers unparseable request URLs.
	KindMalformedURL
	// KindCircuitOpen covers requests rejected by an open breaker.
	KindCircuitOpen
)

// String returns the stable name used in logs and the visited table.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient_network"
	case KindTimeout:
		return "timeout"
	case KindHTTPServer:
		return "http_server_error"
	case KindThrottled:
		return "throttled"
	case KindHTTPClient:
		return "http_client_error"
	case KindRateLimited:
		return "rate_limit_timeout"
	case KindMalformedURL:
		return "malformed_url"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind is worth another
// attempt. Client errors and malformed URLs never recover on retry.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransient, KindTimeout, KindHTTPServer, KindThrottled:
		return true
	default:
		return false
	}
}

// classifyStatus maps an HTTP status code to an error kind. Codes below
// 400 classify as KindNone.
func classifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == 429:
		return KindThrottled
	case statusCode >= 500:
		return KindHTTPServer
	case statusCode >= 400:
		return KindHTTPClient
	default:
		return KindNone
	}
}

// classifyErr maps a transport-level error to an error kind.
func classifyErr(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return classifyErr(urlErr.Err)
	}
	return KindTransient
}
