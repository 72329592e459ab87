package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// maxBodyBytes caps how much of a response body is read. Pages larger
// than this are truncated rather than failed.
const maxBodyBytes = 10 << 20

// HTTPClient performs single-page GET requests with basic timing
// metrics. It is shared by all workers; the underlying transport pools
// connections per host.
type HTTPClient struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
}

// HTTPResponse is one fetched page plus request timings.
type HTTPResponse struct {
	StatusCode  int
	Body        []byte
	ContentType string
	FinalURL    string // after redirects
	TTFB        time.Duration
	Elapsed     time.Duration
}

// NewHTTPClient creates a client with the given User-Agent and
// per-request timeout. Custom headers are applied to every request.
func NewHTTPClient(userAgent string, timeout time.Duration, headers map[string]string) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &HTTPClient{
		client:    client,
		userAgent: userAgent,
		headers:   headers,
	}
}

// Get fetches a single URL. Transport errors return a nil response;
// HTTP error statuses return a response and nil error, so the caller
// classifies by status code.
func (h *HTTPClient) Get(ctx context.Context, url string) (*HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for name, value := range h.headers {
		req.Header.Set(name, value)
	}

	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = time.Now()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var ttfb time.Duration
	if !firstByte.IsZero() {
		ttfb = firstByte.Sub(start)
	}

	return &HTTPResponse{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
		TTFB:        ttfb,
		Elapsed:     time.Since(start),
	}, nil
}

// Close releases idle connections.
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}
