// Package webhook delivers action payloads to HTTP endpoints and digests
// them for the delivery journal.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single delivery so a hung endpoint cannot stall
	// a recipe indefinitely.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "tablehook/1"

	// HeaderRecipe carries the recipe name.
	HeaderRecipe = "X-Tablehook-Recipe"

	// HeaderDelivery carries the delivery id, unique per dispatch.
	HeaderDelivery = "X-Tablehook-Delivery"

	// HeaderRecord carries the id of the record that triggered the delivery.
	HeaderRecord = "X-Tablehook-Record"

	maxResponseBytes = 10 * 1024 * 1024
	maxErrorBody     = 512
)

// Request is one delivery.
type Request struct {
	URL        string
	Recipe     string
	DeliveryID string
	RecordID   string
	Payload    any
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook returned %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status from err, or 0 when err is not a
// StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Sender posts JSON payloads. Safe for concurrent use.
type Sender struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// Option configures a Sender.
type Option func(*Sender)

// WithHTTPClient sets the client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		s.client = c
	}
}

// WithTimeout bounds each delivery. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Sender) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// NewSender creates a Sender.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client:    http.DefaultClient,
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch POSTs req.Payload as JSON to req.URL and returns the decoded
// response: nil for an empty body, the decoded value for JSON, or the raw
// body as a string otherwise. Transport failures and non-2xx responses are
// errors; nothing is retried.
func (s *Sender) Dispatch(ctx context.Context, req Request) (any, error) {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("webhook: encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webhook: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", s.userAgent)
	if req.Recipe != "" {
		httpReq.Header.Set(HeaderRecipe, req.Recipe)
	}
	if req.DeliveryID != "" {
		httpReq.Header.Set(HeaderDelivery, req.DeliveryID)
	}
	if req.RecordID != "" {
		httpReq.Header.Set(HeaderRecord, req.RecordID)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("webhook: http: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("webhook: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(bytes.TrimSpace(respBody)), maxErrorBody)}
	}

	return decodeResponse(respBody), nil
}

func decodeResponse(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(body)
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
