// Package airtable reads every record of one Airtable table through the
// REST API, following pagination and honouring the per-base rate limit.
package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/tablehook/internal/record"
)

const (
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.airtable.com"

	// DefaultLastModifiedField is the field holding the row's last
	// modification time.
	DefaultLastModifiedField = "Last Modified"

	// DefaultRateLimit is Airtable's documented per-base limit.
	DefaultRateLimit = 5

	// DefaultTimeout bounds one page request.
	DefaultTimeout = 30 * time.Second

	maxPageBytes = 10 << 20
	maxErrorBody = 512
)

// epoch is the last-modified time of records with no usable timestamp.
var epoch = time.Unix(0, 0).UTC()

// APIError reports a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("airtable returned %d", e.StatusCode)
	}
	return fmt.Sprintf("airtable returned %d: %s", e.StatusCode, e.Body)
}

// IsAPIError returns true if the error is an APIError.
// Uses errors.As to handle wrapped errors.
func IsAPIError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}

// Client fetches the records of one table. It implements record.Source and
// is safe for concurrent use.
type Client struct {
	baseURL           string
	baseKey           string
	table             string
	apiKey            string
	lastModifiedField string
	http              *http.Client
	limiter           *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithLimiter replaces the page rate limiter. Clients polling the same base
// should share one limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithLastModifiedField sets the field LastModified is read from.
//
// Default: "Last Modified"
func WithLastModifiedField(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.lastModifiedField = name
		}
	}
}

// NewLimiter returns a limiter allowing perSecond page requests with the
// given burst. A burst below 1 is coerced to 1.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// NewClient creates a client for one table.
func NewClient(baseKey, table, apiKey string, opts ...Option) (*Client, error) {
	if baseKey == "" || table == "" {
		return nil, errors.New("airtable: base key and table name are required")
	}
	if apiKey == "" {
		return nil, errors.New("airtable: api key is required")
	}
	c := &Client{
		baseURL:           DefaultBaseURL,
		baseKey:           baseKey,
		table:             table,
		apiKey:            apiKey,
		lastModifiedField: DefaultLastModifiedField,
		http:              &http.Client{Timeout: DefaultTimeout},
		limiter:           NewLimiter(DefaultRateLimit, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type listResponse struct {
	Records []wireRecord `json:"records"`
	Offset  string       `json:"offset"`
}

type wireRecord struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

// FetchAll returns every record of the table, following the offset cursor
// until the last page.
func (c *Client) FetchAll(ctx context.Context) ([]record.Record, error) {
	var (
		out    []record.Record
		offset string
	)
	for {
		page, err := c.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		for _, w := range page.Records {
			out = append(out, c.toRecord(w))
		}
		if page.Offset == "" {
			return out, nil
		}
		offset = page.Offset
	}
}

func (c *Client) fetchPage(ctx context.Context, offset string) (*listResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("airtable: rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(offset), nil)
	if err != nil {
		return nil, fmt.Errorf("airtable: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("airtable: do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("airtable: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: msg}
	}

	var page listResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("airtable: decode page: %w", err)
	}
	return &page, nil
}

func (c *Client) pageURL(offset string) string {
	u := fmt.Sprintf("%s/v0/%s/%s", c.baseURL, url.PathEscape(c.baseKey), url.PathEscape(c.table))
	if offset == "" {
		return u
	}
	return u + "?" + url.Values{"offset": {offset}}.Encode()
}

func (c *Client) toRecord(w wireRecord) record.Record {
	rec := record.Record{ID: w.ID, Fields: w.Fields, LastModified: epoch}
	if raw, ok := rec.Field(c.lastModifiedField); ok {
		if s, ok := raw.(string); ok {
			if t, err := record.ParseTimestamp(s); err == nil {
				rec.LastModified = t
			}
		}
	}
	return rec
}
