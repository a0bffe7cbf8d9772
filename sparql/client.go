// Package sparql provides a client for the SPARQL 1.1 query protocol.
// It supports the read-only query forms the pipeline executes: SELECT and
// ASK over JSON results, CONSTRUCT and DESCRIBE over Turtle.
package sparql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseSize limits the store response body to prevent memory exhaustion.
const maxResponseSize = 32 * 1024 * 1024 // 32MB

// Result media types per the SPARQL 1.1 protocol.
const (
	acceptResultsJSON = "application/sparql-results+json"
	acceptTurtle      = "text/turtle"
)

// ErrUnavailable indicates the store could not be reached at all.
// Schema profiling degrades gracefully on this error; execution records it
// per candidate.
var ErrUnavailable = errors.New("sparql: store unavailable")

// StoreError is an error response from the store engine itself, such as a
// query the engine refused to parse.
type StoreError struct {
	Status  int
	Message string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("sparql: store error (status %d): %s", e.Status, e.Message)
}

// Client speaks the SPARQL 1.1 query protocol against one endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the default per-query timeout, used when the caller's
// context carries no deadline of its own.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a client for the given SPARQL query endpoint.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			// The protocol-level cap; per-query deadlines come from ctx.
			Timeout: 5 * time.Minute,
		},
		timeout: 20 * time.Second,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the configured endpoint URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Query runs a SELECT or ASK query and decodes the JSON results.
func (c *Client) Query(ctx context.Context, query string) (*Results, error) {
	body, err := c.do(ctx, query, acceptResultsJSON)
	if err != nil {
		return nil, err
	}
	return parseResults(body)
}

// Construct runs a CONSTRUCT or DESCRIBE query and returns the Turtle
// serialization produced by the store.
func (c *Client) Construct(ctx context.Context, query string) (string, error) {
	body, err := c.do(ctx, query, acceptTurtle)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// do submits one query over the protocol and returns the raw response body.
func (c *Client) do(ctx context.Context, query, accept string) ([]byte, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	form := url.Values{}
	form.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", accept)

	c.logger.Debug("Sending SPARQL query",
		"endpoint", c.baseURL,
		"accept", accept,
		"query_chars", len(query))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Preserve context errors so callers can distinguish a timeout
		// from an unreachable store.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		return nil, &StoreError{Status: resp.StatusCode, Message: msg}
	}

	return body, nil
}
