// Package client is a typed HTTP client for the rapport API. The CLI client
// commands and the fixture seeder share it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/rapport/api"
	"github.com/papercomputeco/rapport/pkg/social"
)

// completions behind chat and explanations can be slow
const defaultTimeout = 5 * time.Minute

// Client calls one rapport API server.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New returns a Client for the API at target, e.g. http://localhost:8081.
func New(target string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(target, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API target URL %q: scheme and host are required", target)
	}

	c := &Client{
		base: u,
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Target returns the API base URL.
func (c *Client) Target() string {
	return c.base.String()
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status int
	api.ErrorResponse
}

func (e *APIError) Error() string {
	msg := e.ErrorResponse.Error
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Fields) == 0 {
		return fmt.Sprintf("API returned %d: %s", e.Status, msg)
	}

	fields := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		fields = append(fields, k+": "+v)
	}
	return fmt.Sprintf("API returned %d: %s (%s)", e.Status, msg, strings.Join(fields, ", "))
}

// Unwrap maps the status back onto the social error kinds so callers can use
// errors.Is the same way they would against the services directly.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return social.ErrValidation
	case http.StatusNotFound:
		return social.ErrNotFound
	case http.StatusBadGateway:
		return social.ErrDerivationFailed
	case http.StatusServiceUnavailable:
		return social.ErrStorageUnavailable
	default:
		return nil
	}
}

// Retryable reports whether err is an API error the server marked retryable.
func Retryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to rapport API at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, &apiErr.ErrorResponse); jsonErr != nil {
			apiErr.ErrorResponse.Error = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func userPath(userID string, rest ...string) string {
	parts := append([]string{"/users", url.PathEscape(userID)}, rest...)
	return strings.Join(parts, "/")
}
