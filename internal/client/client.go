// Package client wraps the ticketing backend's REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"tixie.local/checkin/common"
)

const defaultTimeout = 10 * time.Second

// Credentials supplies the bearer token and is told when the backend rejects it.
// *session.Session satisfies it.
type Credentials interface {
	oauth2.TokenSource
	Invalidate()
}

// Client calls the backend. It is safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials Credentials
	locale      string
	breaker     *common.CircuitBreaker
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithCredentials attaches the session whose token authenticates requests.
func WithCredentials(creds Credentials) Option {
	return func(c *Client) {
		c.credentials = creds
	}
}

// WithLocale sets the Accept-Language header value.
func WithLocale(locale string) Option {
	return func(c *Client) {
		if locale != "" {
			c.locale = locale
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *common.CircuitBreaker) Option {
	return func(c *Client) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a Client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		locale:     "en",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		settings := common.DefaultSettings("ticketing-backend")
		settings.IsSuccessful = countsAsSuccess
		c.breaker = common.NewCircuitBreaker(settings)
	}
	return c
}

// countsAsSuccess keeps client-side rejections (4xx) from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Temporary()
	}
	return errors.Is(err, context.Canceled)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Language", c.locale)
		if c.credentials != nil {
			if tok, err := c.credentials.Token(); err == nil {
				tok.SetAuthHeader(req)
			}
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Debug("backend request failed", "method", method, "path", path, "error", err)
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		c.logger.Debug("backend request",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := newAPIError(resp)
			if apiErr.StatusCode == http.StatusUnauthorized && c.credentials != nil {
				c.credentials.Invalidate()
			}
			return apiErr
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
		return nil
	})
}

func escape(id string) string {
	return url.PathEscape(id)
}
