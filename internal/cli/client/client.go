package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// TokenSource supplies the current credential, if any, for bearer authentication
type TokenSource interface {
	Read() (string, error)
}

// Client represents an HTTP client for the authentication API
type Client struct {
	baseURL     string
	profilePath string
	httpClient  *http.Client
	tokens      TokenSource
	cookies     CookieStore
	log         zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. A cookie jar is added when it has none.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenSource attaches the stored credential as a bearer token on every call
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithCookieStore persists the mirrored session cookie so later clients over
// the same store send it too
func WithCookieStore(store CookieStore) Option {
	return func(c *Client) {
		c.cookies = store
	}
}

// WithProfilePath overrides the profile resource path ("/profile" by default)
func WithProfilePath(path string) Option {
	return func(c *Client) {
		c.profilePath = path
	}
}

// WithLogger sets the logger used for request diagnostics
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a new API client rooted at apiBaseURL (backend origin + /api/v1)
func New(apiBaseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(apiBaseURL, "/"),
		profilePath: "/profile",
		httpClient:  &http.Client{},
		log:         zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Cookies are always included, matching a browser's credentials: 'include'
	if c.httpClient.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c.httpClient.Jar = jar
	}
	c.restoreSessionCookie()

	return c
}

// Call sends a JSON request and decodes a JSON response into out.
//
// body and out may be nil. An empty response body leaves out untouched.
// Every failure is returned as *Error: KindNetwork when no response arrived,
// KindHTTP for a non-2xx status (message taken from the body's message or
// details field, falling back to "Request failed with <status>").
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token, err := c.tokens.Read(); err == nil && token != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
		}
	}

	c.log.Debug().Str("method", method).Str("path", path).Msg("sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("request failed before a response")
		return &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	// Read the whole body as text first so empty success bodies are not a parse error
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	text := strings.TrimSpace(string(raw))

	c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("received response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload errorPayload
		if text != "" {
			_ = json.Unmarshal([]byte(text), &payload)
		}
		return &Error{
			Kind:   KindHTTP,
			Status: resp.StatusCode,
			Message: lo.CoalesceOrEmpty(
				payload.Message,
				payload.Details,
				fmt.Sprintf("Request failed with %d", resp.StatusCode),
			),
		}
	}

	if text == "" || out == nil {
		return nil
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return &Error{
			Kind:    KindHTTP,
			Status:  resp.StatusCode,
			Message: "invalid response body",
			Err:     fmt.Errorf("failed to decode response: %w", err),
		}
	}

	return nil
}
