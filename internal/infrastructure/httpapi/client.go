package httpapi

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
	"os"
	"strings"
	"time"
)

// Decorator mutates an outgoing request before it is sent. The session
// manager registers one to inject the bearer credential.
type Decorator func(*http.Request)

// Guard can veto a request before it is sent. The session manager
// registers one so requests to protected paths fail fast while no
// session is held, instead of round-tripping to a 401.
type Guard func(*http.Request) error

// Client is a thin JSON client for the remote API. It owns no business
// logic: it decorates requests, maps response statuses onto the error
// taxonomy, and reports 401s to the registered hook so the session can
// force a logout.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	log            *slog.Logger
	decorators     []Decorator
	guard          Guard
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDecorator appends a request decorator. Decorators run in
// registration order on every outgoing request.
func WithDecorator(d Decorator) Option {
	return func(c *Client) { c.decorators = append(c.decorators, d) }
}

// WithUnauthorizedHook registers the callback invoked whenever a call
// returns 401. The original error is still propagated to the caller.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// NewClient constructs a Client rooted at baseURL.
func NewClient(baseURL string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromEnv builds a Client from the VITALCHAT_API_URL environment
// variable.
func NewClientFromEnv(log *slog.Logger, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(os.Getenv("VITALCHAT_API_URL"))
	if base == "" {
		return nil, errors.New("httpapi: VITALCHAT_API_URL environment variable is not set")
	}
	return NewClient(base, log, opts...), nil
}

// SetUnauthorizedHook installs the 401 callback after construction. The
// session manager needs the client to exist before it can register, so
// wiring happens in two steps.
func (c *Client) SetUnauthorizedHook(fn func()) { c.onUnauthorized = fn }

// AddDecorator appends a request decorator after construction.
func (c *Client) AddDecorator(d Decorator) { c.decorators = append(c.decorators, d) }

// SetGuard installs the pre-send request guard after construction.
func (c *Client) SetGuard(g Guard) { c.guard = g }

// Get issues a GET for path with optional query parameters and decodes the
// JSON response into out (skipped when out is nil).
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

// apiMessage is the error body shape the server uses: {"message": "..."}.
type apiMessage struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpapi: encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("httpapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, d := range c.decorators {
		d(req)
	}
	if c.guard != nil {
		if err := c.guard(req); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("httpapi: decode response: %w", err)
		}
		return nil
	}

	var msg apiMessage
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&msg)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.log.Warn("unauthorized response", slog.String("path", path))
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return &AuthError{Message: msg.Message}
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Path: path}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ValidationError{Status: resp.StatusCode, Message: msg.Message}
	default:
		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}
}
