// Package portal is the HTTP client for the e-filing REST API. A Client
// serves as the session's auth collaborator and header sink and as the
// filing workflow's backend and template catalog.
package portal

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
	"sync"
	"time"

	"github.com/google/go-querystring/query"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"efiling.org/internal/fault"
	"efiling.org/internal/filing"
	"efiling.org/internal/obs"
	"efiling.org/internal/session"
)

var (
	_ session.AuthAPI        = (*Client)(nil)
	_ session.HeaderSetter   = (*Client)(nil)
	_ filing.Backend         = (*Client)(nil)
	_ filing.TemplateCatalog = (*Client)(nil)
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

// Client talks to one portal API base URL.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu      sync.RWMutex
	headers http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is the
// only timeout applied to calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-call timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit paces outbound calls to rps per second with the given burst.
// A non-positive rps leaves calls unpaced.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("portal: base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("portal: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("portal: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  zap.NewNop(),
		headers: http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.base.String() }

// SetBearer installs the default Authorization header for every later call.
func (c *Client) SetBearer(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		c.headers.Del("Authorization")
		return
	}
	c.headers.Set("Authorization", "Bearer "+token)
}

// ClearBearer removes the default Authorization header.
func (c *Client) ClearBearer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Del("Authorization")
}

// Authorized reports whether a bearer header is installed.
func (c *Client) Authorized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers.Get("Authorization") != ""
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() { c.http.CloseIdleConnections() }

func (c *Client) endpoint(path string, params any) (string, error) {
	u := *c.base
	u.Path = c.base.Path + path
	if params != nil {
		v, err := query.Values(params)
		if err != nil {
			return "", fmt.Errorf("encode query: %w", err)
		}
		u.RawQuery = v.Encode()
	}
	return u.String(), nil
}

// request describes one API call.
type request struct {
	op          string
	method      string
	path        string
	query       any
	body        io.Reader
	contentType string
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// do performs r and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, r request, out any) (err error) {
	start := time.Now()
	defer func() {
		obs.ObserveClientCall(r.op, fault.Label(err), time.Since(start))
		if err != nil {
			c.logger.Debug("portal call failed",
				zap.String("op", r.op),
				zap.String("method", r.method),
				zap.String("path", r.path),
				zap.Error(err))
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fault.Wrap(fault.ErrTransport, err, "")
	}
	target, err := c.endpoint(r.path, r.query)
	if err != nil {
		return fault.Wrap(fault.ErrTransport, err, "")
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return fault.Wrap(fault.ErrTransport, err, "")
	}
	c.mu.RLock()
	for k, vals := range c.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	c.mu.RUnlock()
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Wrap(fault.ErrTransport, err, "")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(r.op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Wrap(fault.ErrTransport, fmt.Errorf("decode %s response: %w", r.op, err), "")
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, params, out any) error {
	return c.do(ctx, request{op: op, method: http.MethodGet, path: path, query: params}, out)
}

func (c *Client) sendJSON(ctx context.Context, op, method, path string, in, out any) error {
	body, err := jsonBody(in)
	if err != nil {
		return fault.Wrap(fault.ErrTransport, err, "")
	}
	return c.do(ctx, request{op: op, method: method, path: path, body: body, contentType: "application/json"}, out)
}
