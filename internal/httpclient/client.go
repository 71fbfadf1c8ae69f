// Package httpclient provides the pooled, origin-keyed JSON HTTP Client
// (C2): one *http.Client per origin, each with its own bounded idle-conn
// pool, shared across every caller that talks to that origin.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/avicenne-studio/bridge-hub/internal/bherr"
)

// Config bounds the per-origin connection pool.
type Config struct {
	MaxIdleConnsPerOrigin int
	IdleConnTimeout       time.Duration
}

func defaultConfig() Config {
	return Config{MaxIdleConnsPerOrigin: 8, IdleConnTimeout: 90 * time.Second}
}

// Client is a pooled, origin-keyed JSON HTTP client (spec.md §4.2).
type Client struct {
	cfg Config

	mu      sync.Mutex
	origins map[string]*http.Client
}

func New(cfg Config) *Client {
	if cfg.MaxIdleConnsPerOrigin <= 0 {
		cfg = defaultConfig()
	}
	return &Client{cfg: cfg, origins: make(map[string]*http.Client)}
}

func (c *Client) clientFor(origin string) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.origins[origin]; ok {
		return cl
	}
	cl := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: c.cfg.MaxIdleConnsPerOrigin,
			IdleConnTimeout:     c.cfg.IdleConnTimeout,
		},
	}
	c.origins[origin] = cl
	return cl
}

// GetJSON issues a signed or unsigned GET and decodes the JSON body into T.
func GetJSON[T any](ctx context.Context, c *Client, origin, path string, headers map[string]string) (T, error) {
	var zero T
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+path, nil)
	if err != nil {
		return zero, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON[T](c, origin, req)
}

// PostJSON issues a signed or unsigned POST with a JSON body and decodes
// the JSON response into T.
func PostJSON[T any](ctx context.Context, c *Client, origin, path string, body interface{}, headers map[string]string) (T, error) {
	var zero T
	payload, err := json.Marshal(body)
	if err != nil {
		return zero, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, origin+path, bytes.NewReader(payload))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON[T](c, origin, req)
}

func doJSON[T any](c *Client, origin string, req *http.Request) (T, error) {
	var zero T
	resp, err := c.clientFor(origin).Do(req)
	if err != nil {
		return zero, bherr.Wrap(bherr.KindTransportFailure, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, bherr.Wrap(bherr.KindTransportFailure, "reading body failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, &bherr.HTTPStatus{Code: resp.StatusCode, Body: string(body)}
	}

	if len(body) == 0 {
		return zero, nil
	}
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return zero, fmt.Errorf("decoding json response: %w", err)
	}
	return out, nil
}

// Close shuts down every origin's idle connections. Safe to call once
// during application shutdown (spec.md §5).
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cl := range c.origins {
		cl.CloseIdleConnections()
	}
}
