package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mahaj/logchat/pkg/metrics"
	"github.com/mahaj/logchat/pkg/model"
)

const maxErrorBody = 4 << 10

// Client talks to the chat backend's HTTP API.
type Client struct {
	base string
	http *http.Client
	log  *slog.Logger

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.log = logger }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "api")
	return c
}

// Token returns the bearer token in use, if any.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// do sends body as JSON and decodes the response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, route string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, route, err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.base + route
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, route, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveRequest(route, 0, started)
		return fmt.Errorf("%s %s: %w: %v", method, route, model.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()
	metrics.ObserveRequest(route, resp.StatusCode, started)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: %s: %w: %s", method, route, resp.Status, model.ErrNetworkFailure, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w: %v", method, route, model.ErrNetworkFailure, err)
	}
	return nil
}
