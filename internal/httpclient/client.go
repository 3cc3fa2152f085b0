// Package httpclient provides the shared, connection-pooled REST client
// used by the OpenAI STT and TTS providers (internal/stt/openai takes only
// the shared transport; the edge-offline TTS provider does not use it):
// a pooled-transport singleton plus a generic JSON request/response helper
// (ClientConfig/RequestOptions) with retry-on-transient-failure handled by
// github.com/cenkalti/backoff/v4.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	shared     *http.Client
	sharedOnce sync.Once
)

// Shared returns the process-wide pooled HTTP client used by every REST
// provider in this module.
func Shared() *http.Client {
	sharedOnce.Do(func() {
		shared = &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	})
	return shared
}

// Config configures one named REST endpoint (one per provider instance).
type Config struct {
	BaseURL    string
	AuthToken  string
	MaxRetries int
	Timeout    time.Duration
}

// RequestOptions describes one call against the configured base URL.
type RequestOptions struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     map[string]string
	Body        any
	// Response, if non-nil, receives the JSON-decoded response body.
	Response any
}

// Client is a small generic JSON REST client with pooled transport and
// bounded exponential-backoff retry on transient (5xx, network) failures.
type Client struct {
	http       *http.Client
	baseURL    string
	authToken  string
	maxRetries int
}

func NewClient(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		authToken:  cfg.AuthToken,
		maxRetries: cfg.MaxRetries,
		http:       Shared(),
	}
	if cfg.Timeout > 0 {
		// Per-provider timeout override: a distinct client so the shared
		// pool's transport is still reused.
		c.http = &http.Client{Timeout: cfg.Timeout, Transport: Shared().Transport}
	}
	return c
}

// DoRequest executes a request and decodes the JSON response into
// opts.Response (if set), retrying transient failures with backoff.
func (c *Client) DoRequest(ctx context.Context, opts RequestOptions) error {
	_, err := c.doRequest(ctx, opts, opts.Response != nil)
	return err
}

// DoRequestRaw executes a request and returns the raw response body.
func (c *Client) DoRequestRaw(ctx context.Context, opts RequestOptions) ([]byte, error) {
	return c.doRequest(ctx, opts, false)
}

func (c *Client) doRequest(ctx context.Context, opts RequestOptions, decode bool) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := c.buildRequest(ctx, opts)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err // network errors are retried
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = b

		if resp.StatusCode >= 500 {
			return fmt.Errorf("httpclient: server error %d: %s", resp.StatusCode, string(b))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("httpclient: request error %d: %s", resp.StatusCode, string(b)))
		}
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries))
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	if decode && opts.Response != nil {
		if err := json.Unmarshal(body, opts.Response); err != nil {
			return nil, fmt.Errorf("httpclient: decode response: %w, body=%s", err, string(body))
		}
	}
	return body, nil
}

func (c *Client) buildRequest(ctx context.Context, opts RequestOptions) (*http.Request, error) {
	reqURL := c.baseURL + opts.Path
	if len(opts.QueryParams) > 0 {
		q := make([]string, 0, len(opts.QueryParams))
		for k, v := range opts.QueryParams {
			q = append(q, fmt.Sprintf("%s=%s", k, v))
		}
		reqURL += "?" + joinQuery(q)
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("httpclient: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func joinQuery(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "&" + p
	}
	return out
}
