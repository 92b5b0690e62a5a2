// Package httpclient is the outbound HTTP layer for talking to WooCommerce
// stores. It enforces body size limits so a misbehaving store cannot make a
// sync worker buffer an unbounded response.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
)

const (
	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps response bodies at 10MB. A full product page with
	// embedded meta_data stays well under this.
	MaxResponseSize = 10 * 1024 * 1024
)

// Config holds HTTP client configuration.
type Config struct {
	Timeout            time.Duration
	MaxIdleConns       int
	IdleConnTimeout    time.Duration
	DisableCompression bool
	DisableKeepAlives  bool
}

// DefaultConfig returns defaults tuned for a handful of stores polled
// continuously over keep-alive connections.
func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// Client wraps http.Client with logging and response size limits. One Client
// is shared by every store's WooCommerce client.
type Client struct {
	client *http.Client
	logger ectologger.Logger
}

// NewClient creates a Client from the given config.
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:       cfg.MaxIdleConns,
				IdleConnTimeout:    cfg.IdleConnTimeout,
				DisableCompression: cfg.DisableCompression,
				DisableKeepAlives:  cfg.DisableKeepAlives,
			},
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Response is a fully buffered HTTP response. Body holds the raw bytes and
// BodyJSON the decoded form once ParseResponse has run.
type Response struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	Body        []byte            `json:"-"`
	BodyJSON    any               `json:"body,omitempty"`
	ContentType string            `json:"content_type"`
	Duration    time.Duration     `json:"duration_ms"`
}

// Do executes the request and buffers the response up to MaxResponseSize.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	start := time.Now()

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("HTTP request failed: %s %s", req.Method, req.URL.String())
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	// Read one byte past the limit so a body of exactly MaxResponseSize+n
	// is detected without buffering all of it.
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response body too large: %d bytes (max %d)", len(body), MaxResponseSize)
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	c.logger.WithContext(ctx).Debugf("HTTP %s %s -> %d (%s)",
		req.Method, req.URL.String(), resp.StatusCode, duration)

	return &Response{
		StatusCode:  resp.StatusCode,
		Headers:     headers,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Duration:    duration,
	}, nil
}
