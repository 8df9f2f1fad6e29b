// Package http wraps resty with the request logging used by every exchange call.
package http

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("http client is closed")

type Client struct {
	client *resty.Client
	logger zerolog.Logger
	mu     sync.RWMutex
	closed bool
}

type Config struct {
	BaseURL string `validate:"required,url"`
	// Timeout is a hard ceiling per request; callers bound individual calls with ctx.
	Timeout   time.Duration     `validate:"min=0"`
	UserAgent string            `validate:"omitempty"`
	Headers   map[string]string `validate:"omitempty"`
}

type Option func(*Client)

// WithLogger sets the logger used for request/response debug lines.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient builds a resty client for config.BaseURL with retries disabled;
// retrying is left to the caller.
func NewClient(config *Config, opts ...Option) (*Client, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		client: resty.New(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	client := c.client
	client.SetBaseURL(config.BaseURL)
	if config.Timeout > 0 {
		client.SetTimeout(config.Timeout)
	}
	client.SetRetryCount(0)
	if config.UserAgent != "" {
		client.SetHeader("User-Agent", config.UserAgent)
	}
	for k, v := range config.Headers {
		client.SetHeader(k, v)
	}

	logger := c.logger
	client.AddRequestMiddleware(func(_ *resty.Client, req *resty.Request) error {
		logger.Debug().
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("http request")
		return nil
	})

	client.AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug().
			Str("method", resp.Request.Method).
			Str("url", resp.Request.URL).
			Int("status", resp.StatusCode()).
			Int("size", len(resp.Bytes())).
			Dur("elapsed", resp.Duration()).
			Msg("http response")
		return nil
	})

	return c, nil
}

// Close releases idle connections. Later calls return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

// Get sends a GET with params encoded in the query string.
func (c *Client) Get(ctx context.Context, path string, params map[string]string) (*resty.Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}

	return c.client.R().SetContext(ctx).SetQueryParams(params).Get(path)
}

// PostForm sends a POST with params as an application/x-www-form-urlencoded body.
func (c *Client) PostForm(ctx context.Context, path string, params map[string]string) (*resty.Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}

	return c.client.R().SetContext(ctx).SetFormData(params).Post(path)
}
