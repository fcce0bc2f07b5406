package prntsc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shotprobe/pkg/config"
	errs "shotprobe/pkg/errors"
	"shotprobe/pkg/logger"
	"shotprobe/pkg/ratelimit"
)

const (
	// DefaultBaseURL is the share host probed for codes
	DefaultBaseURL = "https://prnt.sc"
	// DefaultPlaceholderMarker identifies the "image removed" placeholder
	DefaultPlaceholderMarker = "st.prntscr.com"

	maxPageBytes = 2 << 20
)

// Client talks to the screenshot host. Every request carries a browser-like
// User-Agent and waits on the shared limiter first. The wait does not count
// against the resolve or download timeout.
type Client struct {
	httpClient        *http.Client
	headers           map[string]string
	baseURL           string
	placeholderMarker string
	resolveTimeout    time.Duration
	downloadTimeout   time.Duration
	limiter           ratelimit.Limiter
	logger            logger.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter sets the request pacing limiter
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client from the probe section of the config
func NewClient(cfg config.ProbeConfig, opts ...Option) *Client {
	c := &Client{
		// timeouts are applied per call through the request context
		httpClient: &http.Client{},
		headers: map[string]string{
			"User-Agent":      cfg.UserAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		placeholderMarker: cfg.PlaceholderMarker,
		resolveTimeout:    cfg.ResolveTimeout,
		downloadTimeout:   cfg.DownloadTimeout,
		limiter:           ratelimit.Unlimited{},
		logger:            logger.NewNopLogger(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.placeholderMarker == "" {
		c.placeholderMarker = DefaultPlaceholderMarker
	}
	if c.resolveTimeout <= 0 {
		c.resolveTimeout = 10 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PageURL returns the share page URL for a code
func (c *Client) PageURL(code string) string {
	return c.baseURL + "/" + code
}

// pace blocks until the limiter hands out a request slot. It must run on the
// caller's context, before any per-request timeout starts.
func (c *Client) pace(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.Wrap(errs.ErrorTypeRateLimit, "waiting for request slot", err)
	}
	return nil
}

// doRequest decorates and sends req
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		if value != "" && req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.DebugWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, fmt.Sprintf("%s %s", req.Method, req.URL), err)
	}

	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, duration)
	return resp, nil
}

// OpenImage starts a streamed GET of imageURL. Only a 200 response yields a
// body; the caller must close it. The returned cancel func releases the
// download timeout and must be called once the body has been consumed.
func (c *Client) OpenImage(ctx context.Context, imageURL string) (io.ReadCloser, context.CancelFunc, error) {
	if err := c.pace(ctx); err != nil {
		return nil, nil, err
	}

	cancel := context.CancelFunc(func() {})
	if c.downloadTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.downloadTimeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		cancel()
		return nil, nil, errs.Wrap(errs.ErrorTypeDownload, "invalid image url", err)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := c.doRequest(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, nil, errs.FromStatus(resp.StatusCode, fmt.Sprintf("image %s returned %s", imageURL, resp.Status))
	}
	return resp.Body, cancel, nil
}
