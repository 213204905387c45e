package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/TheMichaelB/pinsync/internal/config"
	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/models"
)

// RequestObserver is told about every completed HTTP exchange.
type RequestObserver func(service, method string, status int, elapsed time.Duration)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// HTTPClient handles HTTP communication with one service.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	service   string
	userAgent string
	username  string
	password  string
	token     string
	logger    *events.Logger
	observer  RequestObserver

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates an HTTP client for the service at baseURL.
func NewHTTPClient(cfg *config.APIConfig, service, baseURL string, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos:         []string{"h2", "http/1.1"},
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	// Configure HTTP/2
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		service:    service,
		userAgent:  cfg.UserAgent,
		username:   cfg.Username,
		password:   cfg.Password,
		token:      cfg.Token,
		maxRetries: cfg.MaxRetries,
		retryDelay: 500 * time.Millisecond,
		logger:     logger.WithFields(map[string]interface{}{"component": "http_client", "service": service}),
	}
}

// SetObserver installs a request observer.
func (c *HTTPClient) SetObserver(fn RequestObserver) {
	c.observer = fn
}

// BaseURL returns the service root.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Get issues an idempotent GET, retried on network errors and retryable
// statuses.
func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	var resp *Response
	err := c.retry(ctx, func() error {
		r, err := c.do(ctx, http.MethodGet, path, query, nil, "")
		if err != nil {
			resp = nil
			return err
		}
		resp = r
		if c.isRetryable(r.StatusCode) {
			return &models.HTTPError{Method: http.MethodGet, Endpoint: path, StatusCode: r.StatusCode, Body: r.Text()}
		}
		return nil
	})
	if err != nil {
		// A retryable status that never cleared is still a response.
		if resp != nil && ctx.Err() == nil {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

// Post issues a POST once. Bodies may be streams, so it is never retried.
func (c *HTTPClient) Post(ctx context.Context, path string, query url.Values, body io.Reader, contentType string) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, query, body, contentType)
}

// Delete issues a DELETE once.
func (c *HTTPClient) Delete(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, query, nil, "")
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    u,
	}).Debug("Sending request")

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		if closer, ok := body.(io.Closer); ok {
			closer.Close()
		}
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-store")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	httpResp, err := c.client.Do(req)
	if err != nil {
		c.observe(method, 0, time.Since(start))
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	c.observe(method, httpResp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"path":   path,
		"status": httpResp.StatusCode,
		"size":   len(respBody),
		"body":   truncate(respBody, 2048),
	}).Debug("Received response")

	return &Response{StatusCode: httpResp.StatusCode, Body: respBody}, nil
}

func (c *HTTPClient) observe(method string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer(c.service, method, status, elapsed)
	}
}

// retry executes a function with exponential backoff.
func (c *HTTPClient) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay,
			}).Debug("Retrying request")

			select {
			case <-time.After(delay):
				delay *= 2 // Exponential backoff
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !c.isRetryableError(ctx, err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable checks if an HTTP status code is retryable.
func (c *HTTPClient) isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusBadGateway ||
		status == http.StatusGatewayTimeout ||
		(status >= 500 && status < 600)
}

// isRetryableError checks if an error is retryable.
func (c *HTTPClient) isRetryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// checkStatus turns a non-2xx response into an *models.HTTPError.
func checkStatus(resp *Response, method, endpoint string) error {
	if resp.OK() {
		return nil
	}
	return &models.HTTPError{
		Method:     method,
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Body:       resp.Text(),
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(bytes.ToValidUTF8(b[:n], nil)) + "..."
}
