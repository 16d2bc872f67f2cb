// Package httpclient is the JSON-over-HTTP client used by every external provider.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mtlprog/finsight/internal/metrics"
)

// StatusError is returned for any non-2xx response that is not retried.
type StatusError struct {
	Provider   string
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d from %s: %s", e.Provider, e.StatusCode, e.URL, e.Body)
}

// Client performs requests with retry and exponential backoff on HTTP 429.
type Client struct {
	provider   string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// New creates a client. provider labels errors and metrics.
func New(provider string, maxRetries int, baseDelay time.Duration) *Client {
	return &Client{
		provider:   provider,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Provider returns the provider label.
func (c *Client) Provider() string {
	return c.provider
}

// GetJSON performs a GET request and unmarshals the JSON response into dest.
func (c *Client) GetJSON(ctx context.Context, url string, dest any) error {
	body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%s: parsing JSON from %s: %w", c.provider, url, err)
	}
	return nil
}

// PostJSON marshals payload, POSTs it and unmarshals the JSON response into dest.
func (c *Client) PostJSON(ctx context.Context, url string, payload, dest any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", c.provider, err)
	}
	body, err := c.do(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%s: parsing JSON from %s: %w", c.provider, url, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, reqBody []byte) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries + 1 {
		var bodyReader io.Reader
		if reqBody != nil {
			bodyReader = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("%s: creating request: %w", c.provider, err)
		}
		req.Header.Set("Accept", "application/json")
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.ProviderRequests.WithLabelValues(c.provider, "error").Inc()
			return nil, fmt.Errorf("%s: executing request: %w", c.provider, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			metrics.ProviderRequests.WithLabelValues(c.provider, "error").Inc()
			return nil, fmt.Errorf("%s: reading response: %w", c.provider, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			metrics.ProviderRequests.WithLabelValues(c.provider, "ok").Inc()
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			metrics.ProviderRequests.WithLabelValues(c.provider, "rate_limited").Inc()
			lastErr = fmt.Errorf("%s: HTTP 429 at %s (attempt %d/%d)", c.provider, url, attempt+1, c.maxRetries+1)
			if attempt < c.maxRetries {
				delay := c.baseDelay * time.Duration(1<<uint(attempt))
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			return nil, lastErr
		}

		metrics.ProviderRequests.WithLabelValues(c.provider, "error").Inc()
		return nil, &StatusError{Provider: c.provider, StatusCode: resp.StatusCode, URL: url, Body: truncate(string(body), 512)}
	}

	return nil, lastErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
