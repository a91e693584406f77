package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"

	"github.com/rollbackwallet/rollbackctl/internal/config"
	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
)

// RequestIDHeader carries the correlation ID of every request.
const RequestIDHeader = "X-Request-ID"

const maxErrorBody = 64 << 10

// HTTPClient handles HTTP communication with the rollback API.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	logger    *events.Logger

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates an HTTP client.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	// Configure HTTP/2
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
		logger:     logger.WithField("component", "http_client"),
	}
}

// BaseURL returns the API root without a trailing slash.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// GetJSON sends a GET request and decodes the response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, out interface{}) error {
	return c.DoJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON sends payload as a JSON POST and decodes the response into out.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, payload, out interface{}) error {
	return c.DoJSON(ctx, http.MethodPost, path, payload, out)
}

// PutJSON sends payload as a JSON PUT and decodes the response into out.
func (c *HTTPClient) PutJSON(ctx context.Context, path string, payload, out interface{}) error {
	return c.DoJSON(ctx, http.MethodPut, path, payload, out)
}

// DoJSON executes a JSON request with retries. A nil payload sends no
// body and a nil out discards the response. Non-2xx answers are
// returned as *models.APIError.
func (c *HTTPClient) DoJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	url := c.baseURL + path

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	requestID := events.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	logger := c.logger.WithFields(events.Tags(ctx)).WithFields(map[string]interface{}{
		"method":     method,
		"url":        url,
		"request_id": requestID,
	})
	logger.WithField("size", len(body)).Debug("Sending request")

	var respBody []byte
	var status int
	err := c.retry(ctx, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set(RequestIDHeader, requestID)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		if status < 200 || status > 299 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return parseAPIError(status, data, requestID)
		}

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).Debug("Request failed")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"status": status,
		"size":   len(respBody),
	}).Debug("Received response")

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	return nil
}

// errorBody covers the error shapes returned by the API.
type errorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseAPIError(status int, data []byte, requestID string) *models.APIError {
	apiErr := &models.APIError{
		StatusCode: status,
		RequestID:  requestID,
	}

	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil {
		apiErr.Code = eb.Code
		apiErr.Message = eb.Message
		if apiErr.Message == "" {
			apiErr.Message = eb.Error
		} else if apiErr.Code == "" {
			apiErr.Code = eb.Error
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	return apiErr
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

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
				delay *= 2
			case <-ctx.Done():
				timer.Stop()
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
		(status >= 500 && status < 600)
}

// isRetryableError reports whether another attempt may succeed.
func (c *HTTPClient) isRetryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return c.isRetryable(apiErr.StatusCode)
	}

	// Network errors are retryable
	return true
}
