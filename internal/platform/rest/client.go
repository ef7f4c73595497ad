package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"golang.org/x/time/rate"
)

const maxErrorBody = 4 << 10

// Config holds platform API client configuration
type Config struct {
	Logger            *slog.Logger
	HTTPClient        *http.Client
	RequestsPerSecond float64
	Burst             int
}

// Client is a paced JSON HTTP client that classifies failures for the upload state machine
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new platform API client
func NewClient(cfg *Config) *Client {
	// requests are bounded by their context: call_timeout for API calls,
	// transfer_timeout for media bytes
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// APIError is a non-2xx platform response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform responded %d", e.StatusCode)
	}
	return fmt.Sprintf("platform responded %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status suggests a transient failure
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Request describes one API call
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    io.Reader
	Expect  []int // accepted statuses, any 2xx when empty
	Decoded any   // JSON destination, may be nil
}

// Do sends the request. Transport failures and 429/5xx responses come back wrapped in
// domain.RetryableError; other non-accepted statuses return *APIError.
func (c *Client) Do(ctx context.Context, r Request) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.NewRetryableError(fmt.Errorf("rate limiter wait failed: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, r.Body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error repeats the full URL, query token included
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return domain.NewRetryableError(fmt.Errorf("%s %s: %w", r.Method, redact(r.URL), err))
	}
	defer resp.Body.Close()

	c.logger.Debug("Platform API call",
		slog.String("method", r.Method),
		slog.String("url", redact(r.URL)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if !accepted(resp.StatusCode, r.Expect) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
		if apiErr.Retryable() {
			return domain.NewRetryableError(apiErr)
		}
		return apiErr
	}

	if r.Decoded == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(r.Decoded); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func accepted(status int, expect []int) bool {
	if len(expect) == 0 {
		return status >= 200 && status < 300
	}
	for _, s := range expect {
		if s == status {
			return true
		}
	}
	return false
}

// errorMessage pulls a message out of the common {"error":{"message"}} and {"message"} shapes
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error.Message != "" {
			if payload.Error.Type != "" {
				return fmt.Sprintf("%s (%s, code %d)", payload.Error.Message, payload.Error.Type, payload.Error.Code)
			}
			return payload.Error.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// redact strips query strings, which may carry access tokens
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
