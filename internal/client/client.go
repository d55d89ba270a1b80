package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/launch-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/launch-dashboard/internal/models"
	"github.com/kjstillabower/launch-dashboard/internal/observability"
	"github.com/kjstillabower/launch-dashboard/internal/reqctx"
)

// SimulationClient talks to the upstream simulation/status service.
// Both methods return the upstream JSON compacted but otherwise untouched.
type SimulationClient interface {
	FetchStatus(ctx context.Context) ([]byte, error)
	RunMonteCarlo(ctx context.Context, settings models.SimulationSettings) ([]byte, error)
}

var (
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrInvalidPayload  = errors.New("upstream returned invalid JSON")
	ErrCircuitOpen     = errors.New("upstream circuit open")
)

// maxBodyBytes caps how much of an upstream body is read.
const maxBodyBytes = 16 << 20

// UpstreamStatusError is returned when the upstream answers with a non-2xx status.
// Status is the reason phrase from the upstream status line.
type UpstreamStatusError struct {
	Code   int
	Status string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", ErrUpstreamFailure, e.Code, e.Status)
}

// Unwrap lets errors.Is(err, ErrUpstreamFailure) match.
func (e *UpstreamStatusError) Unwrap() error {
	return ErrUpstreamFailure
}

// HTTPClient is the default SimulationClient.
type HTTPClient struct {
	statusURL      string
	monteCarloURL  string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewHTTPClient returns a client that makes a single attempt per call.
func NewHTTPClient(statusURL, monteCarloURL string, timeout time.Duration) (*HTTPClient, error) {
	return NewHTTPClientWithRetry(statusURL, monteCarloURL, timeout, 1, 100*time.Millisecond, 2*time.Second)
}

// NewHTTPClientWithRetry returns a client that retries transient failures up to
// retryAttempts total attempts with jittered exponential backoff.
func NewHTTPClientWithRetry(statusURL, monteCarloURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*HTTPClient, error) {
	if statusURL == "" {
		return nil, fmt.Errorf("status URL is required")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", timeout)
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	return &HTTPClient{
		statusURL:      statusURL,
		monteCarloURL:  monteCarloURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps every upstream attempt in cb. Nil disables it.
func (c *HTTPClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// CloseIdleConnections releases pooled upstream connections. Call during shutdown.
func (c *HTTPClient) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

// FetchStatus GETs the status document.
func (c *HTTPClient) FetchStatus(ctx context.Context) ([]byte, error) {
	return c.do(ctx, "status", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	})
}

// RunMonteCarlo POSTs settings to the Monte Carlo endpoint.
func (c *HTTPClient) RunMonteCarlo(ctx context.Context, settings models.SimulationSettings) ([]byte, error) {
	if c.monteCarloURL == "" {
		return nil, fmt.Errorf("monte carlo URL not configured")
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return c.do(ctx, "montecarlo", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.monteCarloURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

func (c *HTTPClient) do(ctx context.Context, endpoint string, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.StatusAPIRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		body, err := c.attempt(ctx, endpoint, build)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	observability.StatusAPIErrorsTotal.WithLabelValues(string(CategorizeError(lastErr))).Inc()
	if c.retryAttempts > 1 {
		return nil, fmt.Errorf("exhausted retries: %w", lastErr)
	}
	return nil, lastErr
}

// attempt runs one call, through the circuit breaker when one is set.
func (c *HTTPClient) attempt(ctx context.Context, endpoint string, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, endpoint, build)
	}
	var body []byte
	err := c.breaker.Call(func() error {
		var err error
		body, err = c.callAPI(ctx, endpoint, build)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, endpoint)
	}
	return body, err
}

func (c *HTTPClient) callAPI(ctx context.Context, endpoint string, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := build(reqCtx)
	if err != nil {
		observability.StatusAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := reqctx.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.StatusAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.StatusAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.StatusAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.StatusAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &UpstreamStatusError{Code: resp.StatusCode, Status: reasonPhrase(resp)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	var out bytes.Buffer
	if err := json.Compact(&out, raw); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrInvalidPayload, err)
	}
	return out.Bytes(), nil
}

// reasonPhrase extracts the text after the code in resp.Status ("503 Service Unavailable"),
// falling back to the standard text for the code.
func reasonPhrase(resp *http.Response) string {
	phrase := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if phrase == "" {
		phrase = http.StatusText(resp.StatusCode)
	}
	return phrase
}

// isRetryable reports transient failures: transport errors, timeouts, 429 and 5xx.
// Invalid payloads, 4xx answers and an open breaker are final.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrInvalidPayload) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *UpstreamStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	return true
}

// IsUpstreamFault reports whether err should count against the circuit breaker.
// Client-side cancellation and 4xx answers other than 429 do not.
func IsUpstreamFault(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *UpstreamStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	return true
}

func (c *HTTPClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
