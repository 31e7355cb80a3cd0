// Package supabase implements the backend contracts against a hosted Supabase project:
// PostgREST for tables, GoTrue for the current user and Storage for files.
// Requests are retried with exponential backoff and guarded by a circuit breaker.
package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"gymhub/backend/internal/platform/apperr"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter is the randomization factor (0.0 to 1.0).
	Jitter float64
}

// DefaultRetryConfig returns the retry policy used when Config.Retry is zero.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a half-open probe.
	OpenTimeout time.Duration
	// HalfOpenRequests is how many probes are allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns the breaker policy used when Config.Breaker is zero.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 2}
}

// Config holds client configuration.
type Config struct {
	URL string
	// APIKey is sent as the apikey header and as the bearer for table and storage calls.
	// The server uses the service key because it enforces authorization itself.
	APIKey     string
	HTTPClient *http.Client
	Retry      RetryConfig
	Breaker    BreakerConfig
	Logger     *zap.Logger
}

// Client is a Supabase REST client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   RetryConfig
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// retryableStatus are the HTTP statuses worth retrying.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("supabase: URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("supabase: APIKey is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	retry := cfg.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}
	bc := cfg.Breaker
	if bc == (BreakerConfig{}) {
		bc = DefaultBreakerConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
		retry:   retry,
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "supabase",
		MaxRequests: bc.HalfOpenRequests,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c, nil
}

// BreakerState reports the circuit state (closed, half-open, open).
func (c *Client) BreakerState() string { return c.breaker.State().String() }

// Response is a raw HTTP response from Supabase.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// HTTPError is a non-retryable error status returned by Supabase.
type HTTPError struct {
	StatusCode int
	// Code is the PostgREST / Postgres error code when present (e.g. 23505).
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.StatusCode, e.Message)
}

// request describes one call; body is re-sent on each retry.
type request struct {
	method  string
	path    string
	query   url.Values
	body    []byte
	headers map[string]string
	// bearer overrides the Authorization bearer (used for user access tokens).
	bearer string
	// idempotent marks a POST as safe to resend after it may have reached the server.
	idempotent bool
}

// replayable reports whether r may be resent once the server might have applied it.
func (r request) replayable() bool {
	return r.idempotent || r.method != http.MethodPost
}

// notSent reports whether err happened before the request left the process.
func notSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// errRetryableStatus marks a retryable status inside the breaker.
type errRetryableStatus struct{ status int }

func (e *errRetryableStatus) Error() string { return fmt.Sprintf("retryable status %d", e.status) }

// do executes r with retries and the circuit breaker. A plain POST is only resent when
// the connection was never made. Non-2xx statuses that are not retryable come back as
// *HTTPError; exhausted retries, open circuits and transport
// failures come back as *apperr.BackendUnavailableError.
func (c *Client) do(ctx context.Context, op string, r request) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.InitialBackoff
	b.MaxInterval = c.retry.MaxBackoff
	b.Multiplier = c.retry.Multiplier
	b.RandomizationFactor = c.retry.Jitter

	attempt := 0
	operation := func() (*Response, error) {
		attempt++
		out, err := c.breaker.Execute(func() (interface{}, error) {
			resp, err := c.send(ctx, r)
			if err != nil {
				return nil, err
			}
			if retryableStatus[resp.StatusCode] {
				return resp, &errRetryableStatus{status: resp.StatusCode}
			}
			return resp, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			if !r.replayable() && !notSent(err) {
				c.logger.Warn("supabase write outcome unknown, not resending",
					zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
				return nil, backoff.Permanent(err)
			}
			c.logger.Debug("supabase request failed", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		resp := out.(*Response)
		if resp.StatusCode >= 300 {
			return nil, backoff.Permanent(newHTTPError(resp))
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.retry.MaxRetries+1)),
	)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return nil, httpErr
		}
		return nil, &apperr.BackendUnavailableError{Op: op, Err: err}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, r request) (*Response, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	bearer := c.apiKey
	if r.bearer != "" {
		bearer = r.bearer
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
}

// newHTTPError extracts the message and code from a PostgREST, GoTrue or Storage error body.
func newHTTPError(resp *Response) *HTTPError {
	e := &HTTPError{StatusCode: resp.StatusCode}
	if gjson.ValidBytes(resp.Body) {
		body := gjson.ParseBytes(resp.Body)
		for _, key := range []string{"message", "msg", "error_description", "error"} {
			if v := body.Get(key); v.Exists() && v.String() != "" {
				e.Message = v.String()
				break
			}
		}
		switch code := body.Get("code"); code.Type {
		case gjson.String, gjson.Number:
			e.Code = code.String()
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(resp.Body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
