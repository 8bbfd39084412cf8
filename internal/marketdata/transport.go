package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultRateLimit   = 5 // requests per second
	userAgent          = "Mozilla/5.0 (compatible; gapup-lab/1.0)"
)

// APIError is a non-2xx response from a provider.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Temporary reports whether the request may succeed on retry.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// transport performs rate-limited GET requests with retries and exponential
// backoff. 429 and 5xx responses and network errors are retried; other
// statuses fail immediately.
type transport struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	logger      zerolog.Logger
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	adjusted    bool
}

// Option configures a provider client.
type Option func(*transport)

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(baseURL string) Option {
	return func(t *transport) {
		if baseURL != "" {
			t.baseURL = baseURL
		}
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *transport) {
		t.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(t *transport) {
		t.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(t *transport) {
		t.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) Option {
	return func(t *transport) {
		t.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *transport) {
		t.client = client
	}
}

// WithRateLimit sets the request rate. Zero or negative disables limiting.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(t *transport) {
		if requestsPerSecond <= 0 {
			t.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithLogger sets a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *transport) {
		t.logger = logger
	}
}

// WithAdjusted toggles split/dividend adjustment of OHLC prices.
func WithAdjusted(adjusted bool) Option {
	return func(t *transport) {
		t.adjusted = adjusted
	}
}

func newTransport(baseURL string, opts ...Option) *transport {
	t := &transport{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:      zerolog.Nop(),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		adjusted:    true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// getJSON GETs baseURL+path with params and decodes the JSON body into result.
func (t *transport) getJSON(ctx context.Context, path string, params url.Values, result any) error {
	reqURL := t.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	delay := t.retryDelay
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			t.logger.Debug().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("delay", delay).
				Str("endpoint", path).
				Msg("retrying request")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * t.backoffMult)
			if delay > t.maxDelay {
				delay = t.maxDelay
			}
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				Message:    truncate(string(body), 200),
				Endpoint:   path,
			}
			if apiErr.Temporary() {
				lastErr = apiErr
				continue
			}
			return apiErr
		}

		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
