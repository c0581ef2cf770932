// Package external is the boundary between the importer's domain logic and
// remote services: the commerce platform's admin GraphQL API, the catalog
// scraping provider, and CloudWatch. All outbound HTTP goes through
// BaseClient, which applies circuit breaking, bounded retries with backoff,
// and error mapping into the upstream AppError codes.
package external

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"shopimport/internal/types"
)

// RetryPolicy bounds the retry behavior of a BaseClient.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the retry bounds used for gateway calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    250 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// BaseClient wraps an *http.Client with a circuit breaker and retry loop.
// The platform and scraper clients embed it so every outbound call carries
// the same resilience behavior.
type BaseClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	policy  RetryPolicy
	sleep   func(time.Duration)
}

// BaseClientOption configures a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the inter-retry sleep. Tests use this to avoid
// real delays.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleep = fn
	}
}

// NewBaseClient builds a BaseClient with its own circuit breaker. The breaker
// opens after more than five consecutive failures and half-opens after 30
// seconds.
func NewBaseClient(httpClient *http.Client, name string, policy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	bc := &BaseClient{
		client:  httpClient,
		breaker: breaker,
		policy:  policy,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Do executes the request through the breaker, retrying 429 and 5xx responses
// with jittered exponential backoff (a Retry-After header takes precedence).
// Request IDs propagate as X-Request-ID. Non-retryable responses are returned
// as-is with their body open; exhausted retries and open-breaker states map
// to upstream AppErrors.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if reqID := types.GetRequestID(req.Context()); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	// Buffer the body so retries can replay it.
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
		}
	}

	var lastResp *http.Response
	var lastErr error

	attempts := 1 + c.policy.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < attempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		if attempt < attempts-1 {
			c.sleep(c.backoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// backoff picks the wait before the next attempt, honoring Retry-After when
// the upstream sent one.
func (c *BaseClient) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				return min(time.Duration(secs)*time.Second, c.policy.MaxWait)
			}
			if at, err := http.ParseTime(ra); err == nil {
				if wait := time.Until(at); wait > 0 {
					return min(wait, c.policy.MaxWait)
				}
				return c.policy.MinWait
			}
		}
	}

	ceil := float64(c.policy.MinWait) * math.Pow(2, float64(attempt))
	ceil = math.Min(ceil, float64(c.policy.MaxWait))
	floor := float64(c.policy.MinWait)
	if ceil <= floor {
		return c.policy.MinWait
	}
	return time.Duration(floor + rand.Float64()*(ceil-floor))
}

func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable, "circuit breaker open for upstream", err)
	}

	if resp != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			return types.NewAppError(
				types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
		}
		if resp.StatusCode >= 500 {
			return types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
		}
	}

	return types.NewAppError(
		types.ErrCodeUpstreamUnavailable, "upstream request failed", err)
}
