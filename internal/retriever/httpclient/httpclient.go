// Package httpclient wraps outbound HTTP calls of the API-backed retrievers
// with a circuit breaker and exponential-backoff retries, so flapping
// upstreams are not hammered.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config bundles HTTP client and resilience settings.
type Config struct {
	Client  *http.Client
	Backoff BackoffConfig
}

// DefaultConfig returns the settings used by retrievers unless overridden.
func DefaultConfig() Config {
	return Config{
		Client: &http.Client{Timeout: 30 * time.Second},
		Backoff: BackoffConfig{
			MaxRetries:      2,
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

var (
	// ErrRateLimited and friends classify upstream responses; all of them
	// read as transient to the orchestrator.
	ErrRateLimited  = errors.New("rate limited")
	ErrServerError  = errors.New("server error")
	ErrCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

// Client executes requests for one upstream behind one shared breaker.
type Client struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
}

// New creates a client named after its upstream for breaker state logs.
func New(name string, cfg Config) *Client {
	if cfg.Client == nil {
		cfg.Client = DefaultConfig().Client
	}
	if cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff = DefaultConfig().Backoff
	}
	return &Client{
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: name}),
	}
}

// Do executes the request built by buildRequest with retries, exponential
// backoff and the circuit breaker. Rate limits and 5xx responses are
// retried; every other response is returned to the caller as-is, including
// its status code.
func (c *Client) Do(ctx context.Context, buildRequest func() (*http.Request, error)) (*http.Response, error) {
	if c.cfg.Client == nil {
		return nil, errNoHTTPClient
	}

	var attempt int
	var lastErr error
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := c.breaker.Execute(func() (interface{}, error) {
			resp, execErr := c.cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				return nil, ErrRateLimited
			}
			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return nil, ErrServerError
			}
			return resp, nil
		})
		if err == nil {
			return result.(*http.Response), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}

		lastErr = err
		if attempt >= c.cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		delay := c.cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if c.cfg.Backoff.MaxInterval > 0 && delay > c.cfg.Backoff.MaxInterval {
			delay = c.cfg.Backoff.MaxInterval
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}
