// Package sources holds the upstream catalog adapters.
//
// Each adapter owns an upstream client that enforces a request timeout,
// throttles with a token bucket and trips a circuit breaker when the
// upstream keeps failing. Failures are returned as errors; isolating them
// from the rest of a request is the aggregator's job.
package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"modelhub/internal/logging"
	"modelhub/internal/metrics"
)

const userAgent = "modelhub/1.0 (+https://github.com/modelhub)"

// UpstreamConfig is the transport tuning shared by every adapter.
type UpstreamConfig struct {
	BaseURL         string
	Timeout         time.Duration
	RateLimit       float64 // requests per second, 0 disables throttling
	Burst           int
	BreakerFailures uint32        // consecutive failures before the breaker opens
	BreakerCooldown time.Duration // open -> half-open delay
}

func (c UpstreamConfig) withDefaults(baseURL string) UpstreamConfig {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}

// StatusError is a non-2xx upstream answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// IsStatus reports whether err is an upstream answer with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

type upstream struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func newUpstream(name string, cfg UpstreamConfig) *upstream {
	u := &upstream{
		name:    name,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RateLimit > 0 {
		u.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	u.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// client errors and caller cancellation say nothing about upstream health
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("source", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerStateValue(to))
		},
	})
	return u
}

// State exposes the breaker state for the sources listing.
func (u *upstream) State() string {
	return u.breaker.State().String()
}

// do sends req through the limiter and breaker and returns the body of a
// 2xx answer.
func (u *upstream) do(req *http.Request) ([]byte, error) {
	if u.limiter != nil {
		if err := u.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("%s: rate limit: %w", u.name, err)
		}
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	body, err := u.breaker.Execute(func() ([]byte, error) {
		resp, err := u.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(b), 256)}
		}
		return b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w", u.name, req.Method, req.URL.Path, err)
	}
	return body, nil
}

func (u *upstream) get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", u.name, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return u.do(req)
}

func (u *upstream) getJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Accept", "application/json")

	body, err := u.get(ctx, rawURL, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode: %w", u.name, err)
	}
	return nil
}

func (u *upstream) postJSON(ctx context.Context, rawURL string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", u.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", u.name, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := u.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode: %w", u.name, err)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
