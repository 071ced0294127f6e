package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

var (
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errUnauthorized = errors.New("unauthorized")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
	errMalformed    = errors.New("malformed response")
)

// Option customizes a provider or geocoder.
type Option func(*options)

type options struct {
	baseURL string
	breaker gobreaker.Settings
}

// WithBaseURL overrides the provider's API root (used by tests and proxies).
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimRight(u, "/")
	}
}

// WithBreakerSettings overrides the circuit breaker configuration. Name is kept.
func WithBreakerSettings(s gobreaker.Settings) Option {
	return func(o *options) {
		name := o.breaker.Name
		o.breaker = s
		o.breaker.Name = name
	}
}

func buildOptions(name, baseURL string, opts []Option) options {
	o := options{
		baseURL: baseURL,
		breaker: gobreaker.Settings{
			Name:        name,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// client bundles the HTTP client and circuit breaker shared by one provider.
type client struct {
	http    *http.Client
	circuit *gobreaker.CircuitBreaker
	baseURL string
}

func newClient(httpClient *http.Client, o options) client {
	return client{
		http:    httpClient,
		circuit: gobreaker.NewCircuitBreaker(o.breaker),
		baseURL: o.baseURL,
	}
}

// getJSON issues a single GET through the circuit breaker and decodes the body into out.
// Failed providers are not retried within a request cycle.
func (c client) getJSON(ctx context.Context, path string, values url.Values, out interface{}) error {
	if c.http == nil {
		return errNoHTTPClient
	}

	u := c.baseURL + path
	if len(values) > 0 {
		u = fmt.Sprintf("%s?%s", u, values.Encode())
	}

	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		// If circuit is open, fail fast.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return err
	}

	body, ok := result.([]byte)
	if !ok {
		return fmt.Errorf("unexpected result type from circuit breaker")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %d", errUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
	}
	return nil
}

func coordParam(v float64) string {
	return fmt.Sprintf("%f", v)
}

// joinNonEmpty joins the non-empty parts with ", ".
func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
