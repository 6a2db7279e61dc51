// Package httpclient implements the outbound client every downstream call
// goes through: JSON, multipart and binary POSTs with a bounded retry
// budget, timeout classification and bearer forwarding.
//
// One Client instance serves one downstream service; instances share a
// single connection pool via WithTransport so the per-host connection cap
// holds process-wide.
package httpclient

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/luxsim/helio/pkg/auth"
	"github.com/luxsim/helio/pkg/errdefs"
	"github.com/luxsim/helio/pkg/observability"
)

const (
	defaultMaxRetries      = 3
	defaultBaseDelay       = 300 * time.Millisecond
	defaultReadTimeout     = 300 * time.Second
	defaultConnectTimeout  = 10 * time.Second
	defaultMaxConnsPerHost = 10

	// maxErrorBodyBytes bounds how much of a failed response body is kept
	// on the error.
	maxErrorBodyBytes = 200
)

// Client posts requests to one downstream service with retries.
type Client struct {
	httpClient *http.Client
	transport  http.RoundTripper
	timeout    time.Duration
	service    string
	maxRetries int
	baseDelay  time.Duration
	bearer     string
	metrics    observability.Metrics
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client entirely, bypassing
// WithTransport and WithTimeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTransport sets the (shared) connection pool.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithTimeout sets the read deadline covering the whole call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithService names the downstream service for error annotation, logging
// and metrics.
func WithService(name string) Option {
	return func(c *Client) {
		c.service = name
	}
}

// WithMaxRetries sets the attempt budget per call, first try included.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseDelay seeds the exponential retry backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithBearer sets a static outbound bearer token. An inbound bearer on the
// request context takes precedence.
func WithBearer(token string) Option {
	return func(c *Client) {
		c.bearer = token
	}
}

// WithMetrics wires call, error and retry counters.
func WithMetrics(m observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New builds a client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		timeout:    defaultReadTimeout,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		transport := c.transport
		if transport == nil {
			transport = NewTransport(defaultConnectTimeout, defaultMaxConnsPerHost)
		}
		c.httpClient = &http.Client{Transport: transport, Timeout: c.timeout}
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}
	c.tracer = otel.Tracer("github.com/luxsim/helio/pkg/httpclient")
	return c
}

// NewTransport builds the connection pool shared by all service clients.
func NewTransport(connectTimeout time.Duration, maxConnsPerHost int) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     maxConnsPerHost,
		MaxIdleConnsPerHost: maxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
}

// retryableStatuses are the downstream statuses worth another attempt.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// do runs the request with the retry budget. It retries transport failures
// (but never timeouts or cancellations) and retryable statuses; any other
// response is returned as-is for the caller to interpret.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, errdefs.Wrap(errdefs.KindInternal, err,
						"failed to recreate request body for retry")
				}
				req.Body = body
			}
			delay := c.backoff(attempt - 1)
			slog.Debug("Retrying service call",
				"service", c.service, "path", req.URL.Path,
				"attempt", attempt, "delay", delay)
			if c.metrics != nil {
				c.metrics.RecordRetry(req.Context(), c.service)
			}
			select {
			case <-req.Context().Done():
				return nil, c.classifyTransport(req.Context().Err())
			case <-time.After(delay):
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			classified := c.classifyTransport(err)
			if classified.Kind != errdefs.KindConnection {
				return nil, classified
			}
			lastErr = classified
			continue
		}

		if !retryableStatuses[resp.StatusCode] || attempt == c.maxRetries {
			return resp, nil
		}
		resp.Body.Close()
		lastErr = errdefs.New(errdefs.KindResponse, "HTTP %d", resp.StatusCode)
	}
	return nil, lastErr
}

// backoff returns the delay before the given retry (1-based), doubling from
// the base with a 10% spread.
func (c *Client) backoff(retry int) time.Duration {
	exponential := time.Duration(math.Pow(2, float64(retry-1)) * float64(c.baseDelay))
	jitter := time.Duration(float64(exponential) * 0.1)
	return exponential + jitter
}

// classifyTransport maps a transport-level failure onto the error taxonomy.
// Deadline overruns become timeouts, cancellations stay internal, anything
// else (refused, reset, DNS) is a connection failure.
func (c *Client) classifyTransport(err error) *errdefs.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errdefs.Wrap(errdefs.KindTimeout, err, "deadline exceeded")
	}
	if errors.Is(err, context.Canceled) {
		return errdefs.Wrap(errdefs.KindInternal, err, "request canceled")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errdefs.Wrap(errdefs.KindTimeout, err, "timeout")
	}
	return errdefs.Wrap(errdefs.KindConnection, err, "transport failure")
}

// authorize attaches the bearer credential: the inbound request's token
// when one was presented, the configured static token otherwise.
func (c *Client) authorize(req *http.Request) {
	token := auth.BearerFromContext(req.Context())
	if token == "" {
		token = c.bearer
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
