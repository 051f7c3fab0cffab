// Package client provides the rate-limited request invoker: it turns
// request coordinates into a single HTTP call gated by a shared
// ratelimit.Gate and hands back the raw response.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/webreq/pkg/logging"
	"github.com/Sternrassler/webreq/pkg/metrics"
	"github.com/Sternrassler/webreq/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "webreq_requests_total",
		Help: "Total outbound requests by endpoint template, method and status",
	}, []string{"endpoint", "method", "status"})

	requestDuration = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webreq_request_duration_seconds",
		Help:    "Outbound request duration in seconds by endpoint template",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "webreq_errors_total",
		Help: "Total invocation errors by class",
	}, []string{"class"})
)

// ErrorClass classifies invocation failures for observability.
type ErrorClass string

const (
	// ErrorClassMalformed represents URLs that could not be built.
	ErrorClassMalformed ErrorClass = "malformed"

	// ErrorClassMethod represents unsupported method tokens.
	ErrorClassMethod ErrorClass = "unsupported_method"

	// ErrorClassEncode represents request bodies that failed to encode.
	ErrorClassEncode ErrorClass = "encode"

	// ErrorClassRateLimit represents failures while waiting for admission.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client sends requests through a rate-limit gate.
type Client struct {
	httpClient *http.Client
	gate       *ratelimit.Gate
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// HTTPClient overrides the transport. When nil a client with Timeout
	// is created.
	HTTPClient *http.Client

	// Gate admits every outbound request. Required.
	Gate *ratelimit.Gate

	// UserAgent is sent unless the caller supplies one.
	UserAgent string

	// Timeout bounds each round trip; 0 disables the timeout.
	Timeout time.Duration

	// LegacyTextPut sends PUT requests with a text body as POST,
	// reproducing the behaviour of older deployments. The default differs
	// from that observed behaviour: without it a text PUT goes out as PUT.
	LegacyTextPut bool
}

// DefaultConfig returns a configuration using gate.
func DefaultConfig(gate *ratelimit.Gate) Config {
	return Config{
		Gate:      gate,
		UserAgent: "webreq/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Gate == nil {
		return nil, fmt.Errorf("rate limit gate is required")
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative (got %s)", cfg.Timeout)
	}

	logger := logging.NewLogger(logging.ComponentClient)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
		}
	}

	return &Client{
		httpClient: httpClient,
		gate:       cfg.Gate,
		config:     cfg,
		logger:     logger,
	}, nil
}

// Invoke performs one rate-limited request and returns the raw response.
//
// Unsupported methods and unbuildable URLs fail before any admission is
// consumed. Otherwise exactly one admission is taken and exactly one round
// trip is made; no retries happen here. Non-success statuses are returned
// as ordinary responses.
func (c *Client) Invoke(ctx context.Context, coords Coordinates, body Body) (*Response, error) {
	endpoint := coords.Path

	method, err := ParseMethod(coords.Method)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassMethod)).Inc()
		c.logger.Error().Str("method", coords.Method).Msg("Unsupported method")
		return nil, err
	}

	req, err := c.newRequest(ctx, method, coords, body)
	if err != nil {
		switch {
		case errors.Is(err, ErrMalformedRequest):
			errorsTotal.WithLabelValues(string(ErrorClassMalformed)).Inc()
		default:
			errorsTotal.WithLabelValues(string(ErrorClassEncode)).Inc()
		}
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Failed to build request")
		return nil, err
	}

	if err := c.gate.Wait(ctx); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		return nil, fmt.Errorf("wait for admission: %w", err)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Msg("Executing request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())

	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, req.Method, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	requestsTotal.WithLabelValues(endpoint, req.Method, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	result := &Response{Response: resp}
	if !result.IsSuccess() {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Request returned non-success status")
	}
	return result, nil
}

// newRequest assembles the HTTP request without sending it.
func (c *Client) newRequest(ctx context.Context, method Method, coords Coordinates, body Body) (*http.Request, error) {
	u, err := BuildURL(coords)
	if err != nil {
		return nil, err
	}

	sendMethod := string(method)
	var payload io.Reader = http.NoBody
	var contentType string

	if method.HasBody() && body != nil {
		data, ct, err := body.encode()
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(data)
		contentType = ct

		if _, isText := body.(TextBody); isText && method == MethodPut && c.config.LegacyTextPut {
			c.logger.Debug().Str("endpoint", coords.Path).Msg("Sending text PUT as POST (legacy mode)")
			sendMethod = http.MethodPost
		}
	}

	req, err := http.NewRequestWithContext(ctx, sendMethod, u.String(), payload)
	if err != nil {
		return nil, &MalformedRequestError{URL: u.String(), Err: err}
	}

	for key, values := range coords.Headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	if coords.Auth != nil {
		req.Header.Set("Authorization", coords.Auth.Header())
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	for _, cookie := range coords.Cookies {
		if cookie != nil {
			req.AddCookie(cookie)
		}
	}

	return req, nil
}

// Gate returns the gate the client waits on.
func (c *Client) Gate() *ratelimit.Gate {
	return c.gate
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
