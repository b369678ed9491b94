// Package sink delivers one FormRecord to the remote submission endpoint.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/roach88/gpsform/internal/record"
)

const (
	// DefaultTimeout is the default timeout for one delivery attempt.
	DefaultTimeout = 10 * time.Second

	// IdempotencyHeader carries the record's submission key.
	IdempotencyHeader = "Idempotency-Key"

	// maxErrorBody caps how much of a rejected response body is kept.
	maxErrorBody = 512
)

// UserAgent is the user agent string for delivery requests.
var UserAgent = "gpsform/" + record.Version

// Sink performs the network call for one record.
//
// Send makes exactly one attempt and never mutates local state. A failed
// attempt returns a DELIVERY_FAILED record.Error.
type Sink interface {
	Send(ctx context.Context, rec record.FormRecord) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, rec record.FormRecord) error

// Send calls f.
func (f Func) Send(ctx context.Context, rec record.FormRecord) error {
	return f(ctx, rec)
}

// HTTPSink POSTs records as JSON.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	tracing  bool
}

// Option configures an HTTPSink.
type Option func(*HTTPSink)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPSink) {
		s.client = c
	}
}

// WithTimeout sets the per-attempt timeout. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTracing wraps the transport with OpenTelemetry instrumentation.
func WithTracing(enabled bool) Option {
	return func(s *HTTPSink) {
		s.tracing = enabled
	}
}

// NewHTTPSink creates a sink posting to endpoint.
func NewHTTPSink(endpoint string, opts ...Option) *HTTPSink {
	s := &HTTPSink{
		endpoint: endpoint,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	client := &http.Client{}
	if s.client != nil {
		c := *s.client
		client = &c
	}
	client.Timeout = s.timeout
	// A followed 301/302/303 turns the POST into a bodyless GET
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	s.client = client

	if s.tracing {
		base := s.client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		s.client.Transport = otelhttp.NewTransport(base,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "sink " + r.Method
			}),
		)
	}
	return s
}

// Endpoint returns the submission URL.
func (s *HTTPSink) Endpoint() string {
	return s.endpoint
}

// Send delivers rec. Only a 2xx response counts as delivered; redirects are
// not followed and fail like any other non-2xx status.
func (s *HTTPSink) Send(ctx context.Context, rec record.FormRecord) error {
	body, err := json.Marshal(rec.Payload())
	if err != nil {
		return record.NewDeliveryError(rec.ID, 0, fmt.Errorf("failed to encode payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return record.NewDeliveryError(rec.ID, 0, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if rec.Key != "" {
		req.Header.Set(IdempotencyHeader, rec.Key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return record.NewDeliveryError(rec.ID, 0, fmt.Errorf("failed to execute request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return record.NewDeliveryError(rec.ID, resp.StatusCode,
			fmt.Errorf("HTTP %d for URL %s: %s", resp.StatusCode, s.endpoint, bytes.TrimSpace(snippet)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
