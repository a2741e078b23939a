// Package carriers holds the outbound carrier integrations. Every adapter
// talks to its carrier through a gateway that owns the timeout, the bearer
// token, the circuit breaker and the call telemetry.
package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lms-platform/shipping-core/internal/domain"
	"github.com/lms-platform/shipping-core/pkg/logging"
	"github.com/lms-platform/shipping-core/pkg/metrics"
	"github.com/lms-platform/shipping-core/pkg/resilience"
	"github.com/lms-platform/shipping-core/pkg/tracing"
)

// StatusError is a carrier response outside the 2xx range
type StatusError struct {
	Carrier string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Carrier, e.Status, e.Body)
}

// softError marks a quote the carrier cannot serve. It never leaves the package.
type softError struct {
	reason string
}

func (e *softError) Error() string {
	return e.reason
}

func soft(format string, args ...any) error {
	return &softError{reason: fmt.Sprintf(format, args...)}
}

// request describes one carrier call. At most one of JSON and Form is set.
type request struct {
	Operation string
	Method    string
	Path      string
	Query     url.Values
	JSON      any
	Form      url.Values
}

type response struct {
	Status int
	Body   []byte
}

func (r *response) decode(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Deps are the shared collaborators every adapter needs
type Deps struct {
	HTTPClient *http.Client
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
	Breakers   *resilience.CircuitBreakerRegistry
}

func (d Deps) withDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{}
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Breakers == nil {
		d.Breakers = resilience.NewCircuitBreakerRegistry(d.Logger.Logger)
	}
	return d
}

type gateway struct {
	carrier    string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	logger     *logging.Logger
	metrics    *metrics.Metrics

	// exactly one of tokens and authorize is set
	tokens    *tokenCache
	authorize func(*http.Request)
}

func newGateway(carrier, baseURL string, timeout time.Duration, deps Deps) *gateway {
	deps = deps.withDefaults()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cfg := resilience.DefaultCircuitBreakerConfig("carrier-" + carrier)
	cfg.OnStateChange = func(name string, _, to gobreaker.State) {
		deps.Metrics.SetCircuitBreakerState(name, int(to))
		if to == gobreaker.StateOpen {
			deps.Metrics.RecordCircuitBreakerTrip(name)
		}
	}

	return &gateway{
		carrier:    carrier,
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: deps.HTTPClient,
		breaker:    deps.Breakers.GetWithConfig(cfg),
		logger:     deps.Logger.WithComponent("carrier-" + carrier),
		metrics:    deps.Metrics,
	}
}

// do runs one call under the carrier timeout and circuit breaker. A 401 on a
// bearer-authenticated call invalidates the token, logs in once more and
// replays the call exactly once. Transport failures and 5xx responses count
// against the breaker; other statuses are returned to the caller untouched.
func (g *gateway) do(ctx context.Context, req request) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := tracing.Start(ctx, g.carrier+"."+req.Operation, trace.SpanKindClient,
		tracing.CarrierAttributes(g.carrier, req.Operation)...)

	start := time.Now()
	res, err := resilience.ExecuteWithResult(ctx, g.breaker, func() (*response, error) {
		return g.send(ctx, req)
	})
	duration := time.Since(start)

	status := 0
	if res != nil {
		status = res.Status
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	var se *StatusError
	if errors.As(err, &se) {
		status = se.Status
	}

	g.metrics.RecordCarrierCall(g.carrier, req.Operation, duration)
	g.logger.CarrierCall(ctx, g.carrier, req.Operation, status, duration, err)
	tracing.End(span, err)

	return res, err
}

func (g *gateway) send(ctx context.Context, req request) (*response, error) {
	if g.tokens == nil {
		return g.sendOnce(ctx, req, "")
	}

	token, err := g.tokens.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s login failed: %w", g.carrier, err)
	}

	res, err := g.sendOnce(ctx, req, token)
	if err != nil || res.Status != http.StatusUnauthorized {
		return res, err
	}

	g.tokens.Invalidate(token)
	token, err = g.tokens.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s login failed: %w", g.carrier, err)
	}
	return g.sendOnce(ctx, req, token)
}

func (g *gateway) sendOnce(ctx context.Context, req request, token string) (*response, error) {
	endpoint := g.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		payload, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	} else if g.authorize != nil {
		g.authorize(httpReq)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &StatusError{Carrier: g.carrier, Status: resp.StatusCode, Body: truncate(data)}
	}
	return &response{Status: resp.StatusCode, Body: data}, nil
}

// expectOK turns a non-2xx response into a StatusError
func (g *gateway) expectOK(res *response) error {
	if res.Status < 200 || res.Status > 299 {
		return &StatusError{Carrier: g.carrier, Status: res.Status, Body: truncate(res.Body)}
	}
	return nil
}

// refusal turns a 4xx answer to a shipment operation into a
// CarrierRejectedError. Other non-2xx answers become a StatusError.
func (g *gateway) refusal(res *response, operation, awb string) error {
	if res.Status >= 400 && res.Status < 500 {
		return &domain.CarrierRejectedError{Carrier: g.carrier, Operation: operation, AWB: awb, Reason: truncate(res.Body)}
	}
	return g.expectOK(res)
}

// quote runs fn with one immediate retry on transport failures. Soft
// failures and carrier statuses become a nil quote.
func (g *gateway) quote(ctx context.Context, fn func(ctx context.Context) (*domain.ChargeBreakdown, error)) (*domain.ChargeBreakdown, error) {
	return quoteWith(ctx, g, fn)
}

func quoteWith[T any](ctx context.Context, g *gateway, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg := resilience.ImmediateRetryConfig(isTransient)
	quote, err := resilience.RetryWithResult(ctx, cfg, func() (T, error) {
		return fn(ctx)
	})

	var zero T
	var se *softError
	var status *StatusError
	switch {
	case err == nil:
		return quote, nil
	case errors.As(err, &se), errors.As(err, &status):
		g.logger.WithContext(ctx).Debug("Carrier cannot quote", "carrier", g.carrier, "reason", err.Error())
		return zero, nil
	default:
		return zero, err
	}
}

// isTransient reports whether a failed call may succeed if sent again at once
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

func truncate(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
