package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ShutdownFunc releases telemetry resources.
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global meter provider exporting to the default Prometheus
// registry. serviceName is published on the target_info series. The returned
// function must be called on exit.
func Setup(ctx context.Context, serviceName string) (ShutdownFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Metric label values shared by callers.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
)

// Metrics holds all OTel instruments for the authorization service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	httpRequestsTotal       otelmetric.Int64Counter
	httpRequestDuration     otelmetric.Float64Histogram
	authValidationsTotal    otelmetric.Int64Counter
	authzDecisionsTotal     otelmetric.Int64Counter
	tokensIssuedTotal       otelmetric.Int64Counter
	tokenRefreshesTotal     otelmetric.Int64Counter
	jwksRefreshesTotal      otelmetric.Int64Counter
	rateLimitDecisionsTotal otelmetric.Int64Counter
}

// NewMetrics creates and registers all service metrics.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("parss")
	m := &Metrics{}
	var err error

	latencyBuckets := otelmetric.WithExplicitBucketBoundaries(
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	)

	if m.httpRequestsTotal, err = meter.Int64Counter("parss_http_requests_total",
		otelmetric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("creating http_requests_total: %w", err)
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("parss_http_request_duration_seconds",
		otelmetric.WithDescription("HTTP request duration"), latencyBuckets); err != nil {
		return nil, fmt.Errorf("creating http_request_duration: %w", err)
	}
	if m.authValidationsTotal, err = meter.Int64Counter("parss_auth_validations_total",
		otelmetric.WithDescription("Total access token validations")); err != nil {
		return nil, fmt.Errorf("creating auth_validations_total: %w", err)
	}
	if m.authzDecisionsTotal, err = meter.Int64Counter("parss_authz_decisions_total",
		otelmetric.WithDescription("Total authorization decisions")); err != nil {
		return nil, fmt.Errorf("creating authz_decisions_total: %w", err)
	}
	if m.tokensIssuedTotal, err = meter.Int64Counter("parss_tokens_issued_total",
		otelmetric.WithDescription("Total credentials issued")); err != nil {
		return nil, fmt.Errorf("creating tokens_issued_total: %w", err)
	}
	if m.tokenRefreshesTotal, err = meter.Int64Counter("parss_token_refreshes_total",
		otelmetric.WithDescription("Total refresh attempts")); err != nil {
		return nil, fmt.Errorf("creating token_refreshes_total: %w", err)
	}
	if m.jwksRefreshesTotal, err = meter.Int64Counter("parss_jwks_refreshes_total",
		otelmetric.WithDescription("Total JWKS refreshes")); err != nil {
		return nil, fmt.Errorf("creating jwks_refreshes_total: %w", err)
	}
	if m.rateLimitDecisionsTotal, err = meter.Int64Counter("parss_ratelimit_decisions_total",
		otelmetric.WithDescription("Total rate limit decisions")); err != nil {
		return nil, fmt.Errorf("creating ratelimit_decisions_total: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric. route should be the
// route pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, durationSec float64) {
	if m == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		keyMethod.String(method),
		keyRoute.String(route),
		keyStatus.Int(status),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, durationSec, attrs)
}

// RecordAuthValidation records an access token validation result.
func (m *Metrics) RecordAuthValidation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.authValidationsTotal.Add(ctx, 1, otelmetric.WithAttributes(keyResult.String(result)))
}

// RecordAuthzDecision records a permission, role or institution check.
func (m *Metrics) RecordAuthzDecision(ctx context.Context, kind string, allowed bool) {
	if m == nil {
		return
	}
	result := ResultDenied
	if allowed {
		result = ResultAllowed
	}
	m.authzDecisionsTotal.Add(ctx, 1, otelmetric.WithAttributes(
		keyKind.String(kind),
		keyResult.String(result),
	))
}

// RecordTokenIssued records a credential issued by login or refresh.
func (m *Metrics) RecordTokenIssued(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.tokensIssuedTotal.Add(ctx, 1, otelmetric.WithAttributes(keyKind.String(kind)))
}

// RecordTokenRefresh records a refresh attempt.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.tokenRefreshesTotal.Add(ctx, 1, otelmetric.WithAttributes(keyResult.String(result)))
}

// RecordJWKSRefresh records a JWKS refresh attempt.
func (m *Metrics) RecordJWKSRefresh(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.jwksRefreshesTotal.Add(ctx, 1, otelmetric.WithAttributes(keyResult.String(result)))
}

// RecordRateLimitDecision records a rate limit decision.
func (m *Metrics) RecordRateLimitDecision(ctx context.Context, layer, result string) {
	if m == nil {
		return
	}
	m.rateLimitDecisionsTotal.Add(ctx, 1, otelmetric.WithAttributes(
		keyLayer.String(layer),
		keyResult.String(result),
	))
}
