// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts served API requests by route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_gateway_http_requests_total",
		Help: "The total number of API requests by route and status code",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calendar_gateway_http_request_duration_seconds",
		Help:    "The API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// UpstreamRequestsTotal counts outbound provider calls.
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_gateway_upstream_requests_total",
		Help: "The total number of outbound provider requests by status code",
	}, []string{"code", "method"})

	// UpstreamRequestDuration observes outbound provider latency.
	UpstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calendar_gateway_upstream_request_duration_seconds",
		Help:    "The outbound provider request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"code", "method"})

	// TokenRefreshTotal counts token refresh attempts by provider and outcome.
	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_gateway_token_refresh_total",
		Help: "The total number of provider token refreshes",
	}, []string{"provider", "status"})

	// IntegrationActionsTotal mirrors the integration log by provider, action and status.
	IntegrationActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_gateway_integration_actions_total",
		Help: "The total number of integration actions",
	}, []string{"provider", "action", "status"})

	// RateLimitExceededTotal counts rejected requests.
	RateLimitExceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calendar_gateway_rate_limit_exceeded_total",
		Help: "The total number of rate limit exceeded events",
	})
)

// InstrumentedClient returns an HTTP client whose transport records upstream metrics.
func InstrumentedClient(timeout time.Duration) *http.Client {
	var transport http.RoundTripper = http.DefaultTransport
	transport = promhttp.InstrumentRoundTripperCounter(UpstreamRequestsTotal, transport)
	transport = promhttp.InstrumentRoundTripperDuration(UpstreamRequestDuration, transport)
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
