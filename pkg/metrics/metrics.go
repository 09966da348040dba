// Package metrics exposes the Prometheus metrics of the ChurchTools client.
// The metrics themselves are defined in their packages (client, cache,
// ratelimit, pagination) and registered via promauto on the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves all registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Names lists every metric the module registers.
var Names = []string{
	// pkg/client
	"ct_requests_total",
	"ct_request_duration_seconds",
	"ct_errors_total",
	"ct_retries_total",
	"ct_retry_backoff_seconds",
	"ct_retry_exhausted_total",
	// pkg/cache
	"ct_cache_hits_total",
	"ct_cache_misses_total",
	"ct_304_responses_total",
	"ct_cache_invalidations_total",
	"ct_cache_errors_total",
	// pkg/ratelimit
	"ct_rate_limit_blocks_total",
	"ct_rate_limit_waits_total",
	"ct_rate_limit_blocked_seconds",
	// pkg/pagination
	"ct_pagination_pages_fetched_total",
	"ct_pagination_aggregations_total",
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - ct_requests_total{endpoint, status} (Counter): requests by endpoint and HTTP status
//     (plus "cache_hit", "network_error", "rate_limited")
//   - ct_request_duration_seconds{endpoint} (Histogram)
//   - ct_errors_total{class} (Counter): client, server, rate_limit, network
//
// Retry Metrics (pkg/client):
//   - ct_retries_total{error_class} (Counter)
//   - ct_retry_backoff_seconds{error_class} (Histogram)
//   - ct_retry_exhausted_total{error_class} (Counter)
//
// Cache Metrics (pkg/cache):
//   - ct_cache_hits_total, ct_cache_misses_total (Counter)
//   - ct_304_responses_total (Counter): revalidated responses served from cache
//   - ct_cache_invalidations_total (Counter): keys dropped after writes
//   - ct_cache_errors_total{operation} (Counter)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ct_rate_limit_blocks_total (Counter): requests refused because Retry-After was too long
//   - ct_rate_limit_waits_total (Counter): requests delayed until the window passed
//   - ct_rate_limit_blocked_seconds (Gauge): last Retry-After window
//
// Pagination Metrics (pkg/pagination):
//   - ct_pagination_pages_fetched_total (Counter): follow-up pages fetched
//   - ct_pagination_aggregations_total{result} (Counter): single, collection, error
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(ct_cache_hits_total[5m])) /
//   (sum(rate(ct_cache_hits_total[5m])) + sum(rate(ct_cache_misses_total[5m])))
//
//   # Pages per aggregated list
//   rate(ct_pagination_pages_fetched_total[5m]) /
//   rate(ct_pagination_aggregations_total{result="collection"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(ct_request_duration_seconds_bucket[5m]))
