// Package metrics exposes the Prometheus registry used by webreq.
// All metrics are defined in their respective packages (client, ratelimit,
// pagination) via promauto.With(Registry) and register themselves on import.
//
// This package provides the scrape handler and a reference of the
// available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every webreq metric is created on.
var Registry prometheus.Registerer = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving every registered metric.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - webreq_ratelimit_admissions_total{result} (Counter): Admission checks by result (granted, denied, error)
//   - webreq_ratelimit_wait_seconds (Histogram): Time spent in Gate.Wait until admitted
//   - webreq_ratelimit_swaps_total (Counter): Limiter replacements via Swap/SetRate
//
// Request Metrics (pkg/client):
//   - webreq_requests_total{endpoint, method, status} (Counter): Requests by path template, method and HTTP status
//   - webreq_request_duration_seconds{endpoint} (Histogram): Round-trip duration by path template
//   - webreq_errors_total{class} (Counter): Errors by class (malformed, unsupported_method, encode, rate_limit, network)
//
// Pagination Metrics (pkg/pagination):
//   - webreq_pagination_pages_total{style, result} (Counter): Pages requested by style and result
//   - webreq_pagination_items_total{style} (Counter): Items collected by style
//   - webreq_pagination_backoff_seconds{style} (Histogram): Backoff before re-requesting a failed page
//   - webreq_pagination_aborts_total{style} (Counter): Drains aborted after too many failed pages
//
// Example Prometheus Queries:
//
//   # Admission denial ratio
//   sum(rate(webreq_ratelimit_admissions_total{result="denied"}[5m])) /
//   sum(rate(webreq_ratelimit_admissions_total[5m]))
//
//   # Failed page rate
//   rate(webreq_pagination_pages_total{result="failure"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(webreq_request_duration_seconds_bucket[5m]))
