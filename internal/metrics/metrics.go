// Package metrics exposes Prometheus counters and histograms for the
// control plane's own operation (ingest volume, request latency, OHLC
// query cost, per-stream rows loaded by /data), served at GET /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_requests_total",
		Help: "Count of /ingest/<stream> requests by stream.",
	}, []string{"stream"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	OHLCQueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ohlc_query_duration_seconds",
		Help:    "Latency of OHLC bucket aggregation.",
		Buckets: prometheus.DefBuckets,
	})

	StoreRows = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "store_rows",
		Help: "Most recently observed row count per stream.",
	}, []string{"stream"})
)

func init() {
	prometheus.MustRegister(IngestRequests, HTTPRequestDuration, OHLCQueryDuration, StoreRows)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRoute records one request's latency against route.
func ObserveRoute(route string, start time.Time) {
	HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
