package handler

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry
	searches *prometheus.CounterVec
	results  prometheus.Histogram
	entries  prometheus.Gauge
	requests *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flatjson_searches_total",
			Help: "Searches run, by target and match mode.",
		}, []string{"target", "mode"}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flatjson_search_results",
			Help:    "Number of entries returned per search.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flatjson_entries",
			Help: "Entries held in the flat map.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flatjson_http_requests_total",
			Help: "HTTP requests served, by method and status code.",
		}, []string{"method", "code"}),
	}
	m.registry.MustRegister(m.searches, m.results, m.entries, m.requests)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (m *metrics) observe(method string, status int) {
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
