// Package metrics exposes Prometheus collectors for the service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlsStartedTotal         *prometheus.CounterVec
	crawlsFailedTotal          *prometheus.CounterVec
	crawlWorkersRemovedTotal   prometheus.Counter
	questionsTotal             *prometheus.CounterVec
	searchErrorsTotal          *prometheus.CounterVec
	askDurationSeconds         *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlsStartedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_crawls_started_total",
				Help: "Total number of crawl workers started, labeled by site.",
			},
			[]string{"site"},
		)

		crawlsFailedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_crawls_failed_total",
				Help: "Total number of crawl starts that failed, labeled by site.",
			},
			[]string{"site"},
		)

		crawlWorkersRemovedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kb_crawl_workers_removed_total",
				Help: "Total number of completed crawl workers removed.",
			},
		)

		questionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_questions_total",
				Help: "Total number of questions answered, labeled by style.",
			},
			[]string{"style"},
		)

		searchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_search_errors_total",
				Help: "Total number of per-target search failures, labeled by knowledge base.",
			},
			[]string{"knowledge_base"},
		)

		askDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kb_ask_duration_seconds",
				Help:    "Histogram of end-to-end ask latencies, labeled by style.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"style"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawlStart records the outcome of one crawl start attempt.
func ObserveCrawlStart(site string, err error) {
	sanitized := SanitizeSite(site)
	if err != nil {
		crawlsFailedTotal.WithLabelValues(sanitized).Inc()
		return
	}
	crawlsStartedTotal.WithLabelValues(sanitized).Inc()
}

// ObserveWorkersRemoved adds to the removed-workers counter.
func ObserveWorkersRemoved(n int) {
	if n > 0 {
		crawlWorkersRemovedTotal.Add(float64(n))
	}
}

// ObserveAsk records one answered question batch.
func ObserveAsk(style string, questions int, duration time.Duration) {
	questionsTotal.WithLabelValues(style).Add(float64(questions))
	askDurationSeconds.WithLabelValues(style).Observe(duration.Seconds())
}

// ObserveSearchError increments the per-target search failure counter.
func ObserveSearchError(knowledgeBase string) {
	searchErrorsTotal.WithLabelValues(knowledgeBase).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
