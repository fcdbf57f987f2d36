// Package metrics exposes Prometheus collectors for the crawl and an optional status server.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal           *prometheus.CounterVec
	bytesTotal           prometheus.Counter
	fetchDurationSeconds *prometheus.HistogramVec
	linksTotal           *prometheus.CounterVec
	dedupTotal           *prometheus.CounterVec
	robotsFetchesTotal   *prometheus.CounterVec
	frontierEntries      *prometheus.GaugeVec
	activeWorkers        prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webcorpus_pages_total",
				Help: "Total number of fetch outcomes, labeled by class.",
			},
			[]string{"class"},
		)

		bytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webcorpus_bytes_total",
				Help: "Total number of response body bytes read.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webcorpus_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by HTTP status code.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"code"},
		)

		linksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webcorpus_links_total",
				Help: "Total number of extracted links, labeled by frontier add result.",
			},
			[]string{"result"},
		)

		dedupTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webcorpus_dedup_verdicts_total",
				Help: "Total number of duplicate checks, labeled by verdict.",
			},
			[]string{"verdict"},
		)

		robotsFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webcorpus_robots_fetches_total",
				Help: "Total number of robots.txt fetches, labeled by whether the host was opened fully.",
			},
			[]string{"allow_all"},
		)

		frontierEntries = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "webcorpus_frontier_entries",
				Help: "Number of frontier entries, labeled by state.",
			},
			[]string{"state"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webcorpus_active_workers",
				Help: "Number of workers currently processing a URL.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch outcome.
func ObserveFetch(class string, status int, bytesRead int, duration time.Duration) {
	pagesTotal.WithLabelValues(class).Inc()
	if bytesRead > 0 {
		bytesTotal.Add(float64(bytesRead))
	}
	if status > 0 {
		fetchDurationSeconds.WithLabelValues(strconv.Itoa(status)).Observe(duration.Seconds())
	}
}

// ObserveLink records the frontier's answer for one extracted link.
func ObserveLink(result string) {
	linksTotal.WithLabelValues(result).Inc()
}

// ObserveVerdict records one duplicate check.
func ObserveVerdict(verdict string) {
	dedupTotal.WithLabelValues(verdict).Inc()
}

// ObserveRobotsFetch records one robots.txt fetch.
func ObserveRobotsFetch(allowAll bool) {
	robotsFetchesTotal.WithLabelValues(strconv.FormatBool(allowAll)).Inc()
}

// SetFrontier publishes the frontier's per-state counts.
func SetFrontier(queued, inProgress, done, failed int) {
	frontierEntries.WithLabelValues("queued").Set(float64(queued))
	frontierEntries.WithLabelValues("in_progress").Set(float64(inProgress))
	frontierEntries.WithLabelValues("done").Set(float64(done))
	frontierEntries.WithLabelValues("failed").Set(float64(failed))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
