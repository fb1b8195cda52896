package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler
	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_cycles_total",
			Help: "Total number of scheduler cycles by result.",
		},
		[]string{"result"},
	)
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "publish_cycle_duration_seconds",
			Help:    "Time spent in one scheduler cycle (seconds).",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)
	jobsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "publish_jobs_claimed_total",
			Help: "Total number of due jobs moved to RUNNING.",
		},
	)

	// Publishing
	publishAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_attempts_total",
			Help: "Publish attempts by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)
	publishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publish_request_duration_seconds",
			Help:    "Duration of a platform publish call (seconds).",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)
	publishRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_retries_total",
			Help: "Failed attempts that were rescheduled with backoff.",
		},
		[]string{"platform"},
	)
	publishTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_terminal_failures_total",
			Help: "Jobs that exhausted their attempts.",
		},
		[]string{"platform"},
	)

	// Bookkeeping
	rateLimitRecordFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_record_failures_total",
			Help: "Rate-limit counter updates that failed and were dropped.",
		},
	)
	stuckJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "publish_jobs_stuck",
			Help: "Jobs left RUNNING longer than the stuck threshold at the last audit.",
		},
	)
	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Access token refresh attempts by platform and result.",
		},
		[]string{"platform", "result"},
	)

	// Ops API
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			cycles,
			cycleDuration,
			jobsClaimed,

			publishAttempts,
			publishDuration,
			publishRetries,
			publishTerminal,

			rateLimitRecordFailures,
			stuckJobs,
			tokenRefreshes,

			httpRequests,
			httpDuration,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Scheduler ---
func ObserveCycle(result string, d time.Duration) {
	cycles.WithLabelValues(result).Inc()
	cycleDuration.Observe(d.Seconds())
}
func IncJobsClaimed() { jobsClaimed.Inc() }

// --- Publishing ---
func ObservePublish(platform, outcome string, d time.Duration) {
	publishAttempts.WithLabelValues(platform, outcome).Inc()
	publishDuration.WithLabelValues(platform).Observe(d.Seconds())
}
func IncRetry(platform string)           { publishRetries.WithLabelValues(platform).Inc() }
func IncTerminalFailure(platform string) { publishTerminal.WithLabelValues(platform).Inc() }

// --- Bookkeeping ---
func IncRateLimitRecordFailure() { rateLimitRecordFailures.Inc() }
func SetStuckJobs(n int) {
	if n < 0 {
		n = 0
	}
	stuckJobs.Set(float64(n))
}
func IncTokenRefresh(platform, result string) { tokenRefreshes.WithLabelValues(platform, result).Inc() }

// --- HTTP ---
func ObserveHTTPRequest(method, route, code string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}
