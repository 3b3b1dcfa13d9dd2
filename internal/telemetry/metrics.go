package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsSubmitted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "media_jobs_submitted_total", Help: "Total jobs accepted via the webhook"})
	JobsQueued       = prometheus.NewCounter(prometheus.CounterOpts{Name: "media_jobs_queued_total", Help: "Jobs that waited for an admission slot"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "media_jobs_completed_total", Help: "Jobs that reached completed"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "media_jobs_failed_total", Help: "Jobs that reached failed"})
	PostsProcessed   = prometheus.NewCounter(prometheus.CounterOpts{Name: "media_posts_processed_total", Help: "Posts processed successfully"})
	PostsFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "media_posts_failed_total", Help: "Posts whose pipeline failed"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "media_rate_limit_rejects_total", Help: "Submissions rejected by the rate limiter"})
	ActiveJobsGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "media_jobs_active", Help: "Jobs currently holding an admission slot"})
	QueuedJobsGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "media_jobs_waiting", Help: "Jobs waiting in the admission queue"})
	MemoryPressure   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "media_memory_pressure", Help: "1 when heap usage exceeds the configured limit"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsSubmitted,
			JobsQueued,
			JobsCompleted,
			JobsFailed,
			PostsProcessed,
			PostsFailed,
			RateLimitRejects,
			ActiveJobsGauge,
			QueuedJobsGauge,
			MemoryPressure,
		)
	})
	return promhttp.Handler()
}
