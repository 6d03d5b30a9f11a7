package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunequeue_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tunequeue_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tunequeue_http_requests_in_flight",
		Help: "API requests currently being served.",
	})

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunequeue_submissions_total",
			Help: "Download requests received, by source and result.",
		},
		[]string{"source", "result"},
	)

	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunequeue_jobs_completed_total",
			Help: "Jobs finished by workers, by outcome.",
		},
		[]string{"outcome"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tunequeue_job_duration_seconds",
			Help:    "Time from dequeue to outcome.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	WorkersBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunequeue_workers_busy",
			Help: "Number of workers currently holding a job.",
		},
	)

	ShutdownDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tunequeue_shutdown_dropped_jobs_total",
			Help: "Queued jobs discarded during shutdown.",
		},
	)

	HistoryPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunequeue_history_persisted_total",
			Help: "Outcome events written to history, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPInFlight,
		SubmissionsTotal,
		JobsCompletedTotal,
		JobDuration,
		WorkersBusy,
		ShutdownDroppedTotal,
		HistoryPersistedTotal,
	)
}

// RegisterQueueGauges exposes the live depth and capacity of the job queue.
func RegisterQueueGauges(length func() int, capacity int) {
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tunequeue_queue_length",
			Help: "Jobs waiting in the queue.",
		}, func() float64 { return float64(length()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tunequeue_queue_capacity",
			Help: "Configured queue capacity, 0 when unbounded.",
		}, func() float64 { return float64(capacity) }),
	)
}
