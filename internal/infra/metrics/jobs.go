package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsProcessedTotal, jobDurationSeconds, jobPollAttempts, jobsSweptTotal) }

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_jobs_processed_total",
		Help: "Total number of generation jobs processed, labeled by terminal status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var jobDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "generation_job_duration_seconds",
		Help:    "Wall-clock time from claim to terminal state.",
		Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160, 320},
	},
	[]string{"status"},
)

var jobPollAttempts = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "generation_job_poll_attempts",
		Help:    "Number of backend polls issued per job.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 30},
	},
)

var jobsSweptTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "generation_jobs_swept_total",
		Help: "Terminal job records removed by the retention sweeper.",
	},
)

func ObserveJob(status string, seconds float64, polls int) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
	jobDurationSeconds.WithLabelValues(norm(status)).Observe(seconds)
	jobPollAttempts.Observe(float64(polls))
}

func AddJobsSwept(n int) {
	jobsSweptTotal.Add(float64(n))
}
