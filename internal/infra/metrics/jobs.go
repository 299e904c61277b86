package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsTotal, jobDurationSeconds, jobsInFlight, jobPeakMemoryMB) }

var jobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_jobs_total",
		Help: "Total generation jobs by kind and terminal status.",
	},
	[]string{"kind", "status"},
)

var jobDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "generation_job_duration_seconds",
		Help:    "End-to-end job duration distribution.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	},
	[]string{"kind", "variant"},
)

var jobsInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "generation_jobs_in_flight",
		Help: "Jobs currently owned by a worker.",
	},
)

var jobPeakMemoryMB = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "generation_job_peak_memory_mb",
		Help:    "Estimated peak GPU memory per job in MB.",
		Buckets: []float64{1024, 2048, 4096, 8192, 12288, 16384, 24576},
	},
	[]string{"kind", "variant"},
)

func IncJob(kind, status string) {
	jobsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func ObserveJobDuration(kind, variant string, seconds float64) {
	jobDurationSeconds.WithLabelValues(norm(kind), norm(variant)).Observe(seconds)
}

func ObserveJobPeakMemory(kind, variant string, mb float64) {
	jobPeakMemoryMB.WithLabelValues(norm(kind), norm(variant)).Observe(mb)
}

func SetJobsInFlight(n int) { jobsInFlight.Set(float64(n)) }
