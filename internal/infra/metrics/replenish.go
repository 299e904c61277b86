package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(replenishEnqueuedTotal, verdictsTotal, breakerOpensTotal, subjectDeficit)
}

var replenishEnqueuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "replenish_jobs_enqueued_total",
		Help: "Jobs auto-enqueued by the replenishment controller.",
	},
)

var verdictsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quality_verdicts_total",
		Help: "Quality gate verdicts by outcome.",
	},
	[]string{"verdict"},
)

var breakerOpensTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "replenish_breaker_opens_total",
		Help: "Subjects paused by the consecutive-reject circuit breaker.",
	},
)

var subjectDeficit = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "subject_deficit",
		Help: "Remaining approved-output deficit per subject.",
	},
	[]string{"subject"},
)

func IncReplenishEnqueued(n int) { replenishEnqueuedTotal.Add(float64(n)) }

func IncVerdict(verdict string) { verdictsTotal.WithLabelValues(norm(verdict)).Inc() }

func IncBreakerOpen() { breakerOpensTotal.Inc() }

func SetSubjectDeficit(subject string, deficit int) {
	subjectDeficit.WithLabelValues(subject).Set(float64(deficit))
}
