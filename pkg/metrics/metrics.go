package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "opencoder", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "opencoder", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DraftGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "opencoder", Name: "draft_generations_total", Help: "Number of finished draft generations by outcome."},
		[]string{"outcome"},
	)
	DraftSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "opencoder", Name: "draft_submissions_total", Help: "Number of draft submission attempts by outcome."},
		[]string{"outcome"},
	)
	DraftExports = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "opencoder", Name: "draft_exports_total", Help: "Number of successful draft PDF exports."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DraftGenerations)
	reg.MustRegister(DraftSubmissions)
	reg.MustRegister(DraftExports)
}
