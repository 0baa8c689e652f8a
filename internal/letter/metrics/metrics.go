package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the letter module.
type Metrics struct {
	Submitted prometheus.Counter
	Verified  prometheus.Counter
	Rejected  prometheus.Counter
	Denied    *prometheus.CounterVec
}

// New creates and registers all letter metrics.
func New() *Metrics {
	return &Metrics{
		Submitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "courier_letters_submitted_total",
			Help: "Total number of letters submitted",
		}),
		Verified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "courier_letters_verified_total",
			Help: "Total number of letters verified",
		}),
		Rejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "courier_letters_rejected_total",
			Help: "Total number of letters rejected at verification",
		}),
		Denied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_letter_transitions_denied_total",
			Help: "Verification transitions denied, by reason",
		}, []string{"reason"}),
	}
}
