package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the routing module.
type Metrics struct {
	Created   *prometheus.CounterVec
	Unmatched prometheus.Counter
	Advanced  prometheus.Counter
	Delivered prometheus.Counter
	Rejected  prometheus.Counter
}

// New creates and registers all routing metrics.
func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_routings_created_total",
			Help: "Total document routings created, by origin (rule or manual)",
		}, []string{"origin"}),
		Unmatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "courier_routings_unmatched_total",
			Help: "Total routing attempts where no rule matched",
		}),
		Advanced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "courier_routings_advanced_total",
			Help: "Total document routing advance transitions",
		}),
		Delivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "courier_routings_delivered_total",
			Help: "Total document routings delivered",
		}),
		Rejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "courier_routings_rejected_total",
			Help: "Total document routings rejected",
		}),
	}
}
