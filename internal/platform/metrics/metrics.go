package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ElectionsCreated prometheus.Counter
	ElectionsDeleted prometheus.Counter
	VotesCast        prometheus.Counter
	VotesRejected    *prometheus.CounterVec
	EmailsSent       prometheus.Counter
	EmailsFailed     prometheus.Counter
	SweepTransitions prometheus.Counter
	RequestLatency   *prometheus.HistogramVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics against reg. Tests pass a fresh registry so
// parallel constructions never collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ElectionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballotbox_elections_created_total",
			Help: "Total number of elections created",
		}),
		ElectionsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballotbox_elections_deleted_total",
			Help: "Total number of elections deleted by their creator",
		}),
		VotesCast: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballotbox_votes_cast_total",
			Help: "Total number of accepted ballots",
		}),
		VotesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbox_votes_rejected_total",
			Help: "Total number of rejected verify or cast attempts by reason",
		}, []string{"reason"}),
		EmailsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballotbox_emails_sent_total",
			Help: "Total number of notification emails delivered",
		}),
		EmailsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballotbox_emails_failed_total",
			Help: "Total number of notification emails that failed to send",
		}),
		SweepTransitions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballotbox_sweep_transitions_total",
			Help: "Total number of elections advanced to completed by the sweeper",
		}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ballotbox_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
