package multicast

import (
	"time"

	"github.com/creastat/multicast/core"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics records multicast activity as Prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	invocations  *prometheus.CounterVec
	branches     *prometheus.CounterVec
	aggregations *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewMetrics creates the multicast collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multicast_invocations_total",
				Help: "Total number of multicast invocations.",
			},
			[]string{"multicast", "mode", "outcome"},
		),
		branches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multicast_branches_total",
				Help: "Total number of executed multicast branches.",
			},
			[]string{"multicast", "mode", "outcome"},
		),
		aggregations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multicast_aggregations_total",
				Help: "Total number of branch results merged into a multicast result.",
			},
			[]string{"multicast", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "multicast_invocation_duration_seconds",
				Help:    "Multicast invocation duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"multicast", "mode"},
		),
	}

	reg.MustRegister(m.invocations, m.branches, m.aggregations, m.duration)
	return m
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}

func (m *Metrics) observeInvocation(name string, mode core.ExecutionMode, start time.Time, err error) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(name, string(mode), outcome(err)).Inc()
	m.duration.WithLabelValues(name, string(mode)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeBranch(name string, mode core.ExecutionMode, err error) {
	if m == nil {
		return
	}
	m.branches.WithLabelValues(name, string(mode), outcome(err)).Inc()
}

func (m *Metrics) observeAggregation(name string, err error) {
	if m == nil {
		return
	}
	m.aggregations.WithLabelValues(name, outcome(err)).Inc()
}
