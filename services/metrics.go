package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the counters exported on /metrics. A nil *Metrics records nothing.
type Metrics struct {
	checkinsCreated *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	responses       *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	tickDuration    *prometheus.HistogramVec
	tickFailures    *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		checkinsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesignal_checkins_created_total",
			Help: "Check-ins created by source",
		}, []string{"source"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesignal_delivery_attempts_total",
			Help: "Delivery attempts by type and status",
		}, []string{"attempt_type", "status"}),
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesignal_responses_total",
			Help: "Recorded check-in responses by response type",
		}, []string{"response_type"}),
		escalations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesignal_escalations_total",
			Help: "Escalation outcomes",
		}, []string{"result"}),
		tickDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifesignal_tick_duration_seconds",
			Help:    "Tick duration by job",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"job"}),
		tickFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesignal_tick_failures_total",
			Help: "Ticks aborted by a tick-level error",
		}, []string{"job"}),
	}
}

func (m *Metrics) checkinCreated(source string) {
	if m != nil {
		m.checkinsCreated.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) delivery(attemptType, status string) {
	if m != nil {
		m.deliveries.WithLabelValues(attemptType, status).Inc()
	}
}

func (m *Metrics) response(responseType string) {
	if m != nil {
		m.responses.WithLabelValues(responseType).Inc()
	}
}

func (m *Metrics) escalation(result string) {
	if m != nil {
		m.escalations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) escalationN(result string, n float64) {
	if m != nil {
		m.escalations.WithLabelValues(result).Add(n)
	}
}

func (m *Metrics) tick(job string, seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.tickDuration.WithLabelValues(job).Observe(seconds)
	if failed {
		m.tickFailures.WithLabelValues(job).Inc()
	}
}
