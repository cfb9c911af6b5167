package metrics

import "github.com/prometheus/client_golang/prometheus"

// RescheduleMetrics exposes counters/histograms for reschedule flows.
type RescheduleMetrics struct {
	requestsTotal         *prometheus.CounterVec
	vendorCallsTotal      *prometheus.CounterVec
	fallbackTotal         prometheus.Counter
	rollbackActionsTotal  prometheus.Counter
	rollbackFailuresTotal prometheus.Counter
	requestDuration       prometheus.Histogram
}

func NewRescheduleMetrics(reg prometheus.Registerer) *RescheduleMetrics {
	m := &RescheduleMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "reschedule",
			Name:      "requests_total",
			Help:      "Total reschedule requests by outcome",
		}, []string{"outcome"}),
		vendorCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "reschedule",
			Name:      "vendor_calls_total",
			Help:      "Total outbound Meevo API calls",
		}, []string{"operation", "status"}),
		fallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "reschedule",
			Name:      "cancel_rebook_total",
			Help:      "Reschedules that fell back to cancel and rebook",
		}),
		rollbackActionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "reschedule",
			Name:      "rollback_actions_total",
			Help:      "Compensating actions executed during rollbacks",
		}),
		rollbackFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "reschedule",
			Name:      "rollback_failures_total",
			Help:      "Compensating actions that themselves failed",
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "reschedule",
			Name:      "request_duration_seconds",
			Help:      "End-to-end latency of reschedule requests",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.requestsTotal,
		m.vendorCallsTotal,
		m.fallbackTotal,
		m.rollbackActionsTotal,
		m.rollbackFailuresTotal,
		m.requestDuration,
	)
	return m
}

// ObserveRequest records one finished request and its latency.
func (m *RescheduleMetrics) ObserveRequest(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.Observe(seconds)
}

// ObserveVendorCall implements meevo.CallObserver.
func (m *RescheduleMetrics) ObserveVendorCall(operation, status string) {
	if m == nil {
		return
	}
	m.vendorCallsTotal.WithLabelValues(operation, status).Inc()
}

// ObserveFallback records entry into the cancel-rebook path.
func (m *RescheduleMetrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.fallbackTotal.Inc()
}

// ObserveRollback records one unwind of the compensation log.
func (m *RescheduleMetrics) ObserveRollback(actions, failures int) {
	if m == nil {
		return
	}
	m.rollbackActionsTotal.Add(float64(actions))
	m.rollbackFailuresTotal.Add(float64(failures))
}
