package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the availability engine.
type BookingMetrics struct {
	operations   *prometheus.CounterVec
	availability *prometheus.HistogramVec
	lockWait     prometheus.Histogram
	slotsServed  prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by kind and outcome",
		}, []string{"operation", "outcome"}),
		availability: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicbook",
			Subsystem: "availability",
			Name:      "query_seconds",
			Help:      "Latency of free-slot and conflict queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicbook",
			Subsystem: "booking",
			Name:      "doctor_lock_wait_seconds",
			Help:      "Time spent waiting for the per-doctor reservation lock",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		slotsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "availability",
			Name:      "slots_served_total",
			Help:      "Free slots returned to callers",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operations, m.availability, m.lockWait, m.slotsServed)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveQuery(query string, seconds float64) {
	if m == nil {
		return
	}
	m.availability.WithLabelValues(query).Observe(seconds)
}

func (m *BookingMetrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.lockWait.Observe(seconds)
}

func (m *BookingMetrics) AddSlotsServed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.slotsServed.Add(float64(n))
}
