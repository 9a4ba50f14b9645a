package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the slot pipeline
// and the booking gate.
type SchedulingMetrics struct {
	slotQueries    prometheus.Counter
	slotsReturned  prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
	reserveTotal   *prometheus.CounterVec
	reserveLatency prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		slotQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "availability",
			Name:      "slot_queries_total",
			Help:      "Total slot listing queries",
		}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agenda",
			Subsystem: "availability",
			Name:      "slots_returned",
			Help:      "Slots returned per listing query",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "availability",
			Name:      "cache_lookups_total",
			Help:      "Slot cache lookups by outcome",
		}, []string{"hit"}),
		reserveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "booking",
			Name:      "reserve_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		reserveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agenda",
			Subsystem: "booking",
			Name:      "reserve_latency_seconds",
			Help:      "Latency of reservation commits",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotQueries, m.slotsReturned, m.cacheLookups, m.reserveTotal, m.reserveLatency)
	return m
}

// ObserveSlotQuery records one listing query and its result size.
func (m *SchedulingMetrics) ObserveSlotQuery(days, slots int) {
	if m == nil {
		return
	}
	m.slotQueries.Inc()
	m.slotsReturned.Observe(float64(slots))
}

// ObserveCache records a slot cache hit or miss.
func (m *SchedulingMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	label := "false"
	if hit {
		label = "true"
	}
	m.cacheLookups.WithLabelValues(label).Inc()
}

// ObserveReserve records a reservation attempt outcome.
func (m *SchedulingMetrics) ObserveReserve(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.reserveTotal.WithLabelValues(outcome).Inc()
	m.reserveLatency.Observe(seconds)
}
