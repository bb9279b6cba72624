package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PortalMetrics exposes counters/histograms for availability and booking flows.
type PortalMetrics struct {
	availabilityTotal *prometheus.CounterVec
	slotsOffered      prometheus.Histogram
	submissionsTotal  *prometheus.CounterVec
	upstreamLatency   *prometheus.HistogramVec
}

// Booking submission outcomes.
const (
	OutcomeBooked   = "booked"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

func NewPortalMetrics(reg prometheus.Registerer) *PortalMetrics {
	m := &PortalMetrics{
		availabilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "availability",
			Name:      "computations_total",
			Help:      "Total availability windows computed",
		}, []string{"source"}),
		slotsOffered: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "availability",
			Name:      "slots_offered",
			Help:      "Bookable slots offered per computed window",
			Buckets:   []float64{0, 10, 25, 50, 75, 100, 125, 154},
		}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Booking submissions by outcome",
		}, []string{"outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Latency of calls to the booking backend",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.availabilityTotal, m.slotsOffered, m.submissionsTotal, m.upstreamLatency)
	return m
}

// ObserveAvailability records one computed window and how many slots it offered.
func (m *PortalMetrics) ObserveAvailability(source string, slots int) {
	if m == nil {
		return
	}
	m.availabilityTotal.WithLabelValues(source).Inc()
	m.slotsOffered.Observe(float64(slots))
}

func (m *PortalMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *PortalMetrics) ObserveUpstream(endpoint, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(endpoint, status).Observe(elapsed.Seconds())
}
