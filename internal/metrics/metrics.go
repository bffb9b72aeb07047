// Package metrics defines the Prometheus instrumentation a Driver
// exposes. Unlike a typical controller that registers into the global
// default registry, each Driver owns its own *prometheus.Registry so
// that more than one simulation can run in the same process without
// their counters colliding.
//
// Metric naming follows Prometheus conventions:
//   - scarab_ prefix for all metrics
//   - _total suffix for counters
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter and gauge a Driver updates over its
// lifetime.
type Metrics struct {
	// ClockTicksTotal counts steps taken by the driver.
	ClockTicksTotal prometheus.Counter

	// EventsRoutedTotal counts events routed, labeled by kind.
	EventsRoutedTotal *prometheus.CounterVec

	// HandlerFaultsTotal counts recovered handler panics.
	HandlerFaultsTotal prometheus.Counter

	// LiveEntities is the current count of admitted, not-yet-destroyed
	// entities.
	LiveEntities prometheus.Gauge
}

// New constructs a Metrics bundle and registers every collector with
// reg. reg is typically a fresh *prometheus.Registry owned by a single
// Driver, not prometheus.DefaultRegisterer.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ClockTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scarab_clock_ticks_total",
			Help: "Total number of simulation steps taken.",
		}),
		EventsRoutedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scarab_events_routed_total",
			Help: "Total number of events routed, by kind.",
		}, []string{"kind"}),
		HandlerFaultsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scarab_handler_faults_total",
			Help: "Total number of handler panics recovered by the router.",
		}),
		LiveEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scarab_live_entities",
			Help: "Number of entities currently admitted to the simulation.",
		}),
	}
	reg.MustRegister(
		m.ClockTicksTotal,
		m.EventsRoutedTotal,
		m.HandlerFaultsTotal,
		m.LiveEntities,
	)
	return m
}

// IncEventRouted satisfies router.Reporter.
func (m *Metrics) IncEventRouted(kind string) {
	m.EventsRoutedTotal.WithLabelValues(kind).Inc()
}

// IncHandlerFault satisfies router.Reporter.
func (m *Metrics) IncHandlerFault() {
	m.HandlerFaultsTotal.Inc()
}

// IncClockTick records a single step of the driver's loop.
func (m *Metrics) IncClockTick() {
	m.ClockTicksTotal.Inc()
}

// SetLiveEntities records the current count of admitted entities.
func (m *Metrics) SetLiveEntities(n int) {
	m.LiveEntities.Set(float64(n))
}
