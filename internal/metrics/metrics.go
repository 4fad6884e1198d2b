// Package metrics exposes Prometheus metrics for the monitoring loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/thermawatch/agent/pkg/types"
)

const namespace = "thermawatch"

var (
	// CyclesTotal counts accepted monitor cycles.
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Total number of accepted monitor cycles",
		},
	)

	// CyclesSkippedTotal counts rejected cycles by reason.
	CyclesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycles_skipped_total",
			Help:      "Total number of monitor cycles skipped, by reason",
		},
		[]string{"reason"},
	)

	// TemperatureCelsius reports the latest accepted reading per device.
	TemperatureCelsius = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Most recent accepted temperature reading",
		},
		[]string{"device"},
	)

	// AlertsTotal counts fired alert events by device and kind.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "fired_total",
			Help:      "Total number of alert events, by device and kind",
		},
		[]string{"device", "kind"},
	)

	// AlertActive reports whether a device is currently in the alerting state.
	AlertActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "active",
			Help:      "1 while a device is above its threshold, 0 otherwise",
		},
		[]string{"device"},
	)
)

// Collector bridges the monitor loop into the Prometheus metrics: it is both
// a sink for accepted cycles and an observer for cycle outcomes.
type Collector struct{}

func (Collector) OnSnapshot(_ time.Time, snap types.Snapshot) {
	for _, dev := range snap.Devices() {
		if r := snap[dev]; r.Valid {
			TemperatureCelsius.WithLabelValues(string(dev)).Set(r.Value)
		}
	}
}

func (Collector) OnAlert(ev types.AlertEvent) {
	AlertsTotal.WithLabelValues(string(ev.Device), string(ev.Kind)).Inc()
	switch ev.Kind {
	case types.AlertBreach:
		AlertActive.WithLabelValues(string(ev.Device)).Set(1)
	case types.AlertRecovery:
		AlertActive.WithLabelValues(string(ev.Device)).Set(0)
	}
}

func (Collector) OnLog(time.Time, types.Snapshot) {}

func (Collector) ObserveCycle(time.Time) {
	CyclesTotal.Inc()
}

func (Collector) ObserveSkip(_ time.Time, reason string) {
	CyclesSkippedTotal.WithLabelValues(reason).Inc()
}
