package controller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "poller"

// Metrics are the sync loop metrics of every controller sharing them. A nil
// *Metrics records nothing.
type Metrics struct {
	cycles     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	devices    *prometheus.GaugeVec
	duplicates *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sync_cycles_total",
				Help:      "Inventory sync cycles by result.",
			},
			[]string{"controller", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "sync_cycle_duration_seconds",
				Help:      "Duration of successful inventory sync cycles.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"controller"},
		),
		devices: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "inventory_devices",
				Help:      "Devices in the inventory of the last successful cycle.",
			},
			[]string{"controller"},
		),
		duplicates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "duplicate_devices_total",
				Help:      "Devices dropped because an earlier source already provided them.",
			},
			[]string{"controller", "source"},
		),
	}
	reg.MustRegister(m.cycles, m.duration, m.devices, m.duplicates)
	return m
}

func (m *Metrics) cycleSucceeded(controller string, devices int, took time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(controller, "success").Inc()
	m.duration.WithLabelValues(controller).Observe(took.Seconds())
	m.devices.WithLabelValues(controller).Set(float64(devices))
}

func (m *Metrics) cycleFailed(controller string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(controller, "error").Inc()
}

func (m *Metrics) duplicatesDropped(controller, source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.duplicates.WithLabelValues(controller, source).Add(float64(n))
}
