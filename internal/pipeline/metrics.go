package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes acquisition counters. All methods are safe on a nil
// receiver so the pipeline can run without a registry.
type Metrics struct {
	samples   *prometheus.CounterVec
	resets    prometheus.Counter
	overruns  prometheus.Counter
	cycleTime prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		samples: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorpipe",
			Name:      "samples_total",
			Help:      "Raw samples consumed per channel.",
		}, []string{"channel"}),
		resets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorpipe",
			Name:      "device_resets_total",
			Help:      "Stalled devices reset by the pipeline.",
		}),
		overruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorpipe",
			Name:      "cycle_overruns_total",
			Help:      "Cycles that missed their deadline.",
		}),
		cycleTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sensorpipe",
			Name:      "cycle_duration_seconds",
			Help:      "Time spent servicing all instances per cycle.",
			Buckets:   prometheus.ExponentialBuckets(100e-6, 2, 12),
		}),
	}
}

func (m *Metrics) addSamples(channel string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.samples.WithLabelValues(channel).Add(float64(n))
}

func (m *Metrics) incResets() {
	if m == nil {
		return
	}
	m.resets.Inc()
}

func (m *Metrics) incOverruns() {
	if m == nil {
		return
	}
	m.overruns.Inc()
}

func (m *Metrics) observeCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleTime.Observe(d.Seconds())
}
