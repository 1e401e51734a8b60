package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report engine activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cycles         *prometheus.CounterVec
	records        *prometheus.CounterVec
	actions        *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	runnersRunning prometheus.Gauge
}

// MustNewMetrics constructs a Metrics instance using the provided
// registerer. Tests supply a fresh prometheus.NewRegistry(). Registration
// errors panic, mirroring the promauto helpers.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tablehook",
				Subsystem: "engine",
				Name:      "cycles_total",
				Help:      "Polling cycles completed, by outcome (ok or fetch_error).",
			},
			[]string{"recipe", "outcome"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tablehook",
				Subsystem: "engine",
				Name:      "records_total",
				Help:      "Fetched records by change classification.",
			},
			[]string{"recipe", "class"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tablehook",
				Subsystem: "engine",
				Name:      "actions_total",
				Help:      "Actions executed, by result (delivered, failed or skipped).",
			},
			[]string{"recipe", "result"},
		),
		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tablehook",
				Subsystem: "engine",
				Name:      "cycle_duration_seconds",
				Help:      "Time spent in one polling cycle, fetch included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"recipe"},
		),
		runnersRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "tablehook",
				Subsystem: "engine",
				Name:      "runners_running",
				Help:      "Number of recipe runners currently running.",
			},
		),
	}
	reg.MustRegister(m.cycles, m.records, m.actions, m.cycleDuration, m.runnersRunning)
	return m
}

func (m *Metrics) cycleDone(recipe, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(recipe, outcome).Inc()
	m.cycleDuration.WithLabelValues(recipe).Observe(d.Seconds())
}

func (m *Metrics) recordClassified(recipe string, c Classification) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(recipe, c.String()).Inc()
}

func (m *Metrics) actionDone(recipe, result string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(recipe, result).Inc()
}

func (m *Metrics) runnerStarted() {
	if m == nil {
		return
	}
	m.runnersRunning.Inc()
}

func (m *Metrics) runnerStopped() {
	if m == nil {
		return
	}
	m.runnersRunning.Dec()
}
