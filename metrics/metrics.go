/*
Package metrics exposes prometheus collectors for saves, executed commands and
hilo block reservations. A nil *Metrics records nothing.
*/
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "riker"

// Save results
const (
	ResultSuccess     = "success"
	ResultConcurrency = "concurrency_conflict"
	ResultError       = "error"
)

// Metrics holds the collectors
type Metrics struct {
	saves           *prometheus.CounterVec
	saveDuration    prometheus.Histogram
	commands        *prometheus.CounterVec
	batches         prometheus.Counter
	rowsAffected    prometheus.Counter
	sequenceFetches *prometheus.CounterVec
}

// New creates the collectors and registers them with registerer
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "SaveChanges calls by result.",
		}, []string{"result"}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "save_duration_seconds",
			Help:      "Time spent in SaveChanges.",
			Buckets:   prometheus.DefBuckets,
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Modification commands executed by type.",
		}, []string{"type"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Command batches executed.",
		}),
		rowsAffected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_affected_total",
			Help:      "Rows affected by saved changes.",
		}),
		sequenceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hilo_block_fetches_total",
			Help:      "Hilo blocks reserved from the database by sequence.",
		}, []string{"sequence"}),
	}

	collectors := []prometheus.Collector{
		m.saves,
		m.saveDuration,
		m.commands,
		m.batches,
		m.rowsAffected,
		m.sequenceFetches,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveSave records one SaveChanges call
func (m *Metrics) ObserveSave(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(result).Inc()
	m.saveDuration.Observe(elapsed.Seconds())
}

// ObserveBatch records one executed batch
func (m *Metrics) ObserveBatch(commandType string, commands int, rowsAffected int64) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.commands.WithLabelValues(commandType).Add(float64(commands))
	m.rowsAffected.Add(float64(rowsAffected))
}

// ObserveSequenceFetch records one hilo block reservation
func (m *Metrics) ObserveSequenceFetch(sequence string) {
	if m == nil {
		return
	}
	m.sequenceFetches.WithLabelValues(sequence).Inc()
}
