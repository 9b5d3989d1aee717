package ingest

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for the processed counter.
const (
	resultOK    = "ok"
	resultError = "error"
	resultPanic = "panic"
)

type dispatcherMetrics struct {
	processed *prometheus.CounterVec
	duration  prometheus.Histogram
	busy      prometheus.Gauge
}

func newDispatcherMetrics(reg prometheus.Registerer) (*dispatcherMetrics, error) {
	m := &dispatcherMetrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "ingest",
			Name:      "processed_total",
			Help:      "Total number of messages processed, by result",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "graylogic",
			Subsystem: "ingest",
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing one message",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "graylogic",
			Subsystem: "ingest",
			Name:      "busy_workers",
			Help:      "Number of workers currently processing a message",
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.processed, err = register(reg, m.processed); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.busy, err = register(reg, m.busy); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c or returns the collector already registered in its
// place, so a restarted dispatcher can share the process registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *dispatcherMetrics) observe(result string, seconds float64) {
	m.processed.WithLabelValues(result).Inc()
	m.duration.Observe(seconds)
}
