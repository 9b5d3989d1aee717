package message

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "graylogic"
	metricsSubsystem = "ingest_queue"
)

// Drop reasons used as the "reason" label on the drops counter.
const (
	DropReasonTimeout   = "timeout"
	DropReasonEvicted   = "evicted"
	DropReasonRejected  = "rejected"
	DropReasonClosed    = "closed"
	DropReasonContended = "contended"
)

// queueMetrics holds the Prometheus collectors for a Queue.
type queueMetrics struct {
	puts     prometheus.Counter
	takes    prometheus.Counter
	drops    *prometheus.CounterVec
	depth    prometheus.Gauge
	capacity prometheus.Gauge
}

func newQueueMetrics(reg prometheus.Registerer) (*queueMetrics, error) {
	m := &queueMetrics{
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "puts_total",
			Help:      "Total number of messages admitted to the ingestion queue",
		}),
		takes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "takes_total",
			Help:      "Total number of messages handed to consumers",
		}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "drops_total",
			Help:      "Total number of messages dropped, by reason",
		}, []string{"reason"}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "depth",
			Help:      "Current number of messages waiting in the queue",
		}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "capacity",
			Help:      "Configured queue capacity",
		}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.puts, err = registerOrExisting(reg, m.puts); err != nil {
		return nil, err
	}
	if m.takes, err = registerOrExisting(reg, m.takes); err != nil {
		return nil, err
	}
	if m.drops, err = registerOrExisting(reg, m.drops); err != nil {
		return nil, err
	}
	if m.depth, err = registerOrExisting(reg, m.depth); err != nil {
		return nil, err
	}
	if m.capacity, err = registerOrExisting(reg, m.capacity); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrExisting registers c, or returns the collector already
// registered under the same descriptor.
func registerOrExisting[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
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

func (m *queueMetrics) recordPut(depth int) {
	m.puts.Inc()
	m.depth.Set(float64(depth))
}

func (m *queueMetrics) recordTake(depth int) {
	m.takes.Inc()
	m.depth.Set(float64(depth))
}

func (m *queueMetrics) recordDrop(reason string) {
	m.drops.WithLabelValues(reason).Inc()
}
