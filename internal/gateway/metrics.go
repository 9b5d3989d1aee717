package gateway

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "graylogic"
	metricsSubsystem = "gateway"
)

// Metrics holds Prometheus collectors for gateway supervision.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	up                *prometheus.GaugeVec
	transitions       *prometheus.CounterVec
	reconnectAttempts *prometheus.CounterVec
	received          *prometheus.CounterVec
	dropped           *prometheus.CounterVec
	delivered         *prometheus.CounterVec
}

// NewMetrics creates gateway metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	labels := []string{"gateway", "network"}

	m := &Metrics{
		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "up",
			Help:      "1 when the gateway status is UP, 0 otherwise",
		}, labels),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "status_transitions_total",
			Help:      "Total number of gateway status transitions, by new status",
		}, append(labels, "status")),
		reconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnect attempts, by result",
		}, append(labels, "result")),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_received_total",
			Help:      "Total number of inbound messages queued for ingestion",
		}, labels),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_dropped_total",
			Help:      "Total number of inbound messages dropped before queueing",
		}, labels),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "deliveries_confirmed_total",
			Help:      "Total number of outbound messages acknowledged by the broker",
		}, labels),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.up, err = register(reg, m.up); err != nil {
		return nil, err
	}
	for _, cv := range []**prometheus.CounterVec{&m.transitions, &m.reconnectAttempts, &m.received, &m.dropped, &m.delivered} {
		if *cv, err = register(reg, *cv); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// register registers c, or returns the collector already registered under
// the same descriptor so several managers can share one registry.
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

func gatewayLabels(gw *Gateway) (string, string) {
	return strconv.FormatInt(gw.ID, 10), string(gw.NetworkType)
}

func (m *Metrics) recordTransition(gw *Gateway, status Status) {
	if m == nil {
		return
	}
	id, network := gatewayLabels(gw)
	m.transitions.WithLabelValues(id, network, string(status)).Inc()
	if status == StatusUp {
		m.up.WithLabelValues(id, network).Set(1)
	} else {
		m.up.WithLabelValues(id, network).Set(0)
	}
}

func (m *Metrics) recordAttempt(gw *Gateway, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	id, network := gatewayLabels(gw)
	m.reconnectAttempts.WithLabelValues(id, network, result).Inc()
}

func (m *Metrics) recordReceived(gw *Gateway) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(gatewayLabels(gw)).Inc()
}

func (m *Metrics) recordDropped(gw *Gateway) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(gatewayLabels(gw)).Inc()
}

func (m *Metrics) recordDelivered(gw *Gateway) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(gatewayLabels(gw)).Inc()
}
