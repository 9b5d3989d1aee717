// Package metrics owns the Prometheus registry for the gateway service.
//
// Components register their own collectors against Registry.Registerer();
// the admin API serves Registry.Handler() at /metrics.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric the service exports.
const Namespace = "graylogic"

// Registry wraps a dedicated prometheus.Registry with the Go runtime,
// process and build info collectors already registered.
type Registry struct {
	reg *prometheus.Registry
}

// New creates a registry. version and siteID are exported as labels on
// graylogic_build_info.
func New(version, siteID string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Build information for the gateway service. Always 1.",
	}, []string{"version", "site", "goversion"})
	buildInfo.WithLabelValues(version, siteID, runtime.Version()).Set(1)
	reg.MustRegister(buildInfo)

	return &Registry{reg: reg}
}

// Registerer is where components register their collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer exposes the registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{
		Registry:          r.reg,
		EnableOpenMetrics: true,
	})
}
