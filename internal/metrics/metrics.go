// Package metrics exposes the aggregator's Prometheus metrics on the
// control-plane HTTP mux: host registry size, alarm notification counts,
// catalog sync latency, and per-verb client request counters. Grounded on
// octoreflex's dedicated-registry pattern rather than the default global
// registry, to avoid collisions if this process ever embeds another
// instrumented library.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric descriptor the aggregator records.
type Metrics struct {
	registry *prometheus.Registry

	HostsRegistered prometheus.Gauge

	AlarmsFiredTotal *prometheus.CounterVec // labels: scope (host, process)

	AdmissionsTotal *prometheus.CounterVec // labels: result (admitted, denied)

	CatalogSyncLatency prometheus.Histogram
	CatalogSyncErrors  prometheus.Counter

	ClientRequestsTotal *prometheus.CounterVec // labels: verb
}

// New creates and registers every metric on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HostsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "centralmon",
			Subsystem: "registry",
			Name:      "hosts",
			Help:      "Number of hosts currently bound to an agent connection.",
		}),

		AlarmsFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "centralmon",
			Subsystem: "alarm",
			Name:      "fired_total",
			Help:      "Total alarm edges fired, by scope.",
		}, []string{"scope"}),

		AdmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "centralmon",
			Subsystem: "admission",
			Name:      "total",
			Help:      "Total agent admission attempts, by result.",
		}, []string{"result"}),

		CatalogSyncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "centralmon",
			Subsystem: "catalog",
			Name:      "sync_latency_seconds",
			Help:      "Latency of a threshold sync against the catalog (one host on admission, every host on update).",
			Buckets:   prometheus.DefBuckets,
		}),

		CatalogSyncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "centralmon",
			Subsystem: "catalog",
			Name:      "sync_errors_total",
			Help:      "Total catalog query failures encountered during sync.",
		}),

		ClientRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "centralmon",
			Subsystem: "server",
			Name:      "client_requests_total",
			Help:      "Total query/control requests handled, by verb.",
		}, []string{"verb"}),
	}

	reg.MustRegister(
		m.HostsRegistered,
		m.AlarmsFiredTotal,
		m.AdmissionsTotal,
		m.CatalogSyncLatency,
		m.CatalogSyncErrors,
		m.ClientRequestsTotal,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the http.Handler to mount at "/metrics".
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
