package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "basis_hub"

// Metrics groups the gateway's collectors on a private registry so tests can
// build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	Ticks          *prometheus.CounterVec
	Malformed      *prometheus.CounterVec
	Reconnects     *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	Dropped        *prometheus.CounterVec
	ActiveChannels prometheus.Gauge
	UnionSize      prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Derived ticks broadcast, by venue.",
		}, []string{"venue"}),
		Malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_malformed_total",
			Help:      "Upstream messages discarded as malformed, by venue.",
		}, []string{"venue"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_reconnects_total",
			Help:      "Upstream connection attempts, by venue and reason.",
		}, []string{"venue", "reason"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejections_total",
			Help:      "Delivery requests rejected at the boundary, by reason.",
		}, []string{"reason"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_dropped_total",
			Help:      "Ticks dropped because a consumer buffer was full, by consumer kind.",
		}, []string{"consumer"}),
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_channels_active",
			Help:      "Open subscriber delivery channels.",
		}),
		UnionSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "union_symbols",
			Help:      "Symbols currently needed upstream.",
		}),
	}

	reg.MustRegister(
		m.Ticks, m.Malformed, m.Reconnects, m.Rejections, m.Dropped,
		m.ActiveChannels, m.UnionSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
