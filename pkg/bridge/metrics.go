package bridge

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks host-side bridge activity on a private registry, keeping
// the bridge's series out of any global registry the host may own.
type Metrics struct {
	registry *prometheus.Registry

	ReloadsTotal     prometheus.Counter
	ReloadFailures   prometheus.Counter
	ConnectedClients prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mpdt",
			Subsystem: "bridge",
			Name:      "reloads_total",
			Help:      "Total reload commands processed.",
		}),
		ReloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mpdt",
			Subsystem: "bridge",
			Name:      "reload_failures_total",
			Help:      "Reload commands that failed.",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mpdt",
			Subsystem: "bridge",
			Name:      "connected_clients",
			Help:      "Currently connected control channel clients.",
		}),
	}
	m.registry.MustRegister(m.ReloadsTotal, m.ReloadFailures, m.ConnectedClients)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
