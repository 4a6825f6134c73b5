package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are created unregistered so multiple hubs can coexist;
// the app registers them on the default registry once.
type Metrics struct {
	sessions prometheus.Gauge
	viewers  prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pixelstream",
			Name:      "sessions",
			Help:      "Number of connected sessions.",
		}),
		viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pixelstream",
			Name:      "viewers",
			Help:      "Number of sessions registered as viewers.",
		}),
	}
}

func (m *Metrics) register(games func() float64) {
	prometheus.MustRegister(m.sessions, m.viewers,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "pixelstream",
			Name:      "games",
			Help:      "Number of supervised game instances.",
		}, games))
}
