package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/me/tdist/internal/session"
	"github.com/me/tdist/pkg/model"
)

// Metrics exposes scheduling observability on /metrics. It uses its own
// registry so tests can build multiple servers in one process.
type Metrics struct {
	registry *prometheus.Registry

	itemsDelivered *prometheus.CounterVec
	completions    *prometheus.CounterVec
	itemDuration   prometheus.Histogram
}

// NewMetrics builds and registers all collectors. Node and run gauges read
// live session state through GaugeFuncs.
func NewMetrics(sess *session.Session) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		itemsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tdist_items_delivered_total",
			Help: "Test items handed to nodes, by node.",
		}, []string{"node"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tdist_items_completed_total",
			Help: "Completed test items, by outcome.",
		}, []string{"outcome"}),
		itemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tdist_item_duration_seconds",
			Help:    "Reported execution duration per test item.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	m.registry.MustRegister(m.itemsDelivered, m.completions, m.itemDuration)
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tdist_nodes_registered",
		Help: "Registered worker nodes.",
	}, func() float64 {
		return float64(len(sess.Status().Nodes))
	}))
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tdist_nodes_draining",
		Help: "Nodes that have received the shutdown signal.",
	}, func() float64 {
		var n int
		for _, info := range sess.Status().Nodes {
			if info.State == model.NodeStateDraining {
				n++
			}
		}
		return float64(n)
	}))
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tdist_items_pending",
		Help: "Items not yet assigned to any node.",
	}, func() float64 {
		st := sess.Status()
		var queued int
		for _, info := range st.Nodes {
			queued += info.QueueLen
		}
		return float64(st.Run.Total - st.Run.Completed - queued)
	}))

	return m
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ItemsDelivered counts items handed out on a poll.
func (m *Metrics) ItemsDelivered(nodeID string, n int) {
	if n > 0 {
		m.itemsDelivered.WithLabelValues(nodeID).Add(float64(n))
	}
}

// ItemCompleted records one completion report.
func (m *Metrics) ItemCompleted(report model.CompletionReport) {
	m.completions.WithLabelValues(string(report.Outcome)).Inc()
	m.itemDuration.Observe(float64(report.DurationMs) / 1000)
}
