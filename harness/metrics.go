package harness

import (
	"time"

	"github.com/encodeous/trustmesh/core"
	"github.com/encodeous/trustmesh/state"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the per-simulation metrics context. Every simulation owns its own registry, so several
// simulations may run in one process.
type Metrics struct {
	Sent       uint64
	Received   uint64
	TotalDelay time.Duration

	Registry    *prometheus.Registry
	sent        prometheus.Counter
	received    prometheus.Counter
	dropped     prometheus.Counter
	forwarded   prometheus.Counter
	blacklisted prometheus.Gauge
	delay       prometheus.Histogram
}

func NewMetrics(scenario string) *Metrics {
	labels := prometheus.Labels{"scenario": scenario}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "trustmesh_packets_sent_total",
			Help:        "Packets submitted by the CBR source.",
			ConstLabels: labels,
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "trustmesh_packets_received_total",
			Help:        "Packets delivered to the receiver socket.",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "trustmesh_packets_dropped_total",
			Help:        "Transit packets dropped by trust routing.",
			ConstLabels: labels,
		}),
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "trustmesh_packets_forwarded_total",
			Help:        "Transit packets forwarded by trust routing.",
			ConstLabels: labels,
		}),
		blacklisted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "trustmesh_blacklisted_nodes",
			Help:        "Blacklist entries summed over every node.",
			ConstLabels: labels,
		}),
		delay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "trustmesh_delay_seconds",
			Help:        "End-to-end delay of received packets.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	m.Registry.MustRegister(m.sent, m.received, m.dropped, m.forwarded, m.blacklisted, m.delay)
	return m
}

func (m *Metrics) PacketSent() {
	m.Sent++
	m.sent.Inc()
}

// PacketReceived counts a delivery. The delay only counts when the packet carried a timestamp.
func (m *Metrics) PacketReceived(delay time.Duration, stamped bool) {
	m.Received++
	m.received.Inc()
	if stamped {
		m.TotalDelay += delay
		m.delay.Observe(delay.Seconds())
	}
}

func (m *Metrics) OnTrustEvent(owner state.NodeId, event core.TrustEvent, id state.NodeId, score float64) {
	switch event {
	case core.BlacklistAdded:
		m.blacklisted.Inc()
	case core.BlacklistRemoved:
		m.blacklisted.Dec()
	}
}

func (m *Metrics) OnRouteEvent(owner state.NodeId, event core.RouteEvent) {
	switch event {
	case core.PacketDropped:
		m.dropped.Inc()
	case core.PacketForwarded:
		m.forwarded.Inc()
	}
}

// WriteTextfile dumps the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
