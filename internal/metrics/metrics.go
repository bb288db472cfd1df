// Package metrics exposes pktreplay's Prometheus collectors and the HTTP
// endpoint that serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bft-labs/pktreplay/pkg/playback"
)

const namespace = "pktreplay"

// Metrics holds the collectors for playback, capture and indexing.
// It implements playback.Observer.
type Metrics struct {
	// Playback
	dispatchedPackets prometheus.Counter
	dispatchedBytes   prometheus.Counter
	sendErrors        prometheus.Counter
	transitions       *prometheus.CounterVec
	status            *prometheus.GaugeVec

	// Capture
	capturedPackets prometheus.Counter
	capturedBytes   prometheus.Counter
	captureErrors   prometheus.Counter
	datagramSize    prometheus.Histogram

	// Index
	indexRebuilds prometheus.Counter
	indexedPacket prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		dispatchedPackets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "dispatched_packets_total",
			Help:      "Total number of packets sent during playback",
		}),
		dispatchedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "dispatched_bytes_total",
			Help:      "Total payload bytes sent during playback",
		}),
		sendErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "send_errors_total",
			Help:      "Total number of packets that could not be sent",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "transitions_total",
			Help:      "Playback status transitions",
		}, []string{"from", "to"}),
		status: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "status",
			Help:      "1 for the current playback status, 0 otherwise",
		}, []string{"status"}),

		capturedPackets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "packets_total",
			Help:      "Total number of datagrams recorded",
		}),
		capturedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "bytes_total",
			Help:      "Total payload bytes recorded",
		}),
		captureErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "errors_total",
			Help:      "Total number of receive or write failures while recording",
		}),
		datagramSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "datagram_bytes",
			Help:      "Histogram of recorded datagram sizes",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 11), // 64B to 64KB
		}),

		indexRebuilds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Total number of time index rebuilds",
		}),
		indexedPacket: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "packets",
			Help:      "Packets covered by the most recently built index",
		}),
	}
	m.setStatus(playback.Stopped)
	return m
}

// Dispatched records one sent packet.
func (m *Metrics) Dispatched(bytes int) {
	m.dispatchedPackets.Inc()
	m.dispatchedBytes.Add(float64(bytes))
}

// SendFailed records one packet that could not be sent.
func (m *Metrics) SendFailed(error) { m.sendErrors.Inc() }

// StatusChanged records a playback transition.
func (m *Metrics) StatusChanged(from, to playback.Status) {
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
	m.setStatus(to)
}

func (m *Metrics) setStatus(cur playback.Status) {
	for _, s := range []playback.Status{playback.Stopped, playback.Playing, playback.Paused, playback.Completed} {
		v := 0.0
		if s == cur {
			v = 1
		}
		m.status.WithLabelValues(s.String()).Set(v)
	}
}

// Captured records one datagram written to a dataset.
func (m *Metrics) Captured(bytes int) {
	m.capturedPackets.Inc()
	m.capturedBytes.Add(float64(bytes))
	m.datagramSize.Observe(float64(bytes))
}

// CaptureFailed records a receive or write failure.
func (m *Metrics) CaptureFailed() { m.captureErrors.Inc() }

// IndexRebuilt records an index rebuild covering packets records.
func (m *Metrics) IndexRebuilt(packets int64) {
	m.indexRebuilds.Inc()
	m.indexedPacket.Set(float64(packets))
}

var _ playback.Observer = (*Metrics)(nil)
