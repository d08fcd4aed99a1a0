package slave

import "github.com/prometheus/client_golang/prometheus"

// metricsSet mirrors the slave-side packet counters spec.md §3/§4.E
// requires every device to keep, exported the way bmc.go exports
// package-scope Prometheus counters for connection-level events. When
// PACKAGE_STATISTICS_AVAILABLE is false the counters still exist (so
// metrics scraping never panics on a nil vector) and are still
// incremented; only the wire-side counter commands read back zeros
// (Device.statCounter).
type metricsSet struct {
	correct        prometheus.Counter
	bufferOverflow prometheus.Counter
	lost           prometheus.Counter
	crcMismatch    prometheus.Counter
}

var (
	packetsCorrectTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feldbus",
		Subsystem: "slave",
		Name:      "packets_correct_total",
		Help:      "Packets accepted and dispatched by this slave.",
	}, []string{"device"})
	packetsBufferOverflowTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feldbus",
		Subsystem: "slave",
		Name:      "packets_buffer_overflow_total",
		Help:      "Packets dropped because the receive buffer overflowed.",
	}, []string{"device"})
	packetsLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feldbus",
		Subsystem: "slave",
		Name:      "packets_lost_total",
		Help:      "Complete packets overwritten before the worker consumed them.",
	}, []string{"device"})
	packetsCrcMismatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feldbus",
		Subsystem: "slave",
		Name:      "packets_crc_mismatch_total",
		Help:      "Packets dropped for failing checksum verification.",
	}, []string{"device"})
)

func init() {
	prometheus.MustRegister(packetsCorrectTotal, packetsBufferOverflowTotal, packetsLostTotal, packetsCrcMismatchTotal)
}

func newMetricsSet(label string) *metricsSet {
	if label == "" {
		label = "default"
	}
	return &metricsSet{
		correct:        packetsCorrectTotal.WithLabelValues(label),
		bufferOverflow: packetsBufferOverflowTotal.WithLabelValues(label),
		lost:           packetsLostTotal.WithLabelValues(label),
		crcMismatch:    packetsCrcMismatchTotal.WithLabelValues(label),
	}
}
