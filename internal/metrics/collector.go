// Package tunnelmetrics holds the Prometheus instrumentation for the
// tunnel datapath: records produced and dropped, fragments emitted,
// reassembly-slot expirations, bytes transmitted per tunnel, and datagram
// sent/dropped counters.
package tunnelmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "i2ptunnel"
	subsystem = "tunnel"
)

// Label names for tunnel metrics.
const (
	labelRole      = "role"
	labelReason    = "reason"
	labelTunnelID  = "tunnel_id"
)

// -------------------------------------------------------------------------
// Collector — Prometheus tunnel metrics
// -------------------------------------------------------------------------

// Collector holds all tunnel-datapath Prometheus metrics.
type Collector struct {
	// ActiveTunnels tracks the number of currently active transit tunnels,
	// labeled by role (participant, gateway, endpoint).
	ActiveTunnels *prometheus.GaugeVec

	// RecordsProduced counts tunnel records built by a gateway or
	// forwarded by a participant, labeled by role.
	RecordsProduced *prometheus.CounterVec

	// RecordsDropped counts records rejected by the codec, labeled by
	// reason (bad_checksum, bad_padding, bad_fragment).
	RecordsDropped *prometheus.CounterVec

	// FragmentsEmitted counts individual fragments written into records by
	// the gateway buffer.
	FragmentsEmitted prometheus.Counter

	// ReassemblySlotsExpired counts reassembly slots dropped by the
	// endpoint reassembler's expiry sweep.
	ReassemblySlotsExpired prometheus.Counter

	// BytesTransmitted sums record bytes handed to the transport layer,
	// labeled by tunnel ID.
	BytesTransmitted *prometheus.CounterVec

	// DatagramsSent counts datagrams handed to an outbound gateway;
	// DatagramsDropped counts inbound datagrams dropped, by reason.
	DatagramsSent    prometheus.Counter
	DatagramsDropped *prometheus.CounterVec
}

// NewCollector creates a Collector with all tunnel metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.ActiveTunnels,
		c.RecordsProduced,
		c.RecordsDropped,
		c.FragmentsEmitted,
		c.ReassemblySlotsExpired,
		c.BytesTransmitted,
		c.DatagramsSent,
		c.DatagramsDropped,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		ActiveTunnels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_transit_tunnels",
			Help:      "Number of currently active transit tunnels.",
		}, []string{labelRole}),

		RecordsProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "records_produced_total",
			Help:      "Total tunnel records built or forwarded.",
		}, []string{labelRole}),

		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "records_dropped_total",
			Help:      "Total tunnel records dropped by the codec or role machine.",
		}, []string{labelReason}),

		FragmentsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fragments_emitted_total",
			Help:      "Total fragments written into tunnel records by a gateway buffer.",
		}),

		ReassemblySlotsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reassembly_slots_expired_total",
			Help:      "Total reassembly slots dropped by the expiry sweep.",
		}),

		BytesTransmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_transmitted_total",
			Help:      "Total record bytes handed to the transport layer, by tunnel.",
		}, []string{labelTunnelID}),

		DatagramsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "datagrams_sent_total",
			Help:      "Total datagrams successfully handed to an outbound gateway.",
		}),

		DatagramsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "datagrams_dropped_total",
			Help:      "Total inbound datagrams dropped, by reason.",
		}, []string{labelReason}),
	}
}

// -------------------------------------------------------------------------
// Tunnel lifecycle
// -------------------------------------------------------------------------

// RegisterTunnel increments the active-tunnels gauge for role.
func (c *Collector) RegisterTunnel(role string) {
	c.ActiveTunnels.WithLabelValues(role).Inc()
}

// UnregisterTunnel decrements the active-tunnels gauge for role.
func (c *Collector) UnregisterTunnel(role string) {
	c.ActiveTunnels.WithLabelValues(role).Dec()
}

// -------------------------------------------------------------------------
// Records and fragments
// -------------------------------------------------------------------------

// IncRecordsProduced increments the records-produced counter for role.
func (c *Collector) IncRecordsProduced(role string) {
	c.RecordsProduced.WithLabelValues(role).Inc()
}

// IncRecordsDropped increments the records-dropped counter for reason.
func (c *Collector) IncRecordsDropped(reason string) {
	c.RecordsDropped.WithLabelValues(reason).Inc()
}

// AddFragmentsEmitted adds n to the fragments-emitted counter.
func (c *Collector) AddFragmentsEmitted(n int) {
	c.FragmentsEmitted.Add(float64(n))
}

// AddReassemblySlotsExpired adds n to the expired-slots counter.
func (c *Collector) AddReassemblySlotsExpired(n int) {
	c.ReassemblySlotsExpired.Add(float64(n))
}

// AddBytesTransmitted adds n bytes to the per-tunnel transmitted counter.
func (c *Collector) AddBytesTransmitted(tunnelID string, n int) {
	c.BytesTransmitted.WithLabelValues(tunnelID).Add(float64(n))
}

// -------------------------------------------------------------------------
// Datagrams
// -------------------------------------------------------------------------

// IncDatagramsSent increments the datagrams-sent counter.
func (c *Collector) IncDatagramsSent() {
	c.DatagramsSent.Inc()
}

// IncDatagramsDropped increments the datagrams-dropped counter for reason.
func (c *Collector) IncDatagramsDropped(reason string) {
	c.DatagramsDropped.WithLabelValues(reason).Inc()
}
