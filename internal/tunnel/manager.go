package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-i2p/tunneld/internal/tunnelcrypto"
)

// ErrTunnelExists indicates a tunnel already exists under the given ID.
var ErrTunnelExists = errors.New("tunnel already exists for this ID")

// ErrTunnelNotFound indicates no tunnel exists under the given ID.
var ErrTunnelNotFound = errors.New("tunnel not found")

// MetricsReporter receives lifecycle and throughput events from the
// Manager. Implementations must be safe for concurrent use. A nil
// MetricsReporter is replaced by a no-op implementation.
type MetricsReporter interface {
	RegisterTunnel(role string)
	UnregisterTunnel(role string)
	IncRecordsProduced(role string)
	IncRecordsDropped(reason string)
	AddFragmentsEmitted(n int)
	AddReassemblySlotsExpired(n int)
	AddBytesTransmitted(tunnelID string, n int)
}

type noopMetrics struct{}

func (noopMetrics) RegisterTunnel(string)           {}
func (noopMetrics) UnregisterTunnel(string)         {}
func (noopMetrics) IncRecordsProduced(string)       {}
func (noopMetrics) IncRecordsDropped(string)        {}
func (noopMetrics) AddFragmentsEmitted(int)         {}
func (noopMetrics) AddReassemblySlotsExpired(int)   {}
func (noopMetrics) AddBytesTransmitted(string, int) {}

// RegistrySyncer mirrors tunnel lifecycle events into an external,
// HTTP-facing view (e.g. server.Registry) without this package importing
// anything about HTTP or JSON. server.Registry satisfies this interface
// structurally.
type RegistrySyncer interface {
	Add(tunnelID uint32, t *TransitTunnel)
	Remove(tunnelID uint32)
}

// Manager owns the set of transit tunnel hops local to this router: their
// creation, lookup by tunnel ID, periodic flush to the transport layer,
// and periodic reassembly-slot expiry.
type Manager struct {
	mu      sync.RWMutex
	tunnels map[uint32]*TransitTunnel

	reassemblyTimeout time.Duration
	metrics           MetricsReporter
	logger            *slog.Logger

	expiry       *ExpiryTracker
	registrySync RegistrySyncer
}

// ManagerOption configures optional Manager parameters.
type ManagerOption func(*Manager)

// WithMetrics sets the MetricsReporter used for tunnel lifecycle and
// throughput events. A nil reporter is ignored.
func WithMetrics(mr MetricsReporter) ManagerOption {
	return func(m *Manager) {
		if mr != nil {
			m.metrics = mr
		}
	}
}

// WithReassemblyTimeout overrides the default endpoint reassembly timeout
// for tunnels created via CreateEndpoint.
func WithReassemblyTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.reassemblyTimeout = d
		}
	}
}

// WithRegistrySync mirrors every register/Remove call into rs, so an
// external view (e.g. the admin HTTP server's tunnel registry) stays
// consistent with the Manager's own tunnel map. A nil rs is ignored.
func WithRegistrySync(rs RegistrySyncer) ManagerOption {
	return func(m *Manager) {
		if rs != nil {
			m.registrySync = rs
		}
	}
}

// NewManager creates an empty tunnel Manager.
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		tunnels:           make(map[uint32]*TransitTunnel),
		reassemblyTimeout: 10 * time.Second,
		metrics:           noopMetrics{},
		logger:            orDefault(logger).With(slog.String("component", "tunnel.manager")),
		expiry:            NewExpiryTracker(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateParticipant registers a new Participant hop under recvTunnelID.
func (m *Manager) CreateParticipant(recvTunnelID, nextTunnelID uint32, nextIdentHash [hashSize]byte, layer *tunnelcrypto.Layer, transport Transport) (*TransitTunnel, error) {
	t := NewParticipantTunnel(recvTunnelID, nextTunnelID, nextIdentHash, layer, transport, m.logger)
	t.SetMetrics(m.metrics)
	return t, m.register(recvTunnelID, t)
}

// CreateGateway registers a new Gateway hop under recvTunnelID.
func (m *Manager) CreateGateway(recvTunnelID, nextTunnelID uint32, nextIdentHash [hashSize]byte, layer *tunnelcrypto.Layer, transport Transport) (*TransitTunnel, error) {
	t := NewGatewayTunnel(recvTunnelID, nextTunnelID, nextIdentHash, layer, transport, m.logger)
	t.SetMetrics(m.metrics)
	return t, m.register(recvTunnelID, t)
}

// CreateEndpoint registers a new Endpoint hop under recvTunnelID.
func (m *Manager) CreateEndpoint(recvTunnelID uint32, layer *tunnelcrypto.Layer, outbound bool, dispatch Dispatcher) (*TransitTunnel, error) {
	t := NewEndpointTunnel(recvTunnelID, layer, outbound, dispatch, m.reassemblyTimeout, m.logger)
	t.SetMetrics(m.metrics)
	return t, m.register(recvTunnelID, t)
}

func (m *Manager) register(tunnelID uint32, t *TransitTunnel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tunnels[tunnelID]; exists {
		return fmt.Errorf("register tunnel %d: %w", tunnelID, ErrTunnelExists)
	}
	m.tunnels[tunnelID] = t
	m.metrics.RegisterTunnel(t.Role().String())
	m.expiry.Track(tunnelID, t.CreationTime())
	if m.registrySync != nil {
		m.registrySync.Add(tunnelID, t)
	}

	m.logger.Info("tunnel registered",
		slog.Uint64("tunnel_id", uint64(tunnelID)),
		slog.String("role", t.Role().String()),
	)
	return nil
}

// Remove unregisters and forgets the tunnel under tunnelID.
func (m *Manager) Remove(tunnelID uint32) error {
	m.mu.Lock()
	t, ok := m.tunnels[tunnelID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("remove tunnel %d: %w", tunnelID, ErrTunnelNotFound)
	}
	delete(m.tunnels, tunnelID)
	m.mu.Unlock()

	m.metrics.UnregisterTunnel(t.Role().String())
	m.expiry.Untrack(tunnelID)
	if m.registrySync != nil {
		m.registrySync.Remove(tunnelID)
	}
	m.logger.Info("tunnel removed", slog.Uint64("tunnel_id", uint64(tunnelID)))
	return nil
}

// Lookup returns the tunnel registered under tunnelID.
func (m *Manager) Lookup(tunnelID uint32) (*TransitTunnel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tunnels[tunnelID]
	return t, ok
}

// HandleInbound dispatches record to the tunnel registered under its
// leading tunnel ID, tracking records-produced/dropped metrics.
func (m *Manager) HandleInbound(ctx context.Context, record []byte) error {
	if len(record) != RecordSize {
		m.metrics.IncRecordsDropped("bad_length")
		return ErrInvalidLength
	}
	tunnelID := uint32(record[0])<<24 | uint32(record[1])<<16 | uint32(record[2])<<8 | uint32(record[3])

	t, ok := m.Lookup(tunnelID)
	if !ok {
		m.metrics.IncRecordsDropped("unknown_tunnel")
		return fmt.Errorf("handle inbound for tunnel %d: %w", tunnelID, ErrTunnelNotFound)
	}

	if err := t.HandleInbound(ctx, record); err != nil {
		m.metrics.IncRecordsDropped(dropReason(err))
		return err
	}

	m.metrics.IncRecordsProduced(t.Role().String())
	m.metrics.AddBytesTransmitted(fmt.Sprint(tunnelID), len(record))
	return nil
}

// dropReason maps an error from TransitTunnel.HandleInbound to the
// records-dropped metric label named in SPEC_FULL §4.10. Anything that
// isn't one of the record/fragment sentinels falls back to "handle_error".
func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrBadChecksum):
		return "bad_checksum"
	case errors.Is(err, ErrBadPadding):
		return "bad_padding"
	case errors.Is(err, ErrBadFragment):
		return "bad_fragment"
	default:
		return "handle_error"
	}
}

// FlushAll flushes every registered tunnel's pending outbound work. Errors
// from individual tunnels are logged and accumulated; one failing tunnel
// does not block the others.
func (m *Manager) FlushAll(ctx context.Context) error {
	m.mu.RLock()
	tunnels := make([]*TransitTunnel, 0, len(m.tunnels))
	ids := make([]uint32, 0, len(m.tunnels))
	for id, t := range m.tunnels {
		tunnels = append(tunnels, t)
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var errs []error
	for i, t := range tunnels {
		if err := t.Flush(ctx); err != nil && !errors.Is(err, ErrWrongRole) {
			errs = append(errs, fmt.Errorf("flush tunnel %d: %w", ids[i], err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SweepReassembly runs the expiry sweep on every Endpoint hop's
// reassembler, reporting the total number of dropped slots to metrics.
func (m *Manager) SweepReassembly() int {
	m.mu.RLock()
	endpoints := make([]*TransitTunnel, 0)
	for _, t := range m.tunnels {
		if t.role == RoleEndpoint {
			endpoints = append(endpoints, t)
		}
	}
	m.mu.RUnlock()

	total := 0
	for _, t := range endpoints {
		n := t.reassembler.Sweep()
		total += n
	}
	if total > 0 {
		m.metrics.AddReassemblySlotsExpired(total)
	}
	return total
}

// SweepExpired removes every tunnel whose creation time is at least
// lifetime old, per §3's Lifecycle note ("destroyed wholesale when their
// creation time falls outside the active window"). It returns the number
// of tunnels removed.
func (m *Manager) SweepExpired(lifetime time.Duration) int {
	ids := m.expiry.Expired(time.Now(), lifetime)
	for _, id := range ids {
		if err := m.Remove(id); err != nil {
			m.logger.Warn("sweep expired tunnel", slog.Uint64("tunnel_id", uint64(id)), slog.String("error", err.Error()))
		}
	}
	return len(ids)
}

// Count returns the number of currently registered tunnels.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tunnels)
}
