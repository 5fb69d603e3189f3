package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/tunneld/internal/tunnelcrypto"
)

// Role is the fixed operating mode of a transit tunnel hop, chosen at
// construction and never transitioned.
type Role uint8

const (
	RoleParticipant Role = iota
	RoleGateway
	RoleEndpoint
)

func (r Role) String() string {
	switch r {
	case RoleParticipant:
		return "participant"
	case RoleGateway:
		return "gateway"
	case RoleEndpoint:
		return "endpoint"
	default:
		return "unknown"
	}
}

// Transport is the external collaborator a tunnel hop hands its outgoing
// batch of records to. It must be non-blocking and must preserve ordering
// per destination.
type Transport interface {
	SendRecords(ctx context.Context, identHash [hashSize]byte, records [][]byte) error
}

// TransitTunnel is a single hop's state in one tunnel: its role, its AES
// layer, its routing to the next hop, and (depending on role) either an
// outbound batching buffer or an inbound reassembler.
//
// A mismatch between role and the operation called is a logged programming
// error, never a panic: the call returns ErrWrongRole and the tunnel keeps
// running.
type TransitTunnel struct {
	role Role

	recvTunnelID  uint32
	nextTunnelID  uint32
	nextIdentHash [hashSize]byte

	layer     *tunnelcrypto.Layer
	transport Transport
	logger    *slog.Logger

	gateway     *GatewayBuffer // non-nil only for RoleGateway
	reassembler *Reassembler   // non-nil only for RoleEndpoint
	outbound    bool           // meaningful only for RoleEndpoint

	mu             sync.Mutex
	pendingRecords [][]byte

	transmittedBytes atomic.Uint64
	creationTime     time.Time

	metrics MetricsReporter
}

// NewParticipantTunnel builds a hop that only forwards: it re-encrypts
// inbound records under its own layer keys and rewrites the tunnel ID for
// the next hop.
func NewParticipantTunnel(recvTunnelID, nextTunnelID uint32, nextIdentHash [hashSize]byte, layer *tunnelcrypto.Layer, transport Transport, logger *slog.Logger) *TransitTunnel {
	return &TransitTunnel{
		role:          RoleParticipant,
		recvTunnelID:  recvTunnelID,
		nextTunnelID:  nextTunnelID,
		nextIdentHash: nextIdentHash,
		layer:         layer,
		transport:     transport,
		logger:        orDefault(logger),
		creationTime:  time.Now(),
		metrics:       noopMetrics{},
	}
}

// NewGatewayTunnel builds a hop that injects locally-produced inner
// messages into the tunnel.
func NewGatewayTunnel(recvTunnelID, nextTunnelID uint32, nextIdentHash [hashSize]byte, layer *tunnelcrypto.Layer, transport Transport, logger *slog.Logger) *TransitTunnel {
	return &TransitTunnel{
		role:          RoleGateway,
		recvTunnelID:  recvTunnelID,
		nextTunnelID:  nextTunnelID,
		nextIdentHash: nextIdentHash,
		layer:         layer,
		transport:     transport,
		gateway:       NewGatewayBuffer(),
		logger:        orDefault(logger),
		creationTime:  time.Now(),
		metrics:       noopMetrics{},
	}
}

// NewEndpointTunnel builds a hop that extracts inner messages from the
// tunnel and hands them to dispatch. outbound marks whether this endpoint
// belongs to an outbound tunnel (an encryption step) or an inbound one (a
// decryption step); a transit endpoint (one this router does not own) is
// always outbound.
func NewEndpointTunnel(recvTunnelID uint32, layer *tunnelcrypto.Layer, outbound bool, dispatch Dispatcher, reassemblyTimeout time.Duration, logger *slog.Logger) *TransitTunnel {
	logger = orDefault(logger)
	return &TransitTunnel{
		role:         RoleEndpoint,
		recvTunnelID: recvTunnelID,
		layer:        layer,
		outbound:     outbound,
		reassembler:  NewReassembler(dispatch, reassemblyTimeout, logger),
		logger:       logger,
		creationTime: time.Now(),
		metrics:      noopMetrics{},
	}
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Role reports the hop's fixed role.
func (t *TransitTunnel) Role() Role { return t.role }

// CreationTime reports when this tunnel object was constructed.
func (t *TransitTunnel) CreationTime() time.Time { return t.creationTime }

// SetMetrics installs the MetricsReporter this tunnel reports throughput
// events to. A nil reporter is ignored, leaving the previous one (or the
// no-op default) in place.
func (t *TransitTunnel) SetMetrics(mr MetricsReporter) {
	if mr != nil {
		t.metrics = mr
	}
}

// NumTransmittedBytes reports the running total of record bytes this hop
// has processed: records queued for the transport layer by a Participant
// or Gateway, and records consumed by an Endpoint.
func (t *TransitTunnel) NumTransmittedBytes() uint64 { return t.transmittedBytes.Load() }

// HandleInbound processes one inbound 1028-byte record. Valid only for
// Participant and Endpoint roles.
func (t *TransitTunnel) HandleInbound(ctx context.Context, record []byte) error {
	switch t.role {
	case RoleParticipant:
		return t.handleInboundParticipant(ctx, record)
	case RoleEndpoint:
		return t.handleInboundEndpoint(ctx, record)
	default:
		t.logger.ErrorContext(ctx, "HandleInbound called on wrong role", slog.String("role", t.role.String()))
		return ErrWrongRole
	}
}

func (t *TransitTunnel) handleInboundParticipant(ctx context.Context, record []byte) error {
	if len(record) != RecordSize {
		return ErrInvalidLength
	}

	region := append([]byte{}, record[tunnelIDSize:]...)
	if err := t.layer.Encrypt(region); err != nil {
		return fmt.Errorf("tunnel: participant encrypt: %w", err)
	}

	out := make([]byte, RecordSize)
	putTunnelID(out, t.nextTunnelID)
	copy(out[tunnelIDSize:], region)

	t.mu.Lock()
	t.pendingRecords = append(t.pendingRecords, out)
	t.mu.Unlock()

	t.transmittedBytes.Add(uint64(len(out)))
	return nil
}

func (t *TransitTunnel) handleInboundEndpoint(ctx context.Context, record []byte) error {
	if len(record) != RecordSize {
		return ErrInvalidLength
	}

	region := append([]byte{}, record[tunnelIDSize:]...)
	var err error
	if t.outbound {
		err = t.layer.Encrypt(region)
	} else {
		err = t.layer.Decrypt(region)
	}
	if err != nil {
		return fmt.Errorf("tunnel: endpoint transform: %w", err)
	}

	decrypted := make([]byte, RecordSize)
	putTunnelID(decrypted, t.recvTunnelID)
	copy(decrypted[tunnelIDSize:], region)

	_, _, fragments, err := ParseRecord(decrypted)
	if err != nil {
		t.logger.WarnContext(ctx, "dropping record at endpoint", slog.Any("error", err))
		return err
	}

	if err := t.reassembler.Feed(ctx, fragments); err != nil {
		return err
	}
	t.transmittedBytes.Add(uint64(len(record)))
	return nil
}

// SendOutbound enqueues block for the next Flush. Valid only for the
// Gateway role.
func (t *TransitTunnel) SendOutbound(block Block) error {
	if t.role != RoleGateway {
		t.logger.Error("SendOutbound called on wrong role", slog.String("role", t.role.String()))
		return ErrWrongRole
	}
	t.gateway.Put(block)
	return nil
}

// Flush drains any pending outbound work to the transport layer. For a
// Gateway this packs its buffered blocks into records first; for a
// Participant it sends whatever HandleInbound has already produced. For an
// Endpoint, Flush is a no-op: endpoints dispatch locally as they go.
func (t *TransitTunnel) Flush(ctx context.Context) error {
	switch t.role {
	case RoleGateway:
		return t.flushGateway(ctx)
	case RoleParticipant:
		return t.flushParticipant(ctx)
	case RoleEndpoint:
		return nil
	default:
		return ErrWrongRole
	}
}

func (t *TransitTunnel) flushGateway(ctx context.Context) error {
	fragmentStreams := t.gateway.SendBuffer()
	if n := t.gateway.TakeFragmentsEmitted(); n > 0 {
		t.metrics.AddFragmentsEmitted(n)
	}
	if len(fragmentStreams) == 0 {
		return nil
	}

	records := make([][]byte, 0, len(fragmentStreams))
	for _, stream := range fragmentStreams {
		var ivSeed [ivSize]byte
		if err := randRead(ivSeed[:]); err != nil {
			return fmt.Errorf("tunnel: gateway iv seed: %w", err)
		}
		record, err := BuildRecord(t.recvTunnelID, ivSeed, stream)
		if err != nil {
			return fmt.Errorf("tunnel: gateway build record: %w", err)
		}
		region := record[tunnelIDSize:]
		if err := t.layer.Encrypt(region); err != nil {
			return fmt.Errorf("tunnel: gateway encrypt: %w", err)
		}
		putTunnelID(record, t.nextTunnelID)
		records = append(records, record)
		t.transmittedBytes.Add(uint64(len(record)))
	}

	return t.transport.SendRecords(ctx, t.nextIdentHash, records)
}

func (t *TransitTunnel) flushParticipant(ctx context.Context) error {
	t.mu.Lock()
	records := t.pendingRecords
	t.pendingRecords = nil
	t.mu.Unlock()

	if len(records) == 0 {
		return nil
	}
	return t.transport.SendRecords(ctx, t.nextIdentHash, records)
}

func putTunnelID(record []byte, id uint32) {
	record[0] = byte(id >> 24)
	record[1] = byte(id >> 16)
	record[2] = byte(id >> 8)
	record[3] = byte(id)
}
