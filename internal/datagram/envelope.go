// Package datagram implements the signed datagram envelope: the primary
// client of the tunnel message plane. It signs an application payload with
// the sender's destination identity, gzips and frames it as an inner I2NP
// Data message, and hands it to an outbound tunnel's gateway; on the way
// in it reverses the process and invokes a registered receiver.
package datagram

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/go-i2p/tunneld/internal/tunnel"
)

// DefaultMaxSize is the default upper bound on an ungzipped datagram body,
// per SPEC_FULL §6 (≥ 32 KiB).
const DefaultMaxSize = 32 * 1024

// ProtocolTypeDatagram is the I2NP protocol-type byte identifying a
// repliable datagram, matching the network's established value.
const ProtocolTypeDatagram = 17

// SigningKeyType distinguishes the legacy DSA-SHA1 pre-hash quirk from
// every modern signing algorithm.
type SigningKeyType uint8

const (
	SigningKeyEd25519 SigningKeyType = iota
	SigningKeyDSASHA1
)

var (
	ErrNoRoute           = errors.New("datagram: no non-expired lease or outbound tunnel available")
	ErrSignatureInvalid  = errors.New("datagram: signature verification failed")
	ErrOversizeDatagram  = errors.New("datagram: ungzipped size exceeds configured maximum")
	ErrNoReceiver        = errors.New("datagram: no receiver registered")
	ErrMalformedEnvelope = errors.New("datagram: malformed envelope")
)

// Signer produces signatures for outbound datagrams.
type Signer interface {
	SigningKeyType() SigningKeyType
	Identity() []byte
	IdentitySize() int
	SignatureSize() int
	Sign(data []byte) ([]byte, error)
}

// Verifier checks signatures on inbound datagrams.
type Verifier interface {
	SigningKeyType() SigningKeyType
	IdentitySize() int
	SignatureSize() int
	Verify(identity, data, sig []byte) bool
}

// Lease names one inbound tunnel of a remote destination.
type Lease struct {
	Gateway  [32]byte
	TunnelID uint32
	Expiry   time.Time
}

// GarlicWrapper wraps an inner message for delivery toward a specific
// lease. It is an external collaborator per spec §6; this package only
// needs its output, not its internals.
type GarlicWrapper interface {
	Wrap(lease Lease, inner []byte) ([]byte, error)
}

// Gateway is the minimal surface of a tunnel.TransitTunnel (Gateway role)
// a Destination needs to emit outbound traffic.
type Gateway interface {
	SendOutbound(block tunnel.Block) error
}

// Receiver is invoked for each successfully verified inbound datagram.
type Receiver func(identity []byte, payload []byte)

// MetricsReporter receives send/drop events for the datagram layer.
// Implementations must be safe for concurrent use.
type MetricsReporter interface {
	IncDatagramsSent()
	IncDatagramsDropped(reason string)
}

type noopMetrics struct{}

func (noopMetrics) IncDatagramsSent()          {}
func (noopMetrics) IncDatagramsDropped(string) {}

// messageExpiration is the I2NP message expiration written into the outer
// header of every outbound datagram; the network convention is a short,
// fixed TTL rather than anything payload-dependent.
const messageExpiration = time.Minute

// Destination ties together signing, a garlic wrapper, and an outbound
// gateway to implement sendTo/setReceiver/handleDataMessagePayload from
// spec §6's exposed-interfaces list.
type Destination struct {
	Signer   Signer
	Verifier Verifier
	Garlic   GarlicWrapper
	Gateway  Gateway
	MaxSize  int
	Logger   *slog.Logger
	Metrics  MetricsReporter

	receiver Receiver
}

func (d *Destination) metrics() MetricsReporter {
	if d.Metrics != nil {
		return d.Metrics
	}
	return noopMetrics{}
}

func (d *Destination) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Destination) maxSize() int {
	if d.MaxSize > 0 {
		return d.MaxSize
	}
	return DefaultMaxSize
}

// SetReceiver registers the callback invoked for each inbound datagram.
func (d *Destination) SetReceiver(r Receiver) {
	d.receiver = r
}

// SendTo signs payload, frames it as a gzipped Data message, wraps it for
// one uniformly-random non-expired lease, and hands it to the outbound
// gateway addressed to that lease's tunnel gateway. It fails synchronously
// with ErrNoRoute if leases is empty or entirely expired.
func (d *Destination) SendTo(ctx context.Context, payload []byte, leases []Lease) error {
	lease, ok := pickLease(leases, time.Now())
	if !ok {
		return ErrNoRoute
	}
	if d.Gateway == nil {
		return ErrNoRoute
	}

	frame, err := d.buildFrame(payload)
	if err != nil {
		return fmt.Errorf("datagram: build frame: %w", err)
	}

	msgID := rand.Uint32()
	framed := tunnel.EncodeHeader(tunnel.MessageHeader{
		Type:       tunnel.MessageTypeData,
		MessageID:  msgID,
		Expiration: time.Now().Add(messageExpiration),
	}, frame)

	wrapped := framed
	if d.Garlic != nil {
		wrapped, err = d.Garlic.Wrap(lease, framed)
		if err != nil {
			return fmt.Errorf("datagram: garlic wrap: %w", err)
		}
	}

	if err := d.Gateway.SendOutbound(tunnel.Block{
		DeliveryType: tunnel.DeliveryTunnel,
		Hash:         lease.Gateway,
		HasHash:      true,
		TunnelID:     lease.TunnelID,
		HasTunnelID:  true,
		MessageID:    msgID,
		Data:         wrapped,
	}); err != nil {
		return err
	}

	d.metrics().IncDatagramsSent()
	return nil
}

// pickLease selects a uniformly random non-expired lease.
func pickLease(leases []Lease, now time.Time) (Lease, bool) {
	var valid []Lease
	for _, l := range leases {
		if l.Expiry.After(now) {
			valid = append(valid, l)
		}
	}
	if len(valid) == 0 {
		return Lease{}, false
	}
	return valid[rand.IntN(len(valid))], true
}

// buildFrame signs payload and produces the full gzipped, framed inner Data
// message: 4-byte length, gzip body, 8 zero bytes, protocol-type byte.
func (d *Destination) buildFrame(payload []byte) ([]byte, error) {
	if d.Signer == nil {
		return nil, errors.New("datagram: no signer configured")
	}

	toSign := payload
	if d.Signer.SigningKeyType() == SigningKeyDSASHA1 {
		sum := sha256.Sum256(payload)
		toSign = sum[:]
	}

	sig, err := d.Signer.Sign(toSign)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	var body bytes.Buffer
	body.Write(d.Signer.Identity())
	body.Write(sig)
	body.Write(payload)

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	if _, err := w.Write(body.Bytes()); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}

	frame := make([]byte, 4+gz.Len()+8+1)
	binary.BigEndian.PutUint32(frame[0:4], uint32(gz.Len()))
	copy(frame[4:4+gz.Len()], gz.Bytes())
	frame[len(frame)-1] = ProtocolTypeDatagram
	return frame, nil
}

// HandleDataMessagePayload processes an inbound Data message: the 16-byte
// I2NP header produced by EncodeHeader, wrapping the 4-byte-length-prefixed
// gzip frame built by buildFrame (the 8 zero bytes and protocol-type byte
// trailing the gzip body are routing metadata and are not re-examined
// here). It decodes the header, ungzips, verifies, and invokes the
// receiver, reporting a reason via Metrics at every drop point.
func (d *Destination) HandleDataMessagePayload(framed []byte) {
	if d.receiver == nil {
		d.logger().Warn("dropping datagram: no receiver registered")
		d.metrics().IncDatagramsDropped("no_receiver")
		return
	}

	header, frame, err := tunnel.DecodeHeader(framed)
	if err != nil {
		d.logger().Warn("dropping datagram: bad header", slog.Any("error", err))
		d.metrics().IncDatagramsDropped("bad_header")
		return
	}
	if header.Type != tunnel.MessageTypeData {
		d.logger().Warn("dropping datagram: unexpected message type", slog.Int("type", int(header.Type)))
		d.metrics().IncDatagramsDropped("bad_type")
		return
	}

	gzipped, err := extractGzipBody(frame)
	if err != nil {
		d.logger().Warn("dropping datagram: bad frame", slog.Any("error", err))
		d.metrics().IncDatagramsDropped("bad_frame")
		return
	}

	body, err := ungzipBounded(gzipped, d.maxSize())
	if err != nil {
		d.logger().Warn("dropping datagram", slog.Any("error", err))
		d.metrics().IncDatagramsDropped("bad_gzip")
		return
	}

	identity, payload, sig, err := d.splitEnvelope(body)
	if err != nil {
		d.logger().Warn("dropping malformed datagram", slog.Any("error", err))
		d.metrics().IncDatagramsDropped("malformed")
		return
	}

	toVerify := payload
	if d.Verifier.SigningKeyType() == SigningKeyDSASHA1 {
		sum := sha256.Sum256(payload)
		toVerify = sum[:]
	}
	if !d.Verifier.Verify(identity, toVerify, sig) {
		d.logger().Warn("dropping datagram: signature invalid")
		d.metrics().IncDatagramsDropped("bad_signature")
		return
	}

	d.receiver(identity, payload)
}

// extractGzipBody slices the gzip body out of a length-prefixed frame
// built by buildFrame, ignoring the trailing zero bytes and protocol-type
// byte.
func extractGzipBody(frame []byte) ([]byte, error) {
	if len(frame) < 4 {
		return nil, ErrMalformedEnvelope
	}
	length := binary.BigEndian.Uint32(frame[:4])
	end := 4 + int(length)
	if end > len(frame) {
		return nil, ErrMalformedEnvelope
	}
	return frame[4:end], nil
}

func (d *Destination) splitEnvelope(body []byte) (identity, payload, sig []byte, err error) {
	if d.Verifier == nil {
		return nil, nil, nil, errors.New("datagram: no verifier configured")
	}
	idSize := d.Verifier.IdentitySize()
	sigSize := d.Verifier.SignatureSize()
	if len(body) < idSize+sigSize {
		return nil, nil, nil, ErrMalformedEnvelope
	}
	identity = body[:idSize]
	sig = body[idSize : idSize+sigSize]
	payload = body[idSize+sigSize:]
	return identity, payload, sig, nil
}

func ungzipBounded(gzipped []byte, max int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(gzipped))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()

	limited := io.LimitReader(r, int64(max)+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	if len(out) > max {
		return nil, ErrOversizeDatagram
	}
	return out, nil
}
