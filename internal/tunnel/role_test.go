package tunnel_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-i2p/tunneld/internal/aescrypto"
	"github.com/go-i2p/tunneld/internal/tunnel"
	"github.com/go-i2p/tunneld/internal/tunnelcrypto"
)

// captureTransport records every batch of records handed to it, keyed by
// call order, standing in for the network.
type captureTransport struct {
	batches [][][]byte
	dests   [][32]byte
}

func (c *captureTransport) SendRecords(_ context.Context, identHash [32]byte, records [][]byte) error {
	c.batches = append(c.batches, records)
	c.dests = append(c.dests, identHash)
	return nil
}

func randKey(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, aescrypto.KeySize)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func TestParticipantRejectsSendOutbound(t *testing.T) {
	t.Parallel()

	layer, err := tunnelcrypto.NewLayer(randKey(t), randKey(t))
	if err != nil {
		t.Fatalf("NewLayer: %v", err)
	}
	p := tunnel.NewParticipantTunnel(1, 2, [32]byte{}, layer, &captureTransport{}, nil)

	if err := p.SendOutbound(tunnel.Block{}); err != tunnel.ErrWrongRole {
		t.Fatalf("SendOutbound error = %v, want %v", err, tunnel.ErrWrongRole)
	}
}

func TestGatewayRejectsHandleInbound(t *testing.T) {
	t.Parallel()

	layer, err := tunnelcrypto.NewLayer(randKey(t), randKey(t))
	if err != nil {
		t.Fatalf("NewLayer: %v", err)
	}
	g := tunnel.NewGatewayTunnel(1, 2, [32]byte{}, layer, &captureTransport{}, nil)

	if err := g.HandleInbound(context.Background(), make([]byte, tunnel.RecordSize)); err != tunnel.ErrWrongRole {
		t.Fatalf("HandleInbound error = %v, want %v", err, tunnel.ErrWrongRole)
	}
}

func TestParticipantForwardsAndRewritesTunnelID(t *testing.T) {
	t.Parallel()

	layer, err := tunnelcrypto.NewLayer(randKey(t), randKey(t))
	if err != nil {
		t.Fatalf("NewLayer: %v", err)
	}

	transport := &captureTransport{}
	nextHash := [32]byte{5, 5, 5}
	p := tunnel.NewParticipantTunnel(100, 200, nextHash, layer, transport, nil)

	inbound := make([]byte, tunnel.RecordSize)
	inbound[0], inbound[1], inbound[2], inbound[3] = 0, 0, 0, 100
	if err := p.HandleInbound(context.Background(), inbound); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(transport.batches) != 1 || len(transport.batches[0]) != 1 {
		t.Fatalf("transport.batches = %v", transport.batches)
	}
	out := transport.batches[0][0]
	gotID := uint32(out[0])<<24 | uint32(out[1])<<16 | uint32(out[2])<<8 | uint32(out[3])
	if gotID != 200 {
		t.Errorf("rewritten tunnel id = %d, want 200", gotID)
	}
	if transport.dests[0] != nextHash {
		t.Errorf("dest = %x, want %x", transport.dests[0], nextHash)
	}
	if p.NumTransmittedBytes() != tunnel.RecordSize {
		t.Errorf("NumTransmittedBytes = %d, want %d", p.NumTransmittedBytes(), tunnel.RecordSize)
	}
}

// TestGatewayToEndpointEndToEnd builds a gateway tunnel that packs an inner
// message, encrypts it, and feeds the resulting records to an inbound
// endpoint tunnel sharing the same layer keys, verifying that the original
// bytes are recovered through the dispatcher.
func TestGatewayToEndpointEndToEnd(t *testing.T) {
	t.Parallel()

	layerKey := randKey(t)
	ivKey := randKey(t)

	gwLayer, err := tunnelcrypto.NewLayer(layerKey, ivKey)
	if err != nil {
		t.Fatalf("NewLayer: %v", err)
	}
	epLayer, err := tunnelcrypto.NewLayer(layerKey, ivKey)
	if err != nil {
		t.Fatalf("NewLayer: %v", err)
	}

	var delivered [][]byte
	dispatcher := &tunnel.DeliveryDispatcher{
		Local: localHandlerFunc(func(_ context.Context, body []byte) error {
			delivered = append(delivered, append([]byte{}, body...))
			return nil
		}),
	}

	endpoint := tunnel.NewEndpointTunnel(42, epLayer, false, dispatcher, time.Minute, nil)

	var forwarded [][]byte
	transport := transportFunc(func(_ context.Context, _ [32]byte, records [][]byte) error {
		forwarded = append(forwarded, records...)
		return nil
	})
	gw := tunnel.NewGatewayTunnel(42, 42, [32]byte{}, gwLayer, transport, nil)

	payload := []byte("end to end payload across the tunnel plane")
	if err := gw.SendOutbound(tunnel.Block{DeliveryType: tunnel.DeliveryLocal, Data: payload}); err != nil {
		t.Fatalf("SendOutbound: %v", err)
	}
	if err := gw.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(forwarded) != 1 {
		t.Fatalf("forwarded %d records, want 1", len(forwarded))
	}

	// The gateway rewrote the tunnel ID header to its own "next" id (42
	// here, a single-hop loop for the test); endpoint decrypt uses its own
	// configured recvTunnelID when reconstructing the record, which is
	// independent of the wire header rewrite.
	if err := endpoint.HandleInbound(context.Background(), forwarded[0]); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	if len(delivered) != 1 || !bytes.Equal(delivered[0], payload) {
		t.Fatalf("delivered = %v, want [%q]", delivered, payload)
	}
}

type localHandlerFunc func(ctx context.Context, body []byte) error

func (f localHandlerFunc) HandleLocal(ctx context.Context, body []byte) error { return f(ctx, body) }

type transportFunc func(ctx context.Context, identHash [32]byte, records [][]byte) error

func (f transportFunc) SendRecords(ctx context.Context, identHash [32]byte, records [][]byte) error {
	return f(ctx, identHash, records)
}
