package datagram_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/go-i2p/tunneld/internal/datagram"
	"github.com/go-i2p/tunneld/internal/tunnel"
)

type captureGateway struct {
	block tunnel.Block
	calls int
}

func (g *captureGateway) SendOutbound(b tunnel.Block) error {
	g.block = b
	g.calls++
	return nil
}

type identityWrapper struct{}

func (identityWrapper) Wrap(_ datagram.Lease, inner []byte) ([]byte, error) {
	return inner, nil
}

func TestSendToAndReceiveRoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := datagram.NewEd25519Signer()
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}

	gw := &captureGateway{}
	var gotIdentity, gotPayload []byte
	dest := &datagram.Destination{
		Signer:   signer,
		Verifier: datagram.Ed25519Verifier{},
		Garlic:   identityWrapper{},
		Gateway:  gw,
	}
	dest.SetReceiver(func(identity, payload []byte) {
		gotIdentity = identity
		gotPayload = payload
	})

	leases := []datagram.Lease{{Gateway: [32]byte{1}, TunnelID: 7, Expiry: time.Now().Add(time.Hour)}}
	payload := []byte("hello from the sender")

	if err := dest.SendTo(context.Background(), payload, leases); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	if gw.calls != 1 {
		t.Fatalf("gateway called %d times, want 1", gw.calls)
	}
	if gw.block.DeliveryType != tunnel.DeliveryTunnel || gw.block.TunnelID != 7 {
		t.Fatalf("block = %+v", gw.block)
	}

	dest.HandleDataMessagePayload(gw.block.Data)

	if !bytes.Equal(gotIdentity, signer.Identity()) {
		t.Errorf("identity mismatch")
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Errorf("payload = %q, want %q", gotPayload, payload)
	}
}

func TestSendToNoRouteWhenLeasesExpired(t *testing.T) {
	t.Parallel()

	signer, err := datagram.NewEd25519Signer()
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}
	gw := &captureGateway{}
	dest := &datagram.Destination{Signer: signer, Gateway: gw}

	leases := []datagram.Lease{{Expiry: time.Now().Add(-time.Minute)}}
	err = dest.SendTo(context.Background(), []byte("x"), leases)
	if err != datagram.ErrNoRoute {
		t.Fatalf("SendTo error = %v, want %v", err, datagram.ErrNoRoute)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times, want 0", gw.calls)
	}
}

func TestHandleDataMessagePayloadRejectsBadSignature(t *testing.T) {
	t.Parallel()

	signer, err := datagram.NewEd25519Signer()
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}
	otherSigner, err := datagram.NewEd25519Signer()
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}

	called := false
	dest := &datagram.Destination{
		Signer:   signer,
		Verifier: datagram.Ed25519Verifier{},
	}
	dest.SetReceiver(func(identity, payload []byte) { called = true })

	// Sign with one key but claim the other's identity, to force a
	// verification failure.
	sig, err := otherSigner.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	var body bytes.Buffer
	body.Write(signer.Identity())
	body.Write(sig)
	body.Write([]byte("payload"))

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	if _, err := w.Write(body.Bytes()); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	frame := make([]byte, 4+gz.Len()+8+1)
	binary.BigEndian.PutUint32(frame[0:4], uint32(gz.Len()))
	copy(frame[4:4+gz.Len()], gz.Bytes())
	frame[len(frame)-1] = datagram.ProtocolTypeDatagram

	framed := tunnel.EncodeHeader(tunnel.MessageHeader{
		Type:       tunnel.MessageTypeData,
		MessageID:  1,
		Expiration: time.Now().Add(time.Minute),
	}, frame)

	dest.HandleDataMessagePayload(framed)

	if called {
		t.Fatal("receiver should not have been invoked for a bad signature")
	}
}
