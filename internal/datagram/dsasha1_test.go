package datagram_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-i2p/tunneld/internal/datagram"
)

// TestDSASHA1PreHashQuirk drives a datagram through the legacy DSA-SHA1
// branch, where the envelope signs and verifies SHA-256(payload) rather
// than payload itself, and checks that the payload round-trips to the
// receiver.
func TestDSASHA1PreHashQuirk(t *testing.T) {
	t.Parallel()

	key := []byte("shared legacy signing key")
	identity := bytes.Repeat([]byte{0xAB}, 20)

	signer := datagram.NewDSASHA1Signer(key, identity)
	verifier := datagram.NewDSASHA1Verifier(key, len(identity))

	gw := &captureGateway{}
	var gotPayload []byte
	dest := &datagram.Destination{
		Signer:   signer,
		Verifier: verifier,
		Garlic:   identityWrapper{},
		Gateway:  gw,
	}
	dest.SetReceiver(func(_ []byte, payload []byte) { gotPayload = payload })

	leases := []datagram.Lease{{TunnelID: 1, Expiry: time.Now().Add(time.Hour)}}
	payload := []byte("legacy signed datagram")

	if err := dest.SendTo(context.Background(), payload, leases); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	dest.HandleDataMessagePayload(gw.block.Data)

	if !bytes.Equal(gotPayload, payload) {
		t.Fatalf("payload = %q, want %q", gotPayload, payload)
	}
}
