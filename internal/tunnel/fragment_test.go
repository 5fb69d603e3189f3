package tunnel

import (
	"bytes"
	"testing"
)

func TestFirstFragmentEncodeDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		frag FirstFragment
	}{
		{"local unfragmented", FirstFragment{DeliveryType: DeliveryLocal, Data: []byte("hi")}},
		{
			"tunnel fragmented",
			FirstFragment{
				DeliveryType: DeliveryTunnel,
				Hash:         [32]byte{1, 2, 3},
				TunnelID:     99,
				Fragmented:   true,
				MessageID:    42,
				Data:         []byte("prefix"),
			},
		},
		{
			"router unfragmented",
			FirstFragment{
				DeliveryType: DeliveryRouter,
				Hash:         [32]byte{9},
				Data:         []byte("direct"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			encoded := tt.frag.Encode()
			decoded, n, err := decodeFirstFragment(encoded)
			if err != nil {
				t.Fatalf("decodeFirstFragment: %v", err)
			}
			if n != len(encoded) {
				t.Errorf("consumed %d bytes, want %d", n, len(encoded))
			}
			if decoded.DeliveryType != tt.frag.DeliveryType {
				t.Errorf("DeliveryType = %v, want %v", decoded.DeliveryType, tt.frag.DeliveryType)
			}
			if decoded.Fragmented != tt.frag.Fragmented {
				t.Errorf("Fragmented = %v, want %v", decoded.Fragmented, tt.frag.Fragmented)
			}
			if !bytes.Equal(decoded.Data, tt.frag.Data) {
				t.Errorf("Data = %q, want %q", decoded.Data, tt.frag.Data)
			}
			if tt.frag.Fragmented && decoded.MessageID != tt.frag.MessageID {
				t.Errorf("MessageID = %d, want %d", decoded.MessageID, tt.frag.MessageID)
			}
		})
	}
}

func TestFollowOnFragmentEncodeDecode(t *testing.T) {
	t.Parallel()

	frag := FollowOnFragment{Sequence: 5, Last: true, MessageID: 77, Data: []byte("tail")}
	encoded := frag.Encode()

	if !isFollowOn(encoded[0]) {
		t.Fatal("expected follow-on flag bit set")
	}

	decoded, n, err := decodeFollowOnFragment(encoded)
	if err != nil {
		t.Fatalf("decodeFollowOnFragment: %v", err)
	}
	if n != len(encoded) {
		t.Errorf("consumed %d bytes, want %d", n, len(encoded))
	}
	if decoded.Sequence != 5 || !decoded.Last || decoded.MessageID != 77 {
		t.Errorf("decoded = %+v", decoded)
	}
	if !bytes.Equal(decoded.Data, frag.Data) {
		t.Errorf("Data = %q, want %q", decoded.Data, frag.Data)
	}
}
