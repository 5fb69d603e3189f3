package tunnel_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/go-i2p/tunneld/internal/tunnel"
)

func randIV(t *testing.T) [16]byte {
	t.Helper()
	var iv [16]byte
	if _, err := rand.Read(iv[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return iv
}

func TestBuildParseRecordRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fragments []byte
	}{
		{"empty", nil},
		{"small", []byte("hello fragment")},
		{"full window", bytes.Repeat([]byte{0x42}, tunnel.MaxPayloadSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			iv := randIV(t)
			record, err := tunnel.BuildRecord(7, iv, tt.fragments)
			if err != nil {
				t.Fatalf("BuildRecord: %v", err)
			}
			if len(record) != tunnel.RecordSize {
				t.Fatalf("record size = %d, want %d", len(record), tunnel.RecordSize)
			}

			tunnelID, gotIV, fragments, err := tunnel.ParseRecord(record)
			if err != nil {
				t.Fatalf("ParseRecord: %v", err)
			}
			if tunnelID != 7 {
				t.Errorf("tunnelID = %d, want 7", tunnelID)
			}
			if gotIV != iv {
				t.Errorf("IV mismatch")
			}
			if !bytes.Equal(fragments, tt.fragments) {
				t.Errorf("fragments = %x, want %x", fragments, tt.fragments)
			}
		})
	}
}

func TestParseRecordBadChecksum(t *testing.T) {
	t.Parallel()

	iv := randIV(t)
	record, err := tunnel.BuildRecord(1, iv, []byte("payload"))
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}

	// Flip a byte of the fragment stream (the last byte of the record). The
	// checksum covers the bytes after the zero separator plus the IV seed;
	// padding bytes before the separator are not part of it.
	record[tunnel.RecordSize-1] ^= 0xFF

	if _, _, _, err := tunnel.ParseRecord(record); err != tunnel.ErrBadChecksum {
		t.Fatalf("ParseRecord error = %v, want %v", err, tunnel.ErrBadChecksum)
	}
}

func TestBuildRecordRejectsOversizeFragments(t *testing.T) {
	t.Parallel()

	iv := randIV(t)
	oversized := bytes.Repeat([]byte{1}, tunnel.MaxPayloadSize+1)
	if _, err := tunnel.BuildRecord(1, iv, oversized); err != tunnel.ErrInvalidLength {
		t.Fatalf("BuildRecord error = %v, want %v", err, tunnel.ErrInvalidLength)
	}
}

func TestParseRecordRejectsWrongSize(t *testing.T) {
	t.Parallel()

	if _, _, _, err := tunnel.ParseRecord(make([]byte, 100)); err != tunnel.ErrInvalidLength {
		t.Fatalf("ParseRecord error = %v, want %v", err, tunnel.ErrInvalidLength)
	}
}
