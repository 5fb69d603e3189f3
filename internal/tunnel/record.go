// Package tunnel implements the tunnel message plane: the 1028-byte record
// codec, the gateway fragmenter, the endpoint reassembler, the transit role
// machine, and the delivery dispatcher. It is the core this whole module
// exists to exercise; everything else (config, metrics, admin server) is
// wiring around it.
package tunnel

import (
	"crypto/sha256"
	"encoding/binary"
)

// Size constants from the wire format. These are never configurable —
// changing them breaks interoperability with every other hop on the
// network.
const (
	RecordSize         = 1028
	EncryptedSize      = 1008
	MaxPayloadSize     = 1003
	tunnelIDSize       = 4
	ivSize             = 16
	checksumSize       = 4
)

// DeliveryType selects how a reassembled inner message is routed once it
// reaches its endpoint.
type DeliveryType uint8

const (
	DeliveryLocal DeliveryType = iota
	DeliveryTunnel
	DeliveryRouter
)

func (d DeliveryType) String() string {
	switch d {
	case DeliveryLocal:
		return "local"
	case DeliveryTunnel:
		return "tunnel"
	case DeliveryRouter:
		return "router"
	default:
		return "unknown"
	}
}

// BuildRecord assembles a 1028-byte tunnel record from a tunnel ID, a
// 16-byte IV seed, and an already-framed fragment stream (the concatenation
// of one or more encoded fragments, at most MaxPayloadSize bytes). It does
// not apply tunnel crypto; that happens as a separate stage once the record
// has left this codec.
func BuildRecord(tunnelID uint32, ivSeed [ivSize]byte, fragments []byte) ([]byte, error) {
	if len(fragments) > MaxPayloadSize {
		return nil, ErrInvalidLength
	}

	record := make([]byte, RecordSize)
	binary.BigEndian.PutUint32(record[0:tunnelIDSize], tunnelID)
	copy(record[tunnelIDSize:tunnelIDSize+ivSize], ivSeed[:])

	payload := record[tunnelIDSize+ivSize:]

	zeroOffset := EncryptedSize - len(fragments) - 1
	if err := fillPadding(payload[checksumSize:zeroOffset]); err != nil {
		return nil, err
	}
	payload[zeroOffset] = 0
	copy(payload[zeroOffset+1:], fragments)

	sum := checksumOf(payload[zeroOffset+1:], ivSeed)
	copy(payload[:checksumSize], sum[:checksumSize])

	return record, nil
}

// ParseRecord reverses BuildRecord. It returns the tunnel ID, the IV seed,
// and the fragment stream (the payload bytes following the zero
// separator). It fails with ErrBadChecksum when the checksum does not
// match and ErrBadPadding when no zero separator is found in the padding
// region.
func ParseRecord(record []byte) (tunnelID uint32, ivSeed [ivSize]byte, fragments []byte, err error) {
	if len(record) != RecordSize {
		return 0, ivSeed, nil, ErrInvalidLength
	}

	tunnelID = binary.BigEndian.Uint32(record[0:tunnelIDSize])
	copy(ivSeed[:], record[tunnelIDSize:tunnelIDSize+ivSize])

	payload := record[tunnelIDSize+ivSize:]

	zeroOffset := -1
	for i := checksumSize; i < EncryptedSize; i++ {
		if payload[i] == 0 {
			zeroOffset = i
			break
		}
	}
	if zeroOffset == -1 {
		return 0, ivSeed, nil, ErrBadPadding
	}

	fragments = append([]byte{}, payload[zeroOffset+1:]...)

	sum := checksumOf(fragments, ivSeed)
	if !equalPrefix(payload[:checksumSize], sum[:checksumSize]) {
		return 0, ivSeed, nil, ErrBadChecksum
	}

	return tunnelID, ivSeed, fragments, nil
}

func checksumOf(fragments []byte, ivSeed [ivSize]byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write(fragments)
	h.Write(ivSeed[:])
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func equalPrefix(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fillPadding fills buf with non-zero random bytes, matching the record
// codec's padding requirement. A zero-length buf (fragments fill the whole
// window) is a valid no-op.
func fillPadding(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := randRead(buf); err != nil {
		return err
	}
	for i, b := range buf {
		if b == 0 {
			buf[i] = 1
		}
	}
	return nil
}
