package tunnel

import "encoding/binary"

const (
	hashSize = 32

	firstFragmentedFlag = 1 << 3
	followOnFlag        = 1 << 7
)

// FirstFragment is the leading fragment of a message as it appears inside
// a tunnel record's fragment stream. Hash and TunnelID are only present for
// Tunnel/Router delivery types; MessageID is only present when Fragmented
// is set.
type FirstFragment struct {
	DeliveryType DeliveryType
	Hash         [hashSize]byte
	HasHash      bool
	TunnelID     uint32
	HasTunnelID  bool
	Fragmented   bool
	MessageID    uint32
	Data         []byte
}

// FollowOnFragment is a continuation fragment.
type FollowOnFragment struct {
	Sequence  uint8
	Last      bool
	MessageID uint32
	Data      []byte
}

// instructionsLen returns the length in bytes of the delivery-instructions
// prefix this fragment would encode to, including the 2-byte size field
// but not the body. withMessageID controls whether the 4-byte message ID is counted,
// since that decision is made independently of whether Fragmented is set
// yet during packing (see GatewayBuffer.SendBuffer).
func (f FirstFragment) instructionsLen(withMessageID bool) int {
	n := 1 // flag byte
	if f.DeliveryType == DeliveryTunnel || f.DeliveryType == DeliveryRouter {
		n += hashSize
	}
	if f.DeliveryType == DeliveryTunnel {
		n += tunnelIDSize
	}
	if withMessageID {
		n += 4
	}
	n += 2 // size field
	return n
}

// Encode serializes the fragment, including its 2-byte size field and body.
func (f FirstFragment) Encode() []byte {
	instrLen := f.instructionsLen(f.Fragmented)
	buf := make([]byte, instrLen+len(f.Data))

	flag := byte(f.DeliveryType) << 5
	if f.Fragmented {
		flag |= firstFragmentedFlag
	}
	buf[0] = flag

	pos := 1
	if f.DeliveryType == DeliveryTunnel || f.DeliveryType == DeliveryRouter {
		copy(buf[pos:pos+hashSize], f.Hash[:])
		pos += hashSize
	}
	if f.DeliveryType == DeliveryTunnel {
		binary.BigEndian.PutUint32(buf[pos:pos+tunnelIDSize], f.TunnelID)
		pos += tunnelIDSize
	}
	if f.Fragmented {
		binary.BigEndian.PutUint32(buf[pos:pos+4], f.MessageID)
		pos += 4
	}
	binary.BigEndian.PutUint16(buf[pos:pos+2], uint16(len(f.Data)))
	pos += 2
	copy(buf[pos:], f.Data)

	return buf
}

// Encode serializes a follow-on fragment.
func (f FollowOnFragment) Encode() []byte {
	buf := make([]byte, 1+4+2+len(f.Data))

	flag := followOnFlag | (f.Sequence << 1)
	if f.Last {
		flag |= 1
	}
	buf[0] = flag

	binary.BigEndian.PutUint32(buf[1:5], f.MessageID)
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(f.Data)))
	copy(buf[7:], f.Data)

	return buf
}

// decodeFirstFragment decodes one first-fragment from the front of data and
// returns the fragment plus the number of bytes consumed.
func decodeFirstFragment(data []byte) (FirstFragment, int, error) {
	if len(data) < 1 {
		return FirstFragment{}, 0, ErrBadFragment
	}
	flag := data[0]
	f := FirstFragment{
		DeliveryType: DeliveryType((flag >> 5) & 0x3),
		Fragmented:   flag&firstFragmentedFlag != 0,
	}

	pos := 1
	if f.DeliveryType == DeliveryTunnel || f.DeliveryType == DeliveryRouter {
		if len(data) < pos+hashSize {
			return FirstFragment{}, 0, ErrBadFragment
		}
		copy(f.Hash[:], data[pos:pos+hashSize])
		f.HasHash = true
		pos += hashSize
	}
	if f.DeliveryType == DeliveryTunnel {
		if len(data) < pos+tunnelIDSize {
			return FirstFragment{}, 0, ErrBadFragment
		}
		f.TunnelID = binary.BigEndian.Uint32(data[pos : pos+tunnelIDSize])
		f.HasTunnelID = true
		pos += tunnelIDSize
	}
	if f.Fragmented {
		if len(data) < pos+4 {
			return FirstFragment{}, 0, ErrBadFragment
		}
		f.MessageID = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	}
	if len(data) < pos+2 {
		return FirstFragment{}, 0, ErrBadFragment
	}
	size := int(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2
	if len(data) < pos+size {
		return FirstFragment{}, 0, ErrBadFragment
	}
	f.Data = append([]byte{}, data[pos:pos+size]...)
	pos += size

	return f, pos, nil
}

// decodeFollowOnFragment decodes one follow-on fragment from the front of
// data and returns the fragment plus the number of bytes consumed.
func decodeFollowOnFragment(data []byte) (FollowOnFragment, int, error) {
	if len(data) < 7 {
		return FollowOnFragment{}, 0, ErrBadFragment
	}
	flag := data[0]
	f := FollowOnFragment{
		Sequence: (flag >> 1) & 0x3f,
		Last:     flag&1 != 0,
	}
	f.MessageID = binary.BigEndian.Uint32(data[1:5])
	size := int(binary.BigEndian.Uint16(data[5:7]))
	if len(data) < 7+size {
		return FollowOnFragment{}, 0, ErrBadFragment
	}
	f.Data = append([]byte{}, data[7:7+size]...)
	return f, 7 + size, nil
}

// isFollowOn reports whether the flag byte at the front of data marks a
// follow-on fragment rather than a first fragment.
func isFollowOn(flag byte) bool {
	return flag&followOnFlag != 0
}
