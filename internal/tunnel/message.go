package tunnel

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// I2NP message types the core owns the body of; every other type is opaque
// to this package and is only ever carried, never interpreted.
const (
	MessageTypeTunnelData uint8 = 20
	MessageTypeData       uint8 = 18
)

const headerSize = 16

// MessageHeader is the 16-byte framing header in front of every inner
// message: type (1), message ID (4), expiration (8), body length (2), and
// a one-byte body checksum.
type MessageHeader struct {
	Type       uint8
	MessageID  uint32
	Expiration time.Time
	Size       uint16
}

// EncodeHeader serializes header followed by body into one buffer. The
// checksum byte is computed here, over body, so callers never have to get
// it right themselves.
func EncodeHeader(header MessageHeader, body []byte) []byte {
	buf := make([]byte, headerSize+len(body))
	buf[0] = header.Type
	binary.BigEndian.PutUint32(buf[1:5], header.MessageID)
	binary.BigEndian.PutUint64(buf[5:13], uint64(header.Expiration.UnixMilli()))
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(body)))
	sum := sha256.Sum256(body)
	buf[15] = sum[0]
	copy(buf[headerSize:], body)
	return buf
}

// DecodeHeader splits a framed inner message into its header and body. It
// does not reject a mismatched checksum byte — callers that care about
// tamper detection should compare it explicitly, since a single byte is a
// weak integrity check by design (the record codec's own SHA-256 prefix is
// the real integrity boundary).
func DecodeHeader(data []byte) (MessageHeader, []byte, error) {
	if len(data) < headerSize {
		return MessageHeader{}, nil, ErrInvalidLength
	}
	header := MessageHeader{
		Type:       data[0],
		MessageID:  binary.BigEndian.Uint32(data[1:5]),
		Expiration: time.UnixMilli(int64(binary.BigEndian.Uint64(data[5:13]))),
		Size:       binary.BigEndian.Uint16(data[13:15]),
	}
	if len(data) < headerSize+int(header.Size) {
		return MessageHeader{}, nil, ErrInvalidLength
	}
	body := data[headerSize : headerSize+int(header.Size)]
	return header, body, nil
}
