package tunnel

import (
	"sync"
	"sync/atomic"
)

// Block is an inner message queued for delivery through a gateway, tagged
// with the delivery instructions that will prefix it on the wire.
type Block struct {
	DeliveryType DeliveryType
	Hash         [hashSize]byte
	HasHash      bool
	TunnelID     uint32
	HasTunnelID  bool
	MessageID    uint32
	Data         []byte
}

// GatewayBuffer packs queued Blocks into a stream of tunnel records for one
// tunnel. It owns the FIFO queue and the fragmentation progression state
// (§3's "tunnel gateway buffer state"); callers drive it with Put and
// SendBuffer, normally under a per-gateway mutex, since producers other
// than the tunnel's own reactor goroutine may call Put concurrently.
type GatewayBuffer struct {
	mu    sync.Mutex
	queue []Block

	fragmentsEmitted atomic.Uint64
}

// NewGatewayBuffer returns an empty buffer.
func NewGatewayBuffer() *GatewayBuffer {
	return &GatewayBuffer{}
}

// Put enqueues block for the next SendBuffer call.
func (g *GatewayBuffer) Put(block Block) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, block)
}

// Pending reports the number of blocks currently queued.
func (g *GatewayBuffer) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// TakeFragmentsEmitted returns the number of fragments SendBuffer has
// written into records since the last call, resetting the count to zero.
func (g *GatewayBuffer) TakeFragmentsEmitted() int {
	return int(g.fragmentsEmitted.Swap(0))
}

// SendBuffer drains the queue into zero or more fragment streams, one per
// record, ready for BuildRecord. It implements the packing algorithm from
// §4.4: a block that fits whole is appended unfragmented; a block that
// doesn't fit but whose instructions-plus-message-ID would, is fragmented
// at the record boundary; a block whose instructions alone wouldn't fit is
// deferred whole to the next record.
func (g *GatewayBuffer) SendBuffer() [][]byte {
	g.mu.Lock()
	queue := g.queue
	g.queue = nil
	g.mu.Unlock()

	var records [][]byte
	var cur []byte
	size := 0

	closeRecord := func() {
		if size > 0 {
			records = append(records, cur)
		}
		cur = nil
		size = 0
	}

	for _, blk := range queue {
		first := FirstFragment{
			DeliveryType: blk.DeliveryType,
			Hash:         blk.Hash,
			HasHash:      blk.HasHash,
			TunnelID:     blk.TunnelID,
			HasTunnelID:  blk.HasTunnelID,
		}
		data := blk.Data
		seq := uint8(0)

		for {
			if seq == 0 {
				unfragLen := first.instructionsLen(false)
				totalLen := unfragLen + len(data)

				if size+totalLen < MaxPayloadSize {
					first.Fragmented = false
					first.Data = data
					frag := first.Encode()
					cur = append(cur, frag...)
					size += len(frag)
					g.fragmentsEmitted.Add(1)
					break
				}

				if size+unfragLen+4 > MaxPayloadSize {
					closeRecord()
					continue
				}

				avail := MaxPayloadSize - size - unfragLen - 4
				first.Fragmented = true
				first.MessageID = blk.MessageID
				first.Data = data[:avail]
				frag := first.Encode()
				cur = append(cur, frag...)
				size += len(frag)
				g.fragmentsEmitted.Add(1)
				data = data[avail:]
				closeRecord()
				seq = 1
				continue
			}

			followLen := 7
			avail := MaxPayloadSize - size - followLen
			if avail <= 0 {
				closeRecord()
				continue
			}

			last := false
			piece := data
			if len(data) > avail {
				piece = data[:avail]
			} else {
				last = true
			}

			follow := FollowOnFragment{
				Sequence:  seq,
				Last:      last,
				MessageID: blk.MessageID,
				Data:      piece,
			}
			frag := follow.Encode()
			cur = append(cur, frag...)
			size += len(frag)
			g.fragmentsEmitted.Add(1)
			data = data[len(piece):]

			if last {
				break
			}
			seq++
			closeRecord()
		}
	}
	closeRecord()

	return records
}
