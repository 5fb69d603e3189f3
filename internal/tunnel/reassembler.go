package tunnel

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DeliveryInstructions is the recovered routing target for a reassembled
// inner message, handed onward to the Delivery Dispatcher.
type DeliveryInstructions struct {
	DeliveryType DeliveryType
	Hash         [hashSize]byte
	HasHash      bool
	TunnelID     uint32
	HasTunnelID  bool
}

// Dispatcher receives fully reassembled inner messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, instructions DeliveryInstructions, body []byte) error
}

type pendingMessage struct {
	instructions DeliveryInstructions
	buf          []byte
	nextSeq      uint8
	expireAt     time.Time
}

// Reassembler is the inverse of GatewayBuffer: it consumes a decrypted
// tunnel record's fragment stream, rebuilds inner messages across record
// boundaries, and hands completed messages to a Dispatcher. It has no
// built-in timeout default: NewReassembler uses the timeout it is given,
// and Manager supplies 10 seconds unless WithReassemblyTimeout overrides it.
type Reassembler struct {
	mu       sync.Mutex
	pending  map[uint32]*pendingMessage
	timeout  time.Duration
	dispatch Dispatcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewReassembler builds a Reassembler that delivers to dispatch and expires
// incomplete messages after timeout. A nil logger falls back to slog's
// default logger.
func NewReassembler(dispatch Dispatcher, timeout time.Duration, logger *slog.Logger) *Reassembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reassembler{
		pending:  make(map[uint32]*pendingMessage),
		timeout:  timeout,
		dispatch: dispatch,
		logger:   logger,
		now:      time.Now,
	}
}

// Feed walks the fragment stream recovered from one decrypted tunnel
// record and dispatches any messages it completes. It returns
// ErrBadFragment if the stream itself is malformed; an out-of-order or
// unknown follow-on fragment is not a stream error: it is dropped with a
// warning log, since later records can still complete other pending
// messages.
func (r *Reassembler) Feed(ctx context.Context, fragments []byte) error {
	for len(fragments) > 0 {
		if isFollowOn(fragments[0]) {
			follow, n, err := decodeFollowOnFragment(fragments)
			if err != nil {
				r.logger.WarnContext(ctx, "dropping malformed follow-on fragment", slog.Any("error", err))
				return err
			}
			fragments = fragments[n:]
			r.handleFollowOn(ctx, follow)
			continue
		}

		first, n, err := decodeFirstFragment(fragments)
		if err != nil {
			r.logger.WarnContext(ctx, "dropping malformed first fragment", slog.Any("error", err))
			return err
		}
		fragments = fragments[n:]
		r.handleFirst(ctx, first)
	}
	return nil
}

func (r *Reassembler) handleFirst(ctx context.Context, first FirstFragment) {
	instructions := DeliveryInstructions{
		DeliveryType: first.DeliveryType,
		Hash:         first.Hash,
		HasHash:      first.HasHash,
		TunnelID:     first.TunnelID,
		HasTunnelID:  first.HasTunnelID,
	}

	if !first.Fragmented {
		r.deliver(ctx, instructions, first.Data)
		return
	}

	r.mu.Lock()
	r.pending[first.MessageID] = &pendingMessage{
		instructions: instructions,
		buf:          append([]byte{}, first.Data...),
		nextSeq:      1,
		expireAt:     r.now().Add(r.timeout),
	}
	r.mu.Unlock()
}

func (r *Reassembler) handleFollowOn(ctx context.Context, follow FollowOnFragment) {
	r.mu.Lock()
	msg, ok := r.pending[follow.MessageID]
	if !ok || follow.Sequence != msg.nextSeq {
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "dropping out-of-order or unknown fragment",
			slog.Uint64("message_id", uint64(follow.MessageID)),
			slog.Uint64("sequence", uint64(follow.Sequence)))
		return
	}

	msg.buf = append(msg.buf, follow.Data...)
	msg.nextSeq++

	if !follow.Last {
		r.mu.Unlock()
		return
	}

	delete(r.pending, follow.MessageID)
	r.mu.Unlock()

	r.deliver(ctx, msg.instructions, msg.buf)
}

func (r *Reassembler) deliver(ctx context.Context, instructions DeliveryInstructions, body []byte) {
	if r.dispatch == nil {
		return
	}
	if err := r.dispatch.Dispatch(ctx, instructions, body); err != nil {
		r.logger.WarnContext(ctx, "dispatch failed", slog.Any("error", err))
	}
}

// Sweep drops any reassembly slots that have outlived their timeout,
// bounding the memory a stream of never-completed messages can consume.
// It returns the number of slots dropped.
func (r *Reassembler) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, msg := range r.pending {
		if now.After(msg.expireAt) {
			delete(r.pending, id)
			dropped++
		}
	}
	return dropped
}

// PendingCount reports the number of open reassembly slots, mostly useful
// for tests and metrics.
func (r *Reassembler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
