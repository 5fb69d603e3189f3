package tunnel_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-i2p/tunneld/internal/tunnel"
)

func TestReassemblerDropsOutOfOrderFollowOn(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{}
	r := tunnel.NewReassembler(dispatcher, time.Minute, nil)

	first := tunnel.FirstFragment{
		DeliveryType: tunnel.DeliveryLocal,
		Fragmented:   true,
		MessageID:    1,
		Data:         []byte("part one"),
	}
	r.Feed(context.Background(), first.Encode())

	if r.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", r.PendingCount())
	}

	// Inject sequence 3 when 1 is expected.
	badFollow := tunnel.FollowOnFragment{Sequence: 3, Last: true, MessageID: 1, Data: []byte("out of order")}
	r.Feed(context.Background(), badFollow.Encode())

	if len(dispatcher.bodies) != 0 {
		t.Fatalf("expected no delivery, got %v", dispatcher.bodies)
	}
	// The slot survives: a bad follow-on is dropped, not the slot itself.
	if r.PendingCount() != 1 {
		t.Fatalf("PendingCount after bad follow-on = %d, want 1", r.PendingCount())
	}
}

func TestReassemblerSweepExpiresStaleSlots(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{}
	r := tunnel.NewReassembler(dispatcher, time.Millisecond, nil)

	first := tunnel.FirstFragment{DeliveryType: tunnel.DeliveryLocal, Fragmented: true, MessageID: 9, Data: []byte("x")}
	r.Feed(context.Background(), first.Encode())

	time.Sleep(5 * time.Millisecond)

	if n := r.Sweep(); n != 1 {
		t.Fatalf("Sweep dropped %d, want 1", n)
	}
	if r.PendingCount() != 0 {
		t.Fatalf("PendingCount after sweep = %d, want 0", r.PendingCount())
	}
}

func TestReassemblerDeliversUnfragmentedImmediately(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{}
	r := tunnel.NewReassembler(dispatcher, time.Minute, nil)

	first := tunnel.FirstFragment{DeliveryType: tunnel.DeliveryLocal, Data: []byte("whole message")}
	r.Feed(context.Background(), first.Encode())

	if len(dispatcher.bodies) != 1 || string(dispatcher.bodies[0]) != "whole message" {
		t.Fatalf("bodies = %v", dispatcher.bodies)
	}
	if r.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d, want 0", r.PendingCount())
	}
}
