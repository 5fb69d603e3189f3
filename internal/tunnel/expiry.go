package tunnel

import (
	"container/heap"
	"sync"
	"time"
)

// expiryEntry is one tracked tunnel's position in the expiry heap.
type expiryEntry struct {
	tunnelID     uint32
	creationTime time.Time
}

// expiryHeap implements the creation-time total order from §3: a larger
// creation time sorts first, ties broken by ascending tunnel ID. Popping
// this heap therefore yields the newest tunnels first, which is what the
// sweep in ExpiryTracker.Expired walks to find everything whose age has
// crossed the configured lifetime.
type expiryHeap []expiryEntry

func (h expiryHeap) Len() int { return len(h) }

func (h expiryHeap) Less(i, j int) bool {
	if h[i].creationTime.Equal(h[j].creationTime) {
		return h[i].tunnelID < h[j].tunnelID
	}
	return h[i].creationTime.After(h[j].creationTime)
}

func (h expiryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *expiryHeap) Push(x any) {
	*h = append(*h, x.(expiryEntry))
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// ExpiryTracker maintains the creation-time min-heap of tracked tunnels
// described in §3 ("the creation-time ordering ... is a strict total order
// used for tunnel expiry heaps") and drives the bounded-lifetime lifecycle
// rule from §3's Lifecycle note. It holds only tunnel ID and creation
// time; the Manager remains the sole owner of the tunnels themselves.
type ExpiryTracker struct {
	mu   sync.Mutex
	h    expiryHeap
	byID map[uint32]time.Time
}

// NewExpiryTracker returns an empty tracker.
func NewExpiryTracker() *ExpiryTracker {
	return &ExpiryTracker{byID: make(map[uint32]time.Time)}
}

// Track records tunnelID's creation time. Tracking an already-tracked ID
// replaces its creation time.
func (e *ExpiryTracker) Track(tunnelID uint32, creationTime time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byID[tunnelID] = creationTime
	heap.Push(&e.h, expiryEntry{tunnelID: tunnelID, creationTime: creationTime})
}

// Untrack removes tunnelID from the tracker, if present. The heap entry
// left behind, if any, is discarded lazily the next time Expired walks
// past it.
func (e *ExpiryTracker) Untrack(tunnelID uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byID, tunnelID)
}

// Len reports the number of actively tracked tunnels (not counting stale
// heap entries left behind by Untrack).
func (e *ExpiryTracker) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byID)
}

// Expired drains every heap entry whose age (measured from now) is at
// least lifetime, in heap-pop order, and returns their tunnel IDs.
// Entries that were untracked since being pushed are discarded silently.
// Survivors are left in the heap for the next call.
func (e *ExpiryTracker) Expired(now time.Time, lifetime time.Duration) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var expired []uint32
	var survivors []expiryEntry

	for e.h.Len() > 0 {
		entry := heap.Pop(&e.h).(expiryEntry)
		tracked, ok := e.byID[entry.tunnelID]
		if !ok || !tracked.Equal(entry.creationTime) {
			// stale: untracked, or superseded by a newer Track call.
			continue
		}
		if now.Sub(entry.creationTime) >= lifetime {
			delete(e.byID, entry.tunnelID)
			expired = append(expired, entry.tunnelID)
			continue
		}
		survivors = append(survivors, entry)
	}

	for _, s := range survivors {
		heap.Push(&e.h, s)
	}

	return expired
}
