package engine

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/math"
	"github.com/spe-net/adin2111/ethframe"
)

type txEntry struct {
	payload []byte
	port    ethframe.PortID
}

// txRing is a fixed-capacity FIFO between the Transmit fast path and the TX
// worker. Producers serialize on mu; the single consumer runs lock-free.
// Indices advance monotonically; at every observation point
// tail <= head <= tail+capacity.
type txRing struct {
	mu       sync.Mutex
	capacity uint64
	mask     uint64
	lowWater uint64
	slots    []txEntry

	head atomic.Uint64 // next slot to produce
	tail atomic.Uint64 // next slot to consume
}

func (r *txRing) init(capacity int) {
	capacity = AlignTxQueueCapacity(capacity)
	r.capacity = uint64(capacity)
	r.mask = r.capacity - 1
	r.lowWater = uint64(math.MaxInt(1, capacity/4))
	r.slots = make([]txEntry, capacity)
}

// enqueue reserves len(entries) slots and publishes them, or rejects the
// whole batch when the ring lacks room. The head store is the publication
// point: the consumer never observes a reserved-but-unfilled slot.
func (r *txRing) enqueue(entries ...txEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, t := r.head.Load(), r.tail.Load()
	if h-t+uint64(len(entries)) > r.capacity {
		return false
	}
	for i, ent := range entries {
		r.slots[(h+uint64(i))&r.mask] = ent
	}
	r.head.Store(h + uint64(len(entries)))
	return true
}

// peek returns the oldest entry without consuming it.
func (r *txRing) peek() (ent txEntry, ok bool) {
	t := r.tail.Load()
	if t == r.head.Load() {
		return ent, false
	}
	return r.slots[t&r.mask], true
}

// advance consumes the entry returned by peek.
func (r *txRing) advance() {
	t := r.tail.Load()
	r.slots[t&r.mask] = txEntry{}
	r.tail.Store(t + 1)
}

func (r *txRing) occupancy() uint64 {
	return r.head.Load() - r.tail.Load()
}
