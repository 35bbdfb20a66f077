package engine

import "github.com/Syzygyastro/Orderbook/internal/models"

// handle addresses an order slot in the arena. Handles stay valid until the
// slot is released; after that the index may be handed out again.
type handle int32

const nilHandle handle = -1

// slot is the single owner of a resting order's data. The level FIFO links
// (prev/next) live inside the slot so the queue holds handles only.
type slot struct {
	id        int64
	side      models.Side
	price     float64
	remaining int64
	seq       uint64

	prev, next handle
}

// arena is a slab of order slots with a free list.
type arena struct {
	slots []slot
	free  []handle
}

func newArena(capacity int) *arena {
	return &arena{
		slots: make([]slot, 0, capacity),
	}
}

// alloc stores a new unlinked slot and returns its handle.
// Pointers returned by get are invalidated by alloc.
func (a *arena) alloc(id int64, side models.Side, price float64, qty int64, seq uint64) handle {
	s := slot{
		id:        id,
		side:      side,
		price:     price,
		remaining: qty,
		seq:       seq,
		prev:      nilHandle,
		next:      nilHandle,
	}

	if n := len(a.free); n > 0 {
		h := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[h] = s
		return h
	}

	a.slots = append(a.slots, s)
	return handle(len(a.slots) - 1)
}

func (a *arena) get(h handle) *slot {
	return &a.slots[h]
}

// release returns a slot to the free list. The slot must already be
// unlinked from its level.
func (a *arena) release(h handle) {
	a.slots[h] = slot{prev: nilHandle, next: nilHandle}
	a.free = append(a.free, h)
}

// live reports the number of occupied slots.
func (a *arena) live() int {
	return len(a.slots) - len(a.free)
}
