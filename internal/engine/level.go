package engine

import (
	"math"

	"github.com/tidwall/btree"

	"github.com/Syzygyastro/Orderbook/internal/models"
)

const btreeDegree = 32

// priceLevel is the FIFO of resting orders at one price. head is the oldest
// order and trades first.
type priceLevel struct {
	price  float64
	head   handle
	tail   handle
	count  int
	volume int64
}

// priceIndex keeps one side of the book ordered by price.
// Bids are best at the highest key, asks at the lowest.
type priceIndex struct {
	side   models.Side
	levels *btree.Map[float64, *priceLevel]
	arena  *arena
	orders int
}

func newPriceIndex(side models.Side, a *arena) *priceIndex {
	return &priceIndex{
		side:   side,
		levels: btree.NewMap[float64, *priceLevel](btreeDegree),
		arena:  a,
	}
}

// best returns the level that trades first on this side.
func (ix *priceIndex) best() (*priceLevel, bool) {
	var lvl *priceLevel
	var ok bool
	if ix.side == models.Buy {
		_, lvl, ok = ix.levels.Max()
	} else {
		_, lvl, ok = ix.levels.Min()
	}
	return lvl, ok
}

func (ix *priceIndex) bestPrice() (float64, bool) {
	lvl, ok := ix.best()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

// fits reports whether qty more can rest at price without overflowing the
// level's volume.
func (ix *priceIndex) fits(price float64, qty int64) bool {
	lvl, ok := ix.levels.Get(price)
	return !ok || qty <= math.MaxInt64-lvl.volume
}

// front returns the oldest order at price.
func (ix *priceIndex) front(price float64) (handle, bool) {
	lvl, ok := ix.levels.Get(price)
	if !ok || lvl.head == nilHandle {
		return nilHandle, false
	}
	return lvl.head, true
}

// append places h at the tail of its price level, creating the level if needed.
func (ix *priceIndex) append(h handle) {
	s := ix.arena.get(h)

	lvl, ok := ix.levels.Get(s.price)
	if !ok {
		lvl = &priceLevel{price: s.price, head: nilHandle, tail: nilHandle}
		ix.levels.Set(s.price, lvl)
	}

	s.prev = lvl.tail
	s.next = nilHandle
	if lvl.tail == nilHandle {
		lvl.head = h
	} else {
		ix.arena.get(lvl.tail).next = h
	}
	lvl.tail = h
	lvl.count++
	lvl.volume += s.remaining
	ix.orders++
}

// remove unlinks h from its level and drops the level once it is empty.
func (ix *priceIndex) remove(h handle) {
	s := ix.arena.get(h)

	lvl, ok := ix.levels.Get(s.price)
	if !ok {
		return
	}

	if s.prev == nilHandle {
		lvl.head = s.next
	} else {
		ix.arena.get(s.prev).next = s.next
	}
	if s.next == nilHandle {
		lvl.tail = s.prev
	} else {
		ix.arena.get(s.next).prev = s.prev
	}
	s.prev, s.next = nilHandle, nilHandle

	lvl.count--
	lvl.volume -= s.remaining
	ix.orders--
	if lvl.count == 0 {
		ix.levels.Delete(s.price)
	}
}

// fill reduces a resting order's remaining quantity and its level volume.
func (ix *priceIndex) fill(lvl *priceLevel, h handle, qty int64) {
	ix.arena.get(h).remaining -= qty
	lvl.volume -= qty
}

// scan visits levels best-first until fn returns false.
func (ix *priceIndex) scan(fn func(lvl *priceLevel) bool) {
	iter := func(_ float64, lvl *priceLevel) bool { return fn(lvl) }
	if ix.side == models.Buy {
		ix.levels.Reverse(iter)
	} else {
		ix.levels.Scan(iter)
	}
}

// each visits the orders of lvl in arrival order.
func (ix *priceIndex) each(lvl *priceLevel, fn func(h handle, s *slot)) {
	for h := lvl.head; h != nilHandle; {
		s := ix.arena.get(h)
		next := s.next
		fn(h, s)
		h = next
	}
}

func (ix *priceIndex) depth() int {
	return ix.levels.Len()
}
