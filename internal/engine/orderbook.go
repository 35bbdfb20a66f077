package engine

import (
	"fmt"

	"github.com/Syzygyastro/Orderbook/internal/models"
)

const defaultCapacity = 1024

// OrderBook matches limit orders for a single instrument under price-time
// priority.
//
// THREAD SAFETY: none. Submit, Cancel and the read methods must be
// serialized by the caller; see service.OrderService.
type OrderBook struct {
	arena    *arena
	bids     *priceIndex
	asks     *priceIndex
	registry *registry

	// seq is the arrival sequence of the last accepted order.
	seq uint64
}

func NewOrderBook() *OrderBook {
	a := newArena(defaultCapacity)
	return &OrderBook{
		arena:    a,
		bids:     newPriceIndex(models.Buy, a),
		asks:     newPriceIndex(models.Sell, a),
		registry: newRegistry(defaultCapacity),
	}
}

// Submit validates the order, crosses it against the opposite side and
// rests any remainder. Trades are returned in the order they were generated.
// A rejected order leaves the book untouched.
func (ob *OrderBook) Submit(order models.Order) ([]models.Trade, error) {
	if err := order.Validate(); err != nil {
		return []models.Trade{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	// A price that already has a level on the order's own side cannot
	// cross, so the whole quantity would rest there.
	if !ob.side(order.Side).fits(order.Price, order.Quantity) {
		return []models.Trade{}, fmt.Errorf("%w: quantity would overflow the level at %v", ErrInvalidOrder, order.Price)
	}
	if ob.registry.contains(order.ID) {
		return []models.Trade{}, fmt.Errorf("%w: %d", ErrDuplicateOrderID, order.ID)
	}

	ob.seq++
	seq := ob.seq

	remaining, trades := ob.match(order)
	if remaining > 0 {
		ob.rest(order, remaining, seq)
	}
	return trades, nil
}

func (ob *OrderBook) rest(order models.Order, remaining int64, seq uint64) {
	h := ob.arena.alloc(order.ID, order.Side, order.Price, remaining, seq)
	ob.side(order.Side).append(h)
	ob.registry.insert(order.ID, location{h: h, side: order.Side, price: order.Price})
}

// Cancel removes a resting order and returns its state at removal.
func (ob *OrderBook) Cancel(orderID int64) (models.RestingOrder, error) {
	loc, ok := ob.registry.locate(orderID)
	if !ok {
		return models.RestingOrder{}, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}

	cancelled := restingView(ob.arena.get(loc.h))

	ob.side(loc.side).remove(loc.h)
	ob.registry.remove(orderID)
	ob.arena.release(loc.h)

	return cancelled, nil
}

// Snapshot lists every resting order, best price first, arrival order
// within a price.
func (ob *OrderBook) Snapshot() models.Snapshot {
	return models.Snapshot{
		Bids: ob.entries(ob.bids),
		Asks: ob.entries(ob.asks),
	}
}

func (ob *OrderBook) entries(ix *priceIndex) []models.BookEntry {
	out := make([]models.BookEntry, 0)
	ix.scan(func(lvl *priceLevel) bool {
		ix.each(lvl, func(_ handle, s *slot) {
			out = append(out, models.BookEntry{
				OrderID:  s.id,
				Price:    s.price,
				Quantity: s.remaining,
			})
		})
		return true
	})
	return out
}

// Order returns the resting order with the given id.
func (ob *OrderBook) Order(orderID int64) (models.RestingOrder, bool) {
	loc, ok := ob.registry.locate(orderID)
	if !ok {
		return models.RestingOrder{}, false
	}
	return restingView(ob.arena.get(loc.h)), true
}

// BestBid returns the highest bid price and the volume resting there.
func (ob *OrderBook) BestBid() (models.Quote, bool) {
	return bestQuote(ob.bids)
}

// BestAsk returns the lowest ask price and the volume resting there.
func (ob *OrderBook) BestAsk() (models.Quote, bool) {
	return bestQuote(ob.asks)
}

func bestQuote(ix *priceIndex) (models.Quote, bool) {
	lvl, ok := ix.best()
	if !ok {
		return models.Quote{}, false
	}
	return models.Quote{Price: lvl.price, Quantity: lvl.volume}, true
}

// Depth aggregates up to levels price levels per side. levels <= 0 means all.
func (ob *OrderBook) Depth(levels int) models.Depth {
	return models.Depth{
		Bids: aggregate(ob.bids, levels),
		Asks: aggregate(ob.asks, levels),
	}
}

func aggregate(ix *priceIndex, levels int) []models.Level {
	out := make([]models.Level, 0)
	ix.scan(func(lvl *priceLevel) bool {
		out = append(out, models.Level{
			Price:    lvl.price,
			Quantity: lvl.volume,
			Count:    lvl.count,
		})
		return levels <= 0 || len(out) < levels
	})
	return out
}

// Len returns the number of resting orders.
func (ob *OrderBook) Len() int {
	return ob.registry.len()
}

// Stats returns resting order and price level counts per side.
func (ob *OrderBook) Stats() models.BookStats {
	return models.BookStats{
		BidOrders: ob.bids.orders,
		AskOrders: ob.asks.orders,
		BidLevels: ob.bids.depth(),
		AskLevels: ob.asks.depth(),
		Sequence:  ob.seq,
	}
}

// Sequence returns the arrival sequence of the last accepted order.
func (ob *OrderBook) Sequence() uint64 {
	return ob.seq
}

func (ob *OrderBook) side(s models.Side) *priceIndex {
	if s == models.Buy {
		return ob.bids
	}
	return ob.asks
}

func restingView(s *slot) models.RestingOrder {
	return models.RestingOrder{
		ID:        s.id,
		Side:      s.side,
		Price:     s.price,
		Remaining: s.remaining,
		Sequence:  s.seq,
	}
}
