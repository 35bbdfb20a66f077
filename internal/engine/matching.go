package engine

import "github.com/Syzygyastro/Orderbook/internal/models"

// match crosses the incoming order against the opposite side and returns
// what is left of it. Each trade executes at the resting order's price.
func (ob *OrderBook) match(taker models.Order) (int64, []models.Trade) {
	book := ob.side(taker.Side.Opposite())
	remaining := taker.Quantity
	trades := make([]models.Trade, 0)

	for remaining > 0 {
		lvl, ok := book.best()
		if !ok || !crosses(taker.Side, taker.Price, lvl.price) {
			break
		}

		h := lvl.head
		maker := ob.arena.get(h)
		qty := min(remaining, maker.remaining)

		trades = append(trades, newTrade(taker, maker, qty, len(trades)))
		remaining -= qty
		book.fill(lvl, h, qty)

		if maker.remaining == 0 {
			makerID := maker.id
			book.remove(h)
			ob.registry.remove(makerID)
			ob.arena.release(h)
		}
	}

	return remaining, trades
}

// crosses reports whether a limit order on side at limit can trade against
// a resting level priced at best.
func crosses(side models.Side, limit, best float64) bool {
	if side == models.Buy {
		return best <= limit
	}
	return best >= limit
}

func newTrade(taker models.Order, maker *slot, qty int64, index int) models.Trade {
	t := models.Trade{
		Price:    maker.price,
		Quantity: qty,
		Index:    index,
	}
	if taker.Side == models.Buy {
		t.BuyOrderID, t.SellOrderID = taker.ID, maker.id
	} else {
		t.BuyOrderID, t.SellOrderID = maker.id, taker.ID
	}
	return t
}
