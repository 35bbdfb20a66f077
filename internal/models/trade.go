package models

import "time"

// Trade is one fill between an incoming order and a resting one. Price is
// always the resting order's price. Index is the trade's position within
// the submit call that produced it.
type Trade struct {
	BuyOrderID  int64   `json:"buy_order_id"`
	SellOrderID int64   `json:"sell_order_id"`
	Price       float64 `json:"price"`
	Quantity    int64   `json:"quantity"`
	Index       int     `json:"index"`
}

// Notional returns price times quantity.
func (t *Trade) Notional() float64 {
	return t.Price * float64(t.Quantity)
}

// TradeRecord is a trade as published to feeds, stamped with the arrival
// sequence of the order that produced it.
type TradeRecord struct {
	Trade
	Sequence   uint64    `json:"sequence"`
	ExecutedAt time.Time `json:"executed_at"`
}
