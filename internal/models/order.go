package models

import (
	"errors"
	"math"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) IsValid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of this side trades against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is an incoming limit order. Quantity is the original size; the
// engine tracks what is left of it once the order rests.
type Order struct {
	ID       int64   `json:"order_id"`
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

func (o *Order) Validate() error {
	if !o.Side.IsValid() {
		return errors.New("side must be 'buy' or 'sell'")
	}
	if math.IsNaN(o.Price) || math.IsInf(o.Price, 0) {
		return errors.New("price must be a finite number")
	}
	if o.Price <= 0 {
		return errors.New("price must be greater than 0")
	}
	if o.Quantity <= 0 {
		return errors.New("quantity must be greater than 0")
	}
	return nil
}

// RestingOrder is a live order as it currently sits in the book.
type RestingOrder struct {
	ID        int64   `json:"order_id"`
	Side      Side    `json:"side"`
	Price     float64 `json:"price"`
	Remaining int64   `json:"remaining_quantity"`
	Sequence  uint64  `json:"sequence"`
}
