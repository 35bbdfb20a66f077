package engine

import "errors"

var (
	// ErrInvalidOrder is returned for a non-positive or non-finite price,
	// a non-positive quantity, or an unknown side.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrDuplicateOrderID is returned when the id belongs to a resting order.
	ErrDuplicateOrderID = errors.New("duplicate order id")

	// ErrOrderNotFound is returned by Cancel when no resting order has the id.
	ErrOrderNotFound = errors.New("order not found")
)
