package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for events emitted by the order service.
const (
	RoutingOrderAccepted  = "order.accepted"
	RoutingOrderRejected  = "order.rejected"
	RoutingOrderCancelled = "order.cancelled"
	RoutingTradeExecuted  = "trade.executed"
	RoutingBookUpdated    = "book.updated"
)

// Event is the envelope written to every sink.
type Event struct {
	ID       string      `json:"event_id"`
	Type     string      `json:"type"`
	Sequence uint64      `json:"sequence"`
	Time     time.Time   `json:"time"`
	Payload  interface{} `json:"payload"`
}

// NewEvent wraps payload in an envelope with a fresh id.
func NewEvent(eventType string, sequence uint64, payload interface{}) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		Sequence: sequence,
		Time:     time.Now().UTC(),
		Payload:  payload,
	}
}
