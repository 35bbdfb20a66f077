package ws

import (
	"encoding/json"
	"time"

	"github.com/Syzygyastro/Orderbook/internal/models"
)

// Message types pushed to clients.
const (
	TypeSnapshot  = "snapshot"
	TypeUpdate    = "update"
	TypeTrade     = "trade"
	TypeHeartbeat = "heartbeat"
)

// SnapshotEvent is sent once, right after a client connects.
type SnapshotEvent struct {
	Type string `json:"type"`
	models.Snapshot
	Sequence uint64 `json:"sequence"`
}

// UpdateEvent carries the full book after a submit or cancel. Status
// repeats the type for clients that key on {"status":"update"}.
type UpdateEvent struct {
	Type     string          `json:"type"`
	Status   string          `json:"status"`
	Data     models.Snapshot `json:"data"`
	Sequence uint64          `json:"sequence"`
}

// TradeEvent carries one execution.
type TradeEvent struct {
	Type string             `json:"type"`
	Data models.TradeRecord `json:"data"`
}

// HeartbeatEvent keeps idle connections observable.
type HeartbeatEvent struct {
	Type      string    `json:"type"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSnapshotEvent(book models.Snapshot, sequence uint64) *SnapshotEvent {
	return &SnapshotEvent{Type: TypeSnapshot, Snapshot: book, Sequence: sequence}
}

func NewUpdateEvent(book models.Snapshot, sequence uint64) *UpdateEvent {
	return &UpdateEvent{Type: TypeUpdate, Status: TypeUpdate, Data: book, Sequence: sequence}
}

func NewTradeEvent(trade models.TradeRecord) *TradeEvent {
	return &TradeEvent{Type: TypeTrade, Data: trade}
}

func NewHeartbeatEvent(sequence uint64) *HeartbeatEvent {
	return &HeartbeatEvent{Type: TypeHeartbeat, Sequence: sequence, Timestamp: time.Now().UTC()}
}

// ToJSON marshals an event, returning nil on failure.
func ToJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
