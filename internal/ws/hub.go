package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Syzygyastro/Orderbook/internal/metrics"
	"github.com/Syzygyastro/Orderbook/internal/models"
)

// BookSource supplies the snapshot sent to newly connected clients.
type BookSource interface {
	Snapshot() (models.Snapshot, uint64)
}

type outbound struct {
	kind string
	data []byte
}

// Hub maintains the set of active clients and broadcasts book changes to
// them. Publishing never blocks the caller: when the broadcast queue or a
// client's buffer is full the message is skipped for that client.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound

	source    BookSource
	logger    *zap.Logger
	metrics   *metrics.Metrics
	heartbeat time.Duration

	heartbeatSeq uint64

	stop     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
}

// HubConfig holds configuration for the hub.
type HubConfig struct {
	HeartbeatInterval time.Duration
	BroadcastBuffer   int
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		HeartbeatInterval: 30 * time.Second,
		BroadcastBuffer:   256,
	}
}

func NewHub(cfg HubConfig, source BookSource, logger *zap.Logger, m *metrics.Metrics) *Hub {
	def := DefaultHubConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = def.BroadcastBuffer
	}

	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, cfg.BroadcastBuffer),
		source:     source,
		logger:     logger.Named("ws"),
		metrics:    m,
		heartbeat:  cfg.HeartbeatInterval,
		stop:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. It returns after Stop.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			h.closeAll()
			h.logger.Info("websocket hub stopped")
			return

		case <-ticker.C:
			h.heartbeatSeq++
			h.deliver(outbound{kind: TypeHeartbeat, data: ToJSON(NewHeartbeatEvent(h.heartbeatSeq))})

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.WSConnections.Inc()
			}
			h.logger.Debug("client registered", zap.String("client_id", client.id), zap.Int("total", total))
			h.sendSnapshot(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				if h.metrics != nil {
					h.metrics.WSConnections.Dec()
				}
				h.logger.Debug("client unregistered", zap.String("client_id", client.id))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Stop shuts the hub down and closes every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		if h.metrics != nil {
			h.metrics.WSConnections.Dec()
		}
	}
}

func (h *Hub) sendSnapshot(client *Client) {
	if h.source == nil {
		return
	}
	book, seq := h.source.Snapshot()
	h.send(client, outbound{kind: TypeSnapshot, data: ToJSON(NewSnapshotEvent(book, seq))})
}

// deliver runs on the hub goroutine.
func (h *Hub) deliver(msg outbound) {
	if msg.data == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		h.send(client, msg)
	}
}

func (h *Hub) send(client *Client, msg outbound) {
	select {
	case client.send <- msg.data:
		if h.metrics != nil {
			h.metrics.RecordWSSent(msg.kind)
		}
	default:
		if h.metrics != nil {
			h.metrics.RecordWSDropped()
		}
		h.logger.Debug("client send buffer full, skipping", zap.String("client_id", client.id), zap.String("type", msg.kind))
	}
}

func (h *Hub) enqueue(msg outbound) {
	select {
	case h.broadcast <- msg:
	case <-h.stop:
	default:
		if h.metrics != nil {
			h.metrics.RecordWSDropped()
		}
		h.logger.Warn("broadcast queue full, dropping message", zap.String("type", msg.kind))
	}
}

// PublishBook queues an update carrying the whole book.
func (h *Hub) PublishBook(book models.Snapshot, sequence uint64) {
	h.enqueue(outbound{kind: TypeUpdate, data: ToJSON(NewUpdateEvent(book, sequence))})
}

// PublishTrades queues one trade message per execution.
func (h *Hub) PublishTrades(trades []models.TradeRecord) {
	for _, t := range trades {
		h.enqueue(outbound{kind: TypeTrade, data: ToJSON(NewTradeEvent(t))})
	}
}

// Register adds a client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stop:
		return false
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
