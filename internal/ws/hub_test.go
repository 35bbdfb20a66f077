package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Syzygyastro/Orderbook/internal/models"
)

type staticSource struct {
	book models.Snapshot
	seq  uint64
}

func (s staticSource) Snapshot() (models.Snapshot, uint64) { return s.book, s.seq }

func setupHub(t *testing.T, cfg HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	source := staticSource{
		book: models.Snapshot{
			Bids: []models.BookEntry{{OrderID: 1, Price: 49, Quantity: 10}},
			Asks: []models.BookEntry{},
		},
		seq: 7,
	}
	hub := NewHub(cfg, source, zap.NewNop(), nil)
	go hub.Run()

	r := gin.New()
	r.GET("/ws/orderbook", NewHandler(hub).HandleUpgrade)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/orderbook"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	_, srv := setupHub(t, HubConfig{HeartbeatInterval: time.Hour})
	conn := dial(t, srv)

	msg := readJSON(t, conn)
	assert.Equal(t, TypeSnapshot, msg["type"])
	assert.Equal(t, 7.0, msg["sequence"])
	bids := msg["bids"].([]interface{})
	require.Len(t, bids, 1)
	assert.Equal(t, 1.0, bids[0].(map[string]interface{})["order_id"])
	assert.Empty(t, msg["asks"])
}

func TestHub_BroadcastsUpdatesAndTrades(t *testing.T) {
	hub, srv := setupHub(t, HubConfig{HeartbeatInterval: time.Hour})
	a := dial(t, srv)
	b := dial(t, srv)
	waitForClients(t, hub, 2)
	readJSON(t, a)
	readJSON(t, b)

	hub.PublishTrades([]models.TradeRecord{{
		Trade:    models.Trade{BuyOrderID: 2, SellOrderID: 1, Price: 49, Quantity: 4},
		Sequence: 8,
	}})
	hub.PublishBook(models.Snapshot{Bids: []models.BookEntry{}, Asks: []models.BookEntry{}}, 8)

	for _, conn := range []*websocket.Conn{a, b} {
		trade := readJSON(t, conn)
		assert.Equal(t, TypeTrade, trade["type"])
		data := trade["data"].(map[string]interface{})
		assert.Equal(t, 49.0, data["price"])
		assert.Equal(t, 4.0, data["quantity"])

		update := readJSON(t, conn)
		assert.Equal(t, TypeUpdate, update["type"])
		assert.Equal(t, TypeUpdate, update["status"])
		assert.Equal(t, 8.0, update["sequence"])
		assert.Contains(t, update["data"], "bids")
	}
}

func TestHub_Heartbeat(t *testing.T) {
	_, srv := setupHub(t, HubConfig{HeartbeatInterval: 20 * time.Millisecond})
	conn := dial(t, srv)
	readJSON(t, conn)

	msg := readJSON(t, conn)
	assert.Equal(t, TypeHeartbeat, msg["type"])
	assert.GreaterOrEqual(t, msg["sequence"].(float64), 1.0)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, srv := setupHub(t, HubConfig{HeartbeatInterval: time.Hour})
	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_SlowClientIsSkipped(t *testing.T) {
	hub := NewHub(HubConfig{HeartbeatInterval: time.Hour}, nil, zap.NewNop(), nil)
	slow := &Client{id: "slow", hub: hub, logger: zap.NewNop(), send: make(chan []byte, 1)}
	hub.clients[slow] = struct{}{}

	hub.deliver(outbound{kind: TypeUpdate, data: []byte(`{}`)})
	hub.deliver(outbound{kind: TypeUpdate, data: []byte(`{}`)})

	assert.Len(t, slow.send, 1, "second message skipped without blocking")
}

func TestHub_PublishAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(HubConfig{HeartbeatInterval: time.Hour, BroadcastBuffer: 1}, nil, zap.NewNop(), nil)
	hub.Stop()

	done := make(chan struct{})
	go func() {
		hub.PublishBook(models.Snapshot{}, 1)
		hub.PublishBook(models.Snapshot{}, 2)
		hub.PublishBook(models.Snapshot{}, 3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a stopped hub")
	}
	assert.False(t, hub.Register(&Client{}))
}
