package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Syzygyastro/Orderbook/internal/models"
	"github.com/Syzygyastro/Orderbook/internal/service"
)

// TradeFeed serves recently executed trades.
type TradeFeed interface {
	GetRecentTrades(ctx context.Context, limit int64) ([]models.TradeRecord, error)
}

type Handler struct {
	orders      *service.OrderService
	trades      TradeFeed
	depthLevels int
}

// NewHandler creates the order book handlers. trades may be nil when the
// Redis feed is disabled.
func NewHandler(orders *service.OrderService, trades TradeFeed, depthLevels int) *Handler {
	if depthLevels <= 0 {
		depthLevels = 10
	}
	return &Handler{
		orders:      orders,
		trades:      trades,
		depthLevels: depthLevels,
	}
}

// PlaceOrderRequest also accepts orderID and orderType, the field names
// older clients send.
type PlaceOrderRequest struct {
	OrderID       *int64  `json:"order_id"`
	Side          string  `json:"side"`
	Price         float64 `json:"price"`
	Quantity      int64   `json:"quantity"`
	LegacyOrderID *int64  `json:"orderID"`
	OrderType     string  `json:"orderType"`
}

// normalize folds the legacy fields into OrderID and Side.
func (r *PlaceOrderRequest) normalize() error {
	if r.OrderID == nil {
		r.OrderID = r.LegacyOrderID
	}
	if r.Side == "" {
		r.Side = r.OrderType
	}
	switch {
	case r.OrderID == nil:
		return errors.New("order_id is required")
	case r.Side == "":
		return errors.New("side is required")
	}
	return nil
}

type PlaceOrderResponse struct {
	OrderID         int64          `json:"order_id"`
	Trades          []models.Trade `json:"trades"`
	FilledQuantity  int64          `json:"filled_quantity"`
	RestingQuantity int64          `json:"resting_quantity"`
	Sequence        uint64         `json:"sequence"`
}

type CancelOrderResponse struct {
	OrderID           int64       `json:"order_id"`
	Side              models.Side `json:"side"`
	Price             float64     `json:"price"`
	RemainingQuantity int64       `json:"remaining_quantity"`
}

// PlaceOrder handles POST /api/orders. Price, quantity and side are checked
// by the engine so every invalid order maps to INVALID_ORDER.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if err := req.normalize(); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	result, err := h.orders.Submit(c.Request.Context(), models.Order{
		ID:       *req.OrderID,
		Side:     models.Side(strings.ToLower(req.Side)),
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		abortWithEngineError(c, err)
		return
	}

	resp := PlaceOrderResponse{
		OrderID:        result.OrderID,
		Trades:         result.Trades,
		FilledQuantity: result.Filled,
		Sequence:       result.Sequence,
	}
	if result.Resting != nil {
		resp.RestingQuantity = result.Resting.Remaining
	}
	c.JSON(http.StatusOK, resp)
}

// CancelOrder handles DELETE /api/orders/:id.
func (h *Handler) CancelOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	cancelled, err := h.orders.Cancel(c.Request.Context(), orderID)
	if err != nil {
		abortWithEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, CancelOrderResponse{
		OrderID:           cancelled.ID,
		Side:              cancelled.Side,
		Price:             cancelled.Price,
		RemainingQuantity: cancelled.Remaining,
	})
}

// GetOrder handles GET /api/orders/:id for resting orders.
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	order, found := h.orders.Order(orderID)
	if !found {
		AbortWithError(c, http.StatusNotFound, ErrCodeOrderNotFound, "order not found")
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetOrderBook handles GET /api/orderbook, listing every resting order.
func (h *Handler) GetOrderBook(c *gin.Context) {
	book, version := h.orders.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"bids":     book.Bids,
		"asks":     book.Asks,
		"sequence": version,
	})
}

// GetDepth handles GET /api/orderbook/depth?levels=N.
func (h *Handler) GetDepth(c *gin.Context) {
	levels := h.depthLevels
	if s := c.Query("levels"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "levels must be between 1 and 1000")
			return
		}
		levels = n
	}

	c.JSON(http.StatusOK, h.orders.Depth(levels))
}

// GetTicker handles GET /api/ticker.
func (h *Handler) GetTicker(c *gin.Context) {
	bid, ask := h.orders.Top()

	resp := gin.H{
		"best_bid": bid,
		"best_ask": ask,
		"spread":   nil,
		"mid":      nil,
	}
	if bid != nil && ask != nil {
		resp["spread"] = ask.Price - bid.Price
		resp["mid"] = (ask.Price + bid.Price) / 2
	}
	c.JSON(http.StatusOK, resp)
}

// GetRecentTrades handles GET /api/trades/recent?limit=N.
func (h *Handler) GetRecentTrades(c *gin.Context) {
	if h.trades == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "trade feed is disabled")
		return
	}

	limit := int64(50)
	if s := c.Query("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	trades, err := h.trades.GetRecentTrades(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "trade feed unavailable")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"count":  len(trades),
	})
}

func parseOrderID(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid order id")
		return 0, false
	}
	return orderID, true
}
