package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Syzygyastro/Orderbook/internal/cache"
	"github.com/Syzygyastro/Orderbook/internal/middleware"
	"github.com/Syzygyastro/Orderbook/internal/models"
	"github.com/Syzygyastro/Orderbook/internal/service"
)

// RedisMirror is the read side of the Redis cache.
type RedisMirror interface {
	Ping(ctx context.Context) error
	GetBookTop(ctx context.Context) (bid, ask *models.Quote, err error)
	GetSnapshot(ctx context.Context) (*cache.CachedSnapshot, error)
}

// ConnectionCounter reports live WebSocket connections.
type ConnectionCounter interface {
	ClientCount() int
}

// AdminHandler serves health, metrics and stats.
type AdminHandler struct {
	orders    *service.OrderService
	gatherer  prometheus.Gatherer
	redis     RedisMirror
	conns     ConnectionCounter
	breakers  []*middleware.CircuitBreaker
	version   string
	startTime time.Time
}

// AdminOption configures optional AdminHandler dependencies.
type AdminOption func(*AdminHandler)

func WithRedis(p RedisMirror) AdminOption {
	return func(h *AdminHandler) { h.redis = p }
}

func WithConnections(c ConnectionCounter) AdminOption {
	return func(h *AdminHandler) { h.conns = c }
}

func WithBreakers(b ...*middleware.CircuitBreaker) AdminOption {
	return func(h *AdminHandler) { h.breakers = append(h.breakers, b...) }
}

func NewAdminHandler(orders *service.OrderService, gatherer prometheus.Gatherer, version string, opts ...AdminOption) *AdminHandler {
	h := &AdminHandler{
		orders:    orders,
		gatherer:  gatherer,
		version:   version,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	r.GET("/stats", h.Stats)
	r.GET("/stats/cache", h.CacheStatus)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// Health reports degraded, not unhealthy, when an optional sink is down:
// matching keeps working without Redis.
func (h *AdminHandler) Health(c *gin.Context) {
	services := map[string]string{"orderbook": "healthy"}

	if h.redis == nil {
		services["redis"] = "disabled"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx); err != nil {
			services["redis"] = "unreachable"
		} else {
			services["redis"] = "healthy"
		}
	}

	status := "healthy"
	for _, v := range services {
		if v != "healthy" && v != "disabled" {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Services:  services,
	})
}

// SystemInfo contains runtime information.
type SystemInfo struct {
	GoVersion  string  `json:"go_version"`
	GoRoutines int     `json:"goroutines"`
	MemoryMB   float64 `json:"memory_mb"`
}

// Stats returns book counts, connection counts and breaker states.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, version := h.orders.Stats()
	bid, ask := h.orders.Top()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := gin.H{
		"orderbook": stats,
		"version":   version,
		"best_bid":  bid,
		"best_ask":  ask,
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"system": SystemInfo{
			GoVersion:  runtime.Version(),
			GoRoutines: runtime.NumGoroutine(),
			MemoryMB:   float64(mem.Alloc) / 1024 / 1024,
		},
	}
	if h.conns != nil {
		resp["websocket_connections"] = h.conns.ClientCount()
	}
	if len(h.breakers) > 0 {
		breakers := make([]middleware.CircuitBreakerMetrics, 0, len(h.breakers))
		for _, b := range h.breakers {
			breakers = append(breakers, b.Metrics())
		}
		resp["circuit_breakers"] = breakers
	}

	c.JSON(http.StatusOK, resp)
}

// CacheStatus shows what Redis currently mirrors and how far the stored
// snapshot trails the live book.
func (h *AdminHandler) CacheStatus(c *gin.Context) {
	if h.redis == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "redis cache is disabled")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()

	bid, ask, err := h.redis.GetBookTop(ctx)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		_ = c.Error(err)
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "redis cache unavailable")
		return
	}
	snap, err := h.redis.GetSnapshot(ctx)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		_ = c.Error(err)
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "redis cache unavailable")
		return
	}

	_, live := h.orders.Stats()
	resp := gin.H{
		"best_bid":      bid,
		"best_ask":      ask,
		"live_sequence": live,
		"snapshot":      nil,
	}
	if snap != nil {
		var lag uint64
		if live > snap.Sequence {
			lag = live - snap.Sequence
		}
		resp["snapshot"] = gin.H{
			"sequence":  snap.Sequence,
			"timestamp": snap.Timestamp,
			"lag":       lag,
		}
	}
	c.JSON(http.StatusOK, resp)
}
