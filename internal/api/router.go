package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Syzygyastro/Orderbook/internal/metrics"
	"github.com/Syzygyastro/Orderbook/internal/middleware"
	"github.com/Syzygyastro/Orderbook/internal/ws"
)

// RouterConfig collects what the HTTP layer is built from. Admin, WS and
// Metrics are optional.
type RouterConfig struct {
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Handler      *Handler
	Admin        *AdminHandler
	WS           *ws.Handler
	RateLimit    middleware.RateLimitConfig
	AllowOrigins []string // empty or "*" allows every origin
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(logger, true))
	r.Use(cors.New(corsConfig(cfg.AllowOrigins)))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	r.NoRoute(func(c *gin.Context) {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})

	if cfg.Admin != nil {
		cfg.Admin.RegisterRoutes(r)
	}

	h := cfg.Handler
	limiter := middleware.NewRateLimiter(cfg.RateLimit)

	api := r.Group("/api")
	{
		api.GET("/orderbook", h.GetOrderBook)
		api.GET("/orderbook/depth", h.GetDepth)
		api.GET("/ticker", h.GetTicker)
		api.GET("/trades/recent", h.GetRecentTrades)
		api.GET("/orders/:id", h.GetOrder)

		mutating := api.Group("")
		mutating.Use(limiter.GinMiddleware(rateLimited))
		{
			mutating.POST("/orders", h.PlaceOrder)
			mutating.DELETE("/orders/:id", h.CancelOrder)
			// Older clients cancel through the singular path.
			mutating.DELETE("/order/:id", h.CancelOrder)
		}
	}

	if cfg.WS != nil {
		r.GET("/ws/orderbook", cfg.WS.HandleUpgrade)
		r.GET("/orderbook", cfg.WS.HandleUpgrade)
		r.GET("/ws/stats", cfg.WS.HandleStats)
	}

	return r
}

// rateLimited runs after the limiter has set its X-RateLimit headers.
func rateLimited(c *gin.Context) {
	h := c.Writer.Header()
	AbortWithErrorDetails(c, http.StatusTooManyRequests, ErrCodeRateLimited, "too many requests, please retry later", map[string]string{
		"limit": h.Get("X-RateLimit-Limit"),
		"reset": h.Get("X-RateLimit-Reset"),
	})
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.HeaderRequestID},
		ExposeHeaders: []string{middleware.HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:        12 * time.Hour,
	}

	all := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			all = true
		}
	}
	if all {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
