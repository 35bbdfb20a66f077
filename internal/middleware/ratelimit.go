package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimiter limits requests per client IP. Each client may spend Burst
// requests per window, and the window is sized so the long-run rate is
// RequestsPerSecond.
type RateLimiter struct {
	limiter *limiter.Limiter
}

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimitConfig returns default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
	}
}

// NewRateLimiter creates a rate limiter. A non-positive rate disables it.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{limiter: limiter.New(memory.NewStore(), windowRate(cfg))}
}

func windowRate(cfg RateLimitConfig) limiter.Rate {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	period := time.Duration(float64(burst) / cfg.RequestsPerSecond * float64(time.Second))
	if period < time.Millisecond {
		period = time.Millisecond
	}
	return limiter.Rate{Period: period, Limit: int64(burst)}
}

// Enabled reports whether requests are limited at all.
func (r *RateLimiter) Enabled() bool {
	return r.limiter != nil
}

// GinMiddleware returns the gin middleware. onLimit writes the 429 response;
// the request is aborted after it returns.
func (r *RateLimiter) GinMiddleware(onLimit gin.HandlerFunc) gin.HandlerFunc {
	if r.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}

	var opts []ginlimiter.Option
	if onLimit != nil {
		opts = append(opts, ginlimiter.WithLimitReachedHandler(ginlimiter.LimitReachedHandler(onLimit)))
	}
	return ginlimiter.NewMiddleware(r.limiter, opts...)
}
