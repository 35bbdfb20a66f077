package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Syzygyastro/Orderbook/internal/models"
)

const (
	keyBookTop      = "ob:top"
	keySnapshot     = "ob:snapshot"
	keyRecentTrades = "ob:trades:recent"

	// RecentTradesLimit is how many trades the feed keeps.
	RecentTradesLimit = 100
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// RedisCache mirrors read-side views of the book into Redis for consumers
// that should not hit the matching service directly.
// CACHING STRATEGY:
//   - Top of book: hash with a short TTL, rewritten after every mutation
//   - Snapshot: JSON blob written periodically by SnapshotWriter
//   - Recent trades: capped list, newest first
//
// Nothing is ever read back into the engine.
type RedisCache struct {
	client      redis.UniversalClient
	topTTL      time.Duration
	snapshotTTL time.Duration
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache initializes a Redis connection and pings it.
func NewRedisCache(ctx context.Context, opts Options) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisCacheWithClient(client), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client redis.UniversalClient) *RedisCache {
	return &RedisCache{
		client:      client,
		topTTL:      5 * time.Second,
		snapshotTTL: time.Minute,
	}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks connectivity for health reporting.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetBookTop caches the best bid and ask. A nil side is stored as absent.
func (c *RedisCache) SetBookTop(ctx context.Context, bid, ask *models.Quote) error {
	state := map[string]interface{}{
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if bid != nil {
		state["bid_price"] = bid.Price
		state["bid_quantity"] = bid.Quantity
	}
	if ask != nil {
		state["ask_price"] = ask.Price
		state["ask_quantity"] = ask.Quantity
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, keyBookTop)
	pipe.HSet(ctx, keyBookTop, state)
	pipe.Expire(ctx, keyBookTop, c.topTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetBookTop retrieves cached best bid and ask. Either may be nil.
func (c *RedisCache) GetBookTop(ctx context.Context) (bid, ask *models.Quote, err error) {
	result, err := c.client.HGetAll(ctx, keyBookTop).Result()
	if err != nil {
		return nil, nil, err
	}
	if len(result) == 0 {
		return nil, nil, ErrMiss
	}

	if p, ok := result["bid_price"]; ok {
		bid = &models.Quote{Price: parseFloat(p), Quantity: parseInt(result["bid_quantity"])}
	}
	if p, ok := result["ask_price"]; ok {
		ask = &models.Quote{Price: parseFloat(p), Quantity: parseInt(result["ask_quantity"])}
	}
	return bid, ask, nil
}

// CachedSnapshot is the stored form of a book snapshot.
type CachedSnapshot struct {
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Book      models.Snapshot `json:"book"`
}

// SetSnapshot stores a full snapshot.
func (c *RedisCache) SetSnapshot(ctx context.Context, snap CachedSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keySnapshot, data, c.snapshotTTL).Err()
}

// GetSnapshot loads the last stored snapshot.
func (c *RedisCache) GetSnapshot(ctx context.Context) (*CachedSnapshot, error) {
	data, err := c.client.Get(ctx, keySnapshot).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var snap CachedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// AddRecentTrades pushes trades onto the feed, oldest first, so the head
// of the list is always the latest trade.
func (c *RedisCache) AddRecentTrades(ctx context.Context, trades []models.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(trades))
	for _, t := range trades {
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		values = append(values, data)
	}

	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, keyRecentTrades, values...)
	pipe.LTrim(ctx, keyRecentTrades, 0, RecentTradesLimit-1)
	_, err := pipe.Exec(ctx)
	return err
}

// GetRecentTrades returns up to limit trades, newest first.
func (c *RedisCache) GetRecentTrades(ctx context.Context, limit int64) ([]models.TradeRecord, error) {
	if limit <= 0 || limit > RecentTradesLimit {
		limit = RecentTradesLimit
	}

	items, err := c.client.LRange(ctx, keyRecentTrades, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	trades := make([]models.TradeRecord, 0, len(items))
	for _, item := range items {
		var t models.TradeRecord
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int64 {
	i, _ := strconv.ParseInt(s, 10, 64)
	return i
}
