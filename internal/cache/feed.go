package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Syzygyastro/Orderbook/internal/metrics"
	"github.com/Syzygyastro/Orderbook/internal/models"
)

// feedStore is the part of RedisCache the feed writes to.
type feedStore interface {
	SetBookTop(ctx context.Context, bid, ask *models.Quote) error
	AddRecentTrades(ctx context.Context, trades []models.TradeRecord) error
}

// Breaker guards calls to Redis. middleware.CircuitBreaker satisfies it.
type Breaker interface {
	Execute(fn func() error) error
}

type feedItem struct {
	trades []models.TradeRecord
	top    bool
	bid    *models.Quote
	ask    *models.Quote
}

// Feed writes trades and top of book to Redis off the matching path.
// Pushes never block: when the buffer is full the item is dropped and the
// next top-of-book write repairs the cached state.
type Feed struct {
	store   feedStore
	logger  *zap.Logger
	metrics *metrics.Metrics
	breaker Breaker
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	items  chan feedItem
	done   chan struct{}
}

// NewFeed starts the writer goroutine. breaker may be nil.
func NewFeed(store feedStore, size int, breaker Breaker, logger *zap.Logger, m *metrics.Metrics) *Feed {
	if size <= 0 {
		size = 1024
	}
	f := &Feed{
		store:   store,
		logger:  logger.Named("cache_feed"),
		metrics: m,
		breaker: breaker,
		timeout: 2 * time.Second,
		items:   make(chan feedItem, size),
		done:    make(chan struct{}),
	}
	go f.run()
	return f
}

// PushTrades queues trades for the recent trades list.
func (f *Feed) PushTrades(trades []models.TradeRecord) bool {
	if len(trades) == 0 {
		return true
	}
	return f.push(feedItem{trades: trades})
}

// PushTop queues a best bid and ask update.
func (f *Feed) PushTop(bid, ask *models.Quote) bool {
	return f.push(feedItem{top: true, bid: bid, ask: ask})
}

func (f *Feed) push(item feedItem) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return false
	}
	select {
	case f.items <- item:
		return true
	default:
		f.logger.Warn("cache feed full, dropping update")
		return false
	}
}

func (f *Feed) run() {
	defer close(f.done)
	for item := range f.items {
		f.write(item)
	}
}

func (f *Feed) write(item feedItem) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	op := "add_recent_trades"
	call := func() error { return f.store.AddRecentTrades(ctx, item.trades) }
	if item.top {
		op = "set_book_top"
		call = func() error { return f.store.SetBookTop(ctx, item.bid, item.ask) }
	}

	start := time.Now()
	var err error
	if f.breaker != nil {
		err = f.breaker.Execute(call)
	} else {
		err = call()
	}

	if f.metrics != nil {
		f.metrics.RecordCacheOp(op, time.Since(start).Seconds(), err)
	}
	if err != nil {
		f.logger.Warn("cache write failed", zap.String("operation", op), zap.Error(err))
	}
}

// Close stops accepting items and waits for queued writes until ctx ends.
func (f *Feed) Close(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.items)
	}
	f.mu.Unlock()

	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
