package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Syzygyastro/Orderbook/internal/engine"
	"github.com/Syzygyastro/Orderbook/internal/messaging"
	"github.com/Syzygyastro/Orderbook/internal/metrics"
	"github.com/Syzygyastro/Orderbook/internal/models"
)

// EventSink accepts events for asynchronous publishing.
type EventSink interface {
	Enqueue(routingKey string, event messaging.Event) error
}

// BookUpdate is emitted after every accepted submit and every cancel.
// Book is only filled in for OnBookUpdate listeners.
type BookUpdate struct {
	Version  uint64
	Book     models.Snapshot
	BestBid  *models.Quote
	BestAsk  *models.Quote
	Stats    models.BookStats
	Occurred time.Time
}

// SubmitResult describes the outcome of an accepted order.
type SubmitResult struct {
	OrderID  int64                `json:"order_id"`
	Trades   []models.Trade       `json:"trades"`
	Filled   int64                `json:"filled_quantity"`
	Resting  *models.RestingOrder `json:"resting,omitempty"`
	Sequence uint64               `json:"sequence"`
}

// OrderService is the single entry point to the order book. It serializes
// every engine call and fans results out to listeners and event sinks.
//
// THREAD SAFETY:
//   - Submit and Cancel take the write lock; read methods take the read lock
//   - Listeners run in mutation order, after the book lock is released
//   - Listeners must not block; hand work to a goroutine or queue instead
type OrderService struct {
	mu      sync.RWMutex
	book    *engine.OrderBook
	version uint64

	// emitMu is taken before mu is released so listeners observe
	// mutations in the order they were applied.
	emitMu sync.Mutex

	logger  *zap.Logger
	metrics *metrics.Metrics
	events  EventSink

	onTrade  []func(trades []models.TradeRecord)
	onBook   []bookListener
	fullBook bool
}

type bookListener struct {
	fn   func(update BookUpdate)
	full bool
}

// Option configures an OrderService.
type Option func(*OrderService)

func WithLogger(l *zap.Logger) Option {
	return func(s *OrderService) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *OrderService) { s.metrics = m }
}

func WithEvents(sink EventSink) Option {
	return func(s *OrderService) { s.events = sink }
}

func NewOrderService(book *engine.OrderBook, opts ...Option) *OrderService {
	s := &OrderService{
		book:   book,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("orders")
	return s
}

// OnTrade registers a listener for the trades of each accepted submit.
// Register listeners before serving traffic.
func (s *OrderService) OnTrade(fn func(trades []models.TradeRecord)) {
	s.onTrade = append(s.onTrade, fn)
}

// OnBookUpdate registers a listener called after every book mutation with
// the full resting book. Each mutation then snapshots the book under the
// write lock.
func (s *OrderService) OnBookUpdate(fn func(update BookUpdate)) {
	s.onBook = append(s.onBook, bookListener{fn: fn, full: true})
	s.fullBook = true
}

// OnTopUpdate is OnBookUpdate for listeners that only read the top of book
// and stats. The update's Book is left empty.
func (s *OrderService) OnTopUpdate(fn func(update BookUpdate)) {
	s.onBook = append(s.onBook, bookListener{fn: fn})
}

// Submit matches order against the book. Errors from the engine are
// returned unchanged so callers can test them with errors.Is.
func (s *OrderService) Submit(ctx context.Context, order models.Order) (*SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	s.mu.Lock()
	trades, err := s.book.Submit(order)
	if err != nil {
		s.mu.Unlock()
		s.reject(order, err)
		return nil, err
	}

	s.version++
	result := &SubmitResult{
		OrderID:  order.ID,
		Trades:   trades,
		Sequence: s.book.Sequence(),
	}
	if resting, ok := s.book.Order(order.ID); ok {
		result.Resting = &resting
	}
	for _, t := range trades {
		result.Filled += t.Quantity
	}
	update := s.bookUpdateLocked()

	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	elapsed := time.Since(start)
	s.logger.Debug("order accepted",
		zap.Int64("order_id", order.ID),
		zap.String("side", string(order.Side)),
		zap.Float64("price", order.Price),
		zap.Int64("quantity", order.Quantity),
		zap.Int("trades", len(trades)),
		zap.Int64("filled", result.Filled),
		zap.Duration("elapsed", elapsed))

	if s.metrics != nil {
		s.metrics.RecordOrderSubmitted(string(order.Side), result.Resting != nil, elapsed.Seconds())
		for i := range trades {
			s.metrics.RecordTrade(float64(trades[i].Quantity), trades[i].Notional())
		}
		s.metrics.SetBookSize(update.Stats.BidOrders, update.Stats.AskOrders, update.Stats.BidLevels, update.Stats.AskLevels)
	}

	records := make([]models.TradeRecord, len(trades))
	for i, t := range trades {
		records[i] = models.TradeRecord{Trade: t, Sequence: result.Sequence, ExecutedAt: update.Occurred}
		s.publish(messaging.RoutingTradeExecuted, update.Version, records[i])
	}
	s.publish(messaging.RoutingOrderAccepted, update.Version, result)

	if len(records) > 0 {
		for _, fn := range s.onTrade {
			fn(records)
		}
	}
	s.notifyBook(update)

	return result, nil
}

// Cancel withdraws a resting order.
func (s *OrderService) Cancel(ctx context.Context, orderID int64) (*models.RestingOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	cancelled, err := s.book.Cancel(orderID)
	if err != nil {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordOrderRejected(reason(err))
		}
		s.logger.Debug("cancel rejected", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, err
	}

	s.version++
	update := s.bookUpdateLocked()

	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	s.logger.Debug("order cancelled",
		zap.Int64("order_id", orderID),
		zap.Int64("remaining", cancelled.Remaining))

	if s.metrics != nil {
		s.metrics.RecordOrderCancelled()
		s.metrics.SetBookSize(update.Stats.BidOrders, update.Stats.AskOrders, update.Stats.BidLevels, update.Stats.AskLevels)
	}

	s.publish(messaging.RoutingOrderCancelled, update.Version, cancelled)
	s.notifyBook(update)

	return &cancelled, nil
}

// bookUpdateLocked captures the book after a mutation. Caller holds mu.
func (s *OrderService) bookUpdateLocked() BookUpdate {
	u := BookUpdate{
		Version:  s.version,
		Stats:    s.book.Stats(),
		Occurred: time.Now().UTC(),
	}
	if bid, ok := s.book.BestBid(); ok {
		u.BestBid = &bid
	}
	if ask, ok := s.book.BestAsk(); ok {
		u.BestAsk = &ask
	}
	if s.fullBook {
		u.Book = s.book.Snapshot()
	}
	return u
}

func (s *OrderService) notifyBook(update BookUpdate) {
	top := update
	top.Book = models.Snapshot{}
	for _, l := range s.onBook {
		if l.full {
			l.fn(update)
		} else {
			l.fn(top)
		}
	}
	s.publish(messaging.RoutingBookUpdated, update.Version, struct {
		BestBid *models.Quote    `json:"best_bid"`
		BestAsk *models.Quote    `json:"best_ask"`
		Stats   models.BookStats `json:"stats"`
	}{update.BestBid, update.BestAsk, update.Stats})
}

func (s *OrderService) reject(order models.Order, err error) {
	r := reason(err)
	if s.metrics != nil {
		s.metrics.RecordOrderRejected(r)
	}
	s.logger.Debug("order rejected",
		zap.Int64("order_id", order.ID),
		zap.String("reason", r),
		zap.Error(err))
	s.publish(messaging.RoutingOrderRejected, s.currentVersion(), struct {
		Order  models.Order `json:"order"`
		Reason string       `json:"reason"`
	}{order, r})
}

func (s *OrderService) publish(routingKey string, version uint64, payload interface{}) {
	if s.events == nil {
		return
	}
	ev := messaging.NewEvent(routingKey, version, payload)
	if err := s.events.Enqueue(routingKey, ev); err != nil {
		s.logger.Warn("event not queued", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func (s *OrderService) currentVersion() uint64 {
	if s.events == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// reason maps engine errors to a short label for metrics and events.
func reason(err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, engine.ErrDuplicateOrderID):
		return "duplicate_order_id"
	case errors.Is(err, engine.ErrOrderNotFound):
		return "order_not_found"
	default:
		return "other"
	}
}

// Snapshot returns every resting order and the version it reflects.
func (s *OrderService) Snapshot() (models.Snapshot, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Snapshot(), s.version
}

// Depth returns up to levels aggregated levels per side.
func (s *OrderService) Depth(levels int) models.Depth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Depth(levels)
}

// Top returns the best bid and ask; either may be nil.
func (s *OrderService) Top() (bid, ask *models.Quote) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.book.BestBid(); ok {
		bid = &q
	}
	if q, ok := s.book.BestAsk(); ok {
		ask = &q
	}
	return bid, ask
}

// Order looks up a resting order.
func (s *OrderService) Order(orderID int64) (models.RestingOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Order(orderID)
}

// Stats returns book counts and the current version.
func (s *OrderService) Stats() (models.BookStats, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Stats(), s.version
}
