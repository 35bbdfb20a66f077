package engine

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/Syzygyastro/Orderbook/internal/models"
)

// Helper to create a test order
func createTestOrder(id int64, side models.Side, price float64, quantity int64) models.Order {
	return models.Order{
		ID:       id,
		Side:     side,
		Price:    price,
		Quantity: quantity,
	}
}

func mustSubmit(t *testing.T, ob *OrderBook, o models.Order) []models.Trade {
	t.Helper()
	trades, err := ob.Submit(o)
	if err != nil {
		t.Fatalf("submit %d: unexpected error: %v", o.ID, err)
	}
	checkInvariants(t, ob)
	return trades
}

// TestOrderBook_NoCross: a bid below the ask leaves both resting.
func TestOrderBook_NoCross(t *testing.T) {
	ob := NewOrderBook()

	if trades := mustSubmit(t, ob, createTestOrder(1, models.Buy, 40, 100)); len(trades) != 0 {
		t.Errorf("Expected no trades, got %d", len(trades))
	}
	if trades := mustSubmit(t, ob, createTestOrder(2, models.Sell, 45, 100)); len(trades) != 0 {
		t.Errorf("Expected no trades, got %d", len(trades))
	}

	want := models.Snapshot{
		Bids: []models.BookEntry{{OrderID: 1, Price: 40, Quantity: 100}},
		Asks: []models.BookEntry{{OrderID: 2, Price: 45, Quantity: 100}},
	}
	if got := ob.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected snapshot %+v, got %+v", want, got)
	}
}

// TestOrderBook_SweepAcrossLevels: a resting bid is filled by two asks at
// different prices, each trade at the resting price.
func TestOrderBook_SweepAcrossLevels(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Buy, 50, 100))
	first := mustSubmit(t, ob, createTestOrder(2, models.Sell, 48, 50))
	second := mustSubmit(t, ob, createTestOrder(3, models.Sell, 49, 50))

	// Resting buy at 50 is the maker in both trades.
	wantFirst := []models.Trade{{BuyOrderID: 1, SellOrderID: 2, Price: 50, Quantity: 50, Index: 0}}
	wantSecond := []models.Trade{{BuyOrderID: 1, SellOrderID: 3, Price: 50, Quantity: 50, Index: 0}}
	if !reflect.DeepEqual(first, wantFirst) {
		t.Errorf("Expected %+v, got %+v", wantFirst, first)
	}
	if !reflect.DeepEqual(second, wantSecond) {
		t.Errorf("Expected %+v, got %+v", wantSecond, second)
	}
	if ob.Len() != 0 {
		t.Errorf("Expected empty book, got %d orders", ob.Len())
	}
}

// TestOrderBook_TakerSweepsMultipleLevels: an incoming buy walks the ask side
// from the lowest price up and gets one trade per resting order.
func TestOrderBook_TakerSweepsMultipleLevels(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(2, models.Sell, 48, 50))
	mustSubmit(t, ob, createTestOrder(3, models.Sell, 49, 50))
	trades := mustSubmit(t, ob, createTestOrder(1, models.Buy, 50, 100))

	want := []models.Trade{
		{BuyOrderID: 1, SellOrderID: 2, Price: 48, Quantity: 50, Index: 0},
		{BuyOrderID: 1, SellOrderID: 3, Price: 49, Quantity: 50, Index: 1},
	}
	if !reflect.DeepEqual(trades, want) {
		t.Errorf("Expected %+v, got %+v", want, trades)
	}
	if ob.Len() != 0 {
		t.Errorf("Expected empty book, got %d orders", ob.Len())
	}
	if st := ob.Stats(); st.BidLevels != 0 || st.AskLevels != 0 || st.BidOrders != 0 || st.AskOrders != 0 {
		t.Errorf("Expected no levels, got %+v", st)
	}
}

// TestOrderBook_PartialFill: the unfilled part of the resting bid stays.
func TestOrderBook_PartialFill(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Buy, 50, 100))
	trades := mustSubmit(t, ob, createTestOrder(2, models.Sell, 49, 50))

	want := []models.Trade{{BuyOrderID: 1, SellOrderID: 2, Price: 50, Quantity: 50, Index: 0}}
	if !reflect.DeepEqual(trades, want) {
		t.Errorf("Expected %+v, got %+v", want, trades)
	}

	o, ok := ob.Order(1)
	if !ok {
		t.Fatal("Expected order 1 to remain resting")
	}
	if o.Remaining != 50 || o.Price != 50 {
		t.Errorf("Expected order 1 at 50 with 50 left, got %+v", o)
	}
}

// TestOrderBook_IncomingRemainderRests: a sell larger than the bid rests
// its remainder at its own limit.
func TestOrderBook_IncomingRemainderRests(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Buy, 50, 30))
	trades := mustSubmit(t, ob, createTestOrder(2, models.Sell, 49, 100))

	if len(trades) != 1 || trades[0].Quantity != 30 || trades[0].Price != 50 {
		t.Fatalf("Expected one trade of 30 at 50, got %+v", trades)
	}

	ask, ok := ob.BestAsk()
	if !ok {
		t.Fatal("Expected an ask to rest")
	}
	if ask.Price != 49 || ask.Quantity != 70 {
		t.Errorf("Expected ask 70 at 49, got %+v", ask)
	}
	if _, ok := ob.BestBid(); ok {
		t.Error("Expected bid side to be empty")
	}
}

// TestOrderBook_CancelOrder: cancel succeeds once, then reports not found.
func TestOrderBook_CancelOrder(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Buy, 50, 100))

	cancelled, err := ob.Cancel(1)
	if err != nil {
		t.Fatalf("Expected cancel to succeed, got %v", err)
	}
	if cancelled.Remaining != 100 || cancelled.Side != models.Buy {
		t.Errorf("Unexpected cancelled order %+v", cancelled)
	}
	checkInvariants(t, ob)

	if _, err := ob.Cancel(1); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound on second cancel, got %v", err)
	}
	if ob.Len() != 0 {
		t.Errorf("Expected 0 orders in book, got %d", ob.Len())
	}
}

// TestOrderBook_CancelFilledOrder: a fully filled order is gone.
func TestOrderBook_CancelFilledOrder(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Buy, 50, 10))
	mustSubmit(t, ob, createTestOrder(2, models.Sell, 50, 10))

	if _, err := ob.Cancel(1); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound for filled order, got %v", err)
	}
	if _, err := ob.Cancel(2); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound for fully matched taker, got %v", err)
	}
}

// TestOrderBook_DuplicateID: a live id is rejected and nothing changes.
func TestOrderBook_DuplicateID(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Buy, 50, 100))
	before := ob.Snapshot()
	seq := ob.Sequence()

	trades, err := ob.Submit(createTestOrder(1, models.Buy, 51, 10))
	if !errors.Is(err, ErrDuplicateOrderID) {
		t.Fatalf("Expected ErrDuplicateOrderID, got %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("Expected no trades, got %d", len(trades))
	}
	if got := ob.Snapshot(); !reflect.DeepEqual(got, before) {
		t.Errorf("Expected book unchanged, got %+v", got)
	}
	if ob.Sequence() != seq {
		t.Errorf("Expected sequence %d, got %d", seq, ob.Sequence())
	}
}

// TestOrderBook_LevelVolumeOverflow: an order that would push a level's
// total past MaxInt64 is rejected and the level keeps its volume.
func TestOrderBook_LevelVolumeOverflow(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Buy, 50, math.MaxInt64))
	seq := ob.Sequence()

	if _, err := ob.Submit(createTestOrder(2, models.Buy, 50, 1)); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("Expected ErrInvalidOrder, got %v", err)
	}
	if ob.Sequence() != seq {
		t.Errorf("Expected sequence %d, got %d", seq, ob.Sequence())
	}

	bid, ok := ob.BestBid()
	if !ok || bid.Quantity != math.MaxInt64 {
		t.Errorf("Expected best bid quantity %d, got %+v", int64(math.MaxInt64), bid)
	}
	depth := ob.Depth(1)
	if len(depth.Bids) != 1 || depth.Bids[0].Quantity != math.MaxInt64 {
		t.Errorf("Expected depth %d at 50, got %+v", int64(math.MaxInt64), depth.Bids)
	}

	// Another price level has its own total.
	mustSubmit(t, ob, createTestOrder(3, models.Buy, 49, math.MaxInt64))

	// Once the level drains a little there is room again.
	mustSubmit(t, ob, createTestOrder(4, models.Sell, 50, 5))
	mustSubmit(t, ob, createTestOrder(5, models.Buy, 50, 5))
	if bid, _ := ob.BestBid(); bid.Quantity != math.MaxInt64 {
		t.Errorf("Expected best bid quantity %d, got %d", int64(math.MaxInt64), bid.Quantity)
	}
}

// TestOrderBook_DuplicateOfOppositeSide: the id check spans both sides and
// runs before any matching.
func TestOrderBook_DuplicateOfOppositeSide(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(7, models.Sell, 50, 10))
	if _, err := ob.Submit(createTestOrder(7, models.Buy, 60, 10)); !errors.Is(err, ErrDuplicateOrderID) {
		t.Fatalf("Expected ErrDuplicateOrderID, got %v", err)
	}
	if o, ok := ob.Order(7); !ok || o.Remaining != 10 {
		t.Errorf("Expected order 7 untouched, got %+v ok=%v", o, ok)
	}
}

// TestOrderBook_IDReuseAfterRemoval: ids are only unique among live orders.
func TestOrderBook_IDReuseAfterRemoval(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Buy, 50, 10))
	if _, err := ob.Cancel(1); err != nil {
		t.Fatal(err)
	}
	mustSubmit(t, ob, createTestOrder(1, models.Sell, 55, 5))

	o, ok := ob.Order(1)
	if !ok || o.Side != models.Sell || o.Remaining != 5 {
		t.Errorf("Expected reused id to rest as a sell, got %+v", o)
	}
}

// TestOrderBook_InvalidOrders tests validation.
func TestOrderBook_InvalidOrders(t *testing.T) {
	tests := []struct {
		name  string
		order models.Order
	}{
		{"zero price", createTestOrder(1, models.Buy, 0, 10)},
		{"negative price", createTestOrder(1, models.Sell, -5, 10)},
		{"NaN price", createTestOrder(1, models.Buy, math.NaN(), 10)},
		{"infinite price", createTestOrder(1, models.Buy, math.Inf(1), 10)},
		{"zero quantity", createTestOrder(1, models.Buy, 50, 0)},
		{"negative quantity", createTestOrder(1, models.Sell, 50, -1)},
		{"unknown side", createTestOrder(1, models.Side("hold"), 50, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ob := NewOrderBook()
			mustSubmit(t, ob, createTestOrder(99, models.Sell, 1, 10))
			before := ob.Snapshot()

			trades, err := ob.Submit(tt.order)
			if !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("Expected ErrInvalidOrder, got %v", err)
			}
			if len(trades) != 0 {
				t.Errorf("Expected no trades, got %d", len(trades))
			}
			if got := ob.Snapshot(); !reflect.DeepEqual(got, before) {
				t.Errorf("Expected book unchanged, got %+v", got)
			}
		})
	}
}

// TestOrderBook_InvalidBeatsDuplicate: validation runs before the id check.
func TestOrderBook_InvalidBeatsDuplicate(t *testing.T) {
	ob := NewOrderBook()
	mustSubmit(t, ob, createTestOrder(1, models.Buy, 50, 10))

	if _, err := ob.Submit(createTestOrder(1, models.Buy, 50, 0)); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("Expected ErrInvalidOrder, got %v", err)
	}
}

// TestOrderBook_TimePriority: equal prices fill in arrival order, not id order.
func TestOrderBook_TimePriority(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(30, models.Sell, 100, 10))
	mustSubmit(t, ob, createTestOrder(10, models.Sell, 100, 10))
	mustSubmit(t, ob, createTestOrder(20, models.Sell, 100, 10))

	trades := mustSubmit(t, ob, createTestOrder(1, models.Buy, 100, 25))

	wantSellers := []int64{30, 10, 20}
	wantQty := []int64{10, 10, 5}
	if len(trades) != 3 {
		t.Fatalf("Expected 3 trades, got %d", len(trades))
	}
	for i, tr := range trades {
		if tr.SellOrderID != wantSellers[i] || tr.Quantity != wantQty[i] || tr.Index != i {
			t.Errorf("trade %d: expected seller %d qty %d, got %+v", i, wantSellers[i], wantQty[i], tr)
		}
	}

	o, _ := ob.Order(20)
	if o.Remaining != 5 {
		t.Errorf("Expected order 20 to keep 5, got %d", o.Remaining)
	}
}

// TestOrderBook_PriceBeatsTime: a better price trades first even when it
// arrived later.
func TestOrderBook_PriceBeatsTime(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Buy, 99, 10))
	mustSubmit(t, ob, createTestOrder(2, models.Buy, 101, 10))
	mustSubmit(t, ob, createTestOrder(3, models.Buy, 100, 10))

	trades := mustSubmit(t, ob, createTestOrder(4, models.Sell, 99, 30))

	wantBuyers := []int64{2, 3, 1}
	wantPrices := []float64{101, 100, 99}
	for i, tr := range trades {
		if tr.BuyOrderID != wantBuyers[i] || tr.Price != wantPrices[i] {
			t.Errorf("trade %d: expected buyer %d at %v, got %+v", i, wantBuyers[i], wantPrices[i], tr)
		}
	}
}

// TestOrderBook_SelfMatch: the engine does not prevent self-trades.
func TestOrderBook_SelfMatch(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Sell, 10, 5))
	trades := mustSubmit(t, ob, createTestOrder(2, models.Buy, 10, 5))
	if len(trades) != 1 {
		t.Errorf("Expected 1 trade, got %d", len(trades))
	}
}

// TestOrderBook_CancelMiddleOfLevel: removing an order from the middle of a
// FIFO keeps the rest in order.
func TestOrderBook_CancelMiddleOfLevel(t *testing.T) {
	ob := NewOrderBook()

	for id := int64(1); id <= 3; id++ {
		mustSubmit(t, ob, createTestOrder(id, models.Buy, 50, 10))
	}
	if _, err := ob.Cancel(2); err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, ob)

	h, ok := ob.bids.front(50)
	if !ok || ob.arena.get(h).id != 1 {
		t.Fatalf("Expected order 1 at the front of 50")
	}

	got := ob.Snapshot().Bids
	if len(got) != 2 || got[0].OrderID != 1 || got[1].OrderID != 3 {
		t.Errorf("Expected [1 3], got %+v", got)
	}

	bid, _ := ob.BestBid()
	if bid.Quantity != 20 {
		t.Errorf("Expected level volume 20, got %d", bid.Quantity)
	}
}

// TestOrderBook_LevelCollapse: emptied levels disappear from the index.
func TestOrderBook_LevelCollapse(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Sell, 51, 10))
	mustSubmit(t, ob, createTestOrder(2, models.Sell, 52, 10))
	if _, err := ob.Cancel(1); err != nil {
		t.Fatal(err)
	}

	if _, ok := ob.asks.front(51); ok {
		t.Error("Expected level 51 to be removed")
	}
	ask, ok := ob.BestAsk()
	if !ok || ask.Price != 52 {
		t.Errorf("Expected best ask 52, got %+v", ask)
	}
}

// TestOrderBook_GetBestBid tests getting best bid price.
func TestOrderBook_GetBestBid(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Buy, 50000, 1))
	mustSubmit(t, ob, createTestOrder(2, models.Buy, 50100, 1))
	mustSubmit(t, ob, createTestOrder(3, models.Buy, 49900, 1))

	bid, ok := ob.BestBid()
	if !ok {
		t.Error("Expected best bid to exist")
	}
	if bid.Price != 50100 {
		t.Errorf("Expected best bid to be 50100, got %f", bid.Price)
	}
}

// TestOrderBook_GetBestAsk tests getting best ask price.
func TestOrderBook_GetBestAsk(t *testing.T) {
	ob := NewOrderBook()

	mustSubmit(t, ob, createTestOrder(1, models.Sell, 51000, 1))
	mustSubmit(t, ob, createTestOrder(2, models.Sell, 50500, 1))
	mustSubmit(t, ob, createTestOrder(3, models.Sell, 50800, 1))

	ask, ok := ob.BestAsk()
	if !ok {
		t.Error("Expected best ask to exist")
	}
	if ask.Price != 50500 {
		t.Errorf("Expected best ask to be 50500, got %f", ask.Price)
	}
}

// TestOrderBook_GetDepth tests aggregated depth.
func TestOrderBook_GetDepth(t *testing.T) {
	ob := NewOrderBook()

	for i := 0; i < 5; i++ {
		mustSubmit(t, ob, createTestOrder(int64(i+1), models.Buy, 50000+float64(i), 1))
		mustSubmit(t, ob, createTestOrder(int64(i+6), models.Sell, 51000+float64(i), 1))
	}
	mustSubmit(t, ob, createTestOrder(11, models.Buy, 50004, 2))

	depth := ob.Depth(3)

	if len(depth.Bids) != 3 {
		t.Errorf("Expected 3 bid levels, got %d", len(depth.Bids))
	}
	if len(depth.Asks) != 3 {
		t.Errorf("Expected 3 ask levels, got %d", len(depth.Asks))
	}
	if depth.Bids[0].Price != 50004 || depth.Bids[0].Quantity != 3 || depth.Bids[0].Count != 2 {
		t.Errorf("Unexpected top bid level %+v", depth.Bids[0])
	}
	if depth.Bids[0].Price < depth.Bids[1].Price {
		t.Error("Bids should be in descending order")
	}
	if depth.Asks[0].Price > depth.Asks[1].Price {
		t.Error("Asks should be in ascending order")
	}

	if all := ob.Depth(0); len(all.Bids) != 5 || len(all.Asks) != 5 {
		t.Errorf("Expected all 5 levels per side, got %d/%d", len(all.Bids), len(all.Asks))
	}
}

// TestOrderBook_EmptySnapshot: empty sides are empty slices, not nil.
func TestOrderBook_EmptySnapshot(t *testing.T) {
	snap := NewOrderBook().Snapshot()
	if snap.Bids == nil || snap.Asks == nil {
		t.Error("Expected non-nil empty slices")
	}
	if len(snap.Bids) != 0 || len(snap.Asks) != 0 {
		t.Errorf("Expected empty snapshot, got %+v", snap)
	}
}

// TestOrderBook_ArenaReusesSlots: released slots are handed out again.
func TestOrderBook_ArenaReusesSlots(t *testing.T) {
	ob := NewOrderBook()

	for i := int64(1); i <= 100; i++ {
		mustSubmit(t, ob, createTestOrder(i, models.Buy, 50, 1))
		if _, err := ob.Cancel(i); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(ob.arena.slots); n != 1 {
		t.Errorf("Expected a single slot to be recycled, got %d slots", n)
	}
	if ob.arena.live() != 0 {
		t.Errorf("Expected no live slots, got %d", ob.arena.live())
	}
}
