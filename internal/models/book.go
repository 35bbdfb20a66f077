package models

// BookEntry is one resting order in a snapshot.
type BookEntry struct {
	OrderID  int64   `json:"order_id"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// Snapshot lists every resting order. Bids run from the highest price down,
// asks from the lowest price up; orders sharing a price keep arrival order.
type Snapshot struct {
	Bids []BookEntry `json:"bids"`
	Asks []BookEntry `json:"asks"`
}

// Level is an aggregated price level.
type Level struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Count    int     `json:"count"`
}

// Depth is the aggregated view of the top levels on each side.
type Depth struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// Quote is the top of book.
type Quote struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// BookStats counts what rests on each side.
type BookStats struct {
	BidOrders int    `json:"bid_orders"`
	AskOrders int    `json:"ask_orders"`
	BidLevels int    `json:"bid_levels"`
	AskLevels int    `json:"ask_levels"`
	Sequence  uint64 `json:"sequence"`
}
