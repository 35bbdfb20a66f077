package engine

import "github.com/Syzygyastro/Orderbook/internal/models"

// location is where a resting order lives: its arena handle plus the side
// and price level holding that handle.
type location struct {
	h     handle
	side  models.Side
	price float64
}

// registry maps live order ids to their location.
type registry struct {
	byID map[int64]location
}

func newRegistry(capacity int) *registry {
	return &registry{byID: make(map[int64]location, capacity)}
}

// insert records a resting order. Callers check contains first; Submit
// does so before matching, and matching never adds ids.
func (r *registry) insert(id int64, loc location) {
	r.byID[id] = loc
}

func (r *registry) locate(id int64) (location, bool) {
	loc, ok := r.byID[id]
	return loc, ok
}

func (r *registry) contains(id int64) bool {
	_, ok := r.byID[id]
	return ok
}

func (r *registry) remove(id int64) {
	delete(r.byID, id)
}

func (r *registry) len() int {
	return len(r.byID)
}
