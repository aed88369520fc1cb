package market

import (
	"market_sim/internal/domain"

	"github.com/google/btree"
)

const btreeDegree = 16

// bookEntry wraps a resting order with its admission sequence, which
// breaks ties between orders sharing price and timestamp.
type bookEntry struct {
	order *domain.Order
	seq   uint64
}

// bookSide is one side of the order book, kept in priority order.
// Price and Timestamp of a resting order must not change.
type bookSide struct {
	tree *btree.BTreeG[*bookEntry]
	byID map[string]*bookEntry
}

// bids: price descending, then timestamp ascending.
func bidLess(a, b *bookEntry) bool {
	if a.order.Price != b.order.Price {
		return a.order.Price > b.order.Price
	}
	if a.order.Timestamp != b.order.Timestamp {
		return a.order.Timestamp < b.order.Timestamp
	}
	return a.seq < b.seq
}

// asks: price ascending, then timestamp ascending.
func askLess(a, b *bookEntry) bool {
	if a.order.Price != b.order.Price {
		return a.order.Price < b.order.Price
	}
	if a.order.Timestamp != b.order.Timestamp {
		return a.order.Timestamp < b.order.Timestamp
	}
	return a.seq < b.seq
}

func newBookSide(side domain.Side) *bookSide {
	less := askLess
	if side == domain.Buy {
		less = bidLess
	}
	return &bookSide{
		tree: btree.NewG[*bookEntry](btreeDegree, less),
		byID: make(map[string]*bookEntry),
	}
}

func (s *bookSide) insert(o *domain.Order, seq uint64) {
	e := &bookEntry{order: o, seq: seq}
	s.tree.ReplaceOrInsert(e)
	s.byID[o.ID] = e
}

func (s *bookSide) get(id string) (*domain.Order, bool) {
	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return e.order, true
}

func (s *bookSide) remove(id string) bool {
	e, ok := s.byID[id]
	if !ok {
		return false
	}
	s.tree.Delete(e)
	delete(s.byID, id)
	return true
}

// best returns the highest-priority order.
func (s *bookSide) best() (*domain.Order, bool) {
	e, ok := s.tree.Min()
	if !ok {
		return nil, false
	}
	return e.order, true
}

func (s *bookSide) len() int {
	return s.tree.Len()
}

// orders returns the resting orders in priority order. The slice is a
// copy, so callers may remove orders while walking it.
func (s *bookSide) orders() []*domain.Order {
	out := make([]*domain.Order, 0, s.tree.Len())
	s.tree.Ascend(func(e *bookEntry) bool {
		out = append(out, e.order)
		return true
	})
	return out
}
