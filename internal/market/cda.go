package market

import "market_sim/internal/domain"

// matchContinuousDoubleAuction repeatedly crosses the best bid with the
// best ask at their midpoint until the book is uncrossed.
func (m *Market) matchContinuousDoubleAuction() []domain.Transaction {
	var txs []domain.Transaction
	for {
		bid, ok := m.bids.best()
		if !ok {
			break
		}
		ask, ok := m.asks.best()
		if !ok || bid.Price < ask.Price {
			break
		}

		qty := min(bid.Remaining(), ask.Remaining())
		price := (bid.Price + ask.Price) / 2
		txs = append(txs, m.execute(bid, ask, qty, price))
	}
	return txs
}

// matchAuction gives priority strictly by price, then arrival time, which
// is the continuous double auction.
func (m *Market) matchAuction() []domain.Transaction {
	return m.matchContinuousDoubleAuction()
}
