package market

import "market_sim/internal/domain"

// dealerReference is the last traded price, else the best bid, else the
// best ask, else the configured fallback.
func (m *Market) dealerReference() float64 {
	if m.stats.LastPrice != nil {
		return *m.stats.LastPrice
	}
	if bid, ok := m.bids.best(); ok {
		return bid.Price
	}
	if ask, ok := m.asks.best(); ok {
		return ask.Price
	}
	return m.cfg.FallbackPrice
}

// dealerQuotes returns the dealer's bid and ask around the reference.
func (m *Market) dealerQuotes() (bid, ask float64) {
	ref := m.dealerReference()
	half := m.cfg.DealerSpread / 2
	return ref * (1 - half), ref * (1 + half)
}

// matchDealer fills every marketable order in full against a market maker
// with unlimited inventory.
func (m *Market) matchDealer() []domain.Transaction {
	if m.bids.len() == 0 && m.asks.len() == 0 {
		return nil
	}
	dealerBid, dealerAsk := m.dealerQuotes()

	var txs []domain.Transaction
	for _, sell := range m.asks.orders() {
		if sell.Price <= dealerBid {
			txs = append(txs, m.execute(nil, sell, sell.Remaining(), dealerBid))
		}
	}
	for _, buy := range m.bids.orders() {
		if buy.Price >= dealerAsk {
			txs = append(txs, m.execute(buy, nil, buy.Remaining(), dealerAsk))
		}
	}
	return txs
}
