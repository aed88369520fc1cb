package market

import (
	"math"

	"market_sim/internal/domain"
)

// bargain runs the concession rounds between a buyer limit and a seller
// limit and returns the midpoint of the final working prices.
func (m *Market) bargain(buyerLimit, sellerLimit float64) float64 {
	buyerRate, sellerRate := m.concessions()
	buyerPrice, sellerPrice := buyerLimit, sellerLimit

	for i := 0; i < m.cfg.BargainingSteps; i++ {
		gap := buyerPrice - sellerPrice
		buyerPrice -= gap * buyerRate
		sellerPrice += gap * sellerRate
		if math.Abs(buyerPrice-sellerPrice) < convergenceTolerance {
			break
		}
	}
	return (buyerPrice + sellerPrice) / 2
}

// matchNegotiation lets each buyer, in book order, bargain with the
// compatible sellers from the cheapest up until its order is filled.
func (m *Market) matchNegotiation() []domain.Transaction {
	if m.bids.len() == 0 || m.asks.len() == 0 {
		return nil
	}

	var txs []domain.Transaction
	for _, buy := range m.bids.orders() {
		for _, sell := range m.asks.orders() {
			if !sell.IsOpen() || sell.AssetType != buy.AssetType {
				continue
			}
			if sell.Price > buy.Price {
				continue
			}

			price := m.bargain(buy.Price, sell.Price)
			if price < sell.Price || price > buy.Price {
				continue
			}
			qty := min(buy.Remaining(), sell.Remaining())
			if qty <= 0 {
				continue
			}
			txs = append(txs, m.execute(buy, sell, qty, price))
			if buy.Status == domain.Filled {
				break
			}
		}
	}
	return txs
}
