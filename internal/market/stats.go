package market

import "math"

func (m *Market) updateSpread() {
	bid, okBid := m.bids.best()
	ask, okAsk := m.asks.best()
	if !okBid || !okAsk {
		m.stats.Spread = nil
		return
	}
	spread := ask.Price - bid.Price
	m.stats.Spread = &spread
}

// updatePriceStatistics recomputes price, volume and volatility over the
// most recent StatsWindow transactions.
func (m *Market) updatePriceStatistics() {
	window := m.transactions.Last(m.cfg.StatsWindow)
	if len(window) == 0 {
		return
	}

	prices := make([]float64, len(window))
	var volume, value float64
	for i, tx := range window {
		prices[i] = tx.Price
		volume += tx.Quantity
		value += tx.Value
	}

	last := prices[len(prices)-1]
	high, low := prices[0], prices[0]
	for _, p := range prices[1:] {
		high = math.Max(high, p)
		low = math.Min(low, p)
	}

	m.stats.LastPrice = &last
	m.stats.HighPrice = &high
	m.stats.LowPrice = &low
	m.stats.Volume = volume
	m.stats.Value = value
	if len(prices) > 1 {
		m.stats.Volatility = volatility(prices)
	}
}

// volatility is the population standard deviation of consecutive price
// ratio changes.
func volatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	changes := make([]float64, len(prices)-1)
	var mean float64
	for i := 1; i < len(prices); i++ {
		changes[i-1] = prices[i]/prices[i-1] - 1
		mean += changes[i-1]
	}
	mean /= float64(len(changes))

	var sq float64
	for _, c := range changes {
		sq += (c - mean) * (c - mean)
	}
	return math.Sqrt(sq / float64(len(changes)))
}
