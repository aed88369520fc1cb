package strategy

import (
	"market_sim/internal/domain"
	"market_sim/internal/market"
)

// SMACrossStrategy implements a simple SMA Crossover strategy.
// It is stateful and deterministic.
// The price window is a fixed ring, so OnMarketData does not allocate
// unless it emits an action.
type SMACrossStrategy struct {
	marketID    string
	shortPeriod int
	longPeriod  int
	qty         float64

	prices *market.Ring[float64]
	sum    float64 // Running sum over the long period

	primed       bool
	prevShortSMA float64
	prevLongSMA  float64
}

// NewSMACrossStrategy creates a new instance.
func NewSMACrossStrategy(marketID string, shortPeriod, longPeriod int, qty float64) *SMACrossStrategy {
	if shortPeriod <= 0 || shortPeriod >= longPeriod {
		panic("SMACrossStrategy: shortPeriod must be positive and less than longPeriod")
	}
	return &SMACrossStrategy{
		marketID:    marketID,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		qty:         qty,
		prices:      market.NewRing[float64](longPeriod),
	}
}

// OnMarketData processes a snapshot and generates crossover signals at
// the market's reference price.
func (s *SMACrossStrategy) OnMarketData(data domain.MarketData) []Action {
	// 1. Filter by market
	if data.MarketID != s.marketID {
		return nil
	}
	price, ok := data.ReferencePrice()
	if !ok {
		return nil
	}

	// 2. Update price history
	// If full, subtract the oldest value from sum before it is overwritten
	if s.prices.Len() == s.longPeriod {
		s.sum -= s.prices.At(0)
	}
	s.prices.Push(price)
	s.sum += price

	// 3. Check if we have enough data
	if s.prices.Len() < s.longPeriod {
		return nil
	}

	// 4. Calculate SMAs
	currLongSMA := s.sum / float64(s.longPeriod)
	currShortSMA := s.calculateShortSMA()

	var actions []Action

	// 5. Check for Cross
	if s.primed {
		// Golden Cross: Short goes above Long
		if s.prevShortSMA <= s.prevLongSMA && currShortSMA > currLongSMA {
			actions = append(actions, Action{Type: ActionBuy, MarketID: s.marketID, Price: price, Qty: s.qty})
		}

		// Dead Cross: Short goes below Long
		if s.prevShortSMA >= s.prevLongSMA && currShortSMA < currLongSMA {
			actions = append(actions, Action{Type: ActionSell, MarketID: s.marketID, Price: price, Qty: s.qty})
		}
	}

	// 6. Update State
	s.primed = true
	s.prevShortSMA = currShortSMA
	s.prevLongSMA = currLongSMA

	return actions
}

// calculateShortSMA averages the most recent shortPeriod prices.
func (s *SMACrossStrategy) calculateShortSMA() float64 {
	var sum float64
	n := s.prices.Len()
	for i := n - s.shortPeriod; i < n; i++ {
		sum += s.prices.At(i)
	}
	return sum / float64(s.shortPeriod)
}
