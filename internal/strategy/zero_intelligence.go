package strategy

import (
	"math"
	"math/rand/v2"

	"market_sim/internal/domain"
)

// ZeroIntelligenceStrategy quotes random limit orders around the
// reference price, a budget-constrained zero-intelligence trader. With no
// reference price it quotes around its fallback.
type ZeroIntelligenceStrategy struct {
	marketID string
	width    float64 // relative half-width of the quote band
	maxQty   int
	fallback float64
	rng      *rand.Rand
}

// NewZeroIntelligenceStrategy creates a trader seeded for reproducible runs.
func NewZeroIntelligenceStrategy(marketID string, seed uint64, width float64, maxQty int, fallback float64) *ZeroIntelligenceStrategy {
	if width <= 0 || width >= 1 {
		panic("ZeroIntelligenceStrategy: width must be in (0, 1)")
	}
	if maxQty <= 0 {
		panic("ZeroIntelligenceStrategy: maxQty must be positive")
	}
	return &ZeroIntelligenceStrategy{
		marketID: marketID,
		width:    width,
		maxQty:   maxQty,
		fallback: fallback,
		rng:      rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)),
	}
}

// OnMarketData emits exactly one order for its market.
func (z *ZeroIntelligenceStrategy) OnMarketData(data domain.MarketData) []Action {
	if data.MarketID != z.marketID {
		return nil
	}
	ref, ok := data.ReferencePrice()
	if !ok {
		ref = z.fallback
	}

	typ := ActionBuy
	if z.rng.IntN(2) == 1 {
		typ = ActionSell
	}
	price := ref * (1 - z.width + 2*z.width*z.rng.Float64())
	// Two decimal ticks keep the book readable.
	price = math.Max(math.Round(price*100)/100, 0.01)

	return []Action{{
		Type:     typ,
		MarketID: z.marketID,
		Price:    price,
		Qty:      float64(1 + z.rng.IntN(z.maxQty)),
	}}
}
