package market

import (
	"fmt"
	"testing"

	"market_sim/internal/domain"

	"pgregory.net/rapid"
)

var allMechanisms = []domain.Mechanism{
	domain.ContinuousDoubleAuction,
	domain.Auction,
	domain.CallMarket,
	domain.Dealer,
	domain.Negotiation,
}

// drawOrders submits random integer-priced orders over a few steps and
// returns every admitted order by id.
func drawOrders(t *rapid.T, m *Market) (map[string]*domain.Order, []domain.Transaction) {
	admitted := make(map[string]*domain.Order)
	var txs []domain.Transaction

	n := rapid.IntRange(1, 40).Draw(t, "orders")
	for i := 0; i < n; i++ {
		side := rapid.SampledFrom([]domain.Side{domain.Buy, domain.Sell}).Draw(t, "side")
		price := float64(rapid.IntRange(80, 120).Draw(t, "price"))
		qty := float64(rapid.IntRange(1, 10).Draw(t, "qty"))

		o := domain.NewOrder(fmt.Sprintf("o%d", i), "agent", side, domain.ResourceMarket, asset, qty, price)
		if rapid.Bool().Draw(t, "bounded") {
			o.TimeInForce = domain.TimeInForce(rapid.IntRange(1, 3).Draw(t, "tif"))
		}
		if m.AddOrder(o) {
			admitted[o.ID] = o
		}
		if rapid.IntRange(0, 3).Draw(t, "action") == 0 {
			txs = append(txs, m.Step()...)
		}
	}
	txs = append(txs, m.Step()...)
	return admitted, txs
}

func TestProperty_QuantityConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mech := rapid.SampledFrom(allMechanisms).Draw(t, "mechanism")
		m, err := New("m", domain.ResourceMarket, asset, mech, DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}

		orders, txs := drawOrders(t, m)

		filled := make(map[string]float64)
		for _, tx := range txs {
			if tx.Quantity <= 0 || tx.Price <= 0 {
				t.Fatalf("Non-positive transaction %v", tx)
			}
			if tx.BuyerOrderID != "" {
				filled[tx.BuyerOrderID] += tx.Quantity
			}
			if tx.SellerOrderID != "" {
				filled[tx.SellerOrderID] += tx.Quantity
			}
		}

		for id, o := range orders {
			if o.FilledQuantity > o.Quantity {
				t.Fatalf("%s overfilled: %v > %v", id, o.FilledQuantity, o.Quantity)
			}
			if filled[id] != o.FilledQuantity {
				t.Fatalf("%s: transactions sum %v, filled %v", id, filled[id], o.FilledQuantity)
			}
			if o.Status == domain.Filled && o.FilledQuantity != o.Quantity {
				t.Fatalf("%s filled with remaining quantity", id)
			}
		}
	})
}

func TestProperty_NoResidualCross(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mech := rapid.SampledFrom([]domain.Mechanism{domain.ContinuousDoubleAuction, domain.Auction}).Draw(t, "mechanism")
		m, err := New("m", domain.ResourceMarket, asset, mech, DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}

		drawOrders(t, m)

		data := m.MarketData()
		if data.BestBid != nil && data.BestAsk != nil && *data.BestBid >= *data.BestAsk {
			t.Fatalf("Book still crossed: %v >= %v", *data.BestBid, *data.BestAsk)
		}
	})
}

func TestProperty_CallMarketSinglePrice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m, err := New("m", domain.ResourceMarket, asset, domain.CallMarket, DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}

		n := rapid.IntRange(1, 30).Draw(t, "orders")
		for i := 0; i < n; i++ {
			side := rapid.SampledFrom([]domain.Side{domain.Buy, domain.Sell}).Draw(t, "side")
			price := float64(rapid.IntRange(80, 120).Draw(t, "price"))
			qty := float64(rapid.IntRange(1, 10).Draw(t, "qty"))
			m.AddOrder(domain.NewOrder(fmt.Sprintf("o%d", i), "agent", side, domain.ResourceMarket, asset, qty, price))
		}

		txs := m.MatchOrders()
		for _, tx := range txs[min(1, len(txs)):] {
			if tx.Price != txs[0].Price {
				t.Fatalf("Call market cleared at %v and %v", txs[0].Price, tx.Price)
			}
		}
	})
}

func TestProperty_DealerWithinQuotes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := DefaultConfig()
		cfg.DealerSpread = float64(rapid.IntRange(0, 20).Draw(t, "spread_pct")) / 100
		m, err := New("m", domain.ResourceMarket, asset, domain.Dealer, cfg)
		if err != nil {
			t.Fatal(err)
		}

		n := rapid.IntRange(1, 20).Draw(t, "orders")
		for i := 0; i < n; i++ {
			side := rapid.SampledFrom([]domain.Side{domain.Buy, domain.Sell}).Draw(t, "side")
			price := float64(rapid.IntRange(80, 120).Draw(t, "price"))
			m.AddOrder(domain.NewOrder(fmt.Sprintf("o%d", i), "agent", side, domain.ResourceMarket, asset, 1, price))
		}

		bid, ask := m.dealerQuotes()
		for _, tx := range m.MatchOrders() {
			if tx.Price < bid || tx.Price > ask {
				t.Fatalf("Dealer traded at %v outside [%v, %v]", tx.Price, bid, ask)
			}
			if tx.BuyerID != domain.DealerID && tx.SellerID != domain.DealerID {
				t.Fatalf("Dealer missing from %v", tx)
			}
		}
	})
}

func TestProperty_NegotiatedPriceWithinLimits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := DefaultConfig()
		cfg.Seed = rapid.Uint64().Draw(t, "seed")
		cfg.BargainingSteps = rapid.IntRange(0, 6).Draw(t, "rounds")
		m, err := New("m", domain.ResourceMarket, asset, domain.Negotiation, cfg)
		if err != nil {
			t.Fatal(err)
		}

		limits := make(map[string]*domain.Order)
		n := rapid.IntRange(1, 20).Draw(t, "orders")
		for i := 0; i < n; i++ {
			side := rapid.SampledFrom([]domain.Side{domain.Buy, domain.Sell}).Draw(t, "side")
			price := float64(rapid.IntRange(80, 120).Draw(t, "price"))
			o := domain.NewOrder(fmt.Sprintf("o%d", i), "agent", side, domain.ResourceMarket, asset, 1, price)
			if m.AddOrder(o) {
				limits[o.ID] = o
			}
		}

		for _, tx := range m.MatchOrders() {
			lo, hi := limits[tx.SellerOrderID].Price, limits[tx.BuyerOrderID].Price
			if tx.Price < lo || tx.Price > hi {
				t.Fatalf("Negotiated %v outside [%v, %v]", tx.Price, lo, hi)
			}
		}
	})
}

func TestProperty_RejectedOrdersLeaveNoTrace(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m, err := New("m", domain.ResourceMarket, asset, domain.ContinuousDoubleAuction, DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		m.AddOrder(domain.NewOrder("seed", "agent", domain.Buy, domain.ResourceMarket, asset, 1, 100))

		before := m.MarketData()
		qty := float64(rapid.IntRange(-5, 0).Draw(t, "qty"))
		price := float64(rapid.IntRange(-5, 100).Draw(t, "price"))
		o := domain.NewOrder("bad", "agent", domain.Sell, domain.ResourceMarket, asset, qty, price)
		if m.AddOrder(o) {
			t.Fatal("Non-positive quantity admitted")
		}

		after := m.MarketData()
		if before.Depth != after.Depth || *before.BestBid != *after.BestBid || after.BestAsk != nil {
			t.Fatalf("Rejected order changed the book: %+v -> %+v", before, after)
		}
	})
}

func TestProperty_TradedOrdersAreNeverReadmitted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m, err := New("m", domain.ResourceMarket, asset, domain.ContinuousDoubleAuction, DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		admitted, txs := drawOrders(t, m)

		traded := make(map[string]float64)
		for _, tx := range txs {
			traded[tx.BuyerOrderID] += tx.Quantity
			traded[tx.SellerOrderID] += tx.Quantity
		}

		for id, o := range admitted {
			if o.IsFresh() {
				continue
			}
			status, filled := o.Status, o.FilledQuantity
			before := m.MarketData()
			if m.AddOrder(o) {
				t.Fatalf("Order %s (%s) readmitted", id, status)
			}
			if o.Status != status || o.FilledQuantity != filled {
				t.Fatalf("Rejected readmission of %s mutated it", id)
			}
			if before.Depth != m.MarketData().Depth {
				t.Fatalf("Rejected readmission of %s changed the book", id)
			}
		}

		for _, tx := range m.Step() {
			traded[tx.BuyerOrderID] += tx.Quantity
			traded[tx.SellerOrderID] += tx.Quantity
		}
		for id, o := range admitted {
			if traded[id] > o.Quantity+1e-9 {
				t.Fatalf("Order %s traded %v over quantity %v", id, traded[id], o.Quantity)
			}
		}
	})
}
