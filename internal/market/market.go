// Package market implements an order-driven market for one asset with a
// pluggable clearing mechanism.
//
// A Market is not safe for concurrent use. Callers that share one across
// goroutines must serialize AddOrder, CancelOrder, MatchOrders and Step,
// for example by routing them through engine.Sequencer.
package market

import (
	"fmt"
	"math"
	"math/rand/v2"

	"market_sim/internal/domain"
)

type matchFunc func(m *Market) []domain.Transaction

var mechanisms = map[domain.Mechanism]matchFunc{
	domain.ContinuousDoubleAuction: (*Market).matchContinuousDoubleAuction,
	domain.Auction:                 (*Market).matchAuction,
	domain.CallMarket:              (*Market).matchCallMarket,
	domain.Dealer:                  (*Market).matchDealer,
	domain.Negotiation:             (*Market).matchNegotiation,
}

// Market owns both sides of an order book, bounded transaction and price
// histories, running statistics and a clearing mechanism.
type Market struct {
	id         string
	marketType domain.MarketType
	assetType  string
	mechanism  domain.Mechanism
	cfg        Config

	bids *bookSide
	asks *bookSide

	transactions *Ring[domain.Transaction]
	prices       *Ring[domain.PricePoint]
	stats        domain.Statistics

	timeStep  int64
	txOrdinal int    // transactions created in the current step
	admitted  uint64 // admission sequence for stable ordering

	match       matchFunc
	concessions ConcessionFunc
}

// New creates a market. It fails on an unknown mechanism, an invalid
// market type or an invalid configuration.
func New(id string, marketType domain.MarketType, assetType string, mechanism domain.Mechanism, cfg Config, opts ...Option) (*Market, error) {
	match, ok := mechanisms[mechanism]
	if !ok {
		return nil, &domain.ConfigError{Field: "mechanism", Err: fmt.Errorf("%w: %q", domain.ErrInvalidValue, mechanism)}
	}
	if !marketType.Valid() {
		return nil, &domain.ConfigError{Field: "market_type", Err: fmt.Errorf("%w: %q", domain.ErrInvalidValue, marketType)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Market{
		id:           id,
		marketType:   marketType,
		assetType:    assetType,
		mechanism:    mechanism,
		cfg:          cfg,
		bids:         newBookSide(domain.Buy),
		asks:         newBookSide(domain.Sell),
		transactions: NewRing[domain.Transaction](cfg.HistoryLength),
		prices:       NewRing[domain.PricePoint](cfg.HistoryLength),
		match:        match,
		concessions:  UniformConcessions(rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Market) ID() string                    { return m.id }
func (m *Market) MarketType() domain.MarketType { return m.marketType }
func (m *Market) AssetType() string             { return m.assetType }
func (m *Market) Mechanism() domain.Mechanism   { return m.mechanism }
func (m *Market) TimeStep() int64               { return m.timeStep }

// AddOrder admits an order, returning false without side effects when it
// is malformed, addressed to another market, reuses a resting id, or has
// already been admitted or traded.
func (m *Market) AddOrder(o *domain.Order) bool {
	if !m.acceptable(o) {
		return false
	}

	o.Timestamp = m.timeStep

	m.admitted++
	m.side(o.Side).insert(o, m.admitted)
	m.updateSpread()
	return true
}

func (m *Market) acceptable(o *domain.Order) bool {
	switch {
	case o == nil, !o.Side.Valid(), !o.TimeInForce.Valid():
		return false
	case !o.IsFresh():
		return false
	case !(o.Quantity > 0) || math.IsInf(o.Quantity, 0):
		return false
	case !(o.Price > 0) || math.IsInf(o.Price, 0):
		return false
	case o.MarketType != m.marketType, o.AssetType != m.assetType:
		return false
	}
	if _, dup := m.bids.get(o.ID); dup {
		return false
	}
	if _, dup := m.asks.get(o.ID); dup {
		return false
	}
	return true
}

// CancelOrder cancels a resting order that has not traded yet. It returns
// false if the id is not in the book or the order is partially filled.
func (m *Market) CancelOrder(orderID string) bool {
	for _, s := range []*bookSide{m.bids, m.asks} {
		o, ok := s.get(orderID)
		if !ok || o.Status != domain.Active {
			continue
		}
		o.Status = domain.Canceled
		s.remove(orderID)
		m.updateSpread()
		return true
	}
	return false
}

// MatchOrders runs the clearing mechanism once without advancing time.
func (m *Market) MatchOrders() []domain.Transaction {
	txs := m.match(m)

	if len(txs) > 0 {
		for _, tx := range txs {
			m.transactions.Push(tx)
		}
		m.updatePriceStatistics()
	}
	m.updateSpread()
	return txs
}

// Step advances time, expires stale orders, matches, and records the last
// price. It returns the transactions of this step.
func (m *Market) Step() []domain.Transaction {
	m.timeStep++
	m.txOrdinal = 0

	m.expireOrders()
	txs := m.MatchOrders()

	if m.stats.LastPrice != nil {
		m.prices.Push(domain.PricePoint{Step: m.timeStep, Price: *m.stats.LastPrice})
	}
	return txs
}

func (m *Market) expireOrders() {
	for _, s := range []*bookSide{m.bids, m.asks} {
		for _, o := range s.orders() {
			if o.Status.IsTerminal() || m.expired(o) {
				s.remove(o.ID)
			}
		}
	}
}

func (m *Market) expired(o *domain.Order) bool {
	return o.TimeInForce.IsBounded() && m.timeStep-o.Timestamp >= int64(o.TimeInForce)
}

// MarketData returns a snapshot of the market.
func (m *Market) MarketData() domain.MarketData {
	data := domain.MarketData{
		MarketID:    m.id,
		AssetType:   m.assetType,
		TimeStep:    m.timeStep,
		Depth:       domain.BookDepth{Buy: m.bids.len(), Sell: m.asks.len()},
		Volume:      m.stats.Volume,
		LastPrice:   clonePrice(m.stats.LastPrice),
		PriceChange: m.priceChange(),
		Volatility:  m.stats.Volatility,
	}
	if bid, ok := m.bids.best(); ok {
		data.BestBid = clonePrice(&bid.Price)
	}
	if ask, ok := m.asks.best(); ok {
		data.BestAsk = clonePrice(&ask.Price)
	}
	if data.BestBid != nil && data.BestAsk != nil {
		spread := *data.BestAsk - *data.BestBid
		data.Spread = &spread
	}
	return data
}

func (m *Market) priceChange() *float64 {
	n := m.prices.Len()
	if n < 2 {
		return nil
	}
	current := m.prices.At(n - 1).Price
	previous := m.prices.At(n - 2).Price
	if previous == 0 {
		return nil
	}
	change := current/previous - 1
	return &change
}

// Statistics returns a copy of the running statistics.
func (m *Market) Statistics() domain.Statistics {
	s := m.stats
	s.LastPrice = clonePrice(s.LastPrice)
	s.HighPrice = clonePrice(s.HighPrice)
	s.LowPrice = clonePrice(s.LowPrice)
	s.Spread = clonePrice(s.Spread)
	return s
}

// BuyOrders returns resting buy orders, best first.
func (m *Market) BuyOrders() []*domain.Order { return m.bids.orders() }

// SellOrders returns resting sell orders, best first.
func (m *Market) SellOrders() []*domain.Order { return m.asks.orders() }

// Order looks up a resting order by id.
func (m *Market) Order(orderID string) (*domain.Order, bool) {
	if o, ok := m.bids.get(orderID); ok {
		return o, true
	}
	return m.asks.get(orderID)
}

// TransactionHistory returns the retained transactions, oldest first.
func (m *Market) TransactionHistory() []domain.Transaction { return m.transactions.Items() }

// PriceHistory returns the retained (step, price) pairs, oldest first.
func (m *Market) PriceHistory() []domain.PricePoint { return m.prices.Items() }

func (m *Market) side(s domain.Side) *bookSide {
	if s == domain.Buy {
		return m.bids
	}
	return m.asks
}

// execute fills buy and sell against each other and removes whichever
// order is now filled. A nil order is the dealer's side.
func (m *Market) execute(buy, sell *domain.Order, qty, price float64) domain.Transaction {
	buyerID, sellerID := domain.DealerID, domain.DealerID
	var buyOrderID, sellOrderID string
	if buy != nil {
		buyerID, buyOrderID = buy.AgentID, buy.ID
	}
	if sell != nil {
		sellerID, sellOrderID = sell.AgentID, sell.ID
	}

	id := fmt.Sprintf("tx_%s_%d_%d", m.id, m.timeStep, m.txOrdinal)
	tx := domain.NewTransaction(id, buyerID, sellerID, m.assetType, qty, price, m.timeStep, buyOrderID, sellOrderID)
	m.txOrdinal++

	if buy != nil {
		buy.Fill(qty)
		if buy.Status == domain.Filled {
			m.bids.remove(buy.ID)
		}
	}
	if sell != nil {
		sell.Fill(qty)
		if sell.Status == domain.Filled {
			m.asks.remove(sell.ID)
		}
	}
	return tx
}

func clonePrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
