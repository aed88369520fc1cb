package domain

// MarketType classifies what kind of asset a market trades.
type MarketType string

const (
	ResourceMarket    MarketType = "resource_market"
	CertificateMarket MarketType = "certificate_market"
	TaskMarket        MarketType = "task_market"
	KnowledgeMarket   MarketType = "knowledge_market"
	ServiceMarket     MarketType = "service_market"
)

// Valid reports whether t is one of the known market types.
func (t MarketType) Valid() bool {
	switch t {
	case ResourceMarket, CertificateMarket, TaskMarket, KnowledgeMarket, ServiceMarket:
		return true
	}
	return false
}

// Mechanism is the clearing algorithm a market runs on every match.
type Mechanism string

const (
	Auction                 Mechanism = "auction"
	ContinuousDoubleAuction Mechanism = "continuous_double_auction"
	Dealer                  Mechanism = "dealer"
	CallMarket              Mechanism = "call_market"
	Negotiation             Mechanism = "negotiation"
)

// Valid reports whether m is one of the supported mechanisms.
func (m Mechanism) Valid() bool {
	switch m {
	case Auction, ContinuousDoubleAuction, Dealer, CallMarket, Negotiation:
		return true
	}
	return false
}

// PricePoint is one entry of a market's price history.
type PricePoint struct {
	Step  int64   `json:"step"`
	Price float64 `json:"price"`
}

// Statistics are recomputed after admissions and matches.
// Optional values are nil until the first observation.
type Statistics struct {
	Volume     float64  `json:"volume"`
	Value      float64  `json:"value"`
	LastPrice  *float64 `json:"last_price,omitempty"`
	HighPrice  *float64 `json:"high_price,omitempty"`
	LowPrice   *float64 `json:"low_price,omitempty"`
	Spread     *float64 `json:"spread,omitempty"`
	Volatility float64  `json:"volatility"`
}

// BookDepth counts resting orders per side.
type BookDepth struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
}

// MarketData is a read-only snapshot of a market.
type MarketData struct {
	MarketID    string    `json:"market_id"`
	AssetType   string    `json:"asset_type"`
	TimeStep    int64     `json:"time_step"`
	BestBid     *float64  `json:"best_bid,omitempty"`
	BestAsk     *float64  `json:"best_ask,omitempty"`
	Spread      *float64  `json:"spread,omitempty"`
	Depth       BookDepth `json:"order_book_depth"`
	Volume      float64   `json:"volume"`
	LastPrice   *float64  `json:"last_price,omitempty"`
	PriceChange *float64  `json:"price_change,omitempty"`
	Volatility  float64   `json:"volatility"`
}

// ReferencePrice returns the last traded price, else the mid of the
// quotes, else whichever quote exists. ok is false for an empty market.
func (d MarketData) ReferencePrice() (price float64, ok bool) {
	switch {
	case d.LastPrice != nil:
		return *d.LastPrice, true
	case d.BestBid != nil && d.BestAsk != nil:
		return (*d.BestBid + *d.BestAsk) / 2, true
	case d.BestBid != nil:
		return *d.BestBid, true
	case d.BestAsk != nil:
		return *d.BestAsk, true
	}
	return 0, false
}
