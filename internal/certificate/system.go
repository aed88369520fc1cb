// Package certificate implements an import-certificate ledger. Exporters
// are issued certificates worth their export value; importers must hold
// and spend certificates covering their import value. Certificates trade
// on a continuous double auction.
package certificate

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"market_sim/internal/domain"
	"market_sim/internal/market"

	"github.com/shopspring/decimal"
)

const (
	MarketID  = "import_certificates"
	AssetType = "import_certificate"

	DefaultDuration     = 100
	DefaultInitialPrice = 1.0
)

// Status is the lifecycle state of a certificate.
type Status int

const (
	Active Status = iota
	Used
	Expired
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Used:
		return "used"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Certificate is a claim on import value. Value is in the same unit as
// the certificate market's order quantity.
type Certificate struct {
	ID        string          `json:"certificate_id"`
	AgentID   string          `json:"agent_id"`
	Owner     string          `json:"current_owner"`
	Value     decimal.Decimal `json:"value"`
	IssuedAt  int64           `json:"issued_at"`
	ExpiresAt int64           `json:"expires_at"`
	Status    Status          `json:"status"`
}

// Config holds the ledger options.
type Config struct {
	InitialPrice float64       `yaml:"initial_price"`
	Duration     int64         `yaml:"duration"`
	Market       market.Config `yaml:"market"`
}

// DefaultConfig returns the default ledger options.
func DefaultConfig() Config {
	return Config{
		InitialPrice: DefaultInitialPrice,
		Duration:     DefaultDuration,
		Market:       market.DefaultConfig(),
	}
}

// Usage reports which certificates covered an import.
type Usage struct {
	UsedValue    decimal.Decimal `json:"used_value"`
	Certificates []string        `json:"used_certificates"`
}

// StepSummary is the outcome of one ledger step.
type StepSummary struct {
	TimeStep           int64                `json:"time_step"`
	ActiveCertificates int                  `json:"active_certificates"`
	ActiveValue        decimal.Decimal      `json:"total_certificate_value"`
	CurrentPrice       decimal.Decimal      `json:"current_price"`
	TradeBalance       decimal.Decimal      `json:"trade_balance"`
	Transactions       []domain.Transaction `json:"transactions"`
	Unsettled          int                  `json:"unsettled"`
}

// State is a full snapshot of the ledger.
type State struct {
	TimeStep int64 `json:"time_step"`
	Counts   struct {
		Active      int `json:"active"`
		Used        int `json:"used"`
		Expired     int `json:"expired"`
		TotalIssued int `json:"total_issued"`
	} `json:"certificates"`
	Values struct {
		Active  decimal.Decimal `json:"active"`
		Used    decimal.Decimal `json:"used"`
		Expired decimal.Decimal `json:"expired"`
	} `json:"certificate_value"`
	Market       domain.MarketData          `json:"market"`
	TradeBalance decimal.Decimal            `json:"trade_balance"`
	CurrentPrice decimal.Decimal            `json:"current_price"`
	Exports      map[string]decimal.Decimal `json:"exports"`
	Imports      map[string]decimal.Decimal `json:"imports"`
}

// System is the certificate ledger and its market. It is safe for
// concurrent use.
type System struct {
	mu sync.Mutex

	market   *market.Market
	duration int64
	timeStep int64

	certs map[string]*Certificate
	ids   []string // issuance order

	currentPrice decimal.Decimal
	exports      map[string]decimal.Decimal
	imports      map[string]decimal.Decimal
	tradeBalance decimal.Decimal
}

// NewSystem creates a ledger with its own certificate market.
func NewSystem(cfg Config, opts ...market.Option) (*System, error) {
	if cfg.Duration <= 0 {
		return nil, &domain.ConfigError{Field: "duration", Err: fmt.Errorf("%w: %d", domain.ErrInvalidValue, cfg.Duration)}
	}
	if cfg.InitialPrice <= 0 {
		return nil, &domain.ConfigError{Field: "initial_price", Err: fmt.Errorf("%w: %v", domain.ErrInvalidValue, cfg.InitialPrice)}
	}

	m, err := market.New(MarketID, domain.CertificateMarket, AssetType, domain.ContinuousDoubleAuction, cfg.Market, opts...)
	if err != nil {
		return nil, err
	}

	return &System{
		market:       m,
		duration:     cfg.Duration,
		certs:        make(map[string]*Certificate),
		currentPrice: decimal.NewFromFloat(cfg.InitialPrice),
		exports:      make(map[string]decimal.Decimal),
		imports:      make(map[string]decimal.Decimal),
	}, nil
}

// Issue grants exportValue worth of certificates to an exporter.
func (s *System) Issue(agentID string, exportValue decimal.Decimal) (Certificate, error) {
	if !exportValue.IsPositive() {
		return Certificate{}, fmt.Errorf("%w: export value %s", domain.ErrInvalidValue, exportValue)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := &Certificate{
		ID:        fmt.Sprintf("IC_%d_%s_%d", s.timeStep, agentID, len(s.ids)),
		AgentID:   agentID,
		Owner:     agentID,
		Value:     exportValue,
		IssuedAt:  s.timeStep,
		ExpiresAt: s.timeStep + s.duration,
		Status:    Active,
	}
	s.add(c)

	s.exports[agentID] = s.exports[agentID].Add(exportValue)
	s.tradeBalance = s.tradeBalance.Add(exportValue)
	return *c, nil
}

// ValidateImport reports whether the agent holds enough active value.
func (s *System) ValidateImport(agentID string, importValue decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available(agentID).GreaterThanOrEqual(importValue)
}

// Available returns the agent's total active certificate value.
func (s *System) Available(agentID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available(agentID)
}

// UseCertificates spends importValue of the agent's certificates, those
// expiring soonest first. The last certificate touched is split when it
// is worth more than what is left to cover.
func (s *System) UseCertificates(agentID string, importValue decimal.Decimal) (Usage, error) {
	if !importValue.IsPositive() {
		return Usage{}, fmt.Errorf("%w: import value %s", domain.ErrInvalidValue, importValue)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if avail := s.available(agentID); avail.LessThan(importValue) {
		return Usage{}, fmt.Errorf("%w: %s holds %s, needs %s", domain.ErrInsufficientCertificates, agentID, avail, importValue)
	}

	used := s.take(agentID, importValue, func(c *Certificate) {
		c.Status = Used
	})

	s.imports[agentID] = s.imports[agentID].Add(importValue)
	s.tradeBalance = s.tradeBalance.Sub(importValue)
	return Usage{UsedValue: importValue, Certificates: used}, nil
}

// Transfer moves a whole active certificate between agents.
func (s *System) Transfer(certificateID, from, to string) (Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.certs[certificateID]
	if !ok {
		return Certificate{}, fmt.Errorf("%w: %s", domain.ErrCertificateNotFound, certificateID)
	}
	if c.Status != Active {
		return Certificate{}, fmt.Errorf("%w: %s is %s", domain.ErrCertificateInactive, certificateID, c.Status)
	}
	if c.Owner != from {
		return Certificate{}, fmt.Errorf("%w: %s is not owned by %s", domain.ErrNotOwner, certificateID, from)
	}

	c.Owner = to
	return *c, nil
}

// Certificate looks up a certificate by id.
func (s *System) Certificate(certificateID string) (Certificate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.certs[certificateID]
	if !ok {
		return Certificate{}, false
	}
	return *c, true
}

// Certificates returns the agent's active certificates, soonest expiry first.
func (s *System) Certificates(agentID string) []Certificate {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.held(agentID)
	out := make([]Certificate, len(held))
	for i, c := range held {
		out[i] = *c
	}
	return out
}

// SubmitOrder routes an order to the certificate market.
func (s *System) SubmitOrder(o *domain.Order) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.market.AddOrder(o)
}

// CancelOrder cancels a resting certificate order.
func (s *System) CancelOrder(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.market.CancelOrder(orderID)
}

// MarketData returns a snapshot of the certificate market.
func (s *System) MarketData() domain.MarketData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.market.MarketData()
}

// Market exposes the underlying market. Callers must not use it while
// other goroutines call System methods.
func (s *System) Market() *market.Market {
	return s.market
}

// Step advances time, expires certificates, steps the market and settles
// its trades by moving certificate value from seller to buyer.
func (s *System) Step() StepSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timeStep++
	s.expire()

	txs := s.market.Step()
	unsettled := 0
	for _, tx := range txs {
		if !s.settle(tx) {
			unsettled++
		}
	}
	if len(txs) > 0 {
		s.currentPrice = decimal.NewFromFloat(txs[len(txs)-1].Price)
	}

	summary := StepSummary{
		TimeStep:     s.timeStep,
		ActiveValue:  decimal.Zero,
		CurrentPrice: s.currentPrice,
		TradeBalance: s.tradeBalance,
		Transactions: txs,
		Unsettled:    unsettled,
	}
	for _, id := range s.ids {
		if c := s.certs[id]; c.Status == Active {
			summary.ActiveCertificates++
			summary.ActiveValue = summary.ActiveValue.Add(c.Value)
		}
	}
	return summary
}

// State returns a snapshot of the ledger.
func (s *System) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st State
	st.TimeStep = s.timeStep
	st.Values.Active, st.Values.Used, st.Values.Expired = decimal.Zero, decimal.Zero, decimal.Zero
	for _, id := range s.ids {
		c := s.certs[id]
		switch c.Status {
		case Active:
			st.Counts.Active++
			st.Values.Active = st.Values.Active.Add(c.Value)
		case Used:
			st.Counts.Used++
			st.Values.Used = st.Values.Used.Add(c.Value)
		case Expired:
			st.Counts.Expired++
			st.Values.Expired = st.Values.Expired.Add(c.Value)
		}
	}
	st.Counts.TotalIssued = len(s.ids)
	st.Market = s.market.MarketData()
	st.TradeBalance = s.tradeBalance
	st.CurrentPrice = s.currentPrice
	st.Exports = copyValues(s.exports)
	st.Imports = copyValues(s.imports)
	return st
}

func (s *System) add(c *Certificate) {
	s.certs[c.ID] = c
	s.ids = append(s.ids, c.ID)
}

func (s *System) held(agentID string) []*Certificate {
	var out []*Certificate
	for _, id := range s.ids {
		c := s.certs[id]
		if c.Owner == agentID && c.Status == Active {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt < out[j].ExpiresAt })
	return out
}

func (s *System) available(agentID string) decimal.Decimal {
	total := decimal.Zero
	for _, c := range s.held(agentID) {
		total = total.Add(c.Value)
	}
	return total
}

// take consumes amount of the agent's certificates, soonest expiry first,
// applying fn to each consumed certificate. A certificate worth more than
// the rest of amount is split; the remainder stays with the agent under a
// new id. The caller checks availability.
func (s *System) take(agentID string, amount decimal.Decimal, fn func(*Certificate)) []string {
	var consumed []string
	remaining := amount
	for _, c := range s.held(agentID) {
		if !remaining.IsPositive() {
			break
		}
		if c.Value.GreaterThan(remaining) {
			rest := *c
			rest.ID = fmt.Sprintf("IC_%d_%s_split_%d", s.timeStep, agentID, len(s.ids))
			rest.Value = c.Value.Sub(remaining)
			s.add(&rest)
			c.Value = remaining
		}
		remaining = remaining.Sub(c.Value)
		fn(c)
		consumed = append(consumed, c.ID)
	}
	return consumed
}

func (s *System) settle(tx domain.Transaction) bool {
	qty := decimal.NewFromFloat(tx.Quantity)
	if s.available(tx.SellerID).LessThan(qty) {
		slog.Warn("Unsettled certificate trade",
			slog.String("tx", tx.ID),
			slog.String("seller", tx.SellerID),
			slog.String("quantity", qty.String()))
		return false
	}
	s.take(tx.SellerID, qty, func(c *Certificate) {
		c.Owner = tx.BuyerID
	})
	return true
}

func (s *System) expire() {
	for _, id := range s.ids {
		c := s.certs[id]
		if c.Status == Active && c.ExpiresAt <= s.timeStep {
			c.Status = Expired
		}
	}
}

func copyValues(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
