package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"market_sim/internal/certificate"
	"market_sim/internal/domain"
	"market_sim/internal/engine"
	"market_sim/internal/event"
	"market_sim/internal/infra"
	"market_sim/internal/market"
	"market_sim/internal/network"
	"market_sim/internal/server/ws"
	"market_sim/internal/service"
	"market_sim/internal/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Feed receives step output for connected clients.
type Feed interface {
	PublishReport(report engine.StepReport)
	Broadcast(channel, msgType string, v any)
}

type trader struct {
	agentID    string
	marketID   string
	marketType domain.MarketType
	asset      string
	fallback   float64
	ttl        int
	strategy   strategy.Strategy
}

// Simulation drives the sequencer: every step its traders read the latest
// snapshots and submit orders, then one StepEvent clears all markets.
type Simulation struct {
	cfg     infra.SimulationConfig
	seq     *engine.Sequencer
	certs   *certificate.System // nil when disabled
	effects []*network.Effect
	service *service.MarketDataService
	feed    Feed
	traders []trader
	reports chan engine.StepReport
	newID   func() string
}

// NewSimulation builds the markets, the certificate ledger and the traders
// described by cfg. journal and feed may be nil.
func NewSimulation(cfg *infra.Config, journal engine.Journal, svc *service.MarketDataService, feed Feed) (*Simulation, error) {
	s := &Simulation{
		cfg:     cfg.Simulation,
		service: svc,
		feed:    feed,
		reports: make(chan engine.StepReport, 1),
		newID:   uuid.NewString,
	}

	s.seq = engine.NewSequencer(cfg.Simulation.InboxSize, journal, s.onStep)
	if cfg.Storage.DumpPath != "" {
		s.seq.SetDumpPath(cfg.Storage.DumpPath)
	}

	markets, err := BuildMarkets(cfg.Markets, cfg.Simulation.Seed)
	if err != nil {
		return nil, err
	}
	for _, m := range markets {
		if err := s.seq.AddMarket(m); err != nil {
			return nil, err
		}
		svc.Update(m.MarketData())
	}

	if cfg.Certificates.Enabled {
		certs, err := certificate.NewSystem(cfg.Certificates.Config)
		if err != nil {
			return nil, fmt.Errorf("certificates: %w", err)
		}
		s.certs = certs
		svc.Update(certs.MarketData())
		svc.UpdateCertificatePrice(decimal.NewFromFloat(cfg.Certificates.InitialPrice))
	}

	for _, nc := range cfg.NetworkEffects {
		e, err := network.New(nc.ID, nc.Type, nc.Strength, nc.Markets, nc.Config)
		if err != nil {
			return nil, fmt.Errorf("network effect %s: %w", nc.ID, err)
		}
		s.effects = append(s.effects, e)
	}

	if err := s.buildTraders(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// BuildMarkets creates one market per entry. Markets without an explicit
// seed get one derived from the simulation seed.
func BuildMarkets(cfgs []infra.MarketConfig, seed uint64) ([]*market.Market, error) {
	markets := make([]*market.Market, 0, len(cfgs))
	for i, mc := range cfgs {
		opts := mc.Config
		if opts.Seed == 0 {
			opts.Seed = seed + uint64(i) + 1
		}
		m, err := market.New(mc.ID, mc.Type, mc.Asset, mc.Mechanism, opts)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", mc.ID, err)
		}
		markets = append(markets, m)
	}
	return markets, nil
}

func (s *Simulation) buildTraders(cfg *infra.Config) error {
	type target struct {
		typ      domain.MarketType
		asset    string
		fallback float64
	}
	targets := make(map[string]target, len(cfg.Markets)+1)
	for _, mc := range cfg.Markets {
		targets[mc.ID] = target{mc.Type, mc.Asset, mc.FallbackPrice}
	}
	if s.certs != nil {
		targets[certificate.MarketID] = target{domain.CertificateMarket, certificate.AssetType, cfg.Certificates.InitialPrice}
	}

	for _, tc := range cfg.Simulation.Traders {
		t, ok := targets[tc.Market]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownMarket, tc.Market)
		}
		for i := 0; i < tc.Count; i++ {
			var strat strategy.Strategy
			switch tc.Kind {
			case infra.TraderSMACross:
				strat = strategy.NewSMACrossStrategy(tc.Market, tc.Short, tc.Long, tc.Qty)
			case infra.TraderZeroIntelligence:
				seed := cfg.Simulation.Seed + uint64(len(s.traders)) + 1
				strat = strategy.NewZeroIntelligenceStrategy(tc.Market, seed, tc.Width, tc.MaxQty, t.fallback)
			default:
				return &domain.ConfigError{Field: "kind", Err: fmt.Errorf("%w: %s", domain.ErrInvalidValue, tc.Kind)}
			}
			s.traders = append(s.traders, trader{
				agentID:    fmt.Sprintf("%s_%s_%d", tc.Kind, tc.Market, i),
				marketID:   tc.Market,
				marketType: t.typ,
				asset:      t.asset,
				fallback:   t.fallback,
				ttl:        tc.TTL,
				strategy:   strat,
			})
		}
	}
	return nil
}

// Sequencer returns the sequencer; the caller runs it.
func (s *Simulation) Sequencer() *engine.Sequencer { return s.seq }

// Certificates returns the certificate ledger, or nil when disabled.
func (s *Simulation) Certificates() *certificate.System { return s.certs }

// NetworkEffects returns the configured network effects.
func (s *Simulation) NetworkEffects() []*network.Effect { return s.effects }

// Run executes a step every step interval until the configured number of
// steps is reached or ctx is done. The sequencer must already be running.
func (s *Simulation) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(s.cfg.StepIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	slog.Info("▶️ Simulation started",
		slog.Int64("steps", s.cfg.Steps),
		slog.Int("traders", len(s.traders)),
	)

	for n := int64(0); s.cfg.Steps == 0 || n < s.cfg.Steps; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		report, err := s.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		slog.Debug("Step published", slog.Int64("step", report.Step), slog.Int("transactions", report.TransactionCount()))
	}

	for _, d := range s.seq.Snapshots() {
		slog.Info("🏁 Final market state",
			slog.String("market", d.MarketID),
			slog.Float64("volume", d.Volume),
			slog.Any("last_price", d.LastPrice),
		)
	}
	return nil
}

// Step submits one round of trader orders, clears every market and waits
// for the resulting report.
func (s *Simulation) Step(ctx context.Context) (engine.StepReport, error) {
	if err := s.submitOrders(ctx); err != nil {
		return engine.StepReport{}, err
	}
	if err := s.seq.Publish(ctx, &event.StepEvent{}); err != nil {
		return engine.StepReport{}, err
	}

	select {
	case report := <-s.reports:
		return report, nil
	case <-ctx.Done():
		return engine.StepReport{}, ctx.Err()
	}
}

func (s *Simulation) submitOrders(ctx context.Context) error {
	for i := range s.traders {
		t := &s.traders[i]
		data, ok := s.snapshot(t.marketID)
		if !ok {
			continue
		}
		data = s.valued(t, data)

		for _, a := range t.strategy.OnMarketData(data) {
			o := domain.NewOrder(s.newID(), t.agentID, a.Type.Side(), t.marketType, t.asset, a.Qty, a.Price)
			if t.ttl > 0 {
				o.TimeInForce = domain.TimeInForce(t.ttl)
			}

			if t.marketID == certificate.MarketID {
				s.certs.SubmitOrder(o)
				continue
			}

			ev := event.AcquireSubmitOrderEvent()
			ev.MarketID = t.marketID
			ev.Order = o
			if err := s.seq.Publish(ctx, ev); err != nil {
				event.ReleaseSubmitOrderEvent(ev)
				return err
			}
		}
	}
	return nil
}

func (s *Simulation) snapshot(marketID string) (domain.MarketData, bool) {
	if marketID == certificate.MarketID && s.certs != nil {
		return s.certs.MarketData(), true
	}
	return s.seq.MarketData(marketID)
}

// valued scales the reference price a trader sees on markets covered by an
// active network effect. An empty market is valued from the trader's fallback.
func (s *Simulation) valued(t *trader, data domain.MarketData) domain.MarketData {
	if len(s.effects) == 0 {
		return data
	}
	ref, ok := data.ReferencePrice()
	if !ok {
		ref = t.fallback
	}

	values := map[string]float64{t.marketID: ref}
	for _, e := range s.effects {
		values = e.Apply(values)
	}
	if v := values[t.marketID]; v != ref {
		data.LastPrice = &v
	}
	return data
}

// onStep runs on the sequencer goroutine after every step.
func (s *Simulation) onStep(report engine.StepReport) {
	s.service.Offer(report)
	if s.feed != nil {
		s.feed.PublishReport(report)
	}
	if s.certs != nil {
		s.stepCertificates(report)
	}
	s.stepNetwork(report)

	select {
	case s.reports <- report:
	default:
	}
}

// stepCertificates treats every sale as an export and every purchase as an
// import, then advances the ledger by one step.
func (s *Simulation) stepCertificates(report engine.StepReport) {
	uncovered := 0
	for _, d := range report.Data {
		for _, tx := range report.Transactions[d.MarketID] {
			value := decimal.NewFromFloat(tx.Value)
			if tx.SellerID != domain.DealerID {
				if _, err := s.certs.Issue(tx.SellerID, value); err != nil {
					slog.Warn("Certificate issue failed", slog.String("transaction", tx.ID), slog.Any("error", err))
				}
			}
			if tx.BuyerID != domain.DealerID {
				if _, err := s.certs.UseCertificates(tx.BuyerID, value); err != nil {
					uncovered++
				}
			}
		}
	}

	summary := s.certs.Step()
	s.service.UpdateCertificatePrice(summary.CurrentPrice)
	s.service.Update(s.certs.MarketData())
	if s.feed != nil {
		s.feed.Broadcast(ws.ChannelCertificates, "certificates", summary)
	}

	if uncovered > 0 {
		slog.Debug("Imports without certificate cover",
			slog.Int64("step", report.Step),
			slog.Int("count", uncovered),
		)
	}
}

// stepNetwork adopts every agent that traded on an affected market, weighting
// its influence by its share of that step's volume, then re-evaluates activation.
func (s *Simulation) stepNetwork(report engine.StepReport) {
	for _, e := range s.effects {
		volume := make(map[string]float64)
		total := 0.0
		for marketID, txs := range report.Transactions {
			if !e.Affects(marketID) {
				continue
			}
			for _, tx := range txs {
				for _, agent := range [2]string{tx.BuyerID, tx.SellerID} {
					if agent != domain.DealerID {
						volume[agent] += tx.Quantity
					}
				}
				total += tx.Quantity
			}
		}
		for agent, qty := range volume {
			e.AddAdopter(agent)
			e.SetInfluence(agent, qty/total)
		}

		wasActive := e.Active()
		e.NetworkValue(len(s.traders))
		if e.Active() != wasActive {
			slog.Info("🌐 Network effect changed",
				slog.String("effect", e.ID()),
				slog.Bool("active", e.Active()),
				slog.Int("adopters", e.Adopters()),
			)
		}
		if s.feed != nil {
			s.feed.Broadcast(ws.ChannelNetwork, "network", e.State())
		}
	}
}
