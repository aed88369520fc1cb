package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"market_sim/internal/domain"
	"market_sim/internal/event"
	"market_sim/internal/infra"
	"market_sim/internal/market"
)

// Journal persists the outcome of each step.
type Journal interface {
	RecordStep(ctx context.Context, step int64, txs map[string][]domain.Transaction, data []domain.MarketData) error
}

// StepReport is what one StepEvent produced across all markets.
type StepReport struct {
	Seq          uint64                          `json:"seq"`
	Step         int64                           `json:"step"`
	Transactions map[string][]domain.Transaction `json:"transactions"`
	Data         []domain.MarketData             `json:"data"`
}

// TransactionCount returns the number of trades in the report.
func (r StepReport) TransactionCount() int {
	n := 0
	for _, txs := range r.Transactions {
		n += len(txs)
	}
	return n
}

// Sequencer is the core single-threaded event processor. It is the only
// goroutine that touches the markets it owns.
type Sequencer struct {
	inbox   chan event.Event
	markets map[string]*market.Market
	ids     []string // sorted, fixes the stepping order
	nextSeq uint64
	step    int64
	journal Journal
	metrics *infra.Metrics

	dumpPath string

	// Boundary: used to notify the feed or other systems after a step
	onStep func(StepReport)

	pubMu  sync.Mutex
	pubSeq uint64

	mu        sync.RWMutex // Used only for external reads (e.g. feed, service)
	snapshots map[string]domain.MarketData
}

// NewSequencer creates a new sequencer instance. journal and onStep may be nil.
func NewSequencer(inboxSize int, journal Journal, onStep func(StepReport)) *Sequencer {
	return &Sequencer{
		inbox:     make(chan event.Event, inboxSize),
		markets:   make(map[string]*market.Market),
		nextSeq:   1,
		journal:   journal,
		metrics:   infra.GlobalMetrics,
		dumpPath:  "panic_dump.json",
		onStep:    onStep,
		snapshots: make(map[string]domain.MarketData),
	}
}

// AddMarket registers a market. It must be called before Run.
func (s *Sequencer) AddMarket(m *market.Market) error {
	if _, ok := s.markets[m.ID()]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateMarket, m.ID())
	}
	s.markets[m.ID()] = m
	s.ids = append(s.ids, m.ID())
	sort.Strings(s.ids)
	s.publishSnapshot(m)
	return nil
}

// SetDumpPath sets where DumpState writes on a halt.
func (s *Sequencer) SetDumpPath(path string) {
	s.dumpPath = path
}

// Inbox returns the event channel. Senders using it directly must assign
// gap-free sequence numbers themselves; Publish does that for them.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// Publish stamps ev with the next sequence number and enqueues it.
// Concurrent publishers are serialized so that sequence numbers reach the
// inbox in order. The sequencer owns ev once Publish returns nil.
func (s *Sequencer) Publish(ctx context.Context, ev event.Publishable) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	ev.SetSeq(s.pubSeq+1, time.Now().UnixMicro())
	select {
	case s.inbox <- ev:
		s.pubSeq++
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started", slog.Int("markets", len(s.ids)))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			// A corrupted book is not recoverable; halt after dump.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...", slog.Uint64("next_seq", s.nextSeq))
			return
		case ev := <-s.inbox:
			s.processEvent(ev)
			event.Release(ev)
		}
	}
}

func (s *Sequencer) processEvent(ev event.Event) {
	// 1. Sequence Gap Check (Halt Policy)
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	// 2. Logic Dispatch
	switch e := ev.(type) {
	case *event.SubmitOrderEvent:
		s.handleSubmit(e)
	case *event.CancelOrderEvent:
		s.handleCancel(e)
	case *event.StepEvent:
		s.handleStep(e)
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}

	// 3. Increment Sequence
	s.nextSeq++

	var latency int64
	if ts := ev.GetTs(); ts > 0 {
		latency = (time.Now().UnixMicro() - ts) * int64(time.Microsecond)
	}
	s.metrics.RecordEvent(latency)
}

func (s *Sequencer) handleSubmit(e *event.SubmitOrderEvent) {
	m, ok := s.markets[e.MarketID]
	accepted := ok && m.AddOrder(e.Order)
	if !ok {
		slog.Warn("Order for unknown market", slog.String("market", e.MarketID))
	}
	if accepted {
		s.publishSnapshot(m)
	}
	s.metrics.RecordOrder(accepted)
	reply(e.Reply, accepted)
}

func (s *Sequencer) handleCancel(e *event.CancelOrderEvent) {
	m, ok := s.markets[e.MarketID]
	canceled := ok && m.CancelOrder(e.OrderID)
	if canceled {
		s.publishSnapshot(m)
		s.metrics.RecordCancel()
	}
	reply(e.Reply, canceled)
}

func (s *Sequencer) handleStep(e *event.StepEvent) {
	s.step++
	report := StepReport{
		Seq:          e.Seq,
		Step:         s.step,
		Transactions: make(map[string][]domain.Transaction),
		Data:         make([]domain.MarketData, 0, len(s.ids)),
	}

	for _, id := range s.ids {
		m := s.markets[id]
		if txs := m.Step(); len(txs) > 0 {
			report.Transactions[id] = txs
		}
		report.Data = append(report.Data, m.MarketData())
	}
	count := report.TransactionCount()

	if s.journal != nil {
		if err := s.journal.RecordStep(context.Background(), s.step, report.Transactions, report.Data); err != nil {
			s.metrics.RecordError()
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}

	s.mu.Lock()
	for _, d := range report.Data {
		s.snapshots[d.MarketID] = d
	}
	s.mu.Unlock()

	s.metrics.RecordStep(count)
	slog.Debug("Step complete", slog.Int64("step", s.step), slog.Int("transactions", count))

	if s.onStep != nil {
		s.onStep(report)
	}
}

// reply never blocks the hotpath; callers must buffer the channel.
func reply(ch chan<- bool, v bool) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	default:
		slog.Warn("Dropped reply on unbuffered channel")
	}
}

func (s *Sequencer) publishSnapshot(m *market.Market) {
	data := m.MarketData()
	s.mu.Lock()
	s.snapshots[m.ID()] = data
	s.mu.Unlock()
}

// MarketData returns the latest snapshot of a market (external read).
func (s *Sequencer) MarketData(marketID string) (domain.MarketData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.snapshots[marketID]
	return data, ok
}

// Snapshots returns the latest snapshot of every market, ordered by id.
func (s *Sequencer) Snapshots() []domain.MarketData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.MarketData, 0, len(s.snapshots))
	for _, d := range s.snapshots {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

type marketDump struct {
	Mechanism  domain.Mechanism    `json:"mechanism"`
	Data       domain.MarketData   `json:"data"`
	Statistics domain.Statistics   `json:"statistics"`
	Bids       []*domain.Order     `json:"bids"`
	Asks       []*domain.Order     `json:"asks"`
	Prices     []domain.PricePoint `json:"prices"`
}

// DumpState writes the entire internal state to a file (for post-mortem).
// It runs on the sequencer goroutine after a panic.
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	markets := make(map[string]marketDump, len(s.markets))
	for id, m := range s.markets {
		markets[id] = marketDump{
			Mechanism:  m.Mechanism(),
			Data:       m.MarketData(),
			Statistics: m.Statistics(),
			Bids:       m.BuyOrders(),
			Asks:       m.SellOrders(),
			Prices:     m.PriceHistory(),
		}
	}

	data := struct {
		NextSeq uint64                `json:"next_seq"`
		Step    int64                 `json:"step"`
		Markets map[string]marketDump `json:"markets"`
	}{
		NextSeq: s.nextSeq,
		Step:    s.step,
		Markets: markets,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
