package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"market_sim/internal/domain"
	"market_sim/internal/engine"

	"github.com/shopspring/decimal"
)

// MarketDataService keeps the latest snapshot of every market for readers
// outside the sequencer (strategies, feed, shutdown summary).
type MarketDataService struct {
	mu               sync.RWMutex
	marketData       map[string]domain.MarketData
	lastTransactions map[string][]domain.Transaction
	lastStep         int64
	certificatePrice decimal.Decimal
	reportChan       chan engine.StepReport
}

// NewMarketDataService creates a new MarketDataService instance
func NewMarketDataService() *MarketDataService {
	return &MarketDataService{
		marketData:       make(map[string]domain.MarketData),
		lastTransactions: make(map[string][]domain.Transaction),
		certificatePrice: decimal.Zero,
		reportChan:       make(chan engine.StepReport, 1000), // buffered for bursts of fast steps
	}
}

// GetAllData returns all market data sorted by market id
func (s *MarketDataService) GetAllData() []domain.MarketData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.MarketData, 0, len(s.marketData))
	for _, data := range s.marketData {
		result = append(result, data)
	}

	// Sort by market id for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].MarketID < result[j].MarketID
	})

	return result
}

// GetData returns market data for a specific market
func (s *MarketDataService) GetData(marketID string) (domain.MarketData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.marketData[marketID]
	return data, ok
}

// LastTransactions returns the trades of the last processed step.
func (s *MarketDataService) LastTransactions(marketID string) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Transaction(nil), s.lastTransactions[marketID]...)
}

// LastStep returns the step of the last processed report.
func (s *MarketDataService) LastStep() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastStep
}

// UpdateCertificatePrice records the latest import-certificate price.
func (s *MarketDataService) UpdateCertificatePrice(price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.certificatePrice = price
}

// GetCertificatePrice returns the latest import-certificate price.
func (s *MarketDataService) GetCertificatePrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.certificatePrice
}

// Offer hands a report to the background processor without blocking the
// caller. It returns false when the buffer is full.
func (s *MarketDataService) Offer(report engine.StepReport) bool {
	select {
	case s.reportChan <- report:
		return true
	default:
		slog.Warn("Market data buffer full, dropping report", slog.Int64("step", report.Step))
		return false
	}
}

// StartReportProcessor starts a background goroutine to process reports from the channel
func (s *MarketDataService) StartReportProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case report := <-s.reportChan:
				s.ProcessReport(report)
			}
		}
	}()
}

// ProcessReport stores the snapshots and trades of a step report.
// Reports older than the last processed step are ignored.
func (s *MarketDataService) ProcessReport(report engine.StepReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.Step < s.lastStep {
		return
	}
	s.lastStep = report.Step

	for _, data := range report.Data {
		s.marketData[data.MarketID] = data
		s.lastTransactions[data.MarketID] = report.Transactions[data.MarketID]
	}
}

// Update stores a single snapshot outside the step cycle, e.g. after an
// order changed the book.
func (s *MarketDataService) Update(data domain.MarketData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.marketData[data.MarketID] = data
}
