package service

import (
	"context"
	"testing"
	"time"

	"market_sim/internal/domain"
	"market_sim/internal/engine"

	"github.com/shopspring/decimal"
)

func price(v float64) *float64 { return &v }

func report(step int64, data ...domain.MarketData) engine.StepReport {
	return engine.StepReport{Step: step, Data: data, Transactions: map[string][]domain.Transaction{}}
}

func TestMarketDataService_ProcessReport(t *testing.T) {
	svc := NewMarketDataService()

	r := report(1,
		domain.MarketData{MarketID: "wheat", LastPrice: price(100)},
		domain.MarketData{MarketID: "corn", LastPrice: price(50)},
	)
	r.Transactions["wheat"] = []domain.Transaction{{ID: "tx_wheat_1_0", Quantity: 1, Price: 100}}
	svc.ProcessReport(r)

	wheat, ok := svc.GetData("wheat")
	if !ok {
		t.Fatal("wheat data should exist")
	}
	if *wheat.LastPrice != 100 {
		t.Errorf("Expected 100, got %v", *wheat.LastPrice)
	}
	if txs := svc.LastTransactions("wheat"); len(txs) != 1 {
		t.Errorf("Expected 1 wheat transaction, got %d", len(txs))
	}
	if txs := svc.LastTransactions("corn"); len(txs) != 0 {
		t.Errorf("Expected no corn transactions, got %d", len(txs))
	}
	if svc.LastStep() != 1 {
		t.Errorf("Expected last step 1, got %d", svc.LastStep())
	}
}

func TestMarketDataService_IgnoresStaleReports(t *testing.T) {
	svc := NewMarketDataService()

	svc.ProcessReport(report(2, domain.MarketData{MarketID: "wheat", LastPrice: price(110)}))
	svc.ProcessReport(report(1, domain.MarketData{MarketID: "wheat", LastPrice: price(90)}))

	wheat, _ := svc.GetData("wheat")
	if *wheat.LastPrice != 110 {
		t.Errorf("Stale report overwrote data: %v", *wheat.LastPrice)
	}
}

func TestMarketDataService_CertificatePrice(t *testing.T) {
	svc := NewMarketDataService()

	if !svc.GetCertificatePrice().IsZero() {
		t.Error("Expected zero certificate price initially")
	}
	svc.UpdateCertificatePrice(decimal.NewFromFloat(1.25))
	if !svc.GetCertificatePrice().Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("Expected 1.25, got %s", svc.GetCertificatePrice())
	}
}

func TestMarketDataService_GetAllData_Sorted(t *testing.T) {
	svc := NewMarketDataService()

	// Add in unsorted order
	svc.Update(domain.MarketData{MarketID: "wheat"})
	svc.Update(domain.MarketData{MarketID: "corn"})
	svc.Update(domain.MarketData{MarketID: "oil"})

	all := svc.GetAllData()
	if len(all) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(all))
	}

	// Should be sorted: corn, oil, wheat
	if all[0].MarketID != "corn" || all[1].MarketID != "oil" || all[2].MarketID != "wheat" {
		t.Errorf("Not sorted: %s, %s, %s", all[0].MarketID, all[1].MarketID, all[2].MarketID)
	}
}

func TestMarketDataService_AsyncReports(t *testing.T) {
	svc := NewMarketDataService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartReportProcessor(ctx)

	if !svc.Offer(report(1, domain.MarketData{MarketID: "wheat", LastPrice: price(100)})) {
		t.Fatal("Offer should succeed with an empty buffer")
	}

	// Give it a moment to process
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := svc.GetData("wheat"); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("wheat data should be processed from channel")
}
