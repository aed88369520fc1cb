package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"market_sim/internal/domain"
	"market_sim/internal/engine"
	"market_sim/internal/infra"
	"market_sim/internal/service"
)

type fakeHistory struct {
	limit int
	err   error
}

func (f *fakeHistory) Transactions(_ context.Context, marketID string, limit int) ([]domain.Transaction, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Transaction{
		domain.NewTransaction("tx_"+marketID+"_1_0", "b", "s", marketID, 1, 100, 1, "o1", "o2"),
	}, nil
}

func newTestServer(t *testing.T, history HistoryReader) *httptest.Server {
	t.Helper()
	svc := service.NewMarketDataService()
	tx := domain.NewTransaction("tx_wheat_3_0", "b", "s", "wheat", 2, 50, 3, "o1", "o2")
	svc.ProcessReport(engine.StepReport{
		Step:         3,
		Transactions: map[string][]domain.Transaction{"wheat": {tx}},
		Data:         []domain.MarketData{{MarketID: "wheat", AssetType: "wheat", TimeStep: 3, Volume: 2}},
	})

	metrics := &infra.Metrics{}
	metrics.RecordStep(1)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewRouter(svc, history, metrics, nil, logger))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestMarketsEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	var list struct {
		Step    int64               `json:"step"`
		Markets []domain.MarketData `json:"markets"`
	}
	if code := getJSON(t, srv.URL+"/api/markets", &list); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if list.Step != 3 || len(list.Markets) != 1 || list.Markets[0].MarketID != "wheat" {
		t.Errorf("Unexpected market list %+v", list)
	}

	var data domain.MarketData
	if code := getJSON(t, srv.URL+"/api/markets/wheat", &data); code != http.StatusOK || data.Volume != 2 {
		t.Errorf("Unexpected market %d %+v", code, data)
	}

	if code := getJSON(t, srv.URL+"/api/markets/gold", nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown market, got %d", code)
	}
}

func TestTransactionsEndpoint(t *testing.T) {
	t.Run("last step without history", func(t *testing.T) {
		srv := newTestServer(t, nil)
		var txs []domain.Transaction
		getJSON(t, srv.URL+"/api/markets/wheat/transactions", &txs)
		if len(txs) != 1 || txs[0].ID != "tx_wheat_3_0" {
			t.Errorf("Unexpected transactions %+v", txs)
		}
	})

	t.Run("journal with limit", func(t *testing.T) {
		history := &fakeHistory{}
		srv := newTestServer(t, history)
		var txs []domain.Transaction
		getJSON(t, srv.URL+"/api/markets/wheat/transactions?limit=5000", &txs)
		if len(txs) != 1 || txs[0].ID != "tx_wheat_1_0" {
			t.Errorf("Unexpected transactions %+v", txs)
		}
		if history.limit != 1000 {
			t.Errorf("Expected limit capped at 1000, got %d", history.limit)
		}
	})

	t.Run("journal failure", func(t *testing.T) {
		srv := newTestServer(t, &fakeHistory{err: errors.New("locked")})
		if code := getJSON(t, srv.URL+"/api/markets/wheat/transactions", nil); code != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d", code)
		}
	})
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	var health map[string]any
	if code := getJSON(t, srv.URL+"/api/health", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Errorf("Unexpected health %d %v", code, health)
	}

	var snap infra.MetricsSnapshot
	getJSON(t, srv.URL+"/api/metrics", &snap)
	if snap.Steps != 1 || snap.Transactions != 1 {
		t.Errorf("Unexpected metrics %+v", snap)
	}
}
