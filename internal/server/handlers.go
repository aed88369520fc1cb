package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"market_sim/internal/domain"
	"market_sim/internal/infra"
)

// MarketReader is the read side the handlers need from the market data service.
type MarketReader interface {
	GetAllData() []domain.MarketData
	GetData(marketID string) (domain.MarketData, bool)
	LastTransactions(marketID string) []domain.Transaction
	LastStep() int64
}

// HistoryReader serves journaled trades.
type HistoryReader interface {
	Transactions(ctx context.Context, marketID string, limit int) ([]domain.Transaction, error)
}

type handlers struct {
	markets MarketReader
	history HistoryReader
	metrics *infra.Metrics
	logger  *slog.Logger
}

// GET /api/health
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"step":      h.markets.LastStep(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GET /api/markets
func (h *handlers) listMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"step":    h.markets.LastStep(),
		"markets": h.markets.GetAllData(),
	})
}

// GET /api/markets/{id}
func (h *handlers) getMarket(w http.ResponseWriter, r *http.Request) {
	data, ok := h.markets.GetData(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// GET /api/markets/{id}/transactions?limit=100
func (h *handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.markets.GetData(id); !ok {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}

	if h.history == nil {
		writeJSON(w, http.StatusOK, h.markets.LastTransactions(id))
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, 1000)
		}
	}

	txs, err := h.history.Transactions(r.Context(), id, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list transactions failed",
			slog.String("market", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// GET /api/metrics
func (h *handlers) getMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

// writeJSON marshals v as JSON and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
