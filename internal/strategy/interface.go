package strategy

import (
	"market_sim/internal/domain"
)

// ActionType defines the type of trading action
type ActionType int

const (
	ActionBuy  ActionType = iota + 1
	ActionSell            // Sell
)

// String returns the string representation of ActionType
func (a ActionType) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Side maps the action to an order side.
func (a ActionType) Side() domain.Side {
	switch a {
	case ActionBuy:
		return domain.Buy
	case ActionSell:
		return domain.Sell
	default:
		return 0
	}
}

// Action represents a limit order a strategy wants placed.
type Action struct {
	Type     ActionType
	MarketID string
	Price    float64
	Qty      float64
}

// Strategy is the interface that all trader strategies must implement.
// It is called synchronously by the simulation driver once per step.
type Strategy interface {
	// OnMarketData is called with the latest snapshot of a market.
	// It returns a list of Actions to be executed.
	OnMarketData(data domain.MarketData) []Action
}
