package market

import (
	"fmt"
	"math/rand/v2"

	"market_sim/internal/domain"
)

const (
	DefaultHistoryLength   = 100
	DefaultDealerSpread    = 0.05
	DefaultBargainingSteps = 3
	DefaultStatsWindow     = 10
	DefaultFallbackPrice   = 100.0

	// convergenceTolerance stops a negotiation once both working prices meet.
	convergenceTolerance = 0.01

	minConcession = 0.3
	maxConcession = 0.7
)

// Config holds the recognized market options.
type Config struct {
	HistoryLength   int     `yaml:"history_length"`
	DealerSpread    float64 `yaml:"dealer_spread"`
	BargainingSteps int     `yaml:"bargaining_steps"`
	StatsWindow     int     `yaml:"stats_window"`
	FallbackPrice   float64 `yaml:"fallback_price"`
	Seed            uint64  `yaml:"seed"`
}

// DefaultConfig returns the default market options.
func DefaultConfig() Config {
	return Config{
		HistoryLength:   DefaultHistoryLength,
		DealerSpread:    DefaultDealerSpread,
		BargainingSteps: DefaultBargainingSteps,
		StatsWindow:     DefaultStatsWindow,
		FallbackPrice:   DefaultFallbackPrice,
	}
}

// Validate checks configuration validity
func (c Config) Validate() error {
	if c.HistoryLength <= 0 {
		return invalid("history_length", c.HistoryLength)
	}
	if c.StatsWindow <= 0 {
		return invalid("stats_window", c.StatsWindow)
	}
	// A spread of 2 or more would quote a non-positive dealer bid.
	if c.DealerSpread < 0 || c.DealerSpread >= 2 {
		return invalid("dealer_spread", c.DealerSpread)
	}
	if c.BargainingSteps < 0 {
		return invalid("bargaining_steps", c.BargainingSteps)
	}
	if c.FallbackPrice <= 0 {
		return invalid("fallback_price", c.FallbackPrice)
	}
	return nil
}

func invalid(field string, v any) error {
	return &domain.ConfigError{Field: field, Err: fmt.Errorf("%w: %v", domain.ErrInvalidValue, v)}
}

// ConcessionFunc draws the fractions of the price gap the buyer and the
// seller give up in each bargaining round.
type ConcessionFunc func() (buyer, seller float64)

// UniformConcessions draws both fractions uniformly from [0.3, 0.7).
func UniformConcessions(r *rand.Rand) ConcessionFunc {
	return func() (float64, float64) {
		b := minConcession + r.Float64()*(maxConcession-minConcession)
		s := minConcession + r.Float64()*(maxConcession-minConcession)
		return b, s
	}
}

// Option customizes a Market at construction.
type Option func(*Market)

// WithConcessions replaces the negotiation concession source.
func WithConcessions(fn ConcessionFunc) Option {
	return func(m *Market) {
		m.concessions = fn
	}
}
