// Package network models network effects: once enough agents adopt a
// network, the value of the resources it covers is scaled up.
package network

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"market_sim/internal/domain"
)

const (
	DefaultActivationThreshold = 0.2
	DefaultMetcalfeExponent    = 1.8
	DefaultEffectMultiplier    = 0.2

	// influenceWeight scales the mean influence into the value multiplier.
	influenceWeight = 0.5
)

// Config holds the tunable parameters of an effect.
type Config struct {
	ActivationThreshold float64 `yaml:"activation_threshold"`
	MetcalfeExponent    float64 `yaml:"metcalfe_exponent"`
	EffectMultiplier    float64 `yaml:"effect_multiplier"`
}

// DefaultConfig returns the default effect parameters.
func DefaultConfig() Config {
	return Config{
		ActivationThreshold: DefaultActivationThreshold,
		MetcalfeExponent:    DefaultMetcalfeExponent,
		EffectMultiplier:    DefaultEffectMultiplier,
	}
}

// Validate checks configuration validity
func (c Config) Validate() error {
	if c.ActivationThreshold < 0 || c.ActivationThreshold > 1 {
		return invalid("activation_threshold", c.ActivationThreshold)
	}
	if !(c.MetcalfeExponent > 0) {
		return invalid("metcalfe_exponent", c.MetcalfeExponent)
	}
	if c.EffectMultiplier < 0 {
		return invalid("effect_multiplier", c.EffectMultiplier)
	}
	return nil
}

func invalid(field string, v any) error {
	return &domain.ConfigError{Field: field, Err: fmt.Errorf("%w: %v", domain.ErrInvalidValue, v)}
}

// State is a snapshot of an effect.
type State struct {
	ID         string   `json:"effect_id"`
	Type       string   `json:"effect_type"`
	Adopters   int      `json:"adopters"`
	Active     bool     `json:"is_active"`
	Value      float64  `json:"network_value"`
	Multiplier float64  `json:"multiplier"`
	Resources  []string `json:"affected_resources"`
}

// Effect tracks the adopters of one network. It is safe for concurrent use.
type Effect struct {
	mu sync.RWMutex

	id        string
	kind      string
	strength  float64
	resources map[string]bool
	cfg       Config

	adopters  map[string]struct{}
	influence map[string]float64
	active    bool
	value     float64
}

// New creates an effect over the given resources. strength must be in [0, 1].
func New(id, kind string, strength float64, resources []string, cfg Config) (*Effect, error) {
	if strength < 0 || strength > 1 || math.IsNaN(strength) {
		return nil, invalid("strength", strength)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(resources))
	for _, r := range resources {
		set[r] = true
	}
	return &Effect{
		id:        id,
		kind:      kind,
		strength:  strength,
		resources: set,
		cfg:       cfg,
		adopters:  make(map[string]struct{}),
		influence: make(map[string]float64),
	}, nil
}

func (e *Effect) ID() string { return e.id }

// Affects reports whether resource is covered by the effect.
func (e *Effect) Affects(resource string) bool {
	return e.resources[resource]
}

// AddAdopter adds an agent to the network.
func (e *Effect) AddAdopter(agentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adopters[agentID] = struct{}{}
}

// RemoveAdopter removes an agent; unknown ids are ignored.
func (e *Effect) RemoveAdopter(agentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.adopters, agentID)
}

// Adopters returns the number of adopters.
func (e *Effect) Adopters() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.adopters)
}

// SetInfluence records an agent's influence, clamped to [0, 1].
func (e *Effect) SetInfluence(agentID string, influence float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.influence[agentID] = max(0, min(1, influence))
}

// NetworkValue recomputes activation from the adoption rate and returns
// adopters^exponent, scaled by the mean influence when any is recorded.
// An inactive network is worth 0.
func (e *Effect) NetworkValue(totalAgents int) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if totalAgents <= 0 {
		e.active, e.value = false, 0
		return 0
	}

	rate := float64(len(e.adopters)) / float64(totalAgents)
	e.active = rate >= e.cfg.ActivationThreshold
	if !e.active {
		e.value = 0
		return 0
	}

	value := math.Pow(float64(len(e.adopters)), e.cfg.MetcalfeExponent)
	if len(e.influence) > 0 {
		total := 0.0
		for _, v := range e.influence {
			total += v
		}
		value *= 1 + (total/float64(len(e.influence)))*influenceWeight
	}
	e.value = value
	return value
}

// Active reports the activation computed by the last NetworkValue call.
func (e *Effect) Active() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Multiplier is the factor applied to affected resource values while active.
func (e *Effect) Multiplier() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.active {
		return 1
	}
	return 1 + e.strength*e.cfg.EffectMultiplier
}

// Apply returns a copy of values with affected resources scaled by Multiplier.
func (e *Effect) Apply(values map[string]float64) map[string]float64 {
	m := e.Multiplier()
	out := make(map[string]float64, len(values))
	for k, v := range values {
		if e.resources[k] {
			v *= m
		}
		out[k] = v
	}
	return out
}

// State returns a snapshot of the effect.
func (e *Effect) State() State {
	e.mu.RLock()
	resources := make([]string, 0, len(e.resources))
	for r := range e.resources {
		resources = append(resources, r)
	}
	st := State{
		ID:        e.id,
		Type:      e.kind,
		Adopters:  len(e.adopters),
		Active:    e.active,
		Value:     e.value,
		Resources: resources,
	}
	e.mu.RUnlock()

	sort.Strings(st.Resources)
	st.Multiplier = e.Multiplier()
	return st
}
