package network

import (
	"errors"
	"math"
	"testing"

	"market_sim/internal/domain"
)

func newTestEffect(t *testing.T, strength float64, cfg Config) *Effect {
	t.Helper()
	e, err := New("e1", "adoption", strength, []string{"wheat"}, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		strength float64
		mutate   func(*Config)
		field    string
	}{
		{"strength above one", 1.5, func(*Config) {}, "strength"},
		{"negative strength", -0.1, func(*Config) {}, "strength"},
		{"threshold above one", 0.5, func(c *Config) { c.ActivationThreshold = 1.1 }, "activation_threshold"},
		{"zero exponent", 0.5, func(c *Config) { c.MetcalfeExponent = 0 }, "metcalfe_exponent"},
		{"negative multiplier", 0.5, func(c *Config) { c.EffectMultiplier = -1 }, "effect_multiplier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New("e", "adoption", tt.strength, nil, cfg)

			var ce *domain.ConfigError
			if !errors.As(err, &ce) || ce.Field != tt.field {
				t.Errorf("Expected %s ConfigError, got %v", tt.field, err)
			}
		})
	}
}

func TestNetworkValue_ActivationThreshold(t *testing.T) {
	e := newTestEffect(t, 0.5, DefaultConfig())
	e.AddAdopter("a")

	// 1 of 10 is below the 0.2 threshold.
	if v := e.NetworkValue(10); v != 0 || e.Active() {
		t.Errorf("Expected inactive network, got value %v", v)
	}

	e.AddAdopter("b")
	want := math.Pow(2, DefaultMetcalfeExponent)
	if v := e.NetworkValue(10); !approx(v, want) || !e.Active() {
		t.Errorf("Expected %v at the threshold, got %v", want, v)
	}

	e.RemoveAdopter("b")
	e.RemoveAdopter("unknown")
	if v := e.NetworkValue(10); v != 0 || e.Active() {
		t.Error("Removing an adopter must deactivate the network")
	}

	if v := e.NetworkValue(0); v != 0 {
		t.Errorf("Expected 0 without agents, got %v", v)
	}
}

func TestNetworkValue_Influence(t *testing.T) {
	e := newTestEffect(t, 0.5, DefaultConfig())
	e.AddAdopter("a")
	e.AddAdopter("b")
	e.SetInfluence("a", 3)    // clamped to 1
	e.SetInfluence("b", -0.5) // clamped to 0

	// mean influence 0.5 -> multiplier 1.25
	want := math.Pow(2, DefaultMetcalfeExponent) * 1.25
	if v := e.NetworkValue(4); !approx(v, want) {
		t.Errorf("Expected %v, got %v", want, v)
	}
}

func TestApply(t *testing.T) {
	e := newTestEffect(t, 0.5, DefaultConfig())
	values := map[string]float64{"wheat": 100, "steel": 50}

	out := e.Apply(values)
	if out["wheat"] != 100 || e.Multiplier() != 1 {
		t.Error("Inactive network must not change values")
	}

	e.AddAdopter("a")
	e.NetworkValue(1)

	out = e.Apply(values)
	// 1 + 0.5*0.2
	if !approx(out["wheat"], 110) || out["steel"] != 50 {
		t.Errorf("Unexpected values %v", out)
	}
	if values["wheat"] != 100 {
		t.Error("Apply must not modify its input")
	}
}

func TestState(t *testing.T) {
	e, err := New("grid", "productivity", 1, []string{"steel", "compute"}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	e.AddAdopter("a")
	e.NetworkValue(2)

	st := e.State()
	if st.ID != "grid" || st.Adopters != 1 || !st.Active || !approx(st.Multiplier, 1.2) {
		t.Errorf("Unexpected state %+v", st)
	}
	if len(st.Resources) != 2 || st.Resources[0] != "compute" {
		t.Errorf("Expected sorted resources, got %v", st.Resources)
	}
	if !e.Affects("steel") || e.Affects("wheat") {
		t.Error("Unexpected affected resources")
	}
}
