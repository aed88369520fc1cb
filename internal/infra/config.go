package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"market_sim/internal/certificate"
	"market_sim/internal/domain"
	"market_sim/internal/market"
	"market_sim/internal/network"

	"gopkg.in/yaml.v3"
)

// Trader kinds recognized in simulation.traders.
const (
	TraderSMACross         = "sma_cross"
	TraderZeroIntelligence = "zero_intelligence"
)

// Config는 시뮬레이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 배포별 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Simulation SimulationConfig `yaml:"simulation"`
	Markets    []MarketConfig   `yaml:"markets"`

	Certificates struct {
		Enabled            bool `yaml:"enabled"`
		certificate.Config `yaml:",inline"`
	} `yaml:"certificates"`

	NetworkEffects []NetworkEffectConfig `yaml:"network_effects"`

	Storage struct {
		Path     string `yaml:"path"`
		DumpPath string `yaml:"dump_path"`
	} `yaml:"storage"`

	Feed struct {
		Addr string `yaml:"addr"`
	} `yaml:"feed"`

	Debug struct {
		PprofAddr string `yaml:"pprof_addr"`
	} `yaml:"debug"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// SimulationConfig drives the step loop. Steps of 0 runs until shutdown.
type SimulationConfig struct {
	Steps          int64          `yaml:"steps"`
	StepIntervalMS int            `yaml:"step_interval_ms"`
	Seed           uint64         `yaml:"seed"`
	InboxSize      int            `yaml:"inbox_size"`
	Traders        []TraderConfig `yaml:"traders"`
}

// MarketConfig declares one market. Omitted options take market.DefaultConfig values.
type MarketConfig struct {
	ID            string            `yaml:"id"`
	Type          domain.MarketType `yaml:"type"`
	Asset         string            `yaml:"asset"`
	Mechanism     domain.Mechanism  `yaml:"mechanism"`
	market.Config `yaml:",inline"`
}

// UnmarshalYAML fills defaults before decoding so partial entries stay valid.
func (m *MarketConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw MarketConfig
	r := raw{Type: domain.ResourceMarket, Config: market.DefaultConfig()}
	if err := value.Decode(&r); err != nil {
		return err
	}
	*m = MarketConfig(r)
	if m.Asset == "" {
		m.Asset = m.ID
	}
	return nil
}

// NetworkEffectConfig declares a network effect over a set of markets.
// Omitted parameters take network.DefaultConfig values.
type NetworkEffectConfig struct {
	ID             string   `yaml:"id"`
	Type           string   `yaml:"type"`
	Strength       float64  `yaml:"strength"`
	Markets        []string `yaml:"markets"`
	network.Config `yaml:",inline"`
}

// UnmarshalYAML fills defaults before decoding.
func (n *NetworkEffectConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw NetworkEffectConfig
	r := raw{Config: network.DefaultConfig()}
	if err := value.Decode(&r); err != nil {
		return err
	}
	*n = NetworkEffectConfig(r)
	return nil
}

// TraderConfig declares Count simulated traders of one kind on one market.
type TraderConfig struct {
	Kind   string  `yaml:"kind"`
	Market string  `yaml:"market"`
	Count  int     `yaml:"count"`
	Qty    float64 `yaml:"qty"`
	TTL    int     `yaml:"ttl"` // steps an order rests; 0 is good-till-canceled

	// sma_cross
	Short int `yaml:"short"`
	Long  int `yaml:"long"`

	// zero_intelligence
	Width  float64 `yaml:"width"`
	MaxQty int     `yaml:"max_qty"`
}

// DefaultConfig returns a configuration with every optional value filled in.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "market_sim"
	cfg.Simulation.StepIntervalMS = 100
	cfg.Simulation.InboxSize = 4096
	cfg.Certificates.Config = certificate.DefaultConfig()
	cfg.Storage.DumpPath = "panic_dump.json"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig, applies environment
// overrides and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// 환경 변수 오버라이드 지원
	overrideWithEnv(cfg)

	// 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	// Simulation
	if c.Simulation.Steps < 0 {
		return configErr("simulation.steps", c.Simulation.Steps)
	}
	if c.Simulation.StepIntervalMS <= 0 {
		return configErr("simulation.step_interval_ms", c.Simulation.StepIntervalMS)
	}
	if c.Simulation.InboxSize <= 0 {
		return configErr("simulation.inbox_size", c.Simulation.InboxSize)
	}

	// Markets
	if len(c.Markets) == 0 {
		return &domain.ConfigError{Field: "markets", Err: fmt.Errorf("at least one market is required")}
	}
	known := make(map[string]bool, len(c.Markets)+1)
	for i, m := range c.Markets {
		field := fmt.Sprintf("markets[%d]", i)
		if m.ID == "" {
			return configErr(field+".id", `""`)
		}
		if known[m.ID] {
			return &domain.ConfigError{Field: field + ".id", Err: fmt.Errorf("%w: %s", domain.ErrDuplicateMarket, m.ID)}
		}
		if !m.Type.Valid() {
			return configErr(field+".type", m.Type)
		}
		if !m.Mechanism.Valid() {
			return configErr(field+".mechanism", m.Mechanism)
		}
		if err := m.Config.Validate(); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		known[m.ID] = true
	}

	if c.Certificates.Enabled {
		if known[certificate.MarketID] {
			return &domain.ConfigError{Field: "certificates", Err: fmt.Errorf("%w: %s", domain.ErrDuplicateMarket, certificate.MarketID)}
		}
		if err := c.Certificates.Market.Validate(); err != nil {
			return fmt.Errorf("certificates: %w", err)
		}
		known[certificate.MarketID] = true
	}

	// Traders
	for i, t := range c.Simulation.Traders {
		field := fmt.Sprintf("simulation.traders[%d]", i)
		if !known[t.Market] {
			return &domain.ConfigError{Field: field + ".market", Err: fmt.Errorf("%w: %s", domain.ErrUnknownMarket, t.Market)}
		}
		if t.Count <= 0 {
			return configErr(field+".count", t.Count)
		}
		switch t.Kind {
		case TraderSMACross:
			if t.Qty <= 0 {
				return configErr(field+".qty", t.Qty)
			}
			if t.Short <= 0 || t.Long <= t.Short {
				return configErr(field+".long", fmt.Sprintf("%d/%d", t.Short, t.Long))
			}
		case TraderZeroIntelligence:
			if t.Width <= 0 || t.Width >= 1 {
				return configErr(field+".width", t.Width)
			}
			if t.MaxQty <= 0 {
				return configErr(field+".max_qty", t.MaxQty)
			}
		default:
			return configErr(field+".kind", t.Kind)
		}
	}

	// Network effects
	effects := make(map[string]bool, len(c.NetworkEffects))
	for i, n := range c.NetworkEffects {
		field := fmt.Sprintf("network_effects[%d]", i)
		if n.ID == "" || effects[n.ID] {
			return configErr(field+".id", n.ID)
		}
		if n.Strength < 0 || n.Strength > 1 {
			return configErr(field+".strength", n.Strength)
		}
		if len(n.Markets) == 0 {
			return configErr(field+".markets", "[]")
		}
		for _, id := range n.Markets {
			if !known[id] || id == certificate.MarketID {
				return &domain.ConfigError{Field: field + ".markets", Err: fmt.Errorf("%w: %s", domain.ErrUnknownMarket, id)}
			}
		}
		if err := n.Config.Validate(); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		effects[n.ID] = true
	}

	// Logging
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return configErr("logging.level", c.Logging.Level)
	}

	if c.Feed.Addr != "" && !strings.Contains(c.Feed.Addr, ":") {
		return configErr("feed.addr", c.Feed.Addr)
	}

	return nil
}

func configErr(field string, v any) error {
	return &domain.ConfigError{Field: field, Err: fmt.Errorf("%w: %v", domain.ErrInvalidValue, v)}
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if path := os.Getenv("MARKETSIM_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if addr := os.Getenv("MARKETSIM_FEED_ADDR"); addr != "" {
		cfg.Feed.Addr = addr
	}
	if level := os.Getenv("MARKETSIM_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
}
