package exchange

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures configuration for one or more exchange adapters. Adapter
// names are matched against the exchange part of a selector.
type Config struct {
	Default   string                     `yaml:"default"`
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes how to construct a specific adapter instance.
type ProviderConfig struct {
	Type           string  `yaml:"type"`
	PrivateKey     string  `yaml:"private_key"`
	AccountAddress string  `yaml:"account_address"`
	BaseURL        string  `yaml:"base_url"`
	Testnet        bool    `yaml:"testnet"`
	RateLimit      float64 `yaml:"rate_limit"` // requests per second
	MakerFee       float64 `yaml:"maker_fee"`
	TakerFee       float64 `yaml:"taker_fee"`

	// Feed names another provider whose trades a paper adapter replays.
	Feed string `yaml:"feed"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// AdapterBuilder constructs an Adapter from configuration. Builders for
// wrapping adapters receive the already built adapters by name.
type AdapterBuilder func(name string, cfg *ProviderConfig, built map[string]Adapter) (Adapter, error)

var (
	adapterRegistry   = make(map[string]AdapterBuilder)
	adapterRegistryMu sync.RWMutex
)

// RegisterAdapter associates a builder with an adapter type.
func RegisterAdapter(typeName string, builder AdapterBuilder) {
	adapterRegistryMu.Lock()
	defer adapterRegistryMu.Unlock()
	adapterRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupAdapterBuilder(typeName string) (AdapterBuilder, bool) {
	adapterRegistryMu.RLock()
	defer adapterRegistryMu.RUnlock()
	builder, ok := adapterRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exchange config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read exchange config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal exchange config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &ProviderConfig{}
			c.Providers[name] = provider
		}
		provider.expandEnv()
		if err := provider.parseDurations(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.PrivateKey = strings.TrimSpace(os.ExpandEnv(p.PrivateKey))
	p.AccountAddress = strings.TrimSpace(os.ExpandEnv(p.AccountAddress))
	p.BaseURL = strings.TrimSpace(os.ExpandEnv(p.BaseURL))
	p.Feed = strings.TrimSpace(p.Feed)
	p.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.TimeoutRaw))
}

func (p *ProviderConfig) parseDurations(name string) error {
	if p.TimeoutRaw == "" {
		p.Timeout = 0
		return nil
	}
	d, err := time.ParseDuration(p.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("exchange provider %s: invalid timeout %q: %w", name, p.TimeoutRaw, err)
	}
	if d <= 0 {
		return fmt.Errorf("exchange provider %s: timeout must be positive, got %s", name, d)
	}
	p.Timeout = d
	return nil
}

// Validate ensures all providers have sane configuration.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("exchange config: providers cannot be empty")
	}
	if c.Default != "" {
		if _, ok := c.Providers[c.Default]; !ok {
			return fmt.Errorf("exchange config: default provider %q not defined", c.Default)
		}
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("exchange config: provider name cannot be empty")
		}
		if err := provider.validate(name); err != nil {
			return err
		}
		if provider.Feed != "" {
			if provider.Feed == name {
				return fmt.Errorf("exchange config: provider %s cannot feed itself", name)
			}
			feed, ok := c.Providers[provider.Feed]
			if !ok {
				return fmt.Errorf("exchange config: provider %s references undefined feed %q", name, provider.Feed)
			}
			if feed != nil && feed.Feed != "" {
				return fmt.Errorf("exchange config: provider %s feed %q cannot itself have a feed", name, provider.Feed)
			}
		}
	}
	return nil
}

func (p *ProviderConfig) validate(name string) error {
	if p == nil {
		return fmt.Errorf("exchange config: provider %s is nil", name)
	}
	if p.Type == "" {
		return fmt.Errorf("exchange config: provider %s must specify type", name)
	}
	if _, ok := lookupAdapterBuilder(p.Type); !ok {
		return fmt.Errorf("exchange config: provider %s has unsupported type %q", name, p.Type)
	}
	if p.RateLimit < 0 {
		return fmt.Errorf("exchange config: provider %s rate_limit cannot be negative", name)
	}
	if p.MakerFee < 0 || p.TakerFee < 0 {
		return fmt.Errorf("exchange config: provider %s fees cannot be negative", name)
	}
	return nil
}

// BuildAdapters instantiates adapters. Plain adapters are built first so
// that paper adapters can wrap their feed.
func (c *Config) BuildAdapters() (map[string]Adapter, error) {
	result := make(map[string]Adapter, len(c.Providers))
	build := func(name string, providerCfg *ProviderConfig) error {
		builder, ok := lookupAdapterBuilder(providerCfg.Type)
		if !ok {
			return fmt.Errorf("exchange provider %s: unsupported type %q", name, providerCfg.Type)
		}
		adapter, err := builder(name, providerCfg, result)
		if err != nil {
			return fmt.Errorf("exchange provider %s: %w", name, err)
		}
		result[name] = adapter
		return nil
	}
	for name, providerCfg := range c.Providers {
		if providerCfg.Feed != "" {
			continue
		}
		if err := build(name, providerCfg); err != nil {
			return nil, err
		}
	}
	for name, providerCfg := range c.Providers {
		if providerCfg.Feed == "" {
			continue
		}
		if err := build(name, providerCfg); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Resolve picks the adapter for an exchange name, falling back to the
// configured default.
func (c *Config) Resolve(adapters map[string]Adapter, exchangeName string) (Adapter, error) {
	if a, ok := adapters[exchangeName]; ok {
		return a, nil
	}
	if c.Default != "" {
		if a, ok := adapters[c.Default]; ok {
			return a, nil
		}
	}
	return nil, fmt.Errorf("exchange config: no adapter for exchange %q", exchangeName)
}
