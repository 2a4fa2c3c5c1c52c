package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type Config struct {
	Registries []Registry `json:"registries"`

	Fetch struct {
		TimeoutSeconds uint32 `json:"timeout_seconds"`
		MaxBytes       int64  `json:"max_bytes"`
		UserAgent      string `json:"user_agent"`
		Proxy          string `json:"proxy"`
	} `json:"fetch"`

	RefreshTimer    Timer `json:"refresh_timer"`
	ContinueOnError bool  `json:"continue_on_error"`

	Sinks struct {
		Stdout   bool `json:"stdout"`
		Database bool `json:"database"`
		Redis    bool `json:"redis"`
	} `json:"sinks"`

	GeoLite struct {
		CountryDB string `json:"country_db"`
	} `json:"geolite"`
}

// Registry is one statistics file to collect.
type Registry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

const (
	defaultFetchTimeout = 2 * time.Minute
	defaultMaxBytes     = 512 << 20
	defaultUserAgent    = "rirstats/1.0"
)

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value

	ErrNoSources = errors.New("config: no registries configured")
)

func init() {
	cfg, err := DefaultConfig()
	if err != nil {
		log.Error("Error decoding embedded settings", "error", err)
		cfg = Config{}
	}
	configValue.Store(cfg)
}

// DefaultConfig returns the embedded settings.
func DefaultConfig() (Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode embedded settings: %w", err)
	}
	return cfg, nil
}

// ReadSettings loads settings from path on top of the embedded defaults.
// An empty path keeps the defaults. The file is never created or rewritten.
func ReadSettings(path string) (Config, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	path = strings.TrimSpace(path)
	if path == "" {
		log.Debug("Using embedded settings")
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read settings %q: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode settings %q: %w", path, err)
	}

	log.Debug("Settings file loaded successfully", "path", path)
	return cfg, nil
}

// Validate checks the parts of the settings the collector cannot run without.
func (c Config) Validate() error {
	if len(c.Registries) == 0 {
		return ErrNoSources
	}

	var errs []error
	seen := make(map[string]struct{}, len(c.Registries))
	for i, reg := range c.Registries {
		if strings.TrimSpace(reg.Name) == "" {
			errs = append(errs, fmt.Errorf("config: registry %d has no name", i))
		}
		if strings.TrimSpace(reg.URL) == "" {
			errs = append(errs, fmt.Errorf("config: registry %q has no url", reg.Name))
		}
		if _, dup := seen[reg.Name]; dup {
			errs = append(errs, fmt.Errorf("config: registry %q listed twice", reg.Name))
		}
		seen[reg.Name] = struct{}{}
	}
	return errors.Join(errs...)
}

// FetchTimeout is the per-request timeout, falling back to two minutes.
func (c Config) FetchTimeout() time.Duration {
	if c.Fetch.TimeoutSeconds == 0 {
		return defaultFetchTimeout
	}
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

func (c Config) FetchMaxBytes() int64 {
	if c.Fetch.MaxBytes <= 0 {
		return defaultMaxBytes
	}
	return c.Fetch.MaxBytes
}

func (c Config) FetchUserAgent() string {
	if ua := strings.TrimSpace(c.Fetch.UserAgent); ua != "" {
		return ua
	}
	return defaultUserAgent
}

func SetConfig(newConfig Config) {
	configValue.Store(newConfig)
	log.Debug("Configuration applied", "registries", len(newConfig.Registries))
}

func GetConfig() Config {
	return configValue.Load().(Config)
}
