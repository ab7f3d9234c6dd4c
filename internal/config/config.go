package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix namespaces every environment override.
const envPrefix = "GRAVITON_INVENTORY_"

// Store drivers.
const (
	StoreNone     = "none"
	StoreHTTP     = "http"
	StorePostgres = "postgres"
)

// Config captures the settings required to run the inventory agent.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Detection DetectionConfig `yaml:"detection"`
	Rules     RulesConfig     `yaml:"rules"`
	Inventory InventoryConfig `yaml:"inventory"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Events    EventsConfig    `yaml:"events"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DetectionConfig tunes the detection engine.
type DetectionConfig struct {
	ProbeTimeout time.Duration `yaml:"probeTimeout"`
	// Concurrency bounds parallel application units; 0 means one per CPU.
	Concurrency int `yaml:"concurrency"`
	// ShellFS checks config paths with shell commands instead of native calls.
	ShellFS bool `yaml:"shellFS"`
	// NativeProcesses lists processes natively when ps is missing.
	NativeProcesses bool `yaml:"nativeProcesses"`
	HostFacts       bool `yaml:"hostFacts"`
}

// RulesConfig points at the local compatibility rule pack.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// InventoryConfig configures the inventory API used for records and remote rules.
type InventoryConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	APIKey      string        `yaml:"apiKey"`
	Timeout     time.Duration `yaml:"timeout"`
	ObjectsPath string        `yaml:"objectsPath"`
	RulesPath   string        `yaml:"rulesPath"`
	RemoteRules bool          `yaml:"remoteRules"`
}

// StoreConfig selects where detection records are persisted.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	PostgresDSN string `yaml:"postgresDSN"`
	Table       string `yaml:"table"`
}

// CacheConfig controls Valkey-backed caching of remote rules.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	RulesTTL     time.Duration `yaml:"rulesTTL"`
}

// EventsConfig configures summary publishing; an empty URL disables it.
type EventsConfig struct {
	NATSURL string `yaml:"natsURL"`
	Subject string `yaml:"subject"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the agent cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreNone, StoreHTTP:
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgresDSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == StoreHTTP && c.Inventory.BaseURL == "" {
		return errors.New("inventory.baseURL is required for the http store driver")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return errors.New("cache.addr is required when the cache is enabled")
	}
	if c.Detection.Concurrency < 0 {
		return fmt.Errorf("detection.concurrency must not be negative, got %d", c.Detection.Concurrency)
	}

	durations := map[string]time.Duration{
		"server.gracefulTimeout": c.Server.GracefulTimeout,
		"detection.probeTimeout": c.Detection.ProbeTimeout,
		"inventory.timeout":      c.Inventory.Timeout,
		"cache.dialTimeout":      c.Cache.DialTimeout,
		"cache.readTimeout":      c.Cache.ReadTimeout,
		"cache.writeTimeout":     c.Cache.WriteTimeout,
		"cache.rulesTTL":         c.Cache.RulesTTL,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50052",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Detection: DetectionConfig{
			ProbeTimeout:    5 * time.Second,
			NativeProcesses: true,
			HostFacts:       true,
		},
		Rules: RulesConfig{Path: "configs/rules/compatibility.yaml"},
		Inventory: InventoryConfig{
			Timeout:     5 * time.Second,
			ObjectsPath: "/v1/objects",
			RulesPath:   "/v1/rules",
		},
		Store: StoreConfig{Driver: StoreNone, Table: "detection_records"},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			RulesTTL:     10 * time.Minute,
		},
		Events: EventsConfig{Subject: "inventory.summaries"},
	}
}

func applyEnvOverrides(cfg *Config) {
	envString("SERVER_ADDRESS", &cfg.Server.Address)
	envString("METRICS_ADDRESS", &cfg.Server.MetricsAddress)
	envDuration("GRACEFUL_TIMEOUT", &cfg.Server.GracefulTimeout)

	envString("LOG_LEVEL", &cfg.Logging.Level)
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}

	envDuration("PROBE_TIMEOUT", &cfg.Detection.ProbeTimeout)
	envInt("CONCURRENCY", &cfg.Detection.Concurrency)
	envBool("SHELL_FS", &cfg.Detection.ShellFS)
	envBool("NATIVE_PROCESSES", &cfg.Detection.NativeProcesses)
	envBool("HOST_FACTS", &cfg.Detection.HostFacts)

	envString("RULES_PATH", &cfg.Rules.Path)

	envString("INVENTORY_URL", &cfg.Inventory.BaseURL)
	envString("INVENTORY_API_KEY", &cfg.Inventory.APIKey)
	envDuration("INVENTORY_TIMEOUT", &cfg.Inventory.Timeout)
	envBool("REMOTE_RULES", &cfg.Inventory.RemoteRules)

	envString("STORE_DRIVER", &cfg.Store.Driver)
	envString("POSTGRES_DSN", &cfg.Store.PostgresDSN)
	envString("STORE_TABLE", &cfg.Store.Table)

	envBool("CACHE_ENABLED", &cfg.Cache.Enabled)
	envString("CACHE_ADDR", &cfg.Cache.Addr)
	envString("CACHE_USERNAME", &cfg.Cache.Username)
	envString("CACHE_PASSWORD", &cfg.Cache.Password)
	envInt("CACHE_DB", &cfg.Cache.DB)
	envBool("CACHE_TLS", &cfg.Cache.TLS)
	envDuration("CACHE_DIAL_TIMEOUT", &cfg.Cache.DialTimeout)
	envDuration("CACHE_READ_TIMEOUT", &cfg.Cache.ReadTimeout)
	envDuration("CACHE_WRITE_TIMEOUT", &cfg.Cache.WriteTimeout)
	envInt("CACHE_MAX_RETRIES", &cfg.Cache.MaxRetries)
	envDuration("CACHE_RULES_TTL", &cfg.Cache.RulesTTL)

	envString("NATS_URL", &cfg.Events.NATSURL)
	envString("NATS_SUBJECT", &cfg.Events.Subject)
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
