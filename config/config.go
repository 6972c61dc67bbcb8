// Package config loads the standalone paywall server configuration from a
// YAML file, an optional .env file, and environment overrides, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider/card"
	"github.com/xraph/paywall/provider/signed"
	"github.com/xraph/paywall/provider/wallet"
)

// Config is the server configuration.
type Config struct {
	Addr           string        `yaml:"addr"`
	LogLevel       string        `yaml:"log_level"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	RedisURL       string        `yaml:"redis_url"`
	MetricsPath    string        `yaml:"metrics_path"`

	Store   StoreConfig   `yaml:"store"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Pricing PricingConfig `yaml:"pricing"`

	Card   card.Config   `yaml:"card"`
	Signed signed.Config `yaml:"signed"`
	Wallet wallet.Config `yaml:"wallet"`
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMongo    = "mongo"
)

// StoreConfig selects the account store. Every driver except memory
// needs a DSN.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// KafkaConfig enables event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

// PricingConfig overrides the default price list when Entries is set.
type PricingConfig struct {
	Version string          `yaml:"version"`
	Entries []pricing.Entry `yaml:"entries"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Addr:           ":8080",
		LogLevel:       "info",
		RequestTimeout: 30 * time.Second,
		CacheTTL:       30 * time.Second,
		MetricsPath:    "/metrics",
		Store:          StoreConfig{Driver: StoreMemory},
		Kafka:          KafkaConfig{Topic: "paywall.events"},
	}
}

// Load reads path (skipped when empty), then .env, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Addr, "PAYWALL_ADDR")
	setString(&c.LogLevel, "PAYWALL_LOG_LEVEL")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.Store.Driver, "PAYWALL_STORE_DRIVER")
	setString(&c.Store.DSN, "PAYWALL_STORE_DSN")
	setString(&c.Kafka.Brokers, "KAFKA_BROKERS")
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")

	setString(&c.Card.SecretKey, "STRIPE_SECRET_KEY")
	setString(&c.Card.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setString(&c.Card.SuccessURL, "PAYWALL_CARD_SUCCESS_URL")
	setString(&c.Card.CancelURL, "PAYWALL_CARD_CANCEL_URL")

	setString(&c.Signed.KeyID, "SIGNED_GATEWAY_KEY")
	setString(&c.Signed.Secret, "SIGNED_GATEWAY_SECRET")
	setString(&c.Signed.LiveURL, "SIGNED_GATEWAY_URL")
	setString(&c.Signed.SandboxURL, "SIGNED_GATEWAY_SANDBOX_URL")

	setString(&c.Wallet.BaseURL, "WALLET_BASE_URL")
	setString(&c.Wallet.StoreID, "WALLET_STORE_ID")
	setString(&c.Wallet.StorePassword, "WALLET_STORE_PASSWORD")
	setString(&c.Wallet.SuccessURL, "WALLET_SUCCESS_URL")
	setString(&c.Wallet.FailURL, "WALLET_FAIL_URL")
	setString(&c.Wallet.CancelURL, "WALLET_CANCEL_URL")
	setString(&c.Wallet.WebhookURL, "WALLET_WEBHOOK_URL")

	if v := env("SIGNED_GATEWAY_SANDBOX"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: SIGNED_GATEWAY_SANDBOX must be a boolean: %w", err)
		}
		c.Signed.Sandbox = b
	}

	for key, dst := range map[string]*time.Duration{
		"PAYWALL_REQUEST_TIMEOUT":  &c.RequestTimeout,
		"PAYWALL_CACHE_TTL":        &c.CacheTTL,
		"PAYWALL_PROVIDER_TIMEOUT": nil,
	} {
		v := env(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s must be a duration: %w", key, err)
		}
		if dst == nil {
			c.Card.Timeout, c.Signed.Timeout, c.Wallet.Timeout = d, d, d
			continue
		}
		*dst = d
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.RequestTimeout < 0 || c.CacheTTL < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres, StoreSQLite, StoreMongo:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, postgres, sqlite, mongo", c.Store.Driver))
	}
	if len(c.Pricing.Entries) > 0 {
		if _, err := c.Policy(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Policy builds the pricing policy, falling back to the default list.
func (c *Config) Policy() (*pricing.Policy, error) {
	if len(c.Pricing.Entries) == 0 {
		return pricing.DefaultPolicy(), nil
	}
	version := c.Pricing.Version
	if version == "" {
		version = pricing.DefaultVersion
	}
	return pricing.NewPolicy(version, c.Pricing.Entries...)
}

// CardEnabled reports whether card checkout is configured.
func (c *Config) CardEnabled() bool { return c.Card.SecretKey != "" }

// SignedEnabled reports whether the signed gateway is configured.
func (c *Config) SignedEnabled() bool { return c.Signed.Secret != "" && c.Signed.BaseURL() != "" }

// WalletEnabled reports whether the wallet gateway is configured.
func (c *Config) WalletEnabled() bool { return c.Wallet.BaseURL != "" }

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}
