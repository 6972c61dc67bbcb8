package extension

import (
	"time"

	"github.com/xraph/paywall/provider/card"
	"github.com/xraph/paywall/provider/signed"
	"github.com/xraph/paywall/provider/wallet"
)

// Config holds the Paywall extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.paywall" or "paywall" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// EntitlementCacheTTL controls how long entitlement snapshots are
	// served from cache before re-reading the store (default: 30s).
	EntitlementCacheTTL time.Duration `json:"entitlement_cache_ttl" mapstructure:"entitlement_cache_ttl" yaml:"entitlement_cache_ttl"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// Gateway credentials. A gateway is installed only when its
	// credentials are present.
	Card   card.Config   `json:"card" mapstructure:"card" yaml:"card"`
	Signed signed.Config `json:"signed" mapstructure:"signed" yaml:"signed"`
	Wallet wallet.Config `json:"wallet" mapstructure:"wallet" yaml:"wallet"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EntitlementCacheTTL: 30 * time.Second,
		PluginTimeout:       5 * time.Second,
	}
}
