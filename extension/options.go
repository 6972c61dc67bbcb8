package extension

import (
	"time"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/entitlement"
	"github.com/xraph/paywall/plugin"
	"github.com/xraph/paywall/store"
)

// Option configures the Paywall Forge extension.
type Option func(*Extension)

// WithStore sets the store for the paywall engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPaywallOption passes a paywall.Option through to the underlying engine.
func WithPaywallOption(opt paywall.Option) Option {
	return func(e *Extension) {
		e.paywallOpts = append(e.paywallOpts, opt)
	}
}

// WithPlugin registers a paywall plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.paywallOpts = append(e.paywallOpts, paywall.WithPlugin(p))
	}
}

// WithCache sets the entitlement snapshot cache.
func WithCache(c entitlement.Cache) Option {
	return func(e *Extension) {
		e.paywallOpts = append(e.paywallOpts, paywall.WithCache(c))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithEntitlementCacheTTL sets the entitlement snapshot cache duration.
func WithEntitlementCacheTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.EntitlementCacheTTL = d }
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}
