// Package extension provides the Forge extension adapter for Paywall.
//
// It implements the forge.Extension interface to integrate Paywall
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.paywall" or "paywall" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/provider/card"
	"github.com/xraph/paywall/provider/signed"
	"github.com/xraph/paywall/provider/wallet"
	"github.com/xraph/paywall/store"
	"github.com/xraph/paywall/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "paywall"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Exactly-once payment reconciliation for paywalled content"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Paywall as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *paywall.Paywall
	store       store.Store
	paywallOpts []paywall.Option
}

// New creates a new Paywall Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Paywall instance.
// This is nil until Register is called.
func (e *Extension) Engine() *paywall.Paywall { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the paywall engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = paywall.New(e.store, e.buildPaywallOpts()...)

	return vessel.Provide(fapp.Container(), func() (*paywall.Paywall, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("paywall: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("paywall: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildPaywallOpts constructs paywall.Option values from the resolved config.
func (e *Extension) buildPaywallOpts() []paywall.Option {
	opts := make([]paywall.Option, 0, len(e.paywallOpts)+5)

	if e.config.EntitlementCacheTTL > 0 {
		opts = append(opts, paywall.WithCacheTTL(e.config.EntitlementCacheTTL))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, paywall.WithPluginTimeout(e.config.PluginTimeout))
	}

	// Gateways are installed only when configured.
	if e.config.Card.SecretKey != "" {
		opts = append(opts, paywall.WithAdapter(card.New(e.config.Card)))
	}
	if e.config.Signed.Secret != "" {
		opts = append(opts, paywall.WithAdapter(signed.New(e.config.Signed)))
	}
	if e.config.Wallet.BaseURL != "" {
		opts = append(opts, paywall.WithAdapter(wallet.New(e.config.Wallet)))
	}

	// Append any pass-through paywall options.
	opts = append(opts, e.paywallOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("paywall: configuration is required but not found in config files; " +
				"ensure 'extensions.paywall' or 'paywall' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("paywall: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("entitlement_cache_ttl", e.config.EntitlementCacheTTL),
		forge.F("plugin_timeout", e.config.PluginTimeout),
		forge.F("card", e.config.Card.SecretKey != ""),
		forge.F("signed", e.config.Signed.Secret != ""),
		forge.F("wallet", e.config.Wallet.BaseURL != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.paywall" first (namespaced pattern), then the bare key.
	for _, key := range []string{"extensions.paywall", "paywall"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("paywall: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("paywall: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.EntitlementCacheTTL == 0 {
		cfg.EntitlementCacheTTL = defaults.EntitlementCacheTTL
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.EntitlementCacheTTL == 0 && programmaticConfig.EntitlementCacheTTL != 0 {
		yamlConfig.EntitlementCacheTTL = programmaticConfig.EntitlementCacheTTL
	}
	if yamlConfig.PluginTimeout == 0 && programmaticConfig.PluginTimeout != 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	// Gateways configured in code are kept when the file has none.
	if yamlConfig.Card.SecretKey == "" {
		yamlConfig.Card = programmaticConfig.Card
	}
	if yamlConfig.Signed.Secret == "" {
		yamlConfig.Signed = programmaticConfig.Signed
	}
	if yamlConfig.Wallet.BaseURL == "" {
		yamlConfig.Wallet = programmaticConfig.Wallet
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
