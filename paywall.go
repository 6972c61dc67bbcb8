package paywall

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/entitlement"
	"github.com/xraph/paywall/guard"
	"github.com/xraph/paywall/plugin"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
	"github.com/xraph/paywall/store"
)

// DefaultCacheTTL is how long an entitlement snapshot is served from cache.
const DefaultCacheTTL = 30 * time.Second

// DefaultReconcileTimeout bounds one shared reconciliation once it has
// started, independent of the caller that started it.
const DefaultReconcileTimeout = 15 * time.Second

// Paywall is the payment reconciliation engine.
type Paywall struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	policy   *pricing.Policy
	adapters map[account.Gateway]provider.Adapter
	guard    *guard.Guard

	// Configuration
	cache            entitlement.Cache
	cacheTTL         time.Duration
	reconcileTimeout time.Duration
}

// New creates a new Paywall instance.
func New(s store.Store, opts ...Option) *Paywall {
	p := &Paywall{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		policy:   pricing.DefaultPolicy(),
		adapters: make(map[account.Gateway]provider.Adapter),
		guard:    guard.New(s),
		cache:    entitlement.NewMemoryCache(),
		cacheTTL: DefaultCacheTTL,

		reconcileTimeout: DefaultReconcileTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Adapters contributed by plugins fill gateways not configured directly.
	for _, a := range p.plugins.Adapters() {
		if _, ok := p.adapters[a.Gateway()]; !ok {
			p.adapters[a.Gateway()] = a
		}
	}

	return p
}

// Option configures a Paywall instance.
type Option func(*Paywall)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Paywall) {
		p.logger = logger
		p.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(pl plugin.Plugin) Option {
	return func(p *Paywall) {
		_ = p.plugins.Register(pl) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(p *Paywall) {
		if d > 0 {
			p.plugins.WithTimeout(d)
		}
	}
}

// WithPolicy replaces the default pricing policy.
func WithPolicy(policy *pricing.Policy) Option {
	return func(p *Paywall) {
		if policy != nil {
			p.policy = policy
		}
	}
}

// WithAdapter installs a gateway adapter. A later adapter for the same
// gateway replaces an earlier one.
func WithAdapter(a provider.Adapter) Option {
	return func(p *Paywall) {
		p.adapters[a.Gateway()] = a
	}
}

// WithCache sets the entitlement snapshot cache.
func WithCache(c entitlement.Cache) Option {
	return func(p *Paywall) {
		if c != nil {
			p.cache = c
		}
	}
}

// WithCacheTTL sets the entitlement snapshot TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(p *Paywall) {
		p.cacheTTL = ttl
	}
}

// WithReconcileTimeout bounds the store work of one reconciliation.
func WithReconcileTimeout(d time.Duration) Option {
	return func(p *Paywall) {
		if d > 0 {
			p.reconcileTimeout = d
		}
	}
}

// Start migrates the store and initializes plugins.
func (p *Paywall) Start(ctx context.Context) error {
	if err := p.store.Migrate(ctx); err != nil {
		return err
	}

	p.plugins.EmitInit(ctx, p)

	p.logger.Info("paywall started",
		"policy_version", p.policy.Version(),
		"gateways", p.Gateways(),
		"plugins", p.plugins.Count(),
		"cache_ttl", p.cacheTTL,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (p *Paywall) Stop() error {
	ctx := context.Background()
	p.plugins.EmitShutdown(ctx)

	if c, ok := p.cache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			p.logger.Warn("entitlement cache close failed", "error", err)
		}
	}

	return p.store.Close()
}

// Store returns the underlying store.
func (p *Paywall) Store() store.Store { return p.store }

// Policy returns the pricing policy in force.
func (p *Paywall) Policy() *pricing.Policy { return p.policy }

// Plugins returns the plugin registry.
func (p *Paywall) Plugins() *plugin.Registry { return p.plugins }

// Adapter returns the adapter for gateway g.
func (p *Paywall) Adapter(g account.Gateway) (provider.Adapter, error) {
	a, ok := p.adapters[g]
	if !ok {
		return nil, ErrProviderNotConfigured
	}
	return a, nil
}

// Gateways lists the configured gateways in sorted order.
func (p *Paywall) Gateways() []account.Gateway {
	out := make([]account.Gateway, 0, len(p.adapters))
	for g := range p.adapters {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
