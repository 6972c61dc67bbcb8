package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onAccountCreated    []OnAccountCreated
	onQuotaConsumed     []OnQuotaConsumed
	onCheckoutCreated   []OnCheckoutCreated
	onPaymentReconciled []OnPaymentReconciled
	onPaymentDuplicate  []OnPaymentDuplicate
	onPaymentRejected   []OnPaymentRejected
	adapters            []AdapterPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnQuotaConsumed); ok {
		r.onQuotaConsumed = append(r.onQuotaConsumed, v)
	}
	if v, ok := p.(OnCheckoutCreated); ok {
		r.onCheckoutCreated = append(r.onCheckoutCreated, v)
	}
	if v, ok := p.(OnPaymentReconciled); ok {
		r.onPaymentReconciled = append(r.onPaymentReconciled, v)
	}
	if v, ok := p.(OnPaymentDuplicate); ok {
		r.onPaymentDuplicate = append(r.onPaymentDuplicate, v)
	}
	if v, ok := p.(OnPaymentRejected); ok {
		r.onPaymentRejected = append(r.onPaymentRejected, v)
	}
	if v, ok := p.(AdapterPlugin); ok {
		r.adapters = append(r.adapters, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnAccountCreated)(nil)).Elem(), "OnAccountCreated")
	checkInterface(reflect.TypeOf((*OnQuotaConsumed)(nil)).Elem(), "OnQuotaConsumed")
	checkInterface(reflect.TypeOf((*OnCheckoutCreated)(nil)).Elem(), "OnCheckoutCreated")
	checkInterface(reflect.TypeOf((*OnPaymentReconciled)(nil)).Elem(), "OnPaymentReconciled")
	checkInterface(reflect.TypeOf((*OnPaymentDuplicate)(nil)).Elem(), "OnPaymentDuplicate")
	checkInterface(reflect.TypeOf((*OnPaymentRejected)(nil)).Elem(), "OnPaymentRejected")
	checkInterface(reflect.TypeOf((*AdapterPlugin)(nil)).Elem(), "Adapter")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Adapters returns the gateway adapters contributed by plugins.
func (r *Registry) Adapters() []provider.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]provider.Adapter, 0, len(r.adapters))
	for _, p := range r.adapters {
		if a := p.Adapter(); a != nil {
			result = append(result, a)
		}
	}
	return result
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, p interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, h := range plugins {
		r.call(ctx, h.Name(), "OnInit", func() error { return h.OnInit(ctx, p) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, h := range plugins {
		r.call(ctx, h.Name(), "OnShutdown", func() error { return h.OnShutdown(ctx) })
	}
}

// EmitAccountCreated emits an account created event.
func (r *Registry) EmitAccountCreated(ctx context.Context, a *account.Account) {
	r.mu.RLock()
	plugins := r.onAccountCreated
	r.mu.RUnlock()

	for _, h := range plugins {
		r.call(ctx, h.Name(), "OnAccountCreated", func() error { return h.OnAccountCreated(ctx, a) })
	}
}

// EmitQuotaConsumed emits a quota consumed event.
func (r *Registry) EmitQuotaConsumed(ctx context.Context, a *account.Account, n int64) {
	r.mu.RLock()
	plugins := r.onQuotaConsumed
	r.mu.RUnlock()

	for _, h := range plugins {
		r.call(ctx, h.Name(), "OnQuotaConsumed", func() error { return h.OnQuotaConsumed(ctx, a, n) })
	}
}

// EmitCheckoutCreated emits a checkout created event.
func (r *Registry) EmitCheckoutCreated(ctx context.Context, accountID string, quote pricing.Quote, req *provider.OutboundRequest) {
	r.mu.RLock()
	plugins := r.onCheckoutCreated
	r.mu.RUnlock()

	for _, h := range plugins {
		r.call(ctx, h.Name(), "OnCheckoutCreated", func() error { return h.OnCheckoutCreated(ctx, accountID, quote, req) })
	}
}

// EmitPaymentReconciled emits a payment reconciled event.
func (r *Registry) EmitPaymentReconciled(ctx context.Context, outcome *provider.Outcome, a *account.Account) {
	r.mu.RLock()
	plugins := r.onPaymentReconciled
	r.mu.RUnlock()

	for _, h := range plugins {
		r.call(ctx, h.Name(), "OnPaymentReconciled", func() error { return h.OnPaymentReconciled(ctx, outcome, a) })
	}
}

// EmitPaymentDuplicate emits a duplicate payment event.
func (r *Registry) EmitPaymentDuplicate(ctx context.Context, outcome *provider.Outcome) {
	r.mu.RLock()
	plugins := r.onPaymentDuplicate
	r.mu.RUnlock()

	for _, h := range plugins {
		r.call(ctx, h.Name(), "OnPaymentDuplicate", func() error { return h.OnPaymentDuplicate(ctx, outcome) })
	}
}

// EmitPaymentRejected emits a payment rejected event.
func (r *Registry) EmitPaymentRejected(ctx context.Context, outcome *provider.Outcome, reason error) {
	r.mu.RLock()
	plugins := r.onPaymentRejected
	r.mu.RUnlock()

	for _, h := range plugins {
		r.call(ctx, h.Name(), "OnPaymentRejected", func() error { return h.OnPaymentRejected(ctx, outcome, reason) })
	}
}

// call runs one hook and logs its failure. Hooks never fail the caller.
func (r *Registry) call(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the payment pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
