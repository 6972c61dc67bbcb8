// Package plugin provides an extensible plugin system for the paywall.
// Plugins can hook into account and payment lifecycle events.
package plugin

import (
	"context"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the paywall starts. p is the *paywall.Paywall.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, p interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated is called after an account is persisted.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, a *account.Account) error
}

// OnQuotaConsumed is called after posting quota is used.
type OnQuotaConsumed interface {
	Plugin
	OnQuotaConsumed(ctx context.Context, a *account.Account, n int64) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnCheckoutCreated is called when a provider request has been built.
type OnCheckoutCreated interface {
	Plugin
	OnCheckoutCreated(ctx context.Context, accountID string, quote pricing.Quote, req *provider.OutboundRequest) error
}

// OnPaymentReconciled is called once per transaction, after its credit is
// committed.
type OnPaymentReconciled interface {
	Plugin
	OnPaymentReconciled(ctx context.Context, outcome *provider.Outcome, a *account.Account) error
}

// OnPaymentDuplicate is called when a confirmation repeats a transaction
// that was already applied.
type OnPaymentDuplicate interface {
	Plugin
	OnPaymentDuplicate(ctx context.Context, outcome *provider.Outcome) error
}

// OnPaymentRejected is called when reconciliation ends with a fatal error.
type OnPaymentRejected interface {
	Plugin
	OnPaymentRejected(ctx context.Context, outcome *provider.Outcome, reason error) error
}

// ──────────────────────────────────────────────────
// Gateway adapters
// ──────────────────────────────────────────────────

// AdapterPlugin contributes a payment gateway adapter.
type AdapterPlugin interface {
	Plugin
	Adapter() provider.Adapter
}
