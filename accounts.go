package paywall

import (
	"context"
	"errors"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/entitlement"
	"github.com/xraph/paywall/id"
)

// ──────────────────────────────────────────────────
// Account Management
// ──────────────────────────────────────────────────

// CreateAccount creates an account with the platform defaults for role.
func (p *Paywall) CreateAccount(ctx context.Context, role account.Role) (*account.Account, error) {
	if !role.Valid() {
		return nil, ValidationError{Field: "role", Message: "unknown role " + string(role)}
	}

	a := account.New(role)
	if err := p.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}

	p.plugins.EmitAccountCreated(ctx, a)
	return a, nil
}

// GetAccount retrieves an account by ID.
func (p *Paywall) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return p.store.GetAccount(ctx, accountID)
}

// ConsumeQuota spends n posts of the account's quota. It fails with
// ErrQuotaExceeded, leaving the account untouched, when fewer than n remain.
func (p *Paywall) ConsumeQuota(ctx context.Context, accountID id.AccountID, n int64) (*account.Account, error) {
	if n <= 0 {
		return nil, ValidationError{Field: "n", Message: "must be positive"}
	}

	a, err := p.store.ConsumeQuota(ctx, accountID, n)
	if err != nil {
		return nil, err
	}

	p.refresh(ctx, a)
	p.plugins.EmitQuotaConsumed(ctx, a, n)
	return a, nil
}

// Orders returns the account's order history, newest first.
func (p *Paywall) Orders(ctx context.Context, accountID id.AccountID, opts account.ListOpts) ([]*account.OrderRecord, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, ValidationError{Field: "limit", Message: "must not be negative"}
	}
	return p.store.ListOrders(ctx, accountID, opts)
}

// ──────────────────────────────────────────────────
// Entitlements
// ──────────────────────────────────────────────────

// Entitlements returns the account's entitlement snapshot, read through the
// cache. The snapshot is for the session layer; the engine never reads it.
func (p *Paywall) Entitlements(ctx context.Context, accountID id.AccountID) (*entitlement.Snapshot, error) {
	snap, err := p.cache.Get(ctx, accountID.String())
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		p.logger.Warn("entitlement cache read failed",
			"account_id", accountID.String(),
			"error", err,
		)
	}

	a, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return p.refresh(ctx, a), nil
}

// CanPost reports whether the account has posting quota left.
func (p *Paywall) CanPost(ctx context.Context, accountID id.AccountID) (bool, error) {
	snap, err := p.Entitlements(ctx, accountID)
	if err != nil {
		return false, err
	}
	return snap.CanPost(), nil
}

// refresh writes a's snapshot to the cache and returns it.
func (p *Paywall) refresh(ctx context.Context, a *account.Account) *entitlement.Snapshot {
	snap := entitlement.FromAccount(a)
	if err := p.cache.Set(ctx, snap, p.cacheTTL); err != nil {
		p.logger.Warn("entitlement cache write failed",
			"account_id", a.ID.String(),
			"error", err,
		)
	}
	return snap
}
