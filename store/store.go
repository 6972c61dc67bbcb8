// Package store defines the persistence contract for the paywall ledger.
// Implementations live in the memory, postgres, sqlite and mongo
// subpackages.
package store

import (
	"context"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
)

// Store is the unified storage interface for paywall entities.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)

	// ApplyCredit atomically grants c.Delta, appends c.Order and records its
	// external id. It returns paywall.ErrAlreadyProcessed and changes nothing
	// when the id is already recorded, and paywall.ErrAccountNotFound when
	// the account does not exist.
	ApplyCredit(ctx context.Context, accountID id.AccountID, c *account.Credit) (*account.Account, error)

	// ConsumeQuota atomically adds n to the used post quota, failing with
	// paywall.ErrQuotaExceeded when that would exceed the total.
	ConsumeQuota(ctx context.Context, accountID id.AccountID, n int64) (*account.Account, error)

	// ListOrders returns an account's order history, newest first.
	ListOrders(ctx context.Context, accountID id.AccountID, opts account.ListOpts) ([]*account.OrderRecord, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var _ account.Store = (Store)(nil)
