package account

import (
	"context"

	"github.com/xraph/paywall/id"
)

// Store persists accounts. ApplyCredit is the ledger's only write path for
// payments and must be a single atomic check-and-set: it fails with
// paywall.ErrAlreadyProcessed, leaving the account untouched, when the
// credit's external id is already in the processed set.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*Account, error)
	ApplyCredit(ctx context.Context, accountID id.AccountID, c *Credit) (*Account, error)
	ConsumeQuota(ctx context.Context, accountID id.AccountID, n int64) (*Account, error)
	ListOrders(ctx context.Context, accountID id.AccountID, opts ListOpts) ([]*OrderRecord, error)
}

// ListOpts filters an order history query. Results are newest first.
type ListOpts struct {
	Gateway Gateway
	Limit   int
	Offset  int
}
