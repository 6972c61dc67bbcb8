// Package guard decides whether a provider transaction may still be applied
// to an account, and applies it exactly once.
//
// Admit is an advisory read against an account snapshot. The authoritative
// decision is Commit, which delegates to the store's atomic check-and-set:
// the id is recorded in the same write that grants the entitlement, so two
// concurrent deliveries of one transaction can never both succeed. Within a
// single process, Do additionally collapses concurrent confirmations of the
// same key into one flight.
package guard

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
)

// Committer is the store operation the guard relies on.
type Committer interface {
	ApplyCredit(ctx context.Context, accountID id.AccountID, c *account.Credit) (*account.Account, error)
}

// Guard is the idempotency guard.
type Guard struct {
	store Committer
	sf    singleflight.Group
}

// New creates a Guard over store.
func New(store Committer) *Guard {
	return &Guard{store: store}
}

// Admit reports whether externalID has not yet been applied to a. It has no
// side effects.
func (g *Guard) Admit(a *account.Account, externalID string) bool {
	if externalID == "" {
		return false
	}
	return !a.HasProcessed(externalID)
}

// Commit applies c to the account atomically. It returns the store's
// already-processed error unchanged when another delivery won.
func (g *Guard) Commit(ctx context.Context, accountID id.AccountID, c *account.Credit) (*account.Account, error) {
	return g.store.ApplyCredit(ctx, accountID, c)
}

// Key builds the flight key for a transaction on an account.
func Key(accountID, externalID string) string {
	return accountID + ":" + externalID
}

// Do runs fn once per key among concurrent callers. Waiters receive the
// leader's result; shared reports whether the result was shared. The
// leader's context governs the flight.
func Do[T any](g *Guard, key string, fn func() (T, error)) (result T, shared bool, err error) {
	v, err, shared := g.sf.Do(key, func() (any, error) {
		return fn()
	})
	if v != nil {
		result, _ = v.(T)
	}
	return result, shared, err
}
