// Package account holds the entitlement ledger's data types: the account
// record with its quota and access flags, the processed transaction id set,
// and the append-only order history.
package account

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/types"
)

// DefaultPostQuota is the posting quota every new account starts with.
const DefaultPostQuota int64 = 5

// Role is the tier of an account.
type Role string

const (
	RoleReader Role = "reader"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleReader, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts s into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("account: unknown role %q", s)
	}
	return r, nil
}

// Gateway identifies the payment provider an order was settled through.
type Gateway string

const (
	GatewayCard   Gateway = "card"
	GatewayWallet Gateway = "wallet"
	GatewaySigned Gateway = "signed"
)

// Valid reports whether g is a known gateway.
func (g Gateway) Valid() bool {
	switch g {
	case GatewayCard, GatewayWallet, GatewaySigned:
		return true
	}
	return false
}

// OrderStatus is the settlement state of an order record.
type OrderStatus string

const (
	OrderSuccess OrderStatus = "success"
	OrderFailed  OrderStatus = "failed"
)

// Delta is an entitlement increase. Deltas are additive: quota only grows
// and the pro-access flag is only ever set, never cleared.
type Delta struct {
	Quota     int64 `json:"quota,omitempty" yaml:"quota"`
	ProAccess bool  `json:"pro_access,omitempty" yaml:"pro_access"`
}

// Validate rejects deltas that would reduce an entitlement.
func (d Delta) Validate() error {
	if d.Quota < 0 {
		return fmt.Errorf("account: negative quota delta %d", d.Quota)
	}
	return nil
}

// IsZero reports whether the delta grants nothing.
func (d Delta) IsZero() bool {
	return d.Quota == 0 && !d.ProAccess
}

// OrderRecord is one settled payment. Records are immutable once appended.
type OrderRecord struct {
	ID        id.OrderID  `json:"id"`
	Gateway   Gateway     `json:"gateway"`
	OrderID   string      `json:"order_id"`
	Product   string      `json:"product"`
	Amount    types.Money `json:"amount"`
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// Credit is the unit the ledger applies atomically: the entitlement delta,
// the order record, and the processed transaction id (Order.OrderID).
type Credit struct {
	Delta Delta
	Order OrderRecord
}

// NewCredit builds a successful credit for a provider transaction.
func NewCredit(gateway Gateway, externalID, product string, amount types.Money, delta Delta) *Credit {
	return &Credit{
		Delta: delta,
		Order: OrderRecord{
			ID:        id.NewOrderID(),
			Gateway:   gateway,
			OrderID:   externalID,
			Product:   product,
			Amount:    amount,
			Status:    OrderSuccess,
			Timestamp: time.Now().UTC(),
		},
	}
}

// ExternalID returns the provider transaction id the credit consumes.
func (c *Credit) ExternalID() string { return c.Order.OrderID }

// Validate checks the credit before it reaches a store.
func (c *Credit) Validate() error {
	if c.Order.OrderID == "" {
		return errors.New("account: credit has no external id")
	}
	if !c.Order.Gateway.Valid() {
		return fmt.Errorf("account: unknown gateway %q", c.Order.Gateway)
	}
	if c.Order.Status != OrderSuccess {
		return fmt.Errorf("account: credit order must be %q", OrderSuccess)
	}
	if err := c.Order.Amount.Validate(); err != nil {
		return err
	}
	return c.Delta.Validate()
}

// Account is the durable entitlement state of one user.
type Account struct {
	types.Entity
	ID                      id.AccountID  `json:"id"`
	Role                    Role          `json:"role"`
	PostQuotaTotal          int64         `json:"post_quota_total"`
	PostQuotaUsed           int64         `json:"post_quota_used"`
	HasProAccess            bool          `json:"has_pro_access"`
	ProcessedTransactionIDs []string      `json:"processed_transaction_ids"`
	OrderHistory            []OrderRecord `json:"order_history"`
	Version                 int64         `json:"version"`
}

// New returns an account with the platform defaults for the given role.
func New(role Role) *Account {
	return &Account{
		Entity:                  types.NewEntity(),
		ID:                      id.NewAccountID(),
		Role:                    role,
		PostQuotaTotal:          DefaultPostQuota,
		ProcessedTransactionIDs: []string{},
		OrderHistory:            []OrderRecord{},
	}
}

// HasProcessed reports whether externalID was already applied.
func (a *Account) HasProcessed(externalID string) bool {
	return slices.Contains(a.ProcessedTransactionIDs, externalID)
}

// RemainingQuota returns how many more posts the account may publish.
func (a *Account) RemainingQuota() int64 {
	if r := a.PostQuotaTotal - a.PostQuotaUsed; r > 0 {
		return r
	}
	return 0
}

// Apply mutates the account in memory with c. It returns false without
// touching the account when the external id was already processed.
// Callers persisting accounts must make Apply and the write one atomic step.
func (a *Account) Apply(c *Credit) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	if a.HasProcessed(c.ExternalID()) {
		return false, nil
	}

	a.PostQuotaTotal += c.Delta.Quota
	if c.Delta.ProAccess {
		a.HasProAccess = true
	}
	a.ProcessedTransactionIDs = append(a.ProcessedTransactionIDs, c.ExternalID())
	a.OrderHistory = append(a.OrderHistory, c.Order)
	a.Version++
	a.Touch()

	return true, nil
}

// CheckInvariants verifies that every processed id has exactly one
// successful order record and every successful order record has its id in
// the processed set.
func (a *Account) CheckInvariants() error {
	if a.PostQuotaTotal < 0 || a.PostQuotaUsed < 0 {
		return fmt.Errorf("account %s: negative quota", a.ID)
	}

	processed := make(map[string]int, len(a.ProcessedTransactionIDs))
	for _, t := range a.ProcessedTransactionIDs {
		processed[t]++
		if processed[t] > 1 {
			return fmt.Errorf("account %s: transaction %q processed twice", a.ID, t)
		}
	}

	orders := make(map[string]int, len(a.OrderHistory))
	for _, o := range a.OrderHistory {
		if o.Status != OrderSuccess {
			continue
		}
		orders[o.OrderID]++
		if orders[o.OrderID] > 1 {
			return fmt.Errorf("account %s: order %q recorded twice", a.ID, o.OrderID)
		}
		if processed[o.OrderID] == 0 {
			return fmt.Errorf("account %s: order %q has no processed id", a.ID, o.OrderID)
		}
	}

	for t := range processed {
		if orders[t] == 0 {
			return fmt.Errorf("account %s: processed id %q has no order", a.ID, t)
		}
	}
	return nil
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	c.ProcessedTransactionIDs = slices.Clone(a.ProcessedTransactionIDs)
	c.OrderHistory = slices.Clone(a.OrderHistory)
	if c.ProcessedTransactionIDs == nil {
		c.ProcessedTransactionIDs = []string{}
	}
	if c.OrderHistory == nil {
		c.OrderHistory = []OrderRecord{}
	}
	return &c
}
