package entitlement

import (
	"time"

	"github.com/xraph/paywall/account"
)

// Snapshot is the view of an account's entitlements handed to the session
// layer. It is a cache of the ledger and never an input to reconciliation.
type Snapshot struct {
	AccountID      string       `json:"account_id"`
	Role           account.Role `json:"role"`
	PostQuotaTotal int64        `json:"post_quota_total"`
	PostQuotaUsed  int64        `json:"post_quota_used"`
	RemainingQuota int64        `json:"remaining_quota"`
	HasProAccess   bool         `json:"has_pro_access"`
	Orders         int          `json:"orders"`
	Version        int64        `json:"version"`
	RefreshedAt    time.Time    `json:"refreshed_at"`
}

// FromAccount builds a snapshot of a.
func FromAccount(a *account.Account) *Snapshot {
	return &Snapshot{
		AccountID:      a.ID.String(),
		Role:           a.Role,
		PostQuotaTotal: a.PostQuotaTotal,
		PostQuotaUsed:  a.PostQuotaUsed,
		RemainingQuota: a.RemainingQuota(),
		HasProAccess:   a.HasProAccess,
		Orders:         len(a.OrderHistory),
		Version:        a.Version,
		RefreshedAt:    time.Now().UTC(),
	}
}

// CanPost reports whether the account has posting quota left.
func (s *Snapshot) CanPost() bool { return s.RemainingQuota > 0 }

// CanReadPro reports whether the account may read pro content.
func (s *Snapshot) CanReadPro() bool { return s.HasProAccess }
