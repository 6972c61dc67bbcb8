package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/types"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:paywall_accounts"`

	ID             string    `grove:"id,pk"`
	Role           string    `grove:"role"`
	PostQuotaTotal int64     `grove:"post_quota_total"`
	PostQuotaUsed  int64     `grove:"post_quota_used"`
	HasProAccess   bool      `grove:"has_pro_access"`
	Version        int64     `grove:"version"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:             a.ID.String(),
		Role:           string(a.Role),
		PostQuotaTotal: a.PostQuotaTotal,
		PostQuotaUsed:  a.PostQuotaUsed,
		HasProAccess:   a.HasProAccess,
		Version:        a.Version,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// fromAccountModel rebuilds an account. The processed id set is derived from
// the successful orders, so the two can never disagree.
func fromAccountModel(m *accountModel, orders []orderModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	a := &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                      accountID,
		Role:                    account.Role(m.Role),
		PostQuotaTotal:          m.PostQuotaTotal,
		PostQuotaUsed:           m.PostQuotaUsed,
		HasProAccess:            m.HasProAccess,
		Version:                 m.Version,
		ProcessedTransactionIDs: make([]string, 0, len(orders)),
		OrderHistory:            make([]account.OrderRecord, 0, len(orders)),
	}
	for i := range orders {
		o, err := fromOrderModel(&orders[i])
		if err != nil {
			return nil, err
		}
		a.OrderHistory = append(a.OrderHistory, *o)
		if o.Status == account.OrderSuccess {
			a.ProcessedTransactionIDs = append(a.ProcessedTransactionIDs, o.OrderID)
		}
	}
	return a, nil
}

// ==================== Order models ====================

type orderModel struct {
	grove.BaseModel `grove:"table:paywall_orders"`

	ID        string    `grove:"id"`
	AccountID string    `grove:"account_id,pk"`
	OrderID   string    `grove:"order_id,pk"`
	Gateway   string    `grove:"gateway"`
	Product   string    `grove:"product"`
	Amount    int64     `grove:"amount"`
	Currency  string    `grove:"currency"`
	Status    string    `grove:"status"`
	CreatedAt time.Time `grove:"created_at"`
}

func fromOrderModel(m *orderModel) (*account.OrderRecord, error) {
	orderID, err := id.ParseOrderID(m.ID)
	if err != nil {
		return nil, err
	}
	return &account.OrderRecord{
		ID:        orderID,
		Gateway:   account.Gateway(m.Gateway),
		OrderID:   m.OrderID,
		Product:   m.Product,
		Amount:    types.New(m.Amount, m.Currency),
		Status:    account.OrderStatus(m.Status),
		Timestamp: m.CreatedAt,
	}, nil
}
