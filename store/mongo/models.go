package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/types"
)

// accountModel is a single document per account. The processed id set and
// the order history are embedded so one findOneAndUpdate can change both.
type accountModel struct {
	grove.BaseModel `grove:"table:paywall_accounts"`

	ID                      string       `grove:"id,pk"                     bson:"_id"`
	Role                    string       `grove:"role"                      bson:"role"`
	PostQuotaTotal          int64        `grove:"post_quota_total"          bson:"post_quota_total"`
	PostQuotaUsed           int64        `grove:"post_quota_used"           bson:"post_quota_used"`
	HasProAccess            bool         `grove:"has_pro_access"            bson:"has_pro_access"`
	ProcessedTransactionIDs []string     `grove:"processed_transaction_ids" bson:"processed_transaction_ids"`
	OrderHistory            []orderModel `grove:"order_history"             bson:"order_history"`
	Version                 int64        `grove:"version"                   bson:"version"`
	CreatedAt               time.Time    `grove:"created_at"                bson:"created_at"`
	UpdatedAt               time.Time    `grove:"updated_at"                bson:"updated_at"`
}

type orderModel struct {
	ID        string    `bson:"id"`
	Gateway   string    `bson:"gateway"`
	OrderID   string    `bson:"order_id"`
	Product   string    `bson:"product"`
	Amount    int64     `bson:"amount"`
	Currency  string    `bson:"currency"`
	Status    string    `bson:"status"`
	Timestamp time.Time `bson:"timestamp"`
}

func toAccountModel(a *account.Account) *accountModel {
	orders := make([]orderModel, len(a.OrderHistory))
	for i := range a.OrderHistory {
		orders[i] = toOrderModel(&a.OrderHistory[i])
	}
	processed := make([]string, len(a.ProcessedTransactionIDs))
	copy(processed, a.ProcessedTransactionIDs)

	return &accountModel{
		ID:                      a.ID.String(),
		Role:                    string(a.Role),
		PostQuotaTotal:          a.PostQuotaTotal,
		PostQuotaUsed:           a.PostQuotaUsed,
		HasProAccess:            a.HasProAccess,
		ProcessedTransactionIDs: processed,
		OrderHistory:            orders,
		Version:                 a.Version,
		CreatedAt:               a.CreatedAt,
		UpdatedAt:               a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	orders := make([]account.OrderRecord, 0, len(m.OrderHistory))
	for i := range m.OrderHistory {
		o, err := fromOrderModel(&m.OrderHistory[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	processed := make([]string, len(m.ProcessedTransactionIDs))
	copy(processed, m.ProcessedTransactionIDs)

	return &account.Account{
		Entity:                  types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                      accountID,
		Role:                    account.Role(m.Role),
		PostQuotaTotal:          m.PostQuotaTotal,
		PostQuotaUsed:           m.PostQuotaUsed,
		HasProAccess:            m.HasProAccess,
		ProcessedTransactionIDs: processed,
		OrderHistory:            orders,
		Version:                 m.Version,
	}, nil
}

func toOrderModel(o *account.OrderRecord) orderModel {
	return orderModel{
		ID:        o.ID.String(),
		Gateway:   string(o.Gateway),
		OrderID:   o.OrderID,
		Product:   o.Product,
		Amount:    o.Amount.Amount,
		Currency:  o.Amount.Currency,
		Status:    string(o.Status),
		Timestamp: o.Timestamp,
	}
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
		Timestamp: m.Timestamp,
	}, nil
}
