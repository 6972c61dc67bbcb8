package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/paywall/types"
)

func TestNewDefaults(t *testing.T) {
	a := New(RoleEditor)

	assert.Equal(t, DefaultPostQuota, a.PostQuotaTotal)
	assert.Zero(t, a.PostQuotaUsed)
	assert.False(t, a.HasProAccess)
	assert.Empty(t, a.ProcessedTransactionIDs)
	assert.Empty(t, a.OrderHistory)
	assert.False(t, a.ID.IsNil())
	require.NoError(t, a.CheckInvariants())
}

func TestApplyCredit(t *testing.T) {
	a := New(RoleEditor)
	a.PostQuotaUsed = 5

	applied, err := a.Apply(NewCredit(GatewayCard, "cs_test_1", "post_pack", types.USD(10000), Delta{Quota: 100}))
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, int64(105), a.PostQuotaTotal)
	assert.Equal(t, []string{"cs_test_1"}, a.ProcessedTransactionIDs)
	require.Len(t, a.OrderHistory, 1)
	assert.Equal(t, "cs_test_1", a.OrderHistory[0].OrderID)
	assert.Equal(t, OrderSuccess, a.OrderHistory[0].Status)
	assert.Equal(t, int64(1), a.Version)
	require.NoError(t, a.CheckInvariants())
}

func TestApplyCreditTwiceIsNoop(t *testing.T) {
	a := New(RoleEditor)
	c := NewCredit(GatewayCard, "cs_test_1", "post_pack", types.USD(10000), Delta{Quota: 100})

	_, err := a.Apply(c)
	require.NoError(t, err)
	before := a.Clone()

	applied, err := a.Apply(NewCredit(GatewayCard, "cs_test_1", "post_pack", types.USD(10000), Delta{Quota: 100}))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, before, a)
}

func TestApplyProAccess(t *testing.T) {
	a := New(RoleReader)

	applied, err := a.Apply(NewCredit(GatewayWallet, "txn_1", "pro_access", types.USD(500), Delta{ProAccess: true}))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, a.HasProAccess)
	assert.Equal(t, DefaultPostQuota, a.PostQuotaTotal)
}

func TestApplyRejectsInvalidCredit(t *testing.T) {
	tests := []struct {
		name   string
		credit *Credit
	}{
		{"negative delta", NewCredit(GatewayCard, "cs_1", "post_pack", types.USD(100), Delta{Quota: -1})},
		{"missing external id", NewCredit(GatewayCard, "", "post_pack", types.USD(100), Delta{Quota: 1})},
		{"unknown gateway", NewCredit(Gateway("cash"), "cs_1", "post_pack", types.USD(100), Delta{Quota: 1})},
		{"negative amount", NewCredit(GatewayCard, "cs_1", "post_pack", types.USD(-100), Delta{Quota: 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(RoleEditor)
			before := a.Clone()

			applied, err := a.Apply(tt.credit)
			require.Error(t, err)
			assert.False(t, applied)
			assert.Equal(t, before, a)
		})
	}
}

func TestCheckInvariants(t *testing.T) {
	order := func(ext string) OrderRecord {
		return OrderRecord{OrderID: ext, Gateway: GatewayCard, Status: OrderSuccess, Amount: types.USD(1)}
	}

	tests := []struct {
		name    string
		mutate  func(a *Account)
		wantErr bool
	}{
		{"empty", func(*Account) {}, false},
		{"matched", func(a *Account) {
			a.ProcessedTransactionIDs = []string{"a", "b"}
			a.OrderHistory = []OrderRecord{order("a"), order("b")}
		}, false},
		{"processed without order", func(a *Account) {
			a.ProcessedTransactionIDs = []string{"a"}
		}, true},
		{"order without processed id", func(a *Account) {
			a.OrderHistory = []OrderRecord{order("a")}
		}, true},
		{"duplicate order", func(a *Account) {
			a.ProcessedTransactionIDs = []string{"a"}
			a.OrderHistory = []OrderRecord{order("a"), order("a")}
		}, true},
		{"duplicate processed id", func(a *Account) {
			a.ProcessedTransactionIDs = []string{"a", "a"}
			a.OrderHistory = []OrderRecord{order("a")}
		}, true},
		{"failed order is not counted", func(a *Account) {
			failed := order("x")
			failed.Status = OrderFailed
			a.OrderHistory = []OrderRecord{failed}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(RoleEditor)
			tt.mutate(a)
			err := a.CheckInvariants()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRemainingQuota(t *testing.T) {
	a := New(RoleEditor)
	a.PostQuotaUsed = 3
	assert.Equal(t, int64(2), a.RemainingQuota())

	a.PostQuotaUsed = 9
	assert.Zero(t, a.RemainingQuota())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("editor")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, r)

	_, err = ParseRole("owner")
	assert.Error(t, err)
}
