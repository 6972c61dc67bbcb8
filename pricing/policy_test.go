package pricing_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/types"
)

func TestDefaultPolicyQuotes(t *testing.T) {
	p := pricing.DefaultPolicy()

	tests := []struct {
		role    account.Role
		product pricing.Product
		amount  types.Money
		delta   account.Delta
	}{
		{account.RoleEditor, pricing.ProductPostPack, types.USD(10000), account.Delta{Quota: 100}},
		{account.RoleAdmin, pricing.ProductPostPack, types.USD(10000), account.Delta{Quota: 100}},
		{account.RoleReader, pricing.ProductProAccess, types.USD(500), account.Delta{ProAccess: true}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.product), func(t *testing.T) {
			q, err := p.Quote(tt.role, tt.product)
			require.NoError(t, err)
			assert.True(t, q.Amount.Equal(tt.amount), "got %v, want %v", q.Amount, tt.amount)
			assert.Equal(t, tt.delta, q.Delta)
			assert.Equal(t, pricing.DefaultVersion, q.PolicyVersion)
		})
	}
}

func TestQuoteUnknownProduct(t *testing.T) {
	p := pricing.DefaultPolicy()

	_, err := p.Quote(account.RoleReader, pricing.ProductPostPack)
	assert.True(t, errors.Is(err, pricing.ErrUnknownProduct))

	_, err = p.Quote(account.RoleEditor, pricing.Product("stickers"))
	assert.True(t, errors.Is(err, pricing.ErrUnknownProduct))
}

func TestQuoteIsStable(t *testing.T) {
	p := pricing.DefaultPolicy()

	first, err := p.Quote(account.RoleEditor, pricing.ProductPostPack)
	require.NoError(t, err)

	// Mutating a returned entry list must not leak back into the table.
	entries := p.Entries()
	entries[0].Amount = types.USD(1)

	second, err := p.Quote(account.RoleEditor, pricing.ProductPostPack)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNewPolicyValidation(t *testing.T) {
	valid := pricing.Entry{Role: account.RoleReader, Product: pricing.ProductProAccess, Amount: types.USD(500), Delta: account.Delta{ProAccess: true}}

	tests := []struct {
		name    string
		version string
		entries []pricing.Entry
	}{
		{"empty version", "", []pricing.Entry{valid}},
		{"duplicate", "v1", []pricing.Entry{valid, valid}},
		{"unknown role", "v1", []pricing.Entry{{Role: "owner", Product: "x", Amount: types.USD(1), Delta: account.Delta{Quota: 1}}}},
		{"empty product", "v1", []pricing.Entry{{Role: account.RoleEditor, Amount: types.USD(1), Delta: account.Delta{Quota: 1}}}},
		{"negative amount", "v1", []pricing.Entry{{Role: account.RoleEditor, Product: "x", Amount: types.USD(-1), Delta: account.Delta{Quota: 1}}}},
		{"negative delta", "v1", []pricing.Entry{{Role: account.RoleEditor, Product: "x", Amount: types.USD(1), Delta: account.Delta{Quota: -1}}}},
		{"empty delta", "v1", []pricing.Entry{{Role: account.RoleEditor, Product: "x", Amount: types.USD(1)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pricing.NewPolicy(tt.version, tt.entries...)
			assert.Error(t, err)
		})
	}
}

func TestNewPolicyNormalizesCurrency(t *testing.T) {
	p, err := pricing.NewPolicy("v1", pricing.Entry{
		Role:    account.RoleReader,
		Product: pricing.ProductProAccess,
		Amount:  types.Money{Amount: 500, Currency: "USD"},
		Delta:   account.Delta{ProAccess: true},
	})
	require.NoError(t, err)

	q, err := p.Quote(account.RoleReader, pricing.ProductProAccess)
	require.NoError(t, err)
	assert.Equal(t, "usd", q.Amount.Currency)
	assert.Equal(t, "v1", p.Version())
}
