package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/types"
)

func TestFromAccount(t *testing.T) {
	a := account.New(account.RoleEditor)
	a.PostQuotaUsed = 2
	_, err := a.Apply(account.NewCredit(account.GatewayCard, "cs_test_1", "post_pack", types.USD(10000), account.Delta{Quota: 100}))
	require.NoError(t, err)

	s := FromAccount(a)
	assert.Equal(t, a.ID.String(), s.AccountID)
	assert.Equal(t, int64(105), s.PostQuotaTotal)
	assert.Equal(t, int64(103), s.RemainingQuota)
	assert.Equal(t, 1, s.Orders)
	assert.True(t, s.CanPost())
	assert.False(t, s.CanReadPro())
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, err := c.Get(ctx, "acct_1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, &Snapshot{AccountID: "acct_1", Version: 2, PostQuotaTotal: 105}, 0))
	got, err := c.Get(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, int64(105), got.PostQuotaTotal)

	got.PostQuotaTotal = 1
	again, err := c.Get(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, int64(105), again.PostQuotaTotal)

	// An older version never overwrites a newer one.
	require.NoError(t, c.Set(ctx, &Snapshot{AccountID: "acct_1", Version: 1, PostQuotaTotal: 5}, 0))
	again, err = c.Get(ctx, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, int64(105), again.PostQuotaTotal)

	require.NoError(t, c.Invalidate(ctx, "acct_1"))
	_, err = c.Get(ctx, "acct_1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, &Snapshot{AccountID: "acct_1"}, time.Minute))
	_, err := c.Get(ctx, "acct_1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "acct_1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
