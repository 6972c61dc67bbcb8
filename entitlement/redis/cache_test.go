package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/paywall/entitlement"
	"github.com/xraph/paywall/entitlement/redis"
	"github.com/xraph/paywall/id"
)

// These tests need a live server, e.g. REDIS_URL=redis://localhost:6379/15.
func openCache(t *testing.T) *redis.Cache {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	c, err := redis.Open(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := openCache(t)
	accountID := id.NewAccountID().String()

	_, err := c.Get(ctx, accountID)
	assert.ErrorIs(t, err, entitlement.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, &entitlement.Snapshot{AccountID: accountID, PostQuotaTotal: 105, HasProAccess: true}, time.Minute))
	got, err := c.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(105), got.PostQuotaTotal)
	assert.True(t, got.HasProAccess)

	require.NoError(t, c.Invalidate(ctx, accountID))
	_, err = c.Get(ctx, accountID)
	assert.ErrorIs(t, err, entitlement.ErrCacheMiss)
}

func TestOpenBadURL(t *testing.T) {
	_, err := redis.Open(context.Background(), "not a url")
	assert.Error(t, err)
}
