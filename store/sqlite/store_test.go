package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/store/sqlite"
	"github.com/xraph/paywall/types"
)

func open(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	drv := sqlitedriver.New()
	dsn := "file:" + filepath.Join(t.TempDir(), "paywall.db") + "?_pragma=busy_timeout(10000)&_time_format=sqlite"
	require.NoError(t, drv.Open(ctx, dsn))
	db, err := grove.Open(drv)
	require.NoError(t, err)

	s := sqlite.New(db)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *sqlite.Store, role account.Role) *account.Account {
	t.Helper()
	a := account.New(role)
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func postPack(ext string) *account.Credit {
	return account.NewCredit(account.GatewayCard, ext, "post_pack", types.USD(10000), account.Delta{Quota: 100})
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	a := seed(t, s, account.RoleEditor)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, account.RoleEditor, got.Role)
	assert.Equal(t, account.DefaultPostQuota, got.PostQuotaTotal)
	assert.False(t, got.HasProAccess)
	assert.Empty(t, got.OrderHistory)

	assert.ErrorIs(t, s.CreateAccount(ctx, a), paywall.ErrAccountExists)

	_, err = s.GetAccount(ctx, id.NewAccountID())
	assert.ErrorIs(t, err, paywall.ErrAccountNotFound)
}

func TestApplyCreditOnce(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	a := seed(t, s, account.RoleEditor)

	updated, err := s.ApplyCredit(ctx, a.ID, postPack("cs_test_1"))
	require.NoError(t, err)
	assert.Equal(t, int64(105), updated.PostQuotaTotal)
	assert.Equal(t, []string{"cs_test_1"}, updated.ProcessedTransactionIDs)
	require.Len(t, updated.OrderHistory, 1)
	assert.True(t, updated.OrderHistory[0].Amount.Equal(types.USD(10000)))

	_, err = s.ApplyCredit(ctx, a.ID, postPack("cs_test_1"))
	assert.ErrorIs(t, err, paywall.ErrAlreadyProcessed)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(105), got.PostQuotaTotal)
	assert.Len(t, got.OrderHistory, 1)
	require.NoError(t, got.CheckInvariants())
}

func TestApplyCreditProAccess(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	a := seed(t, s, account.RoleReader)

	c := account.NewCredit(account.GatewayWallet, "txn_1", "pro_access", types.USD(500), account.Delta{ProAccess: true})
	updated, err := s.ApplyCredit(ctx, a.ID, c)
	require.NoError(t, err)
	assert.True(t, updated.HasProAccess)
	assert.Equal(t, account.DefaultPostQuota, updated.PostQuotaTotal)
}

func TestApplyCreditUnknownAccount(t *testing.T) {
	s := open(t)
	_, err := s.ApplyCredit(context.Background(), id.NewAccountID(), postPack("cs_1"))
	assert.ErrorIs(t, err, paywall.ErrAccountNotFound)
}

func TestApplyCreditInvalidLeavesAccount(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	a := seed(t, s, account.RoleEditor)

	bad := account.NewCredit(account.GatewayCard, "cs_bad", "post_pack", types.USD(100), account.Delta{Quota: -5})
	_, err := s.ApplyCredit(ctx, a.ID, bad)
	require.Error(t, err)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, account.DefaultPostQuota, got.PostQuotaTotal)
	assert.Empty(t, got.ProcessedTransactionIDs)
}

func TestApplyCreditConcurrentSameID(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	a := seed(t, s, account.RoleEditor)

	var (
		wg        sync.WaitGroup
		applied   atomic.Int32
		duplicate atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyCredit(ctx, a.ID, postPack("cs_race"))
			switch {
			case err == nil:
				applied.Add(1)
			case errors.Is(err, paywall.ErrAlreadyProcessed):
				duplicate.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int32(31), duplicate.Load())

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(105), got.PostQuotaTotal)
	assert.Equal(t, []string{"cs_race"}, got.ProcessedTransactionIDs)
	require.NoError(t, got.CheckInvariants())
}

func TestConsumeQuota(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	a := seed(t, s, account.RoleEditor)

	got, err := s.ConsumeQuota(ctx, a.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.PostQuotaUsed)

	_, err = s.ConsumeQuota(ctx, a.ID, 1)
	assert.ErrorIs(t, err, paywall.ErrQuotaExceeded)

	_, err = s.ConsumeQuota(ctx, a.ID, 0)
	assert.ErrorIs(t, err, paywall.ErrInvalidInput)

	_, err = s.ConsumeQuota(ctx, id.NewAccountID(), 1)
	assert.ErrorIs(t, err, paywall.ErrAccountNotFound)

	// A credit raises the ceiling without touching usage.
	updated, err := s.ApplyCredit(ctx, a.ID, postPack("cs_test_1"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), updated.PostQuotaUsed)
	assert.Equal(t, int64(100), updated.RemainingQuota())
}

func TestListOrders(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	a := seed(t, s, account.RoleEditor)

	for i := 0; i < 3; i++ {
		_, err := s.ApplyCredit(ctx, a.ID, postPack(fmt.Sprintf("cs_%d", i)))
		require.NoError(t, err)
	}
	wallet := account.NewCredit(account.GatewayWallet, "txn_9", "post_pack", types.USD(10000), account.Delta{Quota: 100})
	_, err := s.ApplyCredit(ctx, a.ID, wallet)
	require.NoError(t, err)

	all, err := s.ListOrders(ctx, a.ID, account.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	cards, err := s.ListOrders(ctx, a.ID, account.ListOpts{Gateway: account.GatewayCard})
	require.NoError(t, err)
	assert.Len(t, cards, 3)

	page, err := s.ListOrders(ctx, a.ID, account.ListOpts{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := s.ListOrders(ctx, a.ID, account.ListOpts{Offset: 3})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}
