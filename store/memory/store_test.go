package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/store/memory"
	"github.com/xraph/paywall/types"
)

func seed(t *testing.T, s *memory.Store, role account.Role) *account.Account {
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
	s := memory.New()
	a := seed(t, s, account.RoleEditor)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, account.DefaultPostQuota, got.PostQuotaTotal)

	assert.ErrorIs(t, s.CreateAccount(ctx, a), paywall.ErrAccountExists)

	_, err = s.GetAccount(ctx, id.NewAccountID())
	assert.ErrorIs(t, err, paywall.ErrAccountNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := seed(t, s, account.RoleEditor)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	got.PostQuotaTotal = 1000
	got.ProcessedTransactionIDs = append(got.ProcessedTransactionIDs, "forged")

	again, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, account.DefaultPostQuota, again.PostQuotaTotal)
	assert.Empty(t, again.ProcessedTransactionIDs)
}

func TestApplyCreditOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := seed(t, s, account.RoleEditor)

	updated, err := s.ApplyCredit(ctx, a.ID, postPack("cs_test_1"))
	require.NoError(t, err)
	assert.Equal(t, int64(105), updated.PostQuotaTotal)

	_, err = s.ApplyCredit(ctx, a.ID, postPack("cs_test_1"))
	assert.ErrorIs(t, err, paywall.ErrAlreadyProcessed)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(105), got.PostQuotaTotal)
	assert.Len(t, got.OrderHistory, 1)
	require.NoError(t, got.CheckInvariants())
}

func TestApplyCreditInvalidLeavesAccount(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := seed(t, s, account.RoleEditor)

	bad := account.NewCredit(account.GatewayCard, "cs_bad", "post_pack", types.USD(100), account.Delta{Quota: -5})
	_, err := s.ApplyCredit(ctx, a.ID, bad)
	require.Error(t, err)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, account.DefaultPostQuota, got.PostQuotaTotal)
	assert.Empty(t, got.ProcessedTransactionIDs)
}

func TestApplyCreditUnknownAccount(t *testing.T) {
	_, err := memory.New().ApplyCredit(context.Background(), id.NewAccountID(), postPack("cs_1"))
	assert.ErrorIs(t, err, paywall.ErrAccountNotFound)
}

func TestApplyCreditConcurrentSameID(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := seed(t, s, account.RoleEditor)

	var (
		wg        sync.WaitGroup
		applied   atomic.Int32
		duplicate atomic.Int32
	)
	for i := 0; i < 64; i++ {
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
	assert.Equal(t, int32(63), duplicate.Load())

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(105), got.PostQuotaTotal)
	require.NoError(t, got.CheckInvariants())
}

func TestApplyCreditConcurrentAccounts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	accounts := make([]*account.Account, 8)
	for i := range accounts {
		accounts[i] = seed(t, s, account.RoleEditor)
	}

	var wg sync.WaitGroup
	for _, a := range accounts {
		for j := 0; j < 10; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.ApplyCredit(ctx, a.ID, postPack(fmt.Sprintf("cs_%d", j)))
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	for _, a := range accounts {
		got, err := s.GetAccount(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, account.DefaultPostQuota+1000, got.PostQuotaTotal)
		require.NoError(t, got.CheckInvariants())
	}
}

func TestConsumeQuota(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := seed(t, s, account.RoleEditor)

	got, err := s.ConsumeQuota(ctx, a.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.PostQuotaUsed)

	_, err = s.ConsumeQuota(ctx, a.ID, 1)
	assert.ErrorIs(t, err, paywall.ErrQuotaExceeded)

	_, err = s.ConsumeQuota(ctx, a.ID, 0)
	assert.ErrorIs(t, err, paywall.ErrInvalidInput)
}

func TestListOrders(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
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
	require.Len(t, all, 4)
	assert.Equal(t, "txn_9", all[0].OrderID)
	assert.Equal(t, "cs_0", all[3].OrderID)

	cards, err := s.ListOrders(ctx, a.ID, account.ListOpts{Gateway: account.GatewayCard, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "cs_1", cards[0].OrderID)
	assert.Equal(t, "cs_0", cards[1].OrderID)

	none, err := s.ListOrders(ctx, a.ID, account.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClose(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(context.Background()), paywall.ErrStoreClosed)
}
