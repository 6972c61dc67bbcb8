package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/config"
	"github.com/xraph/paywall/store/memory"
	"github.com/xraph/paywall/store/sqlite"
	"github.com/xraph/paywall/types"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	t.Chdir(t.TempDir())
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())
	return buf.String()
}

func TestVersionCommand(t *testing.T) {
	assert.Contains(t, run(t, "version"), "paywall dev")
}

func TestQuoteCommand(t *testing.T) {
	out := run(t, "quote")
	assert.Contains(t, out, "policy 2024-01")
	assert.Contains(t, out, "post_pack")
	assert.Contains(t, out, "$100.00")
	assert.Contains(t, out, "pro_access")
}

func TestBuildEngineAndRouter(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Wallet.BaseURL = "https://wallet.test"

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	engine, err := buildEngine(ctx, cfg, logger, reg)
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(func() { _ = engine.Stop() })

	assert.Equal(t, []account.Gateway{account.GatewayWallet}, engine.Gateways())
	_, err = engine.CreateAccount(ctx, account.RoleEditor)
	require.NoError(t, err)

	srv := httptest.NewServer(newRouter(engine, cfg, logger, reg))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "paywall_account_created_total"))
}

func TestBuildEngineStores(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("memory", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := config.Load("")
		require.NoError(t, err)

		engine, err := buildEngine(ctx, cfg, logger, prometheus.NewRegistry())
		require.NoError(t, err)
		t.Cleanup(func() { _ = engine.Stop() })
		assert.IsType(t, &memory.Store{}, engine.Store())
	})

	t.Run("sqlite", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		t.Setenv("PAYWALL_STORE_DRIVER", config.StoreSQLite)
		t.Setenv("PAYWALL_STORE_DSN", "file:"+filepath.Join(dir, "paywall.db")+"?_pragma=busy_timeout(10000)&_time_format=sqlite")
		cfg, err := config.Load("")
		require.NoError(t, err)

		engine, err := buildEngine(ctx, cfg, logger, prometheus.NewRegistry())
		require.NoError(t, err)
		require.NoError(t, engine.Start(ctx))
		t.Cleanup(func() { _ = engine.Stop() })
		assert.IsType(t, &sqlite.Store{}, engine.Store())

		a, err := engine.CreateAccount(ctx, account.RoleEditor)
		require.NoError(t, err)
		c := account.NewCredit(account.GatewayCard, "cs_test_1", "post_pack", types.USD(10000), account.Delta{Quota: 100})
		got, err := engine.Store().ApplyCredit(ctx, a.ID, c)
		require.NoError(t, err)
		assert.Equal(t, int64(105), got.PostQuotaTotal)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := openStore(ctx, config.StoreConfig{Driver: "cassandra"})
		assert.Error(t, err)
	})
}
