package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/api"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/provider"
	"github.com/xraph/paywall/provider/signed"
	"github.com/xraph/paywall/provider/wallet"
	"github.com/xraph/paywall/store/memory"
	"github.com/xraph/paywall/types"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{paywall.ErrAlreadyProcessed, http.StatusOK},
		{&paywall.AmountMismatchError{Expected: types.USD(500), Received: types.USD(1)}, http.StatusBadRequest},
		{paywall.ErrUnknownProduct, http.StatusBadRequest},
		{paywall.ValidationError{Field: "x", Message: "y"}, http.StatusBadRequest},
		{paywall.ErrAccountNotResolved, http.StatusNotFound},
		{paywall.ErrUnverified, http.StatusPaymentRequired},
		{fmt.Errorf("card: %w", paywall.ErrVerificationFailed), http.StatusPaymentRequired},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, api.StatusFor(tt.err))
		})
	}
}

type fixture struct {
	srv     *httptest.Server
	engine  *paywall.Paywall
	orders  map[string]map[string]any
	account *account.Account
}

const signedSecret = "s3cr3t"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{orders: map[string]map[string]any{}}

	// Fake signed gateway serving order lookups.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		o, ok := f.orders[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(o)
	})
	gw := httptest.NewServer(mux)
	t.Cleanup(gw.Close)

	f.engine = paywall.New(memory.New(),
		paywall.WithAdapter(signed.New(signed.Config{KeyID: "key_1", Secret: signedSecret, SandboxURL: gw.URL, Sandbox: true})),
		paywall.WithAdapter(wallet.New(wallet.Config{})),
	)
	require.NoError(t, f.engine.Start(context.Background()))
	t.Cleanup(func() { _ = f.engine.Stop() })

	a, err := f.engine.CreateAccount(context.Background(), account.RoleReader)
	require.NoError(t, err)
	f.account = a

	f.srv = httptest.NewServer(api.NewHandler(f.engine).Routes())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) order(orderID string, amount int64) {
	f.orders[orderID] = map[string]any{
		"id":       orderID,
		"amount":   amount,
		"currency": "USD",
		"status":   "paid",
		"notes": map[string]string{
			provider.MetaAccountID: f.account.ID.String(),
			provider.MetaRole:      "reader",
			provider.MetaProduct:   "pro_access",
		},
	}
}

func do(t *testing.T, method, url, body string, header map[string]string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func signedBody(orderID, paymentID, sig string) string {
	b, _ := json.Marshal(provider.SignedConfirmation{OrderID: orderID, PaymentID: paymentID, Signature: sig})
	return string(b)
}

func TestConfirmSigned(t *testing.T) {
	f := newFixture(t)
	f.order("order_1", 500)
	body := signedBody("order_1", "pay_1", signed.Sign(signedSecret, "order_1", "pay_1"))

	status, first := do(t, http.MethodPost, f.srv.URL+"/confirm/signed", body, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, api.StatusConfirmed, first["status"])
	snap := first["account"].(map[string]any)
	assert.Equal(t, true, snap["has_pro_access"])

	// A repeated callback renders like the first one.
	status, second := do(t, http.MethodPost, f.srv.URL+"/confirm/signed", body, nil)
	require.Equal(t, http.StatusOK, status)
	again := second["account"].(map[string]any)
	delete(snap, "refreshed_at")
	delete(again, "refreshed_at")
	assert.Equal(t, first["status"], second["status"])
	assert.Equal(t, snap, again)

	got, err := f.engine.GetAccount(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Len(t, got.OrderHistory, 1)
}

func TestConfirmSignedFailures(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		sig    func() string
		want   int
	}{
		{"bad signature", 500, func() string { return signed.Sign("wrong", "order_1", "pay_1") }, http.StatusPaymentRequired},
		{"amount mismatch", 1, func() string { return signed.Sign(signedSecret, "order_1", "pay_1") }, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.order("order_1", tt.amount)

			status, out := do(t, http.MethodPost, f.srv.URL+"/confirm/signed", signedBody("order_1", "pay_1", tt.sig()), nil)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, api.StatusFailed, out["status"])
			assert.Equal(t, api.MessageNotConfirmed, out["error"])
			assert.Nil(t, out["account"])

			got, err := f.engine.GetAccount(context.Background(), f.account.ID)
			require.NoError(t, err)
			assert.False(t, got.HasProAccess)
			assert.Empty(t, got.ProcessedTransactionIDs)
		})
	}
}

func TestConfirmUnknownAccount(t *testing.T) {
	f := newFixture(t)
	f.order("order_1", 500)
	f.orders["order_1"]["notes"] = map[string]string{provider.MetaProduct: "pro_access"}

	status, out := do(t, http.MethodPost, f.srv.URL+"/confirm/signed",
		signedBody("order_1", "pay_1", signed.Sign(signedSecret, "order_1", "pay_1")), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, api.MessageNotConfirmed, out["error"])
}

func TestWalletRedirectFailsClosed(t *testing.T) {
	f := newFixture(t)
	url := fmt.Sprintf("%s/confirm/wallet?transaction_id=txn_1&status=completed&amount=500&currency=usd&account_id=%s&product=pro_access",
		f.srv.URL, f.account.ID)

	status, out := do(t, http.MethodGet, url, "", nil)
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, api.StatusFailed, out["status"])

	got, err := f.engine.GetAccount(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.False(t, got.HasProAccess)
}

func TestWalletWebhook(t *testing.T) {
	f := newFixture(t)
	body := fmt.Sprintf(`{"transaction_id":"txn_1","status":"completed","amount":500,"currency":"usd",
		"merchant_fields":{"account_id":%q,"role":"reader","product":"pro_access"}}`, f.account.ID)

	status, out := do(t, http.MethodPost, f.srv.URL+"/webhooks/wallet", body, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, api.StatusConfirmed, out["status"])

	status, out = do(t, http.MethodGet, f.srv.URL+"/accounts/"+f.account.ID.String()+"/orders?gateway=wallet", "", nil)
	require.Equal(t, http.StatusOK, status)
	orders := out["orders"].([]any)
	require.Len(t, orders, 1)
	assert.Equal(t, "txn_1", orders[0].(map[string]any)["order_id"])
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	header := map[string]string{api.AccountHeader: f.account.ID.String()}

	status, _ := do(t, http.MethodPost, f.srv.URL+"/checkout/signed", `{"product":"pro_access"}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPost, f.srv.URL+"/checkout/card", `{"product":"pro_access"}`, header)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodPost, f.srv.URL+"/checkout/wallet", `{"product":"post_pack"}`, header)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEntitlements(t *testing.T) {
	f := newFixture(t)

	status, out := do(t, http.MethodGet, f.srv.URL+"/accounts/"+f.account.ID.String()+"/entitlements", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(account.DefaultPostQuota), out["post_quota_total"])
	assert.Equal(t, "reader", out["role"])

	status, _ = do(t, http.MethodGet, f.srv.URL+"/accounts/not-an-id/entitlements", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, out = do(t, http.MethodGet, f.srv.URL+"/accounts/"+id.NewAccountID().String()+"/entitlements", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, out["error"])
}
