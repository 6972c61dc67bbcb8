package signed_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
	"github.com/xraph/paywall/provider/signed"
)

const secret = "s3cr3t"

type fakeGateway struct {
	orders  map[string]map[string]any
	fetches atomic.Int32
	delay   time.Duration
}

func (f *fakeGateway) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_1", user)
		assert.Equal(t, secret, pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		body["id"] = "order_1"
		body["status"] = "created"
		f.orders["order_1"] = body
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		o, ok := f.orders[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(o)
	})
	return mux
}

func setup(t *testing.T, cfg signed.Config) (*signed.Adapter, *fakeGateway) {
	t.Helper()
	fake := &fakeGateway{orders: map[string]map[string]any{}}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	cfg.KeyID = "key_1"
	cfg.Secret = secret
	cfg.SandboxURL = srv.URL
	cfg.Sandbox = true
	return signed.New(cfg), fake
}

func readerQuote(t *testing.T) pricing.Quote {
	t.Helper()
	q, err := pricing.DefaultPolicy().Quote(account.RoleReader, pricing.ProductProAccess)
	require.NoError(t, err)
	return q
}

func TestSignAndVerify(t *testing.T) {
	sig := signed.Sign(secret, "order_1", "pay_1")
	assert.Len(t, sig, 64)
	assert.True(t, signed.Verify(secret, "order_1", "pay_1", sig))
	assert.False(t, signed.Verify(secret, "order_1", "pay_2", sig))
	assert.False(t, signed.Verify("other", "order_1", "pay_1", sig))
	assert.False(t, signed.Verify(secret, "order_1", "pay_1", ""))
	assert.False(t, signed.Verify(secret, "order_1", "pay_1", strings.ToUpper(sig)))
	assert.False(t, signed.Verify(secret, "order_1", "pay_1", sig[:63]+flip(sig[63])))
}

func flip(c byte) string {
	if c == '0' {
		return "1"
	}
	return "0"
}

func TestConfigBaseURL(t *testing.T) {
	cfg := signed.Config{LiveURL: "https://live.test/v1/", SandboxURL: "https://sandbox.test/v1"}
	assert.Equal(t, "https://live.test/v1", cfg.BaseURL())
	cfg.Sandbox = true
	assert.Equal(t, "https://sandbox.test/v1", cfg.BaseURL())
}

func TestRoundTrip(t *testing.T) {
	a, fake := setup(t, signed.Config{})
	ctx := context.Background()
	ref := provider.Reference{AccountID: id.NewAccountID(), CheckoutID: id.NewCheckoutID()}

	out, err := a.BuildOutboundRequest(ctx, readerQuote(t), ref)
	require.NoError(t, err)
	assert.Equal(t, "order_1", out.ProviderRef)
	assert.Equal(t, "key_1", out.Fields["key_id"])
	assert.Equal(t, "500", out.Fields["amount"])
	assert.NotEmpty(t, out.Fields["receipt"])

	outcome, err := a.VerifyInboundConfirmation(ctx, provider.SignedConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: signed.Sign(secret, "order_1", "pay_1"),
	})
	require.NoError(t, err)
	assert.True(t, outcome.Verified)
	assert.Equal(t, "pay_1", outcome.ExternalID)
	assert.Equal(t, int64(500), outcome.Amount.Amount)
	assert.Equal(t, "usd", outcome.Amount.Currency)
	assert.Equal(t, ref.AccountID.String(), outcome.SubjectAccountID)
	assert.Equal(t, pricing.ProductProAccess, outcome.Correlation.Product)
	assert.Equal(t, int32(1), fake.fetches.Load())
}

func TestBadSignatureFailsClosed(t *testing.T) {
	a, fake := setup(t, signed.Config{})

	outcome, err := a.VerifyInboundConfirmation(context.Background(), provider.SignedConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: signed.Sign("forged", "order_1", "pay_1"),
	})
	require.NoError(t, err)
	assert.False(t, outcome.Verified)
	assert.Zero(t, fake.fetches.Load())
}

func TestMissingFields(t *testing.T) {
	a, _ := setup(t, signed.Config{})

	_, err := a.VerifyInboundConfirmation(context.Background(), provider.SignedConfirmation{PaymentID: "pay_1"})
	assert.ErrorIs(t, err, paywall.ErrInvalidInput)

	_, err = a.VerifyInboundConfirmation(context.Background(), provider.SignedConfirmation{OrderID: "order_1"})
	assert.ErrorIs(t, err, paywall.ErrInvalidInput)
}

func TestOrderLookupFailure(t *testing.T) {
	a, _ := setup(t, signed.Config{})

	_, err := a.VerifyInboundConfirmation(context.Background(), provider.SignedConfirmation{
		OrderID:   "order_missing",
		PaymentID: "pay_1",
		Signature: signed.Sign(secret, "order_missing", "pay_1"),
	})
	assert.ErrorIs(t, err, paywall.ErrVerificationFailed)
}

func TestTimeoutFailsClosed(t *testing.T) {
	a, fake := setup(t, signed.Config{Timeout: 20 * time.Millisecond})
	fake.orders["order_1"] = map[string]any{"id": "order_1", "amount": 500, "currency": "usd"}
	fake.delay = 200 * time.Millisecond

	_, err := a.VerifyInboundConfirmation(context.Background(), provider.SignedConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: signed.Sign(secret, "order_1", "pay_1"),
	})
	assert.ErrorIs(t, err, paywall.ErrVerificationFailed)
}

func TestNotConfigured(t *testing.T) {
	a := signed.New(signed.Config{})
	_, err := a.BuildOutboundRequest(context.Background(), readerQuote(t), provider.Reference{AccountID: id.NewAccountID()})
	assert.ErrorIs(t, err, paywall.ErrProviderNotConfigured)
}
