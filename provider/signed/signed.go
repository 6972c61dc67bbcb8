// Package signed is the adapter for the signature-verified gateway. The
// client-side callback carries an HMAC over the order and payment ids, and
// only a valid signature lets the confirmation through.
package signed

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
	"github.com/xraph/paywall/types"
)

// DefaultTimeout bounds every call to the provider.
const DefaultTimeout = 15 * time.Second

// Config holds the gateway credentials. Sandbox selects SandboxURL over
// LiveURL.
type Config struct {
	KeyID      string        `json:"key_id" yaml:"key_id"`
	Secret     string        `json:"secret" yaml:"secret"`
	LiveURL    string        `json:"live_url" yaml:"live_url"`
	SandboxURL string        `json:"sandbox_url" yaml:"sandbox_url"`
	Sandbox    bool          `json:"sandbox" yaml:"sandbox"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// BaseURL returns the API root for the configured mode.
func (c Config) BaseURL() string {
	if c.Sandbox {
		return strings.TrimRight(c.SandboxURL, "/")
	}
	return strings.TrimRight(c.LiveURL, "/")
}

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

type orderResponse struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

// Adapter implements provider.Adapter for the signed gateway.
type Adapter struct {
	cfg    Config
	client *resty.Client
	logger *slog.Logger
}

// Option configures the signed adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates a signed-gateway adapter.
func New(cfg Config, opts ...Option) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	a := &Adapter{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.client = resty.New().
		SetBaseURL(cfg.BaseURL()).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.KeyID, cfg.Secret).
		SetHeader("Content-Type", "application/json")
	return a
}

// Gateway implements provider.Adapter.
func (a *Adapter) Gateway() account.Gateway { return account.GatewaySigned }

// BuildOutboundRequest creates a gateway order. The returned fields are what
// the client-side checkout script needs.
func (a *Adapter) BuildOutboundRequest(ctx context.Context, quote pricing.Quote, ref provider.Reference) (*provider.OutboundRequest, error) {
	if err := a.configured(); err != nil {
		return nil, err
	}

	req := orderRequest{
		Amount:   quote.Amount.Amount,
		Currency: strings.ToUpper(quote.Amount.Currency),
		Receipt:  uuid.NewString(),
		Notes:    provider.NewCorrelation(quote, ref).Metadata(),
	}

	var order orderResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&order).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %w", paywall.ErrVerificationFailed, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("%w: create order: status %d", paywall.ErrVerificationFailed, resp.StatusCode())
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: create order: empty order id", paywall.ErrVerificationFailed)
	}

	return &provider.OutboundRequest{
		Gateway:     account.GatewaySigned,
		CheckoutID:  ref.CheckoutID,
		ProviderRef: order.ID,
		Amount:      quote.Amount,
		Fields: map[string]string{
			"key_id":   a.cfg.KeyID,
			"order_id": order.ID,
			"amount":   strconv.FormatInt(quote.Amount.Amount, 10),
			"currency": quote.Amount.Currency,
			"receipt":  req.Receipt,
		},
	}, nil
}

// VerifyInboundConfirmation checks the callback signature, then loads the
// order for its amount and correlation notes. A bad signature yields an
// unverified outcome without contacting the provider.
func (a *Adapter) VerifyInboundConfirmation(ctx context.Context, event provider.Event) (*provider.Outcome, error) {
	var ev provider.SignedConfirmation
	switch e := event.(type) {
	case provider.SignedConfirmation:
		ev = e
	case *provider.SignedConfirmation:
		ev = *e
	default:
		return nil, fmt.Errorf("%w: signed adapter cannot verify %T", paywall.ErrInvalidInput, event)
	}

	switch {
	case ev.OrderID == "":
		return nil, paywall.ValidationError{Field: "order_id", Message: "is required"}
	case ev.PaymentID == "":
		return nil, paywall.ValidationError{Field: "payment_id", Message: "is required"}
	}
	if err := a.configured(); err != nil {
		return nil, err
	}

	if !Verify(a.cfg.Secret, ev.OrderID, ev.PaymentID, ev.Signature) {
		a.logger.Warn("signed: signature mismatch", "order_id", ev.OrderID, "payment_id", ev.PaymentID)
		return &provider.Outcome{
			Provider:   account.GatewaySigned,
			ExternalID: ev.PaymentID,
			Verified:   false,
		}, nil
	}

	var order orderResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&order).
		Get("/orders/" + url.PathEscape(ev.OrderID))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch order: %w", paywall.ErrVerificationFailed, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch order: status %d", paywall.ErrVerificationFailed, resp.StatusCode())
	}
	if order.ID != ev.OrderID {
		return nil, fmt.Errorf("%w: order id mismatch", paywall.ErrVerificationFailed)
	}

	corr := provider.CorrelationFromMetadata(order.Notes)
	return &provider.Outcome{
		Provider:         account.GatewaySigned,
		ExternalID:       ev.PaymentID,
		Amount:           types.New(order.Amount, order.Currency),
		Verified:         true,
		SubjectAccountID: corr.AccountID,
		Correlation:      corr,
	}, nil
}

func (a *Adapter) configured() error {
	if a.cfg.Secret == "" || a.cfg.BaseURL() == "" {
		return fmt.Errorf("%w: signed gateway", paywall.ErrProviderNotConfigured)
	}
	return nil
}

// Sign returns the lowercase hex HMAC-SHA256 of "orderID|paymentID".
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is byte-equal to Sign(secret, orderID,
// paymentID), compared in constant time.
func Verify(secret, orderID, paymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
