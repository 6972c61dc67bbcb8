// Package wallet is the adapter for the redirect/webhook wallet gateway.
//
// The buyer's redirect carries plain query parameters and proves nothing on
// its own. Only the server-to-server webhook, or a redirect corroborated by
// a status query, is trusted.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
	"github.com/xraph/paywall/types"
)

// DefaultTimeout bounds every call to the provider.
const DefaultTimeout = 15 * time.Second

// StatusCompleted is the only transaction status that confirms a payment.
const StatusCompleted = "completed"

// Config holds the merchant credentials and redirect targets.
type Config struct {
	BaseURL       string        `json:"base_url" yaml:"base_url"`
	StoreID       string        `json:"store_id" yaml:"store_id"`
	StorePassword string        `json:"store_password" yaml:"store_password"`
	SuccessURL    string        `json:"success_url" yaml:"success_url"`
	FailURL       string        `json:"fail_url" yaml:"fail_url"`
	CancelURL     string        `json:"cancel_url" yaml:"cancel_url"`
	WebhookURL    string        `json:"webhook_url" yaml:"webhook_url"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
}

type transactionRequest struct {
	StoreID        string            `json:"store_id"`
	TransactionID  string            `json:"transaction_id"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	SuccessURL     string            `json:"success_url"`
	FailURL        string            `json:"fail_url"`
	CancelURL      string            `json:"cancel_url"`
	WebhookURL     string            `json:"webhook_url,omitempty"`
	MerchantFields map[string]string `json:"merchant_fields"`
}

type transactionResponse struct {
	TransactionID  string            `json:"transaction_id"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	RedirectURL    string            `json:"redirect_url"`
	MerchantFields map[string]string `json:"merchant_fields"`
}

// Adapter implements provider.Adapter for the wallet gateway.
type Adapter struct {
	cfg    Config
	client *resty.Client
	logger *slog.Logger
}

// Option configures the wallet adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates a wallet adapter.
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
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.StoreID, cfg.StorePassword).
		SetHeader("Content-Type", "application/json")
	return a
}

// Gateway implements provider.Adapter.
func (a *Adapter) Gateway() account.Gateway { return account.GatewayWallet }

// BuildOutboundRequest initiates a wallet transaction and returns the
// gateway page the buyer is sent to. The checkout id doubles as the
// transaction id.
func (a *Adapter) BuildOutboundRequest(ctx context.Context, quote pricing.Quote, ref provider.Reference) (*provider.OutboundRequest, error) {
	if a.cfg.BaseURL == "" || a.cfg.StoreID == "" {
		return nil, fmt.Errorf("%w: wallet gateway", paywall.ErrProviderNotConfigured)
	}

	req := transactionRequest{
		StoreID:        a.cfg.StoreID,
		TransactionID:  ref.CheckoutID.String(),
		Amount:         quote.Amount.Amount,
		Currency:       quote.Amount.Currency,
		SuccessURL:     orDefault(ref.SuccessURL, a.cfg.SuccessURL),
		FailURL:        orDefault(ref.CancelURL, a.cfg.FailURL),
		CancelURL:      orDefault(ref.CancelURL, a.cfg.CancelURL),
		WebhookURL:     a.cfg.WebhookURL,
		MerchantFields: provider.NewCorrelation(quote, ref).Metadata(),
	}

	var txn transactionResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&txn).
		Post("/transactions")
	if err != nil {
		return nil, fmt.Errorf("%w: initiate transaction: %w", paywall.ErrVerificationFailed, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("%w: initiate transaction: status %d", paywall.ErrVerificationFailed, resp.StatusCode())
	}
	if txn.RedirectURL == "" {
		return nil, fmt.Errorf("%w: initiate transaction: missing redirect url", paywall.ErrVerificationFailed)
	}

	providerRef := txn.TransactionID
	if providerRef == "" {
		providerRef = req.TransactionID
	}
	return &provider.OutboundRequest{
		Gateway:     account.GatewayWallet,
		CheckoutID:  ref.CheckoutID,
		ProviderRef: providerRef,
		RedirectURL: txn.RedirectURL,
		Amount:      quote.Amount,
	}, nil
}

// VerifyInboundConfirmation trusts a webhook reporting a completed status.
// A redirect is verified only when a status query agrees with it; if the
// query fails the outcome is unverified and no error is returned.
func (a *Adapter) VerifyInboundConfirmation(ctx context.Context, event provider.Event) (*provider.Outcome, error) {
	var ev provider.WalletConfirmation
	switch e := event.(type) {
	case provider.WalletConfirmation:
		ev = e
	case *provider.WalletConfirmation:
		ev = *e
	default:
		return nil, fmt.Errorf("%w: wallet adapter cannot verify %T", paywall.ErrInvalidInput, event)
	}
	if ev.TransactionID == "" {
		return nil, paywall.ValidationError{Field: "transaction_id", Message: "is required"}
	}

	corr := provider.CorrelationFromMetadata(ev.Fields)
	out := &provider.Outcome{
		Provider:         account.GatewayWallet,
		ExternalID:       ev.TransactionID,
		Amount:           ev.Amount,
		SubjectAccountID: orDefault(ev.AccountID, corr.AccountID),
		Correlation:      corr,
	}

	switch ev.Channel {
	case provider.ChannelWebhook:
		out.Verified = strings.EqualFold(ev.Status, StatusCompleted)
		return out, nil
	case provider.ChannelRedirect:
		return a.corroborate(ctx, ev, out), nil
	default:
		return nil, paywall.ValidationError{Field: "channel", Message: fmt.Sprintf("unknown channel %q", ev.Channel)}
	}
}

func (a *Adapter) corroborate(ctx context.Context, ev provider.WalletConfirmation, out *provider.Outcome) *provider.Outcome {
	if a.cfg.BaseURL == "" {
		a.logger.Warn("wallet: redirect cannot be corroborated, gateway not configured", "transaction_id", ev.TransactionID)
		return out
	}

	var txn transactionResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&txn).
		Get("/transactions/" + url.PathEscape(ev.TransactionID))
	if err != nil {
		a.logger.Warn("wallet: status query failed", "transaction_id", ev.TransactionID, "error", err)
		return out
	}
	if resp.StatusCode() != http.StatusOK {
		a.logger.Warn("wallet: status query rejected", "transaction_id", ev.TransactionID, "status", resp.StatusCode())
		return out
	}

	queried := types.New(txn.Amount, txn.Currency)
	if !strings.EqualFold(txn.Status, StatusCompleted) || !queried.Equal(ev.Amount) {
		a.logger.Warn("wallet: redirect not corroborated",
			"transaction_id", ev.TransactionID,
			"status", txn.Status,
			"redirect_amount", ev.Amount.String(),
			"queried_amount", queried.String(),
		)
		return out
	}

	// The account and product come from the gateway, never from the redirect.
	corr := provider.CorrelationFromMetadata(txn.MerchantFields)
	if corr.AccountID == "" || corr.Product == "" {
		a.logger.Warn("wallet: queried transaction carries no correlation", "transaction_id", ev.TransactionID)
		return out
	}
	if out.SubjectAccountID != "" && out.SubjectAccountID != corr.AccountID {
		a.logger.Warn("wallet: redirect names a different account",
			"transaction_id", ev.TransactionID,
			"redirect_account", out.SubjectAccountID,
			"queried_account", corr.AccountID,
		)
		return out
	}
	return &provider.Outcome{
		Provider:         account.GatewayWallet,
		ExternalID:       orDefault(txn.TransactionID, ev.TransactionID),
		Amount:           queried,
		Verified:         true,
		SubjectAccountID: corr.AccountID,
		Correlation:      corr,
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
