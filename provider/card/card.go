// Package card is the hosted card checkout adapter, backed by Stripe
// Checkout Sessions.
//
// The redirect back from checkout carries only a session id, which anyone can
// forge, so a confirmation is verified by re-querying the session server to
// server. Signed webhooks are accepted as a second channel.
package card

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
	"github.com/xraph/paywall/types"
)

// DefaultTimeout bounds every call to the provider.
const DefaultTimeout = 15 * time.Second

// SessionPlaceholder is replaced by Stripe with the session id in the
// success URL.
const SessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// Webhook event types that confirm a checkout.
const (
	eventCheckoutCompleted    = "checkout.session.completed"
	eventAsyncPaymentSucceded = "checkout.session.async_payment_succeeded"
)

// Config holds the adapter's credentials and redirect targets.
type Config struct {
	SecretKey     string        `json:"secret_key" yaml:"secret_key"`
	WebhookSecret string        `json:"webhook_secret" yaml:"webhook_secret"`
	SuccessURL    string        `json:"success_url" yaml:"success_url"`
	CancelURL     string        `json:"cancel_url" yaml:"cancel_url"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
}

type (
	createSessionFunc func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSessionFunc    func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
)

// Adapter implements provider.Adapter for card checkout.
type Adapter struct {
	cfg           Config
	logger        *slog.Logger
	createSession createSessionFunc
	getSession    getSessionFunc
}

// Option configures the card adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithSessionFuncs replaces the Stripe session client. Tests use it to
// stand in for the API.
func WithSessionFuncs(create createSessionFunc, get getSessionFunc) Option {
	return func(a *Adapter) {
		if create != nil {
			a.createSession = create
		}
		if get != nil {
			a.getSession = get
		}
	}
}

// New creates a card adapter with its own Stripe client. The package-level
// stripe.Key is never touched, so adapters with different keys can coexist.
func New(cfg Config, opts ...Option) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	sc := &client.API{}
	sc.Init(strings.TrimSpace(cfg.SecretKey), nil)

	a := &Adapter{
		cfg:           cfg,
		logger:        slog.Default(),
		createSession: sc.CheckoutSessions.New,
		getSession:    sc.CheckoutSessions.Get,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Gateway implements provider.Adapter.
func (a *Adapter) Gateway() account.Gateway { return account.GatewayCard }

// BuildOutboundRequest creates a payment-mode Checkout Session priced from
// the quote.
func (a *Adapter) BuildOutboundRequest(ctx context.Context, quote pricing.Quote, ref provider.Reference) (*provider.OutboundRequest, error) {
	successURL := firstNonEmpty(ref.SuccessURL, a.cfg.SuccessURL)
	cancelURL := firstNonEmpty(ref.CancelURL, a.cfg.CancelURL)
	if successURL == "" || cancelURL == "" {
		return nil, fmt.Errorf("%w: card success and cancel urls are required", paywall.ErrProviderNotConfigured)
	}
	if !strings.Contains(successURL, SessionPlaceholder) {
		successURL = appendQuery(successURL, "session_id="+SessionPlaceholder)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	corr := provider.NewCorrelation(quote, ref)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(ref.AccountID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(quote.Amount.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(productName(quote.Product)),
					},
					UnitAmount: stripe.Int64(quote.Amount.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: corr.Metadata(),
	}
	params.Context = ctx

	sess, err := a.createSession(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %w", paywall.ErrVerificationFailed, err)
	}
	if sess == nil || sess.ID == "" {
		return nil, fmt.Errorf("%w: empty checkout session", paywall.ErrVerificationFailed)
	}

	return &provider.OutboundRequest{
		Gateway:     account.GatewayCard,
		CheckoutID:  ref.CheckoutID,
		ProviderRef: sess.ID,
		RedirectURL: sess.URL,
		Amount:      quote.Amount,
	}, nil
}

// VerifyInboundConfirmation accepts provider.CardConfirmation and
// provider.CardWebhook events.
func (a *Adapter) VerifyInboundConfirmation(ctx context.Context, event provider.Event) (*provider.Outcome, error) {
	switch ev := event.(type) {
	case provider.CardConfirmation:
		return a.verifySession(ctx, ev.SessionID)
	case *provider.CardConfirmation:
		return a.verifySession(ctx, ev.SessionID)
	case provider.CardWebhook:
		return a.verifyWebhook(ev)
	case *provider.CardWebhook:
		return a.verifyWebhook(*ev)
	default:
		return nil, fmt.Errorf("%w: card adapter cannot verify %T", paywall.ErrInvalidInput, event)
	}
}

func (a *Adapter) verifySession(ctx context.Context, sessionID string) (*provider.Outcome, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, paywall.ValidationError{Field: "session_id", Message: "is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := a.getSession(sessionID, params)
	if err != nil {
		a.logger.Warn("card: session lookup failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("%w: retrieve checkout session: %w", paywall.ErrVerificationFailed, err)
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: checkout session %s not found", paywall.ErrVerificationFailed, sessionID)
	}
	return outcomeFromSession(sess), nil
}

func (a *Adapter) verifyWebhook(ev provider.CardWebhook) (*provider.Outcome, error) {
	if a.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: card webhook secret", paywall.ErrProviderNotConfigured)
	}

	event, err := webhook.ConstructEventWithOptions(ev.Payload, ev.Signature, a.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: invalid card webhook signature: %w", paywall.ErrVerificationFailed, err)
	}

	switch string(event.Type) {
	case eventCheckoutCompleted, eventAsyncPaymentSucceded:
	default:
		return nil, fmt.Errorf("%w: %s", paywall.ErrEventIgnored, event.Type)
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: decode checkout session: %w", paywall.ErrVerificationFailed, err)
	}
	return outcomeFromSession(&sess), nil
}

func outcomeFromSession(sess *stripe.CheckoutSession) *provider.Outcome {
	return &provider.Outcome{
		Provider:         account.GatewayCard,
		ExternalID:       sess.ID,
		Amount:           types.New(sess.AmountTotal, string(sess.Currency)),
		Verified:         sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		SubjectAccountID: sess.ClientReferenceID,
		Correlation:      provider.CorrelationFromMetadata(sess.Metadata),
	}
}

func productName(p pricing.Product) string {
	switch p {
	case pricing.ProductPostPack:
		return "Post pack (100 posts)"
	case pricing.ProductProAccess:
		return "Pro access"
	default:
		return string(p)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func appendQuery(u, kv string) string {
	if strings.Contains(u, "?") {
		return u + "&" + kv
	}
	return u + "?" + kv
}
