// Package provider defines the contract every payment gateway adapter
// implements: build the provider-native request for a quote, and turn an
// inbound confirmation into a normalized Outcome.
//
// Adapters own their trust mechanism. The card adapter re-queries the
// provider, the signed adapter checks an HMAC, and the wallet adapter only
// trusts its webhook channel or a corroborating status query. All of them
// fail closed: any doubt yields an unverified outcome or an error, never a
// verified one.
package provider

import (
	"context"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/types"
)

// Metadata keys embedded in outbound provider requests.
const (
	MetaAccountID     = "account_id"
	MetaRole          = "role"
	MetaProduct       = "product"
	MetaPolicyVersion = "policy_version"
	MetaCheckoutID    = "checkout_id"
)

// Adapter is implemented by each payment gateway.
type Adapter interface {
	Gateway() account.Gateway
	BuildOutboundRequest(ctx context.Context, quote pricing.Quote, ref Reference) (*OutboundRequest, error)
	VerifyInboundConfirmation(ctx context.Context, event Event) (*Outcome, error)
}

// Correlation is the context embedded in an outbound request so the
// confirmation can be tied back to the account and quote after the user's
// session is gone.
type Correlation struct {
	AccountID     string          `json:"account_id,omitempty"`
	Role          account.Role    `json:"role,omitempty"`
	Product       pricing.Product `json:"product,omitempty"`
	PolicyVersion string          `json:"policy_version,omitempty"`
	CheckoutID    string          `json:"checkout_id,omitempty"`
}

// NewCorrelation builds the correlation for a quote issued to accountID.
func NewCorrelation(quote pricing.Quote, ref Reference) Correlation {
	return Correlation{
		AccountID:     ref.AccountID.String(),
		Role:          quote.Role,
		Product:       quote.Product,
		PolicyVersion: quote.PolicyVersion,
		CheckoutID:    ref.CheckoutID.String(),
	}
}

// Metadata flattens the correlation into provider metadata fields.
func (c Correlation) Metadata() map[string]string {
	m := make(map[string]string, 5)
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set(MetaAccountID, c.AccountID)
	set(MetaRole, string(c.Role))
	set(MetaProduct, string(c.Product))
	set(MetaPolicyVersion, c.PolicyVersion)
	set(MetaCheckoutID, c.CheckoutID)
	return m
}

// CorrelationFromMetadata reverses Metadata. Missing keys stay empty.
func CorrelationFromMetadata(m map[string]string) Correlation {
	return Correlation{
		AccountID:     m[MetaAccountID],
		Role:          account.Role(m[MetaRole]),
		Product:       pricing.Product(m[MetaProduct]),
		PolicyVersion: m[MetaPolicyVersion],
		CheckoutID:    m[MetaCheckoutID],
	}
}

// Reference identifies who a checkout is for and where the provider should
// send the buyer afterwards.
type Reference struct {
	AccountID  id.AccountID
	CheckoutID id.CheckoutID
	SuccessURL string
	CancelURL  string
}

// OutboundRequest is what the client needs to continue a payment with the
// provider.
type OutboundRequest struct {
	Gateway     account.Gateway   `json:"gateway"`
	CheckoutID  id.CheckoutID     `json:"checkout_id"`
	ProviderRef string            `json:"provider_ref"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Amount      types.Money       `json:"amount"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Outcome is a normalized payment confirmation. It is built once by an
// adapter and consumed once by the reconciliation engine.
type Outcome struct {
	Provider         account.Gateway `json:"provider"`
	ExternalID       string          `json:"external_id"`
	Amount           types.Money     `json:"amount"`
	Verified         bool            `json:"verified"`
	SubjectAccountID string          `json:"subject_account_id,omitempty"`
	Correlation      Correlation     `json:"correlation"`
}

// Event is an inbound confirmation. Each gateway defines its own shapes.
type Event interface {
	Gateway() account.Gateway
}

// CardConfirmation is the redirect back from a hosted card checkout.
type CardConfirmation struct {
	SessionID string
}

// Gateway implements Event.
func (CardConfirmation) Gateway() account.Gateway { return account.GatewayCard }

// CardWebhook is a signed server-to-server notification from the card
// provider.
type CardWebhook struct {
	Payload   []byte
	Signature string
}

// Gateway implements Event.
func (CardWebhook) Gateway() account.Gateway { return account.GatewayCard }

// SignedConfirmation is the client-side callback of the signature gateway.
type SignedConfirmation struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

// Gateway implements Event.
func (SignedConfirmation) Gateway() account.Gateway { return account.GatewaySigned }

// Channel is how a wallet confirmation reached the server.
type Channel string

const (
	ChannelRedirect Channel = "redirect"
	ChannelWebhook  Channel = "webhook"
)

// WalletConfirmation arrives either as query parameters on the buyer's
// redirect or as a webhook body. Fields holds any raw status fields the
// provider sent.
type WalletConfirmation struct {
	Channel       Channel           `json:"channel"`
	TransactionID string            `json:"transaction_id"`
	AccountID     string            `json:"account_id,omitempty"`
	Status        string            `json:"status"`
	Amount        types.Money       `json:"amount"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// Gateway implements Event.
func (WalletConfirmation) Gateway() account.Gateway { return account.GatewayWallet }
