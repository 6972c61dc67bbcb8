package paywall

import (
	"context"
	"errors"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
)

// ──────────────────────────────────────────────────
// Checkout
// ──────────────────────────────────────────────────

// Quote prices product for role from the policy in force.
func (p *Paywall) Quote(role account.Role, product pricing.Product) (pricing.Quote, error) {
	return p.policy.Quote(role, product)
}

// Checkout quotes product at the account's role price and asks the gateway
// adapter for the provider-native request the client continues with.
func (p *Paywall) Checkout(ctx context.Context, accountID id.AccountID, gateway account.Gateway, product pricing.Product) (*provider.OutboundRequest, error) {
	adapter, err := p.Adapter(gateway)
	if err != nil {
		return nil, err
	}

	a, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	quote, err := p.policy.Quote(a.Role, product)
	if err != nil {
		return nil, err
	}

	ref := provider.Reference{
		AccountID:  a.ID,
		CheckoutID: id.NewCheckoutID(),
	}
	req, err := adapter.BuildOutboundRequest(ctx, quote, ref)
	if err != nil {
		p.logger.Error("checkout request failed",
			"account_id", a.ID.String(),
			"gateway", gateway,
			"product", product,
			"error", err,
		)
		return nil, err
	}

	p.logger.Info("checkout created",
		"account_id", a.ID.String(),
		"gateway", gateway,
		"product", product,
		"amount", quote.Amount.String(),
		"checkout_id", req.CheckoutID.String(),
		"provider_ref", req.ProviderRef,
	)

	p.plugins.EmitCheckoutCreated(ctx, a.ID.String(), quote, req)
	return req, nil
}

// ──────────────────────────────────────────────────
// Confirmation
// ──────────────────────────────────────────────────

// Verify hands event to the adapter of its gateway and returns the
// normalized outcome. It does not touch any account.
func (p *Paywall) Verify(ctx context.Context, event provider.Event) (*provider.Outcome, error) {
	if event == nil {
		return nil, ValidationError{Field: "event", Message: "required"}
	}

	adapter, err := p.Adapter(event.Gateway())
	if err != nil {
		return nil, err
	}
	return adapter.VerifyInboundConfirmation(ctx, event)
}

// Confirm verifies event and reconciles the outcome. Provider events that
// do not confirm a payment return ErrEventIgnored.
func (p *Paywall) Confirm(ctx context.Context, event provider.Event) (*Result, error) {
	outcome, err := p.Verify(ctx, event)
	if err != nil {
		if !errors.Is(err, ErrEventIgnored) {
			p.logger.Warn("payment verification failed",
				"gateway", gatewayOf(event),
				"error", err,
			)
		}
		return nil, err
	}
	return p.Reconcile(ctx, outcome)
}

func gatewayOf(event provider.Event) account.Gateway {
	if event == nil {
		return ""
	}
	return event.Gateway()
}
