// Package paywall reconciles payment confirmations from several gateways
// into exactly-once entitlement changes for a tiered blog platform.
//
// Paywall is designed as a library, not a service. Import it into the
// application that owns accounts and sessions. It provides:
//
//   - An entitlement ledger: posting quota, pro access and order history
//   - An idempotency guard backed by an atomic store check-and-set
//   - Card, signed-callback and wallet gateway adapters behind one interface
//   - An immutable, versioned pricing policy shared by checkout and validation
//   - A read-through entitlement snapshot cache for the session layer
//   - Plugin hooks for auditing, metrics and event publishing
//
// # Quick Start
//
// Create a paywall with a store and the adapters you use:
//
//	import (
//	    "github.com/xraph/paywall"
//	    "github.com/xraph/paywall/provider/card"
//	    "github.com/xraph/paywall/store/memory"
//	)
//
//	p := paywall.New(memory.New(),
//	    paywall.WithAdapter(card.New(card.Config{SecretKey: key, SuccessURL: ok, CancelURL: back})),
//	)
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Stop()
//
// # Core Concepts
//
// Checkout quotes a product at the account's role price and returns the
// provider request the client continues with:
//
//	req, err := p.Checkout(ctx, accountID, paywall.GatewayCard, paywall.ProductPostPack)
//	// redirect the buyer to req.RedirectURL
//
// Confirm verifies whatever the provider sent back and applies it:
//
//	res, err := p.Confirm(ctx, provider.CardConfirmation{SessionID: sessionID})
//	switch {
//	case err == nil:
//	    // res.Snapshot is the fresh entitlement view, also when
//	    // res.AlreadyProcessed reports a repeated confirmation
//	case paywall.IsFatal(err):
//	    // nothing was changed
//	}
//
// A confirmation may arrive any number of times over any channel. The
// provider transaction id is recorded in the same atomic write that grants
// the entitlement, so each payment is credited once.
//
// # Money
//
// All monetary values use integer minor units. The Money type carries the
// amount in the smallest currency unit (cents for USD, paise for INR) and a
// lowercase ISO-4217 currency code.
//
// # TypeID
//
// Internal entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	ord_01h2xcejqtf2nbrexx3vqjhp41   // Order record ID
//	chk_01h455vb4pex5vsknk084sn02q   // Checkout ID
//
// Provider-issued transaction ids stay plain strings.
package paywall
