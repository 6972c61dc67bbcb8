package paywall

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/entitlement"
	"github.com/xraph/paywall/guard"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
)

// Result is the outcome of a successful reconciliation.
type Result struct {
	Account  *account.Account
	Snapshot *entitlement.Snapshot

	// AlreadyProcessed is set when the transaction had been applied before
	// this call. The account is returned unchanged.
	AlreadyProcessed bool
}

// Reconcile applies a verified payment outcome to its account exactly once.
//
// Unverified outcomes, unresolvable accounts, unknown products and amounts
// that differ from the policy quote fail without mutating anything. A
// transaction that was already applied is a success with AlreadyProcessed
// set. Reconcile may be called any number of times with the same outcome.
func (p *Paywall) Reconcile(ctx context.Context, outcome *provider.Outcome) (*Result, error) {
	if outcome == nil {
		return nil, ValidationError{Field: "outcome", Message: "required"}
	}

	if !outcome.Verified {
		p.logger.Warn("payment not verified",
			"gateway", outcome.Provider,
			"external_id", outcome.ExternalID,
		)
		return nil, p.reject(ctx, outcome, ErrUnverified)
	}

	if outcome.ExternalID == "" {
		return nil, p.reject(ctx, outcome, ValidationError{Field: "external_id", Message: "required"})
	}

	accountID, err := p.resolveSubject(outcome)
	if err != nil {
		return nil, p.reject(ctx, outcome, err)
	}

	leader := false
	res, _, err := guard.Do(p.guard, guard.Key(accountID.String(), outcome.ExternalID), func() (*Result, error) {
		leader = true
		// Collapsed callers share the flight; it ignores the leader's cancellation.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.reconcileTimeout)
		defer cancel()
		return p.reconcile(fctx, outcome, accountID)
	})
	if err != nil {
		return nil, err
	}

	// Only the caller that ran the flight reports a fresh credit.
	if !leader && !res.AlreadyProcessed {
		dup := *res
		dup.AlreadyProcessed = true
		return &dup, nil
	}
	return res, nil
}

func (p *Paywall) reconcile(ctx context.Context, outcome *provider.Outcome, accountID id.AccountID) (*Result, error) {
	a, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		if IsNotFound(err) {
			p.logger.Error("payment account not found",
				"account_id", accountID.String(),
				"gateway", outcome.Provider,
				"external_id", outcome.ExternalID,
				"amount", outcome.Amount.String(),
			)
			return nil, p.reject(ctx, outcome, ErrAccountNotResolved)
		}
		return nil, fmt.Errorf("paywall: load account: %w", err)
	}

	if !p.guard.Admit(a, outcome.ExternalID) {
		return p.duplicate(ctx, outcome, a), nil
	}

	quote, err := p.expectedQuote(outcome, a)
	if err != nil {
		return nil, p.reject(ctx, outcome, err)
	}

	if !quote.Amount.Equal(outcome.Amount) {
		mismatch := &AmountMismatchError{Expected: quote.Amount, Received: outcome.Amount}
		p.logger.Error("payment amount mismatch",
			"account_id", a.ID.String(),
			"gateway", outcome.Provider,
			"external_id", outcome.ExternalID,
			"product", quote.Product,
			"expected", quote.Amount.String(),
			"received", outcome.Amount.String(),
		)
		return nil, p.reject(ctx, outcome, mismatch)
	}

	credit := account.NewCredit(outcome.Provider, outcome.ExternalID, string(quote.Product), outcome.Amount, quote.Delta)
	updated, err := p.guard.Commit(ctx, a.ID, credit)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		current, gerr := p.store.GetAccount(ctx, a.ID)
		if gerr != nil {
			return nil, fmt.Errorf("paywall: reload account: %w", gerr)
		}
		return p.duplicate(ctx, outcome, current), nil
	case errors.Is(err, ErrAccountNotFound):
		return nil, p.reject(ctx, outcome, ErrAccountNotResolved)
	case err != nil:
		return nil, fmt.Errorf("paywall: apply credit: %w", err)
	}

	snap := p.refresh(ctx, updated)

	p.logger.Info("payment reconciled",
		"account_id", updated.ID.String(),
		"gateway", outcome.Provider,
		"external_id", outcome.ExternalID,
		"product", quote.Product,
		"amount", outcome.Amount.String(),
		"post_quota_total", updated.PostQuotaTotal,
		"has_pro_access", updated.HasProAccess,
	)
	p.plugins.EmitPaymentReconciled(ctx, outcome, updated)

	return &Result{Account: updated, Snapshot: snap}, nil
}

// resolveSubject picks the account a payment belongs to: the subject the
// provider reports, else the account embedded at checkout.
func (p *Paywall) resolveSubject(outcome *provider.Outcome) (id.AccountID, error) {
	subject := outcome.SubjectAccountID
	if subject == "" {
		subject = outcome.Correlation.AccountID
	} else if c := outcome.Correlation.AccountID; c != "" && c != subject {
		p.logger.Warn("payment subject differs from checkout correlation",
			"subject", subject,
			"correlated", c,
			"external_id", outcome.ExternalID,
		)
	}

	if subject == "" {
		p.logger.Error("payment has no account",
			"gateway", outcome.Provider,
			"external_id", outcome.ExternalID,
			"amount", outcome.Amount.String(),
		)
		return id.Nil, ErrAccountNotResolved
	}

	accountID, err := id.ParseAccountID(subject)
	if err != nil {
		p.logger.Error("payment account id malformed",
			"subject", subject,
			"gateway", outcome.Provider,
			"external_id", outcome.ExternalID,
			"error", err,
		)
		return id.Nil, ErrAccountNotResolved
	}
	return accountID, nil
}

// expectedQuote re-derives the price the outcome must match. The role and
// product embedded at checkout win over the account's current role.
func (p *Paywall) expectedQuote(outcome *provider.Outcome, a *account.Account) (pricing.Quote, error) {
	role := outcome.Correlation.Role
	if !role.Valid() {
		role = a.Role
	}

	product := outcome.Correlation.Product
	if product == "" {
		return pricing.Quote{}, fmt.Errorf("%w: no product on %s payment %s", ErrUnknownProduct, outcome.Provider, outcome.ExternalID)
	}

	if v := outcome.Correlation.PolicyVersion; v != "" && v != p.policy.Version() {
		p.logger.Warn("payment quoted under a different policy version",
			"external_id", outcome.ExternalID,
			"quoted_version", v,
			"current_version", p.policy.Version(),
		)
	}

	return p.policy.Quote(role, product)
}

func (p *Paywall) duplicate(ctx context.Context, outcome *provider.Outcome, a *account.Account) *Result {
	p.logger.Info("payment already processed",
		"account_id", a.ID.String(),
		"gateway", outcome.Provider,
		"external_id", outcome.ExternalID,
	)
	p.plugins.EmitPaymentDuplicate(ctx, outcome)
	return &Result{Account: a, Snapshot: p.refresh(ctx, a), AlreadyProcessed: true}
}

func (p *Paywall) reject(ctx context.Context, outcome *provider.Outcome, reason error) error {
	p.plugins.EmitPaymentRejected(ctx, outcome, reason)
	return reason
}
