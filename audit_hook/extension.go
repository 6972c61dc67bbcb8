// Package audithook bridges paywall lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import any
// audit system directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
	"github.com/xraph/paywall/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnAccountCreated    = (*Extension)(nil)
	_ plugin.OnQuotaConsumed     = (*Extension)(nil)
	_ plugin.OnCheckoutCreated   = (*Extension)(nil)
	_ plugin.OnPaymentReconciled = (*Extension)(nil)
	_ plugin.OnPaymentDuplicate  = (*Extension)(nil)
	_ plugin.OnPaymentRejected   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges paywall lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.ID.String(), CategoryAccount, nil,
		"role", string(a.Role),
		"post_quota_total", a.PostQuotaTotal,
	)
}

// OnQuotaConsumed implements plugin.OnQuotaConsumed.
func (e *Extension) OnQuotaConsumed(ctx context.Context, a *account.Account, n int64) error {
	return e.record(ctx, ActionQuotaConsumed, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.ID.String(), CategoryAccess, nil,
		"consumed", n,
		"used", a.PostQuotaUsed,
		"total", a.PostQuotaTotal,
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnCheckoutCreated implements plugin.OnCheckoutCreated.
func (e *Extension) OnCheckoutCreated(ctx context.Context, accountID string, quote pricing.Quote, req *provider.OutboundRequest) error {
	return e.record(ctx, ActionCheckoutCreated, SeverityInfo, OutcomeSuccess,
		ResourceCheckout, req.CheckoutID.String(), CategoryPayment, nil,
		"account_id", accountID,
		"gateway", string(req.Gateway),
		"provider_ref", req.ProviderRef,
		"product", string(quote.Product),
		"amount", quote.Amount.Amount,
		"currency", quote.Amount.Currency,
		"policy_version", quote.PolicyVersion,
	)
}

// OnPaymentReconciled implements plugin.OnPaymentReconciled.
func (e *Extension) OnPaymentReconciled(ctx context.Context, o *provider.Outcome, a *account.Account) error {
	return e.record(ctx, ActionPaymentReconciled, SeverityInfo, OutcomeSuccess,
		ResourcePayment, o.ExternalID, CategoryPayment, nil,
		"account_id", a.ID.String(),
		"gateway", string(o.Provider),
		"amount", o.Amount.Amount,
		"currency", o.Amount.Currency,
		"post_quota_total", a.PostQuotaTotal,
		"has_pro_access", a.HasProAccess,
	)
}

// OnPaymentDuplicate implements plugin.OnPaymentDuplicate.
func (e *Extension) OnPaymentDuplicate(ctx context.Context, o *provider.Outcome) error {
	return e.record(ctx, ActionPaymentDuplicate, SeverityInfo, OutcomeSuccess,
		ResourcePayment, o.ExternalID, CategoryPayment, nil,
		"gateway", string(o.Provider),
		"account_id", o.SubjectAccountID,
	)
}

// OnPaymentRejected implements plugin.OnPaymentRejected. Amount mismatches
// and unresolved accounts need manual follow-up and are recorded as
// critical.
func (e *Extension) OnPaymentRejected(ctx context.Context, o *provider.Outcome, reason error) error {
	severity := SeverityWarning
	if errors.Is(reason, paywall.ErrAmountMismatch) || errors.Is(reason, paywall.ErrAccountNotResolved) {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionPaymentRejected, severity, OutcomeFailure,
		ResourcePayment, o.ExternalID, CategoryPayment, reason,
		"gateway", string(o.Provider),
		"account_id", o.SubjectAccountID,
		"verified", o.Verified,
		"amount", o.Amount.Amount,
		"currency", o.Amount.Currency,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
