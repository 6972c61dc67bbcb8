// Package observability provides a metrics extension for the paywall that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/plugin"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/provider"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated    = (*MetricsExtension)(nil)
	_ plugin.OnQuotaConsumed     = (*MetricsExtension)(nil)
	_ plugin.OnCheckoutCreated   = (*MetricsExtension)(nil)
	_ plugin.OnPaymentReconciled = (*MetricsExtension)(nil)
	_ plugin.OnPaymentDuplicate  = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRejected   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a paywall plugin to track payment metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountCreated Counter
	QuotaConsumed  Counter

	// Checkout metrics
	CheckoutCreated Counter

	// Payment metrics
	PaymentReconciled Counter
	PaymentDuplicate  Counter
	PaymentAmount     Histogram

	// Rejection metrics, one per fatal reason
	RejectedUnverified     Counter
	RejectedVerification   Counter
	RejectedAccount        Counter
	RejectedAmountMismatch Counter
	RejectedUnknownProduct Counter
	RejectedOther          Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		AccountCreated: factory.Counter("paywall.account.created"),
		QuotaConsumed:  factory.Counter("paywall.quota.consumed"),

		CheckoutCreated: factory.Counter("paywall.checkout.created"),

		PaymentReconciled: factory.Counter("paywall.payment.reconciled"),
		PaymentDuplicate:  factory.Counter("paywall.payment.duplicate"),
		PaymentAmount:     factory.Histogram("paywall.payment.amount_minor"),

		RejectedUnverified:     factory.Counter("paywall.payment.rejected.unverified"),
		RejectedVerification:   factory.Counter("paywall.payment.rejected.verification_failed"),
		RejectedAccount:        factory.Counter("paywall.payment.rejected.account_not_resolved"),
		RejectedAmountMismatch: factory.Counter("paywall.payment.rejected.amount_mismatch"),
		RejectedUnknownProduct: factory.Counter("paywall.payment.rejected.unknown_product"),
		RejectedOther:          factory.Counter("paywall.payment.rejected.other"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _ *account.Account) error {
	m.AccountCreated.Inc()
	return nil
}

// OnQuotaConsumed implements plugin.OnQuotaConsumed.
func (m *MetricsExtension) OnQuotaConsumed(_ context.Context, _ *account.Account, n int64) error {
	m.QuotaConsumed.Add(float64(n))
	return nil
}

// OnCheckoutCreated implements plugin.OnCheckoutCreated.
func (m *MetricsExtension) OnCheckoutCreated(_ context.Context, _ string, _ pricing.Quote, _ *provider.OutboundRequest) error {
	m.CheckoutCreated.Inc()
	return nil
}

// OnPaymentReconciled implements plugin.OnPaymentReconciled.
func (m *MetricsExtension) OnPaymentReconciled(_ context.Context, o *provider.Outcome, _ *account.Account) error {
	m.PaymentReconciled.Inc()
	m.PaymentAmount.Observe(float64(o.Amount.Amount))
	return nil
}

// OnPaymentDuplicate implements plugin.OnPaymentDuplicate.
func (m *MetricsExtension) OnPaymentDuplicate(_ context.Context, _ *provider.Outcome) error {
	m.PaymentDuplicate.Inc()
	return nil
}

// OnPaymentRejected implements plugin.OnPaymentRejected.
func (m *MetricsExtension) OnPaymentRejected(_ context.Context, _ *provider.Outcome, reason error) error {
	switch {
	case errors.Is(reason, paywall.ErrUnverified):
		m.RejectedUnverified.Inc()
	case errors.Is(reason, paywall.ErrVerificationFailed):
		m.RejectedVerification.Inc()
	case errors.Is(reason, paywall.ErrAccountNotResolved):
		m.RejectedAccount.Inc()
	case errors.Is(reason, paywall.ErrAmountMismatch):
		m.RejectedAmountMismatch.Inc()
	case errors.Is(reason, paywall.ErrUnknownProduct):
		m.RejectedUnknownProduct.Inc()
	default:
		m.RejectedOther.Inc()
	}
	return nil
}
