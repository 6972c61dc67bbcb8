package paywall

import (
	"errors"
	"fmt"

	"github.com/xraph/paywall/entitlement"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("paywall: not found")
	ErrInvalidInput = errors.New("paywall: invalid input")

	// Reconciliation errors
	ErrUnverified         = errors.New("paywall: payment not verified")
	ErrVerificationFailed = errors.New("paywall: payment verification failed")
	ErrAccountNotResolved = errors.New("paywall: payment account not resolved")
	ErrAmountMismatch     = errors.New("paywall: payment amount mismatch")
	ErrUnknownProduct     = pricing.ErrUnknownProduct

	// ErrAlreadyProcessed is how stores report a duplicate credit. The engine
	// turns it into a successful result; callers of Reconcile never see it.
	ErrAlreadyProcessed = errors.New("paywall: transaction already processed")

	// Account errors
	ErrAccountNotFound = errors.New("paywall: account not found")
	ErrAccountExists   = errors.New("paywall: account already exists")
	ErrQuotaExceeded   = errors.New("paywall: post quota exceeded")

	// Provider errors
	ErrProviderNotConfigured = errors.New("paywall: provider not configured")
	ErrEventIgnored          = errors.New("paywall: provider event ignored")

	// Store errors
	ErrStoreNotReady = errors.New("paywall: store not ready")
	ErrStoreClosed   = errors.New("paywall: store is closed")

	// Cache errors
	ErrCacheMiss = entitlement.ErrCacheMiss
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("paywall: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// AmountMismatchError carries both sides of a failed price check.
type AmountMismatchError struct {
	Expected types.Money
	Received types.Money
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("paywall: payment amount mismatch: expected %d %s, received %d %s",
		e.Expected.Amount, e.Expected.Currency, e.Received.Amount, e.Received.Currency)
}

// Unwrap lets errors.Is match ErrAmountMismatch.
func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}

// IsFatal reports whether err ends a reconciliation attempt without
// touching the account.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnverified) ||
		errors.Is(err, ErrVerificationFailed) ||
		errors.Is(err, ErrAccountNotResolved) ||
		errors.Is(err, ErrAmountMismatch) ||
		errors.Is(err, ErrUnknownProduct)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrVerificationFailed)
}
