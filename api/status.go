package api

import (
	"errors"
	"net/http"

	"github.com/xraph/paywall"
)

// Response bodies.
const (
	StatusConfirmed = "confirmed"
	StatusIgnored   = "ignored"
	StatusFailed    = "failed"

	// MessageNotConfirmed is the only failure text a confirmation route
	// returns. Provider errors are logged, never rendered.
	MessageNotConfirmed = "payment could not be confirmed"
)

// StatusFor maps a paywall error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil,
		errors.Is(err, paywall.ErrAlreadyProcessed),
		errors.Is(err, paywall.ErrEventIgnored):
		return http.StatusOK
	case errors.Is(err, paywall.ErrAmountMismatch),
		errors.Is(err, paywall.ErrUnknownProduct),
		errors.Is(err, paywall.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, paywall.ErrAccountNotResolved),
		errors.Is(err, paywall.ErrAccountNotFound),
		errors.Is(err, paywall.ErrProviderNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, paywall.ErrUnverified),
		errors.Is(err, paywall.ErrVerificationFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, paywall.ErrQuotaExceeded):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
