package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountCreated = "account.created"
	ActionQuotaConsumed  = "quota.consumed"

	// Checkout actions
	ActionCheckoutCreated = "checkout.created"

	// Payment actions
	ActionPaymentReconciled = "payment.reconciled"
	ActionPaymentDuplicate  = "payment.duplicate"
	ActionPaymentRejected   = "payment.rejected"
)

// Resource constants for audit events.
const (
	ResourceAccount  = "account"
	ResourceCheckout = "checkout"
	ResourcePayment  = "payment"
)

// Category constants for audit events.
const (
	CategoryAccount = "account"
	CategoryAccess  = "access"
	CategoryPayment = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
