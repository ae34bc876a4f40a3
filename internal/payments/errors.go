package payments

import "errors"

// Verification failures. All of them mean "no state was mutated"; the
// caller is expected to re-attempt payment, not the state machine.
var (
	ErrPaymentNotSucceeded   = errors.New("payment is not in a succeeded state")
	ErrCurrencyMismatch      = errors.New("payment currency does not match the configured currency")
	ErrAmountMismatch        = errors.New("payment amount does not match the expected price")
	ErrPurposeMismatch       = errors.New("payment purpose does not match the expected purpose")
	ErrSessionBindingMissing = errors.New("reroll payment is missing a session binding")
	ErrSessionMismatch       = errors.New("reroll payment is bound to a different session")

	ErrBadSignature = errors.New("webhook signature verification failed")
)
