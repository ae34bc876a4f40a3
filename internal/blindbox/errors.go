package blindbox

import "errors"

// State-precondition and consistency failures. None of them leave the
// session or an order in an intermediate state.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session is not active")
	ErrUniverseNotFound = errors.New("universe not found")
	ErrEmptyCatalog     = errors.New("no candidates to draw from")
	ErrNoBoxSelected    = errors.New("no box selected for this session")
	ErrNoUniverseBound  = errors.New("no universe bound to this session")

	// ErrConfirmationAlreadyUsed fires when a payment confirmation id is
	// already bound to a session, here or anywhere else. Enforced by the
	// storage-level uniqueness constraint, not a read-then-write check.
	ErrConfirmationAlreadyUsed = errors.New("payment confirmation already used")

	// Checkout reconciliation failures.
	ErrSessionNotReady   = errors.New("session is not ready for checkout")
	ErrNoPayments        = errors.New("session has no bound payments")
	ErrIncompletePayment = errors.New("a bound payment is not in a succeeded state")
	ErrAmountMismatch    = errors.New("received payments do not match the expected total")
)
