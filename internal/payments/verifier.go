package payments

import (
	"context"
	"fmt"

	"ms-blindbox/internal/config"
	"ms-blindbox/internal/logger"
	"ms-blindbox/internal/models"
)

// Verifier turns a client-claimed payment confirmation into a
// server-trusted fact. It is read-only against the provider and safe to
// call any number of times with the same id.
type Verifier struct {
	provider Provider
	pricing  config.PricingConfig
	log      *logger.Logger
}

func NewVerifier(provider Provider, pricing config.PricingConfig, log *logger.Logger) *Verifier {
	return &Verifier{provider: provider, pricing: pricing, log: log}
}

// Verify fetches the confirmation and checks status, currency, exact
// amount for the purpose tier, declared purpose, and, for re-rolls,
// the session binding. expectedSessionID is ignored for entry payments.
func (v *Verifier) Verify(ctx context.Context, intentID string, purpose models.PaymentPurpose, expectedSessionID string) (*models.PaymentIntent, error) {
	intent, err := v.provider.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if intent.Status != models.PaymentStatusSucceeded {
		v.log.LogPayment("VERIFY", intentID, fmt.Sprintf("rejected: status %s", intent.Status))
		return nil, ErrPaymentNotSucceeded
	}

	if intent.Currency != v.pricing.Currency {
		v.log.LogPayment("VERIFY", intentID, fmt.Sprintf("rejected: currency %s", intent.Currency))
		return nil, ErrCurrencyMismatch
	}

	// Two fixed tiers, exact equality. No partial payments, no
	// overpayment tolerance.
	if intent.AmountReceived != v.pricing.AmountFor(string(purpose)) {
		v.log.LogPayment("VERIFY", intentID, fmt.Sprintf("rejected: amount %d for purpose %s", intent.AmountReceived, purpose))
		return nil, ErrAmountMismatch
	}

	if intent.Purpose() != purpose {
		v.log.LogPayment("VERIFY", intentID, fmt.Sprintf("rejected: declared purpose %q, expected %q", intent.Purpose(), purpose))
		return nil, ErrPurposeMismatch
	}

	if purpose == models.PurposeReroll {
		if expectedSessionID == "" || intent.BoundSessionID() == "" {
			v.log.LogPayment("VERIFY", intentID, "rejected: reroll without session binding")
			return nil, ErrSessionBindingMissing
		}
		if intent.BoundSessionID() != expectedSessionID {
			v.log.LogPayment("VERIFY", intentID, fmt.Sprintf("rejected: bound to session %s, expected %s", intent.BoundSessionID(), expectedSessionID))
			return nil, ErrSessionMismatch
		}
	}

	return intent, nil
}
