package blindbox

import (
	"context"
	"fmt"
	"time"

	"ms-blindbox/internal/models"
	"ms-blindbox/internal/utils"
)

// Checkout re-verifies every confirmation ever bound to the session
// straight from the provider, sums the actually-received amounts, and
// only then materializes the order and completes the session, both in
// one transaction. The incrementally accumulated totalSpent is never
// trusted here; this is the last line of defense against drift from
// partial failures, client retries, or ledger races.
func (s *Service) Checkout(ctx context.Context, sessionID string, req models.CheckoutRequest) (*models.CheckoutResponse, error) {
	session, err := s.DB.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive || session.SelectedItemID == "" {
		return nil, ErrSessionNotReady
	}

	intentIDs, err := s.DB.SessionPaymentIDs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(intentIDs) == 0 {
		return nil, ErrNoPayments
	}

	var received int64
	for _, intentID := range intentIDs {
		intent, err := s.Provider.GetIntent(ctx, intentID)
		if err != nil {
			return nil, fmt.Errorf("re-verify payment %s: %w", intentID, err)
		}
		if intent.Status != models.PaymentStatusSucceeded {
			s.logger.LogPayment("CHECKOUT", intentID, fmt.Sprintf("not succeeded (status %s)", intent.Status))
			return nil, fmt.Errorf("%w: %s", ErrIncompletePayment, intentID)
		}
		received += intent.AmountReceived
	}

	expected := s.pricing.ExpectedTotal(session.RerollCount)
	if received != expected {
		s.logger.LogSession("CHECKOUT", sessionID, fmt.Sprintf("amount mismatch: received %d, expected %d for %d rerolls", received, expected, session.RerollCount))
		return nil, ErrAmountMismatch
	}

	order := &models.Order{
		ID:              utils.GenerateOrderID(),
		SessionID:       sessionID,
		CustomerName:    req.CustomerName,
		StreetAddress:   req.StreetAddress,
		City:            req.City,
		State:           req.State,
		ZipCode:         req.ZipCode,
		TotalAmount:     received,
		StripePaymentID: intentIDs[0],
		Status:          models.OrderPending,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.DB.CompleteCheckout(ctx, sessionID, session.RerollCount, order); err != nil {
		return nil, err
	}
	s.logger.LogSession("CHECKOUT", sessionID, fmt.Sprintf("completed, order %s for %d", order.ID, order.TotalAmount))

	if s.Events != nil {
		if err := s.Events.PublishOrderCreated(*order); err != nil {
			s.logger.Warn("KAFKA", fmt.Sprintf("Failed to publish order created for %s: %v", order.ID, err))
		}
	}

	snapshot, err := s.DB.GetSessionSnapshot(ctx, sessionID)
	if err != nil {
		// Checkout already committed; serve the order with a minimal view.
		completed := *session
		completed.Status = models.SessionCompleted
		completed.CurrentStep = models.StepCheckout
		snapshot = &models.SessionSnapshot{Session: completed, PaymentIntentIDs: intentIDs}
	}

	return &models.CheckoutResponse{Order: order, Session: snapshot}, nil
}
