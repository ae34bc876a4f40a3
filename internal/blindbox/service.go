// Package blindbox is the purchase-session state machine: a verified
// entry payment opens a session, random box/item draws and paid re-rolls
// mutate it, and checkout reconciles every bound payment before an order
// is materialized.
package blindbox

import (
	"context"
	"fmt"
	"time"

	"ms-blindbox/internal/config"
	"ms-blindbox/internal/logger"
	"ms-blindbox/internal/models"
	"ms-blindbox/internal/payments"
	"ms-blindbox/internal/utils"
)

// Selection describes the fields a transition writes. A non-empty BoxID
// always clears the selected item as well.
type Selection struct {
	UniverseSlug string
	BoxID        string
	ItemID       string
	Step         models.SessionStep
}

// RerollUpdate is the unit the storage layer must apply atomically:
// bind the confirmation, bump the counters, swap the selection.
type RerollUpdate struct {
	SessionID       string
	PaymentIntentID string
	Purpose         models.PaymentPurpose
	PriceDelta      int64
	Selection       Selection
}

type DBLayer interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetSessionSnapshot(ctx context.Context, id string) (*models.SessionSnapshot, error)
	CreateSessionWithPayment(ctx context.Context, session *models.Session, payment *models.SessionPayment) error
	SessionPaymentIDs(ctx context.Context, sessionID string) ([]string, error)
	UpdateSelection(ctx context.Context, sessionID string, sel Selection) error
	ApplyReroll(ctx context.Context, upd RerollUpdate) error
	CompleteCheckout(ctx context.Context, sessionID string, rerollCount int, order *models.Order) error
	RecordWebhookEvent(ctx context.Context, record *models.WebhookEventRecord, event *models.PaymentEvent) (bool, error)

	UniverseBySlug(ctx context.Context, slug string) (*models.Universe, error)
	BoxByID(ctx context.Context, id string) (*models.Box, error)
	ItemsByBox(ctx context.Context, boxID string) ([]*models.Item, error)
	ListUniverses(ctx context.Context) ([]*models.UniverseListing, error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, intentID string, purpose models.PaymentPurpose, expectedSessionID string) (*models.PaymentIntent, error)
}

type Selector interface {
	Pick(n int) (int, error)
}

type EventPublisher interface {
	PublishOrderCreated(order models.Order) error
	PublishPaymentRecorded(event models.PaymentEvent) error
}

type Service struct {
	DB       DBLayer
	Provider payments.Provider
	Verifier PaymentVerifier
	Selector Selector
	Events   EventPublisher

	pricing config.PricingConfig
	logger  *logger.Logger
}

func NewService(db DBLayer, provider payments.Provider, verifier PaymentVerifier, selector Selector, events EventPublisher, pricing config.PricingConfig, log *logger.Logger) *Service {
	return &Service{
		DB:       db,
		Provider: provider,
		Verifier: verifier,
		Selector: selector,
		Events:   events,
		pricing:  pricing,
		logger:   log,
	}
}

// CreateIntent mints a provider payment intent for one of the two fixed
// tiers. Amounts are never client-supplied.
func (s *Service) CreateIntent(ctx context.Context, purpose models.PaymentPurpose, sessionID string) (*models.CreateIntentResponse, error) {
	intent, err := s.Provider.CreateIntent(ctx, purpose, sessionID)
	if err != nil {
		return nil, err
	}
	return &models.CreateIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
	}, nil
}

// CreateSession opens a session from a verified entry payment. The
// confirmation id is bound in the same transaction that creates the
// session, and the global uniqueness constraint on session_payments
// rejects a confirmation already bound anywhere.
func (s *Service) CreateSession(ctx context.Context, intentID string) (*models.SessionSnapshot, error) {
	intent, err := s.Verifier.Verify(ctx, intentID, models.PurposeEntry, "")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:          utils.GenerateSessionID(),
		Status:      models.SessionActive,
		CurrentStep: models.StepGenre,
		TotalSpent:  s.pricing.EntryCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	payment := &models.SessionPayment{
		PaymentIntentID: intent.ID,
		SessionID:       session.ID,
		Purpose:         models.PurposeEntry,
		Position:        0,
		CreatedAt:       now,
	}

	if err := s.DB.CreateSessionWithPayment(ctx, session, payment); err != nil {
		return nil, err
	}

	s.logger.LogSession("CREATE", session.ID, fmt.Sprintf("opened with entry payment %s", intent.ID))
	return &models.SessionSnapshot{
		Session:          *session,
		PaymentIntentIDs: []string{intent.ID},
	}, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	return s.DB.GetSessionSnapshot(ctx, sessionID)
}

// RevealBox binds the chosen universe and draws a box from it.
func (s *Service) RevealBox(ctx context.Context, sessionID, universeSlug string) (*models.RevealBoxResponse, error) {
	session, err := s.DB.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, ErrSessionNotActive
	}

	universe, err := s.DB.UniverseBySlug(ctx, universeSlug)
	if err != nil {
		return nil, err
	}
	box, err := s.drawBox(universe)
	if err != nil {
		return nil, err
	}

	sel := Selection{
		UniverseSlug: universeSlug,
		BoxID:        box.ID,
		Step:         models.StepRevealBox,
	}
	if err := s.DB.UpdateSelection(ctx, sessionID, sel); err != nil {
		return nil, err
	}

	s.logger.LogSession("REVEAL_BOX", sessionID, fmt.Sprintf("drew box %s from universe %s", box.ID, universeSlug))
	return &models.RevealBoxResponse{Box: box, Universe: universe.Meta()}, nil
}

// RevealItem draws an item from the session's current box.
func (s *Service) RevealItem(ctx context.Context, sessionID string) (*models.RevealItemResponse, error) {
	session, err := s.DB.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, ErrSessionNotActive
	}
	if session.SelectedBoxID == "" {
		return nil, ErrNoBoxSelected
	}

	item, err := s.drawItem(ctx, session.SelectedBoxID)
	if err != nil {
		return nil, err
	}

	sel := Selection{
		ItemID: item.ID,
		Step:   models.StepRevealItem,
	}
	if err := s.DB.UpdateSelection(ctx, sessionID, sel); err != nil {
		return nil, err
	}

	box, err := s.DB.BoxByID(ctx, session.SelectedBoxID)
	if err != nil {
		return nil, err
	}

	s.logger.LogSession("REVEAL_ITEM", sessionID, fmt.Sprintf("drew item %s from box %s", item.ID, box.ID))
	return &models.RevealItemResponse{Item: item, Box: box}, nil
}

// Reroll re-draws the box or the item after verifying a session-bound
// reroll payment. Payment binding, counter bumps, and the new selection
// commit as one transaction; a replayed confirmation id fails on the
// uniqueness constraint without touching the session.
func (s *Service) Reroll(ctx context.Context, sessionID string, req models.RerollRequest) (*models.RerollResponse, error) {
	session, err := s.DB.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, ErrSessionNotActive
	}
	if req.Type == models.RerollItem && session.SelectedBoxID == "" {
		return nil, ErrNoBoxSelected
	}
	if req.Type == models.RerollBox && session.UniverseSlug == "" {
		return nil, ErrNoUniverseBound
	}

	intent, err := s.Verifier.Verify(ctx, req.PaymentIntentID, models.PurposeReroll, sessionID)
	if err != nil {
		return nil, err
	}

	var sel Selection
	resp := &models.RerollResponse{}
	switch req.Type {
	case models.RerollBox:
		universe, err := s.DB.UniverseBySlug(ctx, session.UniverseSlug)
		if err != nil {
			return nil, err
		}
		box, err := s.drawBox(universe)
		if err != nil {
			return nil, err
		}
		meta := universe.Meta()
		sel = Selection{BoxID: box.ID, Step: models.StepRevealBox}
		resp.Box = box
		resp.Universe = &meta
	case models.RerollItem:
		item, err := s.drawItem(ctx, session.SelectedBoxID)
		if err != nil {
			return nil, err
		}
		box, err := s.DB.BoxByID(ctx, session.SelectedBoxID)
		if err != nil {
			return nil, err
		}
		sel = Selection{ItemID: item.ID, Step: models.StepRevealItem}
		resp.Item = item
		resp.Box = box
	}

	upd := RerollUpdate{
		SessionID:       sessionID,
		PaymentIntentID: intent.ID,
		Purpose:         models.PurposeReroll,
		PriceDelta:      s.pricing.RerollCents,
		Selection:       sel,
	}
	if err := s.DB.ApplyReroll(ctx, upd); err != nil {
		return nil, err
	}

	s.logger.LogSession("REROLL", sessionID, fmt.Sprintf("%s rerolled with payment %s", req.Type, intent.ID))
	return resp, nil
}

// ListUniverses serves the public catalog listing.
func (s *Service) ListUniverses(ctx context.Context) ([]*models.UniverseListing, error) {
	return s.DB.ListUniverses(ctx)
}

func (s *Service) drawBox(universe *models.Universe) (*models.Box, error) {
	if len(universe.Boxes) == 0 {
		return nil, ErrEmptyCatalog
	}
	idx, err := s.Selector.Pick(len(universe.Boxes))
	if err != nil {
		return nil, fmt.Errorf("box draw: %w", err)
	}
	return universe.Boxes[idx], nil
}

func (s *Service) drawItem(ctx context.Context, boxID string) (*models.Item, error) {
	items, err := s.DB.ItemsByBox(ctx, boxID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCatalog
	}
	idx, err := s.Selector.Pick(len(items))
	if err != nil {
		return nil, fmt.Errorf("item draw: %w", err)
	}
	return items[idx], nil
}
