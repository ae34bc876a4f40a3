package blindbox_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-blindbox/internal/blindbox"
	"ms-blindbox/internal/config"
	"ms-blindbox/internal/logger"
	"ms-blindbox/internal/models"
	"ms-blindbox/internal/payments"
)

// Mock implementations for testing

type MockDB struct {
	sessions      map[string]*models.Session
	payments      map[string][]string
	orders        map[string]*models.Order
	webhookEvents map[string]bool
	universes     map[string]*models.Universe
	items         map[string][]*models.Item
	shouldFailOn  string
	errorMsg      string
}

func NewMockDB() *MockDB {
	return &MockDB{
		sessions:      make(map[string]*models.Session),
		payments:      make(map[string][]string),
		orders:        make(map[string]*models.Order),
		webhookEvents: make(map[string]bool),
		universes:     make(map[string]*models.Universe),
		items:         make(map[string][]*models.Item),
	}
}

func (m *MockDB) failure(op string) error {
	if m.shouldFailOn == op {
		return errors.New(m.errorMsg)
	}
	return nil
}

func (m *MockDB) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if err := m.failure("GetSession"); err != nil {
		return nil, err
	}
	session, ok := m.sessions[id]
	if !ok {
		return nil, blindbox.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *MockDB) GetSessionSnapshot(ctx context.Context, id string) (*models.SessionSnapshot, error) {
	session, err := m.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.SessionSnapshot{
		Session:          *session,
		PaymentIntentIDs: m.payments[id],
		Order:            m.orders[id],
	}, nil
}

func (m *MockDB) CreateSessionWithPayment(ctx context.Context, session *models.Session, payment *models.SessionPayment) error {
	if err := m.failure("CreateSessionWithPayment"); err != nil {
		return err
	}
	for _, ids := range m.payments {
		for _, id := range ids {
			if id == payment.PaymentIntentID {
				return blindbox.ErrConfirmationAlreadyUsed
			}
		}
	}
	m.sessions[session.ID] = session
	m.payments[session.ID] = []string{payment.PaymentIntentID}
	return nil
}

func (m *MockDB) SessionPaymentIDs(ctx context.Context, sessionID string) ([]string, error) {
	if err := m.failure("SessionPaymentIDs"); err != nil {
		return nil, err
	}
	return m.payments[sessionID], nil
}

func (m *MockDB) UpdateSelection(ctx context.Context, sessionID string, sel blindbox.Selection) error {
	if err := m.failure("UpdateSelection"); err != nil {
		return err
	}
	session, ok := m.sessions[sessionID]
	if !ok || session.Status != models.SessionActive {
		return blindbox.ErrSessionNotActive
	}
	applySelection(session, sel)
	return nil
}

func (m *MockDB) ApplyReroll(ctx context.Context, upd blindbox.RerollUpdate) error {
	if err := m.failure("ApplyReroll"); err != nil {
		return err
	}
	for _, ids := range m.payments {
		for _, id := range ids {
			if id == upd.PaymentIntentID {
				return blindbox.ErrConfirmationAlreadyUsed
			}
		}
	}
	session, ok := m.sessions[upd.SessionID]
	if !ok || session.Status != models.SessionActive {
		return blindbox.ErrSessionNotActive
	}
	m.payments[upd.SessionID] = append(m.payments[upd.SessionID], upd.PaymentIntentID)
	session.RerollCount++
	session.TotalSpent += upd.PriceDelta
	applySelection(session, upd.Selection)
	return nil
}

func (m *MockDB) CompleteCheckout(ctx context.Context, sessionID string, rerollCount int, order *models.Order) error {
	if err := m.failure("CompleteCheckout"); err != nil {
		return err
	}
	session, ok := m.sessions[sessionID]
	if !ok || session.Status != models.SessionActive || session.RerollCount != rerollCount {
		return blindbox.ErrSessionNotReady
	}
	session.Status = models.SessionCompleted
	session.CurrentStep = models.StepCheckout
	m.orders[sessionID] = order
	return nil
}

func (m *MockDB) RecordWebhookEvent(ctx context.Context, record *models.WebhookEventRecord, event *models.PaymentEvent) (bool, error) {
	if err := m.failure("RecordWebhookEvent"); err != nil {
		return false, err
	}
	if m.webhookEvents[record.StripeEventID] {
		return false, nil
	}
	m.webhookEvents[record.StripeEventID] = true
	return true, nil
}

func (m *MockDB) UniverseBySlug(ctx context.Context, slug string) (*models.Universe, error) {
	if err := m.failure("UniverseBySlug"); err != nil {
		return nil, err
	}
	universe, ok := m.universes[slug]
	if !ok {
		return nil, blindbox.ErrUniverseNotFound
	}
	return universe, nil
}

func (m *MockDB) BoxByID(ctx context.Context, id string) (*models.Box, error) {
	for _, universe := range m.universes {
		for _, box := range universe.Boxes {
			if box.ID == id {
				return box, nil
			}
		}
	}
	return nil, blindbox.ErrEmptyCatalog
}

func (m *MockDB) ItemsByBox(ctx context.Context, boxID string) ([]*models.Item, error) {
	if err := m.failure("ItemsByBox"); err != nil {
		return nil, err
	}
	return m.items[boxID], nil
}

func (m *MockDB) ListUniverses(ctx context.Context) ([]*models.UniverseListing, error) {
	return nil, nil
}

func applySelection(session *models.Session, sel blindbox.Selection) {
	session.CurrentStep = sel.Step
	if sel.UniverseSlug != "" {
		session.UniverseSlug = sel.UniverseSlug
	}
	if sel.BoxID != "" {
		session.SelectedBoxID = sel.BoxID
		session.SelectedItemID = ""
	}
	if sel.ItemID != "" {
		session.SelectedItemID = sel.ItemID
	}
}

// MockProvider serves canned intents and fails loudly on anything else.
type MockProvider struct {
	intents map[string]*models.PaymentIntent
	// onGetIntent runs before each lookup, letting a test commit
	// concurrent writes mid-reconciliation.
	onGetIntent func(id string)
}

func (m *MockProvider) CreateIntent(ctx context.Context, purpose models.PaymentPurpose, sessionID string) (*models.PaymentIntent, error) {
	return &models.PaymentIntent{
		ID:           "pi_new",
		ClientSecret: "pi_new_secret",
		Metadata:     map[string]string{"type": string(purpose), "sessionId": sessionID},
	}, nil
}

func (m *MockProvider) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	if m.onGetIntent != nil {
		m.onGetIntent(id)
	}
	intent, ok := m.intents[id]
	if !ok {
		return nil, errors.New("no such payment_intent: " + id)
	}
	return intent, nil
}

func (m *MockProvider) ConstructEvent(payload []byte, signature string) (*models.PaymentEvent, error) {
	if signature != "valid" {
		return nil, payments.ErrBadSignature
	}
	return &models.PaymentEvent{
		ID:              "evt_stripe_1",
		Type:            models.EventPaymentSucceeded,
		PaymentIntentID: "pi_1",
	}, nil
}

// fixedSelector always picks the same index so draws are assertable.
type fixedSelector struct{ idx int }

func (f fixedSelector) Pick(n int) (int, error) {
	if f.idx >= n {
		return n - 1, nil
	}
	return f.idx, nil
}

var testPricing = config.PricingConfig{EntryCents: 1300, RerollCents: 200, Currency: "usd"}

func succeededIntent(id string, amount int64, purpose models.PaymentPurpose, sessionID string) *models.PaymentIntent {
	metadata := map[string]string{"type": string(purpose)}
	if sessionID != "" {
		metadata["sessionId"] = sessionID
	}
	return &models.PaymentIntent{
		ID:             id,
		Status:         models.PaymentStatusSucceeded,
		AmountReceived: amount,
		Currency:       "usd",
		Metadata:       metadata,
	}
}

func newTestService(db *MockDB, provider *MockProvider) *blindbox.Service {
	verifier := payments.NewVerifier(provider, testPricing, logger.NewConsole())
	return blindbox.NewService(db, provider, verifier, fixedSelector{idx: 0}, nil, testPricing, logger.NewConsole())
}

func seedMockCatalog(db *MockDB) {
	boxes := []*models.Box{
		{ID: "box_1", UniverseID: "uni_1", Name: "Starter Box"},
		{ID: "box_2", UniverseID: "uni_1", Name: "Legendary Box"},
	}
	db.universes["pokemon"] = &models.Universe{
		ID: "uni_1", Slug: "pokemon", Name: "Pokemon", Boxes: boxes,
	}
	db.items["box_1"] = []*models.Item{
		{ID: "itm_1", BoxID: "box_1", Name: "Pikachu"},
		{ID: "itm_2", BoxID: "box_1", Name: "Charmander"},
	}
}

func TestCreateSessionFromVerifiedEntryPayment(t *testing.T) {
	db := NewMockDB()
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)

	assert.Equal(t, models.SessionActive, snapshot.Status)
	assert.Equal(t, models.StepGenre, snapshot.CurrentStep)
	assert.Equal(t, int64(1300), snapshot.TotalSpent)
	assert.Zero(t, snapshot.RerollCount)
	assert.Equal(t, []string{"pi_entry"}, snapshot.PaymentIntentIDs)
}

func TestCreateSessionRejectsUnpaidIntent(t *testing.T) {
	db := NewMockDB()
	intent := succeededIntent("pi_entry", 1300, models.PurposeEntry, "")
	intent.Status = "processing"
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{"pi_entry": intent}}
	service := newTestService(db, provider)

	_, err := service.CreateSession(context.Background(), "pi_entry")
	assert.ErrorIs(t, err, payments.ErrPaymentNotSucceeded)
	assert.Empty(t, db.sessions)
}

// The same entry confirmation cannot open a second session.
func TestCreateSessionRejectsReusedConfirmation(t *testing.T) {
	db := NewMockDB()
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	_, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)

	_, err = service.CreateSession(context.Background(), "pi_entry")
	assert.ErrorIs(t, err, blindbox.ErrConfirmationAlreadyUsed)
	assert.Len(t, db.sessions, 1)
}

func TestRevealBoxDrawsFromUniverse(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)

	resp, err := service.RevealBox(context.Background(), snapshot.ID, "pokemon")
	require.NoError(t, err)
	assert.Equal(t, "box_1", resp.Box.ID)
	assert.Equal(t, "pokemon", resp.Universe.Slug)

	session := db.sessions[snapshot.ID]
	assert.Equal(t, "box_1", session.SelectedBoxID)
	assert.Equal(t, models.StepRevealBox, session.CurrentStep)
}

func TestRevealBoxUnknownUniverse(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)

	_, err = service.RevealBox(context.Background(), snapshot.ID, "digimon")
	assert.ErrorIs(t, err, blindbox.ErrUniverseNotFound)
}

func TestRevealItemRequiresBox(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)

	_, err = service.RevealItem(context.Background(), snapshot.ID)
	assert.ErrorIs(t, err, blindbox.ErrNoBoxSelected)
}

func TestRerollBoxRequiresUniverse(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)

	provider.intents["pi_r1"] = succeededIntent("pi_r1", 200, models.PurposeReroll, snapshot.ID)
	_, err = service.Reroll(context.Background(), snapshot.ID, models.RerollRequest{
		Type: models.RerollBox, PaymentIntentID: "pi_r1",
	})
	assert.ErrorIs(t, err, blindbox.ErrNoUniverseBound)
}

func TestRevealItemDrawsFromSelectedBox(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)
	_, err = service.RevealBox(context.Background(), snapshot.ID, "pokemon")
	require.NoError(t, err)

	resp, err := service.RevealItem(context.Background(), snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, "itm_1", resp.Item.ID)
	assert.Equal(t, "box_1", resp.Box.ID)
	assert.Equal(t, "itm_1", db.sessions[snapshot.ID].SelectedItemID)
}

func TestRerollBoxSwapsSelectionAndBumpsCounters(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)
	_, err = service.RevealBox(context.Background(), snapshot.ID, "pokemon")
	require.NoError(t, err)
	_, err = service.RevealItem(context.Background(), snapshot.ID)
	require.NoError(t, err)

	provider.intents["pi_r1"] = succeededIntent("pi_r1", 200, models.PurposeReroll, snapshot.ID)

	resp, err := service.Reroll(context.Background(), snapshot.ID, models.RerollRequest{
		Type:            models.RerollBox,
		PaymentIntentID: "pi_r1",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Box)
	require.NotNil(t, resp.Universe)

	session := db.sessions[snapshot.ID]
	assert.Equal(t, 1, session.RerollCount)
	assert.Equal(t, int64(1500), session.TotalSpent)
	// A re-drawn box invalidates the previously revealed item.
	assert.Empty(t, session.SelectedItemID)
}

func TestRerollItemKeepsBox(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)
	_, err = service.RevealBox(context.Background(), snapshot.ID, "pokemon")
	require.NoError(t, err)
	_, err = service.RevealItem(context.Background(), snapshot.ID)
	require.NoError(t, err)

	provider.intents["pi_r1"] = succeededIntent("pi_r1", 200, models.PurposeReroll, snapshot.ID)

	resp, err := service.Reroll(context.Background(), snapshot.ID, models.RerollRequest{
		Type:            models.RerollItem,
		PaymentIntentID: "pi_r1",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Item)

	session := db.sessions[snapshot.ID]
	assert.Equal(t, "box_1", session.SelectedBoxID)
	assert.Equal(t, resp.Item.ID, session.SelectedItemID)
}

// A replayed reroll confirmation fails without touching counters or the
// selection.
func TestRerollReplayedConfirmation(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)
	_, err = service.RevealBox(context.Background(), snapshot.ID, "pokemon")
	require.NoError(t, err)

	provider.intents["pi_r1"] = succeededIntent("pi_r1", 200, models.PurposeReroll, snapshot.ID)

	_, err = service.Reroll(context.Background(), snapshot.ID, models.RerollRequest{
		Type: models.RerollBox, PaymentIntentID: "pi_r1",
	})
	require.NoError(t, err)

	_, err = service.Reroll(context.Background(), snapshot.ID, models.RerollRequest{
		Type: models.RerollBox, PaymentIntentID: "pi_r1",
	})
	assert.ErrorIs(t, err, blindbox.ErrConfirmationAlreadyUsed)

	session := db.sessions[snapshot.ID]
	assert.Equal(t, 1, session.RerollCount)
	assert.Equal(t, int64(1500), session.TotalSpent)
}

func TestRerollRejectsPaymentBoundToAnotherSession(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)
	_, err = service.RevealBox(context.Background(), snapshot.ID, "pokemon")
	require.NoError(t, err)

	provider.intents["pi_r1"] = succeededIntent("pi_r1", 200, models.PurposeReroll, "sess_other")

	_, err = service.Reroll(context.Background(), snapshot.ID, models.RerollRequest{
		Type: models.RerollBox, PaymentIntentID: "pi_r1",
	})
	assert.ErrorIs(t, err, payments.ErrSessionMismatch)
	assert.Zero(t, db.sessions[snapshot.ID].RerollCount)
}

func checkoutReq() models.CheckoutRequest {
	return models.CheckoutRequest{
		CustomerName:  "Ada Lovelace",
		StreetAddress: "1 Analytical Way",
		City:          "London",
		State:         "LDN",
		ZipCode:       "E1 6AN",
	}
}

func readySession(t *testing.T, service *blindbox.Service, provider *MockProvider) string {
	t.Helper()
	provider.intents["pi_entry"] = succeededIntent("pi_entry", 1300, models.PurposeEntry, "")

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)
	_, err = service.RevealBox(context.Background(), snapshot.ID, "pokemon")
	require.NoError(t, err)
	_, err = service.RevealItem(context.Background(), snapshot.ID)
	require.NoError(t, err)
	return snapshot.ID
}

func TestCheckoutReconcilesAndCompletes(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{}}
	service := newTestService(db, provider)
	sessionID := readySession(t, service, provider)

	resp, err := service.Checkout(context.Background(), sessionID, checkoutReq())
	require.NoError(t, err)

	require.NotNil(t, resp.Order)
	assert.Equal(t, int64(1300), resp.Order.TotalAmount)
	assert.Equal(t, models.OrderPending, resp.Order.Status)
	assert.Equal(t, "pi_entry", resp.Order.StripePaymentID)
	assert.Equal(t, models.SessionCompleted, db.sessions[sessionID].Status)
}

func TestCheckoutAfterReroll(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{}}
	service := newTestService(db, provider)
	sessionID := readySession(t, service, provider)

	provider.intents["pi_r1"] = succeededIntent("pi_r1", 200, models.PurposeReroll, sessionID)
	_, err := service.Reroll(context.Background(), sessionID, models.RerollRequest{
		Type: models.RerollItem, PaymentIntentID: "pi_r1",
	})
	require.NoError(t, err)

	resp, err := service.Checkout(context.Background(), sessionID, checkoutReq())
	require.NoError(t, err)
	assert.Equal(t, int64(1500), resp.Order.TotalAmount)
}

func TestCheckoutRequiresRevealedItem(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{
		"pi_entry": succeededIntent("pi_entry", 1300, models.PurposeEntry, ""),
	}}
	service := newTestService(db, provider)

	snapshot, err := service.CreateSession(context.Background(), "pi_entry")
	require.NoError(t, err)

	_, err = service.Checkout(context.Background(), snapshot.ID, checkoutReq())
	assert.ErrorIs(t, err, blindbox.ErrSessionNotReady)
}

// A bound payment that regressed out of succeeded state blocks checkout
// and leaves the session active.
func TestCheckoutRejectsIncompletePayment(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{}}
	service := newTestService(db, provider)
	sessionID := readySession(t, service, provider)

	provider.intents["pi_entry"].Status = "canceled"

	_, err := service.Checkout(context.Background(), sessionID, checkoutReq())
	assert.ErrorIs(t, err, blindbox.ErrIncompletePayment)
	assert.Equal(t, models.SessionActive, db.sessions[sessionID].Status)
	assert.Nil(t, db.orders[sessionID])
}

// The sum of actually-received amounts must equal entry + count * reroll
// exactly; a drifted ledger blocks checkout instead of shipping at the
// wrong price.
func TestCheckoutRejectsAmountDrift(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{}}
	service := newTestService(db, provider)
	sessionID := readySession(t, service, provider)

	// Simulate drift: the counter says one reroll happened, but no
	// matching payment is bound.
	db.sessions[sessionID].RerollCount = 1

	_, err := service.Checkout(context.Background(), sessionID, checkoutReq())
	assert.ErrorIs(t, err, blindbox.ErrAmountMismatch)
	assert.Equal(t, models.SessionActive, db.sessions[sessionID].Status)
}

// A reroll that commits between the checkout's reconciliation reads and
// the completion write makes the checkout stale: it must fail instead
// of snapshotting an order total the session has already moved past.
func TestCheckoutStaleAfterConcurrentReroll(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{}}
	service := newTestService(db, provider)
	sessionID := readySession(t, service, provider)

	// First re-verification during checkout: a reroll payment lands
	// and is bound before the completion write runs.
	rerolled := false
	provider.onGetIntent = func(string) {
		if rerolled {
			return
		}
		rerolled = true
		provider.intents["pi_r1"] = succeededIntent("pi_r1", 200, models.PurposeReroll, sessionID)
		require.NoError(t, db.ApplyReroll(context.Background(), blindbox.RerollUpdate{
			SessionID:       sessionID,
			PaymentIntentID: "pi_r1",
			Purpose:         models.PurposeReroll,
			PriceDelta:      200,
			Selection:       blindbox.Selection{ItemID: "itm_2", Step: models.StepRevealItem},
		}))
	}

	_, err := service.Checkout(context.Background(), sessionID, checkoutReq())
	assert.ErrorIs(t, err, blindbox.ErrSessionNotReady)
	assert.Equal(t, models.SessionActive, db.sessions[sessionID].Status)
	assert.Equal(t, 1, db.sessions[sessionID].RerollCount)
	assert.Nil(t, db.orders[sessionID])

	// The retried checkout reconciles against the new state and
	// charges for the reroll.
	provider.onGetIntent = nil
	resp, err := service.Checkout(context.Background(), sessionID, checkoutReq())
	require.NoError(t, err)
	assert.Equal(t, int64(1500), resp.Order.TotalAmount)
}

func TestCheckoutTwiceFails(t *testing.T) {
	db := NewMockDB()
	seedMockCatalog(db)
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{}}
	service := newTestService(db, provider)
	sessionID := readySession(t, service, provider)

	_, err := service.Checkout(context.Background(), sessionID, checkoutReq())
	require.NoError(t, err)

	_, err = service.Checkout(context.Background(), sessionID, checkoutReq())
	assert.ErrorIs(t, err, blindbox.ErrSessionNotReady)
}

func TestIngestWebhook(t *testing.T) {
	db := NewMockDB()
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{}}
	service := newTestService(db, provider)

	result, err := service.IngestWebhook(context.Background(), []byte("{}"), "valid")
	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.False(t, result.Duplicate)

	// Redelivery of the same event id is benign.
	result, err = service.IngestWebhook(context.Background(), []byte("{}"), "valid")
	require.NoError(t, err)
	assert.False(t, result.Processed)
	assert.True(t, result.Duplicate)
}

func TestIngestWebhookBadSignature(t *testing.T) {
	db := NewMockDB()
	provider := &MockProvider{intents: map[string]*models.PaymentIntent{}}
	service := newTestService(db, provider)

	_, err := service.IngestWebhook(context.Background(), []byte("{}"), "forged")
	assert.ErrorIs(t, err, payments.ErrBadSignature)
	assert.Empty(t, db.webhookEvents)
}
