package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentPurpose string

const (
	PurposeEntry  PaymentPurpose = "entry"
	PurposeReroll PaymentPurpose = "reroll"
)

// Statuses and event types mirror the Stripe wire values so the rest of
// the code never needs to import the SDK to compare them.
const (
	PaymentStatusSucceeded = "succeeded"

	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// PaymentIntent is the provider-neutral view of a payment confirmation.
// The core only ever reads these fields; the provider owns the record.
type PaymentIntent struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	ClientSecret   string            `json:"client_secret,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Purpose returns the declared purpose from the intent metadata.
func (p *PaymentIntent) Purpose() PaymentPurpose {
	return PaymentPurpose(p.Metadata["type"])
}

// BoundSessionID returns the session id the intent was minted for, if any.
func (p *PaymentIntent) BoundSessionID() string {
	return p.Metadata["sessionId"]
}

// PaymentEvent is a signature-verified webhook delivery, reduced to the
// fields the ledger acts on.
type PaymentEvent struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	PaymentIntentID string         `json:"payment_intent_id,omitempty"`
	SessionID       string         `json:"session_id,omitempty"`
	Purpose         PaymentPurpose `json:"purpose,omitempty"`
}

// WebhookEventRecord is the idempotency fence: one row per delivered
// event id, unique on stripe_event_id.
type WebhookEventRecord struct {
	bun.BaseModel `bun:"table:stripe_webhook_events"`

	ID            string    `bun:"id,pk" json:"id"`
	StripeEventID string    `bun:"stripe_event_id,notnull,unique" json:"stripe_event_id"`
	Type          string    `bun:"type,notnull" json:"type"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

type CreateIntentRequest struct {
	Type      PaymentPurpose `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
}

type CreateIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}
