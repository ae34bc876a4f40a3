package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// SessionStep is a progress marker for the client UI. Transition guards
// never check it; they gate on status, selection fields and payments.
type SessionStep string

const (
	StepGenre      SessionStep = "genre"
	StepRevealBox  SessionStep = "reveal_box"
	StepRevealItem SessionStep = "reveal_item"
	StepCheckout   SessionStep = "checkout"
)

type Session struct {
	bun.BaseModel `bun:"table:blindbox_sessions"`

	ID             string        `bun:"id,pk" json:"id"`
	Status         SessionStatus `bun:"status,notnull" json:"status"`
	CurrentStep    SessionStep   `bun:"current_step,notnull" json:"current_step"`
	UniverseSlug   string        `bun:"universe_slug,nullzero" json:"universe_slug,omitempty"`
	SelectedBoxID  string        `bun:"selected_box_id,nullzero" json:"selected_box_id,omitempty"`
	SelectedItemID string        `bun:"selected_item_id,nullzero" json:"selected_item_id,omitempty"`
	RerollCount    int           `bun:"reroll_count,notnull" json:"reroll_count"`
	TotalSpent     int64         `bun:"total_spent,notnull" json:"total_spent"`
	CreatedAt      time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// SessionPayment is one row per payment intent bound to a session. The
// primary key on payment_intent_id is global, so one confirmation can
// never be bound to two sessions no matter which writer gets there first.
type SessionPayment struct {
	bun.BaseModel `bun:"table:session_payments"`

	PaymentIntentID string         `bun:"payment_intent_id,pk" json:"payment_intent_id"`
	SessionID       string         `bun:"session_id,notnull" json:"session_id"`
	Purpose         PaymentPurpose `bun:"purpose,notnull" json:"purpose"`
	Position        int            `bun:"position,notnull" json:"position"`
	CreatedAt       time.Time      `bun:"created_at,notnull" json:"created_at"`
}

// SessionSnapshot is the session plus everything the client needs to
// resume the flow mid-way.
type SessionSnapshot struct {
	Session
	PaymentIntentIDs []string  `json:"payment_intent_ids"`
	SelectedBox      *Box      `json:"selected_box,omitempty"`
	SelectedItem     *Item     `json:"selected_item,omitempty"`
	Universe         *Universe `json:"universe,omitempty"`
	Order            *Order    `json:"order,omitempty"`
}
