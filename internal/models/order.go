package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
)

// Order is the fulfillment snapshot taken at checkout. session_id is
// unique so a session can never materialize two orders.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              string      `bun:"id,pk" json:"id"`
	SessionID       string      `bun:"session_id,notnull,unique" json:"session_id"`
	CustomerName    string      `bun:"customer_name,notnull" json:"customer_name"`
	StreetAddress   string      `bun:"street_address,notnull" json:"street_address"`
	City            string      `bun:"city,notnull" json:"city"`
	State           string      `bun:"state,notnull" json:"state"`
	ZipCode         string      `bun:"zip_code,notnull" json:"zip_code"`
	TotalAmount     int64       `bun:"total_amount,notnull" json:"total_amount"`
	StripePaymentID string      `bun:"stripe_payment_id,nullzero" json:"stripe_payment_id,omitempty"`
	Status          OrderStatus `bun:"status,notnull" json:"status"`
	CreatedAt       time.Time   `bun:"created_at,notnull" json:"created_at"`
}

type CreateSessionRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type RevealBoxRequest struct {
	UniverseSlug string `json:"universeSlug"`
}

type RerollTarget string

const (
	RerollBox  RerollTarget = "box"
	RerollItem RerollTarget = "item"
)

type RerollRequest struct {
	Type            RerollTarget `json:"type"`
	PaymentIntentID string       `json:"paymentIntentId"`
}

type CheckoutRequest struct {
	CustomerName  string `json:"customerName"`
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zipCode"`
}

type RevealBoxResponse struct {
	Box      *Box         `json:"box"`
	Universe UniverseMeta `json:"universe"`
}

type RevealItemResponse struct {
	Item *Item `json:"item"`
	Box  *Box  `json:"box"`
}

type RerollResponse struct {
	Box      *Box          `json:"box,omitempty"`
	Universe *UniverseMeta `json:"universe,omitempty"`
	Item     *Item         `json:"item,omitempty"`
}

type CheckoutResponse struct {
	Order   *Order           `json:"order"`
	Session *SessionSnapshot `json:"session"`
}
