package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-blindbox/internal/config"
	"ms-blindbox/internal/logger"
	"ms-blindbox/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// Provider is the payment-provider surface the core consumes. Lookups
// are read-only, single-attempt network calls; failures surface to the
// caller without retries.
type Provider interface {
	CreateIntent(ctx context.Context, purpose models.PaymentPurpose, sessionID string) (*models.PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
	ConstructEvent(payload []byte, signature string) (*models.PaymentEvent, error)
}

// StripeGateway backs Provider with the Stripe API.
type StripeGateway struct {
	client        *client.API
	webhookSecret string
	pricing       config.PricingConfig
	log           *logger.Logger
}

func NewStripeGateway(cfg config.StripeConfig, pricing config.PricingConfig, log *logger.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY is not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	log.Info("STRIPE", "Stripe client initialized")

	return &StripeGateway{
		client:        sc,
		webhookSecret: cfg.WebhookSecret,
		pricing:       pricing,
		log:           log,
	}, nil
}

// CreateIntent mints a payment intent for one of the two fixed tiers.
// The purpose and session binding travel in the intent metadata and are
// what Verify later checks against.
func (g *StripeGateway) CreateIntent(ctx context.Context, purpose models.PaymentPurpose, sessionID string) (*models.PaymentIntent, error) {
	amount := g.pricing.AmountFor(string(purpose))
	description := "Blindbox Entry - Double Mystery"
	if purpose == models.PurposeReroll {
		description = "Blindbox Reroll"
	}

	params := &stripe.PaymentIntentParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(g.pricing.Currency),
		Description: stripe.String(description),
	}
	params.AddMetadata("type", string(purpose))
	params.AddMetadata("sessionId", sessionID)

	intent, err := g.client.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent: %v", err))
		return nil, fmt.Errorf("stripe create intent: %w", err)
	}

	g.log.LogPayment("CREATE", intent.ID, fmt.Sprintf("%s intent for %d %s", purpose, amount, g.pricing.Currency))
	return toIntent(intent), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	intent, err := g.client.PaymentIntents.Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve payment intent %s: %v", id, err))
		return nil, fmt.Errorf("stripe retrieve intent: %w", err)
	}
	return toIntent(intent), nil
}

// ConstructEvent verifies the webhook signature and reduces the event to
// the fields the ledger acts on. A bad signature is fatal for the
// request only; Stripe retries the delivery.
func (g *StripeGateway) ConstructEvent(payload []byte, signature string) (*models.PaymentEvent, error) {
	if g.webhookSecret == "" {
		g.log.Error("WEBHOOK", "STRIPE_WEBHOOK_SECRET is not configured")
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrBadSignature)
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, opts)
	if err != nil {
		g.log.Error("WEBHOOK", fmt.Sprintf("Signature verification failed: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	out := &models.PaymentEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	// Only payment_intent.* events carry an intent payload.
	if out.Type == models.EventPaymentSucceeded || out.Type == models.EventPaymentFailed {
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			g.log.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal payment intent from event %s: %v", event.ID, err))
			return nil, fmt.Errorf("unmarshal payment intent: %w", err)
		}
		out.PaymentIntentID = intent.ID
		out.SessionID = intent.Metadata["sessionId"]
		out.Purpose = models.PaymentPurpose(intent.Metadata["type"])
	}

	return out, nil
}

func toIntent(pi *stripe.PaymentIntent) *models.PaymentIntent {
	return &models.PaymentIntent{
		ID:             pi.ID,
		Status:         string(pi.Status),
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		ClientSecret:   pi.ClientSecret,
		Metadata:       pi.Metadata,
	}
}
