package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/mealpass/ticket-service/internal/config"
	"github.com/mealpass/ticket-service/pkg/errorutil"
)

// StripeProvider implements Provider with Stripe hosted checkout sessions.
// The checkout session id is used as the provider payment id; the completed
// session event carries it back for reconciliation.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider configures the Stripe client.
func NewStripeProvider(cfg config.PaymentConfig) *StripeProvider {
	stripe.Key = cfg.StripeSecretKey
	return &StripeProvider{webhookSecret: cfg.WebhookSecret}
}

// CreateSession creates a hosted checkout session for a single ticket.
func (p *StripeProvider) CreateSession(ctx context.Context, input SessionInput) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(input.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(input.ProductName),
					},
					UnitAmount: stripe.Int64(input.Amount.Shift(2).Round(0).IntPart()),
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(input.CorrelationID),
		SuccessURL:        stripe.String(input.SuccessURL),
		CancelURL:         stripe.String(input.CancelURL),
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Session{ProviderPaymentID: sess.ID, RedirectURL: sess.URL}, nil
}

// VerifyEvent authenticates the payload against the webhook signing secret
// and maps it to a typed event.
func (p *StripeProvider) VerifyEvent(payload []byte, signatureHeader string) (*Event, error) {
	stripeEvent, err := webhook.ConstructEvent(payload, signatureHeader, p.webhookSecret)
	if err != nil {
		return nil, errorutil.NewSignatureInvalid(err)
	}

	switch stripeEvent.Type {
	case "checkout.session.completed":
		var completed struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(stripeEvent.Data.Raw, &completed); err != nil {
			return nil, errorutil.NewValidationError("malformed checkout session payload", nil)
		}
		return &Event{
			ID:                stripeEvent.ID,
			Kind:              EventPaymentSucceeded,
			ProviderPaymentID: completed.ID,
		}, nil
	default:
		return &Event{ID: stripeEvent.ID, Kind: EventUnknown}, nil
	}
}
