// Package payment abstracts the external payment provider behind an injected
// interface so services can be exercised against fakes in tests.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// SessionInput describes a hosted checkout session request.
type SessionInput struct {
	Amount        decimal.Decimal
	Currency      string
	ProductName   string
	CorrelationID string
	SuccessURL    string
	CancelURL     string
}

// Session is the provider's answer: where to send the buyer and the payment
// identifier later used as the reconciliation key.
type Session struct {
	ProviderPaymentID string
	RedirectURL       string
}

// EventKind classifies provider webhook events.
type EventKind string

const (
	// EventPaymentSucceeded indicates a completed payment for a session.
	EventPaymentSucceeded EventKind = "payment_succeeded"
	// EventUnknown covers provider event types this service does not handle.
	// They are acknowledged and ignored for forward compatibility.
	EventUnknown EventKind = "unknown"
)

// Event is a verified, parsed provider webhook event.
type Event struct {
	ID                string
	Kind              EventKind
	ProviderPaymentID string
}

// Provider is the payment collaborator consumed by the orchestrator and the
// reconciliation handler.
type Provider interface {
	CreateSession(ctx context.Context, input SessionInput) (*Session, error)
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
}
