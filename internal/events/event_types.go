package events

import (
	"time"

	"github.com/mealpass/ticket-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventPurchaseInitiated   EventType = "ticket_purchase_initiated"
	EventTicketActivated     EventType = "ticket_activated"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventUserRegistered      EventType = "user_registered"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	OwnerID   string      `json:"owner_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// PurchaseInitiatedPayload payload.
type PurchaseInitiatedPayload struct {
	Meal      domain.Meal      `json:"meal"`
	TierClass domain.TierClass `json:"tier_class"`
	Price     string           `json:"price"`
}

// TicketActivatedPayload payload.
type TicketActivatedPayload struct {
	ExternalPaymentRef string `json:"external_payment_ref"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	Email string          `json:"email"`
	Tier  domain.UserTier `json:"tier"`
}
