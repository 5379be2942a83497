package dto

import (
	"time"

	"github.com/mealpass/ticket-service/internal/domain"
)

// TicketResponse is the wire representation of a ticket.
type TicketResponse struct {
	ID                 string              `json:"id"`
	OwnerID            string              `json:"owner_id"`
	Meal               domain.Meal         `json:"meal"`
	TierClass          domain.TierClass    `json:"tier_class"`
	Price              string              `json:"price"`
	Status             domain.TicketStatus `json:"status"`
	ExternalPaymentRef *string             `json:"external_payment_ref,omitempty"`
	PurchasedAt        time.Time           `json:"purchased_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// SetTicketStatusRequest payload for the admin status toggle.
type SetTicketStatusRequest struct {
	Status string `json:"status"`
}

// MealOptionResponse reports remaining subsidized purchases for today.
type MealOptionResponse struct {
	Meal      domain.Meal      `json:"meal"`
	TierClass domain.TierClass `json:"tier_class"`
	Remaining int              `json:"remaining"`
}
