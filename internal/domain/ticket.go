package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Meal enumerates the cafeteria meal a ticket is valid for.
type Meal string

const (
	MealLunch  Meal = "LUNCH"
	MealDinner Meal = "DINNER"
)

// ParseMeal validates a meal string.
func ParseMeal(raw string) (Meal, bool) {
	switch Meal(raw) {
	case MealLunch, MealDinner:
		return Meal(raw), true
	default:
		return "", false
	}
}

// TierClass is the discount category a ticket is purchased under,
// fixed at purchase time independent of later user-tier changes.
type TierClass string

const (
	TierClassStandard    TierClass = "STANDARD"
	TierClassDiscounted  TierClass = "DISCOUNTED"
	TierClassScholarship TierClass = "SCHOLARSHIP"
)

// ParseTierClass validates a tier class string.
func ParseTierClass(raw string) (TierClass, bool) {
	switch TierClass(raw) {
	case TierClassStandard, TierClassDiscounted, TierClassScholarship:
		return TierClass(raw), true
	default:
		return "", false
	}
}

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPendingPayment TicketStatus = "PENDING_PAYMENT"
	TicketStatusActive         TicketStatus = "ACTIVE"
	TicketStatusInactive       TicketStatus = "INACTIVE"
)

// ParseTicketStatus validates a status string.
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	switch TicketStatus(raw) {
	case TicketStatusPendingPayment, TicketStatusActive, TicketStatusInactive:
		return TicketStatus(raw), true
	default:
		return "", false
	}
}

// Ticket is the aggregate for meal ticket purchases. Price and TierClass are
// snapshots taken at purchase; ExternalPaymentRef is set once when the hosted
// payment session is created and is the reconciliation key thereafter.
type Ticket struct {
	ID                 string
	OwnerID            string
	Meal               Meal
	TierClass          TierClass
	Price              decimal.Decimal
	Status             TicketStatus
	ExternalPaymentRef *string
	PurchasedAt        time.Time
	UpdatedAt          time.Time
}

// PurchasedOn reports whether the ticket was purchased on the calendar date
// of ref, in ref's location. The daily quota is date-scoped, not a rolling
// 24h window.
func (t Ticket) PurchasedOn(ref time.Time) bool {
	y1, m1, d1 := t.PurchasedAt.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// CountsAgainstQuota reports whether the ticket occupies the daily quota slot
// for its meal and tier class. STANDARD purchases are unlimited, and INACTIVE
// tickets release their slot.
func (t Ticket) CountsAgainstQuota() bool {
	return t.TierClass != TierClassStandard && t.Status != TicketStatusInactive
}
