// Package pricing resolves what a user may buy and at what price. The
// resolver is a pure function of its inputs: rates are threaded through as
// request-scoped parameters, never held in shared mutable state, so it is
// safe to call concurrently for users of different tiers.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mealpass/ticket-service/internal/domain"
	"github.com/mealpass/ticket-service/pkg/errorutil"
)

// Table holds the configured unit prices per meal and tier class.
// Scholarship tickets are free by rule rather than configuration.
type Table struct {
	StandardLunch    decimal.Decimal
	StandardDinner   decimal.Decimal
	DiscountedLunch  decimal.Decimal
	DiscountedDinner decimal.Decimal
}

// Quote is a successful resolution: the unit price and the tier class the
// ticket will be recorded under.
type Quote struct {
	UnitPrice decimal.Decimal
	TierClass domain.TierClass
}

// Resolve decides whether a user of the given tier may purchase a ticket of
// the requested meal and tier class, given the user's tickets purchased on
// the calendar date of now. It returns the price quote, or a typed rejection
// (TIER_NOT_ELIGIBLE, QUOTA_EXCEEDED).
func Resolve(tier domain.UserTier, meal domain.Meal, tierClass domain.TierClass, todaysTickets []domain.Ticket, now time.Time, table Table) (Quote, error) {
	switch tier {
	case domain.TierStudent:
		if tierClass == domain.TierClassScholarship {
			return Quote{}, errorutil.NewTierNotEligible("students cannot purchase scholarship tickets", rejectionDetails(tier, meal, tierClass))
		}
	case domain.TierScholarshipStudent:
		if tierClass == domain.TierClassDiscounted {
			return Quote{}, errorutil.NewTierNotEligible("scholarship students cannot purchase discounted tickets", rejectionDetails(tier, meal, tierClass))
		}
	default:
		if tierClass != domain.TierClassStandard {
			return Quote{}, errorutil.NewTierNotEligible("tier only permits standard-rate tickets", rejectionDetails(tier, meal, tierClass))
		}
	}

	if tierClass != domain.TierClassStandard {
		for _, ticket := range todaysTickets {
			if ticket.Meal != meal || ticket.TierClass != tierClass {
				continue
			}
			if ticket.CountsAgainstQuota() && ticket.PurchasedOn(now) {
				return Quote{}, errorutil.NewQuotaExceeded("daily limit for this ticket reached", rejectionDetails(tier, meal, tierClass))
			}
		}
	}

	return Quote{UnitPrice: table.price(meal, tierClass), TierClass: tierClass}, nil
}

// DiscountClassFor returns the non-standard tier class available to a tier,
// if any. Used to compute a user's remaining daily options.
func DiscountClassFor(tier domain.UserTier) (domain.TierClass, bool) {
	switch tier {
	case domain.TierStudent:
		return domain.TierClassDiscounted, true
	case domain.TierScholarshipStudent:
		return domain.TierClassScholarship, true
	default:
		return "", false
	}
}

func (t Table) price(meal domain.Meal, tierClass domain.TierClass) decimal.Decimal {
	switch tierClass {
	case domain.TierClassScholarship:
		return decimal.Zero
	case domain.TierClassDiscounted:
		if meal == domain.MealDinner {
			return t.DiscountedDinner
		}
		return t.DiscountedLunch
	default:
		if meal == domain.MealDinner {
			return t.StandardDinner
		}
		return t.StandardLunch
	}
}

func rejectionDetails(tier domain.UserTier, meal domain.Meal, tierClass domain.TierClass) map[string]any {
	return map[string]any{
		"tier":       tier,
		"meal":       meal,
		"tier_class": tierClass,
	}
}
