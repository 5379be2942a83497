package domain

import (
	"github.com/mealpass/ticket-service/pkg/errorutil"
)

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusPendingPayment: {TicketStatusActive, TicketStatusInactive},
	TicketStatusActive:         {TicketStatusInactive},
	TicketStatusInactive:       {TicketStatusActive},
}

// CanTransition reports whether moving from current to next is a legal
// lifecycle step. Re-applying the current status is always allowed and is a
// no-op; webhook idempotency depends on this.
func CanTransition(current, next TicketStatus) bool {
	if current == next {
		return true
	}
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Transition validates a lifecycle step. It returns changed=false for a
// same-status no-op and an INVALID_TRANSITION error for an illegal move,
// leaving callers to perform the actual mutation atomically.
func Transition(current, next TicketStatus) (changed bool, err error) {
	if current == next {
		return false, nil
	}
	if !CanTransition(current, next) {
		return false, errorutil.NewInvalidTransition("illegal ticket status transition", map[string]any{
			"from": current,
			"to":   next,
		})
	}
	return true, nil
}
