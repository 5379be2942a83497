package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/mealpass/ticket-service/internal/domain"
	"github.com/mealpass/ticket-service/internal/events"
	"github.com/mealpass/ticket-service/internal/pricing"
	"github.com/mealpass/ticket-service/internal/repository"
	apperrors "github.com/mealpass/ticket-service/pkg/errorutil"
)

// TicketService covers ticket listing, lookup and the administrative
// ACTIVE/INACTIVE toggle (redemption, expiry).
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	prices     pricing.Table
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Prices     pricing.Table
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	OwnerID     *string
	Meal        *domain.Meal
	TierClass   *domain.TierClass
	Statuses    []domain.TicketStatus
	PurchasedOn *time.Time
	Limit       int
	Offset      int
}

// MealOption reports whether one more subsidized ticket may be bought today.
type MealOption struct {
	Meal      domain.Meal
	TierClass domain.TierClass
	Remaining int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		prices:     deps.Prices,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// ListUserTickets returns tickets owned by the user, optionally filtered by status.
func (s *TicketService) ListUserTickets(ctx context.Context, ownerID string, statuses []domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		OwnerID:  &ownerID,
		Statuses: statuses,
		Limit:    limit,
		Offset:   offset,
	})
}

// ListTickets returns tickets matching an arbitrary filter (admin surface).
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		OwnerID:     filter.OwnerID,
		Meal:        filter.Meal,
		TierClass:   filter.TierClass,
		Statuses:    filter.Statuses,
		PurchasedOn: filter.PurchasedOn,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// GetTicketForUser fetches a ticket ensuring ownership.
func (s *TicketService) GetTicketForUser(ctx context.Context, ownerID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	if ticket.OwnerID != ownerID {
		return nil, apperrors.NewForbidden("ticket belongs to another user")
	}
	return ticket, nil
}

// SetTicketStatus applies the administrative ACTIVE/INACTIVE toggle through
// the lifecycle rules. Re-applying the current status is a no-op success.
func (s *TicketService) SetTicketStatus(ctx context.Context, ticketID string, next domain.TicketStatus) (*domain.Ticket, error) {
	if next != domain.TicketStatusActive && next != domain.TicketStatusInactive {
		return nil, apperrors.NewValidationError("status must be ACTIVE or INACTIVE", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	if ticket.Status == domain.TicketStatusPendingPayment && next == domain.TicketStatusActive {
		// activation from PENDING_PAYMENT is reserved for payment reconciliation
		return nil, apperrors.NewInvalidTransition("unpaid ticket cannot be activated administratively", map[string]any{
			"from": ticket.Status,
			"to":   next,
		})
	}

	changed, err := domain.Transition(ticket.Status, next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return ticket, nil
	}

	applied, err := s.tickets.UpdateStatusIf(ctx, ticket.ID, ticket.Status, next)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateTicket) {
			return nil, apperrors.NewQuotaExceeded("another ticket holds the daily slot", map[string]any{
				"ticket_id": ticket.ID,
			})
		}
		return nil, err
	}
	if !applied {
		// status moved underneath us; report against the fresh state
		current, err := s.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		if current.Status == next {
			return current, nil
		}
		return nil, apperrors.NewInvalidTransition("illegal ticket status transition", map[string]any{
			"from": current.Status,
			"to":   next,
		})
	}

	oldStatus := ticket.Status
	ticket.Status = next
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		OwnerID:  ticket.OwnerID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: next,
		},
	})
	return ticket, nil
}

// DailyOptions reports which subsidized tickets the user may still buy
// today, computed through the resolver so the answer can never disagree with
// an actual purchase attempt.
func (s *TicketService) DailyOptions(ctx context.Context, ownerID string) ([]MealOption, error) {
	user, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUserNotFound(map[string]any{"user_id": ownerID})
		}
		return nil, err
	}

	tierClass, ok := pricing.DiscountClassFor(user.Tier)
	if !ok {
		return []MealOption{}, nil
	}

	now := s.now()
	todays, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		OwnerID:     &ownerID,
		PurchasedOn: &now,
	})
	if err != nil {
		return nil, err
	}

	options := make([]MealOption, 0, 2)
	for _, meal := range []domain.Meal{domain.MealLunch, domain.MealDinner} {
		remaining := 0
		if _, err := pricing.Resolve(user.Tier, meal, tierClass, todays, now, s.prices); err == nil {
			remaining = 1
		}
		options = append(options, MealOption{Meal: meal, TierClass: tierClass, Remaining: remaining})
	}
	return options, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
