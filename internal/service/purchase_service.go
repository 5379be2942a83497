package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/mealpass/ticket-service/internal/config"
	"github.com/mealpass/ticket-service/internal/domain"
	"github.com/mealpass/ticket-service/internal/events"
	"github.com/mealpass/ticket-service/internal/payment"
	"github.com/mealpass/ticket-service/internal/pricing"
	"github.com/mealpass/ticket-service/internal/repository"
	apperrors "github.com/mealpass/ticket-service/pkg/errorutil"
)

// PurchaseService orchestrates ticket purchases: eligibility and price
// resolution, pending ticket creation, and hosted payment session setup.
type PurchaseService struct {
	users      repository.UserRepository
	tickets    repository.TicketRepository
	provider   payment.Provider
	prices     pricing.Table
	paymentCfg config.PaymentConfig
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// PurchaseDependencies bundles collaborators for the purchase service.
type PurchaseDependencies struct {
	UserRepo   repository.UserRepository
	TicketRepo repository.TicketRepository
	Provider   payment.Provider
	Prices     pricing.Table
	PaymentCfg config.PaymentConfig
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// PurchaseSession is returned to the caller to complete payment.
type PurchaseSession struct {
	TicketID    string
	RedirectURL string
}

// NewPurchaseService constructs the service.
func NewPurchaseService(deps PurchaseDependencies) *PurchaseService {
	return &PurchaseService{
		users:      deps.UserRepo,
		tickets:    deps.TicketRepo,
		provider:   deps.Provider,
		prices:     deps.Prices,
		paymentCfg: deps.PaymentCfg,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// InitiatePurchase resolves eligibility and price for the caller, creates a
// ticket in PENDING_PAYMENT, opens a hosted payment session and records the
// provider payment id on the ticket. On rejection nothing is created; a
// provider failure after creation leaves the pending, ref-less ticket in
// place to age out with the provider session.
func (s *PurchaseService) InitiatePurchase(ctx context.Context, ownerID string, meal domain.Meal, tierClass domain.TierClass) (*PurchaseSession, error) {
	user, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUserNotFound(map[string]any{"user_id": ownerID})
		}
		return nil, err
	}

	now := s.now()
	today := now
	todays, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		OwnerID:     &ownerID,
		PurchasedOn: &today,
	})
	if err != nil {
		return nil, err
	}

	quote, err := pricing.Resolve(user.Tier, meal, tierClass, todays, now, s.prices)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		OwnerID:     ownerID,
		Meal:        meal,
		TierClass:   quote.TierClass,
		Price:       quote.UnitPrice,
		Status:      domain.TicketStatusPendingPayment,
		PurchasedAt: now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrDuplicateTicket) {
			// lost the insert race on the quota index
			return nil, apperrors.NewQuotaExceeded("daily limit for this ticket reached", map[string]any{
				"meal":       meal,
				"tier_class": quote.TierClass,
			})
		}
		return nil, err
	}

	session, err := s.provider.CreateSession(ctx, payment.SessionInput{
		Amount:        quote.UnitPrice,
		Currency:      s.paymentCfg.Currency,
		ProductName:   productName(meal, quote.TierClass),
		CorrelationID: ticket.ID,
		SuccessURL:    s.paymentCfg.SuccessURL,
		CancelURL:     s.paymentCfg.CancelURL,
	})
	if err != nil {
		s.logger.Error("payment session creation failed; ticket left pending",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil, apperrors.NewProviderUnavailable(err)
	}

	if err := s.tickets.SetPaymentRef(ctx, ticket.ID, session.ProviderPaymentID); err != nil {
		s.logger.Error("failed to record payment ref; ticket left pending",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil, apperrors.NewProviderUnavailable(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventPurchaseInitiated,
		TicketID: ticket.ID,
		OwnerID:  ownerID,
		Payload: events.PurchaseInitiatedPayload{
			Meal:      meal,
			TierClass: quote.TierClass,
			Price:     quote.UnitPrice.StringFixed(2),
		},
	})

	return &PurchaseSession{TicketID: ticket.ID, RedirectURL: session.RedirectURL}, nil
}

func productName(meal domain.Meal, tierClass domain.TierClass) string {
	return fmt.Sprintf("%s ticket (%s)", meal, tierClass)
}

func (s *PurchaseService) publishEvent(ctx context.Context, event events.Event) {
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
