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
	"github.com/mealpass/ticket-service/internal/payment"
	apperrors "github.com/mealpass/ticket-service/pkg/errorutil"
)

// TicketStore is the slice of the ticket repository the reconciliation
// handler needs.
type TicketStore interface {
	GetByPaymentRef(ctx context.Context, ref string) (*domain.Ticket, error)
	UpdateStatusIf(ctx context.Context, ticketID string, from, to domain.TicketStatus) (bool, error)
}

// Deduplicator short-circuits webhook events already processed. Seen must be
// read-only; Mark is called only after the event's outcome has committed, so
// a failed delivery is reprocessed in full on redelivery. Optional.
type Deduplicator interface {
	Seen(ctx context.Context, eventID string) bool
	Mark(ctx context.Context, eventID string)
}

// ReconciliationService drives tickets from PENDING_PAYMENT to ACTIVE on
// verified provider payment events. Processing is idempotent: the provider
// may deliver the same event multiple times, concurrently or out of order.
type ReconciliationService struct {
	tickets    TicketStore
	provider   payment.Provider
	dedup      Deduplicator
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// ReconciliationDependencies bundles collaborators.
type ReconciliationDependencies struct {
	TicketStore TicketStore
	Provider    payment.Provider
	Dedup       Deduplicator
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewReconciliationService constructs the service.
func NewReconciliationService(deps ReconciliationDependencies) *ReconciliationService {
	return &ReconciliationService{
		tickets:    deps.TicketStore,
		provider:   deps.Provider,
		dedup:      deps.Dedup,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// HandlePaymentEvent verifies, parses and applies one webhook delivery.
// A nil return acknowledges the event; any error tells the provider to
// redeliver, so every path up to the acknowledgment must be safe to re-enter.
func (s *ReconciliationService) HandlePaymentEvent(ctx context.Context, rawPayload []byte, signatureHeader string) error {
	event, err := s.provider.VerifyEvent(rawPayload, signatureHeader)
	if err != nil {
		return err
	}

	if event.Kind != payment.EventPaymentSucceeded {
		s.logger.Debug("ignoring unhandled payment event", zap.String("event_id", event.ID))
		return nil
	}

	if s.dedup != nil && s.dedup.Seen(ctx, event.ID) {
		s.logger.Debug("duplicate payment event short-circuited", zap.String("event_id", event.ID))
		return nil
	}

	ticket, err := s.tickets.GetByPaymentRef(ctx, event.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("payment event for unknown reference",
				zap.String("event_id", event.ID),
				zap.String("payment_ref", event.ProviderPaymentID))
			return apperrors.NewNotFound("ticket", map[string]any{"payment_ref": event.ProviderPaymentID})
		}
		return err
	}

	switch ticket.Status {
	case domain.TicketStatusActive:
		// replayed delivery, already reconciled
		s.markProcessed(ctx, event.ID)
		return nil
	case domain.TicketStatusInactive:
		// cancelled tickets are never resurrected by a late payment;
		// surfaced for manual reconciliation
		return apperrors.NewStaleEvent("payment event for inactive ticket", map[string]any{
			"ticket_id":   ticket.ID,
			"payment_ref": event.ProviderPaymentID,
		})
	}

	changed, err := s.tickets.UpdateStatusIf(ctx, ticket.ID, domain.TicketStatusPendingPayment, domain.TicketStatusActive)
	if err != nil {
		return err
	}
	if !changed {
		// lost the race to a concurrent delivery; re-read to tell
		// success apart from a cancellation that slipped in
		current, err := s.tickets.GetByPaymentRef(ctx, event.ProviderPaymentID)
		if err != nil {
			return err
		}
		if current.Status == domain.TicketStatusActive {
			s.markProcessed(ctx, event.ID)
			return nil
		}
		return apperrors.NewStaleEvent("payment event for inactive ticket", map[string]any{
			"ticket_id":   ticket.ID,
			"payment_ref": event.ProviderPaymentID,
		})
	}

	s.logger.Info("ticket activated",
		zap.String("ticket_id", ticket.ID),
		zap.String("payment_ref", event.ProviderPaymentID))

	s.markProcessed(ctx, event.ID)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketActivated,
		TicketID: ticket.ID,
		OwnerID:  ticket.OwnerID,
		Payload: events.TicketActivatedPayload{
			ExternalPaymentRef: event.ProviderPaymentID,
		},
	})
	return nil
}

func (s *ReconciliationService) markProcessed(ctx context.Context, eventID string) {
	if s.dedup != nil {
		s.dedup.Mark(ctx, eventID)
	}
}

func (s *ReconciliationService) publishEvent(ctx context.Context, event events.Event) {
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
