package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mealpass/ticket-service/internal/domain"
	"github.com/mealpass/ticket-service/internal/payment"
	"github.com/mealpass/ticket-service/pkg/errorutil"
)

func newReconciliationFixture(provider *fakeProvider, dedup Deduplicator) (*ReconciliationService, *memTicketRepo) {
	tickets := newMemTicketRepo()
	svc := NewReconciliationService(ReconciliationDependencies{
		TicketStore: tickets,
		Provider:    provider,
		Dedup:       dedup,
		Logger:      zap.NewNop(),
	})
	return svc, tickets
}

func seedTicket(t *testing.T, tickets *memTicketRepo, status domain.TicketStatus, ref string) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		OwnerID:   "user42",
		Meal:      domain.MealLunch,
		TierClass: domain.TierClassStandard,
		Status:    domain.TicketStatusPendingPayment,
	}
	require.NoError(t, tickets.Create(context.Background(), ticket))
	require.NoError(t, tickets.SetPaymentRef(context.Background(), ticket.ID, ref))
	if status != domain.TicketStatusPendingPayment {
		_, err := tickets.UpdateStatusIf(context.Background(), ticket.ID, domain.TicketStatusPendingPayment, status)
		require.NoError(t, err)
	}
	tickets.statusWrites = 0
	return ticket
}

func succeededEvent(id, ref string) *payment.Event {
	return &payment.Event{ID: id, Kind: payment.EventPaymentSucceeded, ProviderPaymentID: ref}
}

func TestHandlePaymentEventActivates(t *testing.T) {
	provider := &fakeProvider{verifyEvent: succeededEvent("evt_1", "cs_abc")}
	svc, tickets := newReconciliationFixture(provider, nil)
	ticket := seedTicket(t, tickets, domain.TicketStatusPendingPayment, "cs_abc")

	err := svc.HandlePaymentEvent(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)

	updated, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusActive, updated.Status)
}

func TestHandlePaymentEventIdempotentReplay(t *testing.T) {
	provider := &fakeProvider{verifyEvent: succeededEvent("evt_1", "cs_abc")}
	svc, tickets := newReconciliationFixture(provider, nil)
	ticket := seedTicket(t, tickets, domain.TicketStatusPendingPayment, "cs_abc")

	require.NoError(t, svc.HandlePaymentEvent(context.Background(), []byte(`{}`), "sig"))
	require.NoError(t, svc.HandlePaymentEvent(context.Background(), []byte(`{}`), "sig"))

	updated, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusActive, updated.Status)
	// exactly one effective transition across both deliveries
	assert.Equal(t, 1, tickets.statusWrites)
}

func TestHandlePaymentEventDedupShortCircuit(t *testing.T) {
	provider := &fakeProvider{verifyEvent: succeededEvent("evt_1", "cs_abc")}
	dedup := &fakeDedup{}
	svc, tickets := newReconciliationFixture(provider, dedup)
	seedTicket(t, tickets, domain.TicketStatusPendingPayment, "cs_abc")

	require.NoError(t, svc.HandlePaymentEvent(context.Background(), []byte(`{}`), "sig"))
	lookupsAfterFirst := tickets.getByRefCalls

	require.NoError(t, svc.HandlePaymentEvent(context.Background(), []byte(`{}`), "sig"))
	assert.Equal(t, lookupsAfterFirst, tickets.getByRefCalls, "replay should not reach the store")
}

func TestHandlePaymentEventRedeliveredAfterFailure(t *testing.T) {
	provider := &fakeProvider{verifyEvent: succeededEvent("evt_1", "cs_abc")}
	dedup := &fakeDedup{}
	svc, tickets := newReconciliationFixture(provider, dedup)

	// the event arrives before the orchestrator has recorded the payment ref
	ticket := &domain.Ticket{
		OwnerID:   "user42",
		Meal:      domain.MealLunch,
		TierClass: domain.TierClassStandard,
		Status:    domain.TicketStatusPendingPayment,
	}
	require.NoError(t, tickets.Create(context.Background(), ticket))

	err := svc.HandlePaymentEvent(context.Background(), []byte(`{}`), "sig")
	assert.True(t, errorutil.IsCode(err, "NOT_FOUND"), "got %v", err)

	// the ref lands, then the provider redelivers the same event id;
	// the failed attempt must not have recorded the id as processed
	require.NoError(t, tickets.SetPaymentRef(context.Background(), ticket.ID, "cs_abc"))
	require.NoError(t, svc.HandlePaymentEvent(context.Background(), []byte(`{}`), "sig"))

	updated, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusActive, updated.Status)
}

func TestHandlePaymentEventUnknownRef(t *testing.T) {
	provider := &fakeProvider{verifyEvent: succeededEvent("evt_1", "cs_missing")}
	svc, _ := newReconciliationFixture(provider, nil)

	err := svc.HandlePaymentEvent(context.Background(), []byte(`{}`), "sig")
	assert.True(t, errorutil.IsCode(err, "NOT_FOUND"), "got %v", err)
}

func TestHandlePaymentEventInvalidSignature(t *testing.T) {
	provider := &fakeProvider{verifyErr: errorutil.NewSignatureInvalid(assert.AnError)}
	svc, tickets := newReconciliationFixture(provider, nil)
	seedTicket(t, tickets, domain.TicketStatusPendingPayment, "cs_abc")

	err := svc.HandlePaymentEvent(context.Background(), []byte(`{}`), "bad-sig")
	assert.True(t, errorutil.IsCode(err, "SIGNATURE_INVALID"), "got %v", err)
	// rejected before any lookup
	assert.Zero(t, tickets.getByRefCalls)
	assert.Zero(t, tickets.statusWrites)
}

func TestHandlePaymentEventUnknownKindAcked(t *testing.T) {
	provider := &fakeProvider{verifyEvent: &payment.Event{ID: "evt_2", Kind: payment.EventUnknown}}
	svc, tickets := newReconciliationFixture(provider, nil)
	seedTicket(t, tickets, domain.TicketStatusPendingPayment, "cs_abc")

	err := svc.HandlePaymentEvent(context.Background(), []byte(`{}`), "sig")
	assert.NoError(t, err)
	assert.Zero(t, tickets.getByRefCalls)
}

func TestHandlePaymentEventStaleForInactiveTicket(t *testing.T) {
	provider := &fakeProvider{verifyEvent: succeededEvent("evt_1", "cs_abc")}
	svc, tickets := newReconciliationFixture(provider, nil)
	ticket := seedTicket(t, tickets, domain.TicketStatusInactive, "cs_abc")

	err := svc.HandlePaymentEvent(context.Background(), []byte(`{}`), "sig")
	assert.True(t, errorutil.IsCode(err, "STALE_EVENT"), "got %v", err)

	current, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInactive, current.Status)
}
