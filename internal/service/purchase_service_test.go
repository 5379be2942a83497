package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mealpass/ticket-service/internal/config"
	"github.com/mealpass/ticket-service/internal/domain"
	"github.com/mealpass/ticket-service/internal/pricing"
	"github.com/mealpass/ticket-service/internal/repository"
	"github.com/mealpass/ticket-service/pkg/errorutil"
)

func testPrices() pricing.Table {
	return pricing.Table{
		StandardLunch:    decimal.RequireFromString("11.45"),
		StandardDinner:   decimal.RequireFromString("11.90"),
		DiscountedLunch:  decimal.RequireFromString("5.72"),
		DiscountedDinner: decimal.RequireFromString("5.45"),
	}
}

func testPaymentCfg() config.PaymentConfig {
	return config.PaymentConfig{
		Currency:   "brl",
		SuccessURL: "https://app.example/my-tickets",
		CancelURL:  "https://app.example/my-tickets",
	}
}

func newPurchaseFixture(t *testing.T, user *domain.User) (*PurchaseService, *memTicketRepo, *fakeProvider) {
	t.Helper()
	tickets := newMemTicketRepo()
	provider := &fakeProvider{}
	svc := NewPurchaseService(PurchaseDependencies{
		UserRepo:   newMemUserRepo(user),
		TicketRepo: tickets,
		Provider:   provider,
		Prices:     testPrices(),
		PaymentCfg: testPaymentCfg(),
		Logger:     zap.NewNop(),
	})
	return svc, tickets, provider
}

func TestInitiatePurchaseStandard(t *testing.T) {
	user := &domain.User{ID: "user42", Tier: domain.TierExternal}
	svc, tickets, _ := newPurchaseFixture(t, user)

	session, err := svc.InitiatePurchase(context.Background(), user.ID, domain.MealLunch, domain.TierClassStandard)
	require.NoError(t, err)
	require.NotEmpty(t, session.TicketID)
	assert.Contains(t, session.RedirectURL, "https://checkout.example/")

	ticket, err := tickets.GetByID(context.Background(), session.TicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingPayment, ticket.Status)
	assert.Equal(t, "11.45", ticket.Price.StringFixed(2))
	assert.Equal(t, domain.TierClassStandard, ticket.TierClass)
	require.NotNil(t, ticket.ExternalPaymentRef)
	assert.Equal(t, "cs_test_1", *ticket.ExternalPaymentRef)
}

func TestInitiatePurchaseUserNotFound(t *testing.T) {
	svc, _, _ := newPurchaseFixture(t, &domain.User{ID: "someone", Tier: domain.TierStudent})

	_, err := svc.InitiatePurchase(context.Background(), "missing", domain.MealLunch, domain.TierClassStandard)
	assert.True(t, errorutil.IsCode(err, "USER_NOT_FOUND"), "got %v", err)
}

func TestInitiatePurchaseTierRejected(t *testing.T) {
	user := &domain.User{ID: "ext1", Tier: domain.TierExternal}
	svc, tickets, provider := newPurchaseFixture(t, user)

	_, err := svc.InitiatePurchase(context.Background(), user.ID, domain.MealLunch, domain.TierClassDiscounted)
	assert.True(t, errorutil.IsCode(err, "TIER_NOT_ELIGIBLE"), "got %v", err)

	// rejection leaves no partial state behind
	all, err := tickets.ListWithFilter(context.Background(), ticketFilterForOwner(user.ID))
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Zero(t, provider.sessions)
}

func TestInitiatePurchaseSecondDiscountedSameDay(t *testing.T) {
	user := &domain.User{ID: "stu1", Tier: domain.TierStudent}
	svc, _, _ := newPurchaseFixture(t, user)

	_, err := svc.InitiatePurchase(context.Background(), user.ID, domain.MealLunch, domain.TierClassDiscounted)
	require.NoError(t, err)

	_, err = svc.InitiatePurchase(context.Background(), user.ID, domain.MealLunch, domain.TierClassDiscounted)
	assert.True(t, errorutil.IsCode(err, "QUOTA_EXCEEDED"), "got %v", err)
}

func TestInitiatePurchaseProviderFailureLeavesPendingTicket(t *testing.T) {
	user := &domain.User{ID: "stu2", Tier: domain.TierStudent}
	svc, tickets, provider := newPurchaseFixture(t, user)
	provider.failCreate = true

	_, err := svc.InitiatePurchase(context.Background(), user.ID, domain.MealDinner, domain.TierClassDiscounted)
	assert.True(t, errorutil.IsCode(err, "PROVIDER_UNAVAILABLE"), "got %v", err)

	all, err := tickets.ListWithFilter(context.Background(), ticketFilterForOwner(user.ID))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.TicketStatusPendingPayment, all[0].Status)
	assert.Nil(t, all[0].ExternalPaymentRef)
}

func TestInitiatePurchaseConcurrentQuota(t *testing.T) {
	user := &domain.User{ID: "stu3", Tier: domain.TierStudent}
	svc, tickets, _ := newPurchaseFixture(t, user)

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.InitiatePurchase(context.Background(), user.ID, domain.MealLunch, domain.TierClassDiscounted)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, quotaRejections := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errorutil.IsCode(err, "QUOTA_EXCEEDED"):
			quotaRejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, quotaRejections)

	all, err := tickets.ListWithFilter(context.Background(), ticketFilterForOwner(user.ID))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPaymentRefWriteOnce(t *testing.T) {
	tickets := newMemTicketRepo()
	ticket := &domain.Ticket{
		OwnerID:   "u1",
		Meal:      domain.MealLunch,
		TierClass: domain.TierClassStandard,
		Status:    domain.TicketStatusPendingPayment,
	}
	require.NoError(t, tickets.Create(context.Background(), ticket))
	require.NoError(t, tickets.SetPaymentRef(context.Background(), ticket.ID, "cs_first"))

	err := tickets.SetPaymentRef(context.Background(), ticket.ID, "cs_second")
	assert.ErrorIs(t, err, repository.ErrPaymentRefAlreadySet)

	current, err := tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, current.ExternalPaymentRef)
	assert.Equal(t, "cs_first", *current.ExternalPaymentRef)
}

func TestInitiatePurchaseNextDayAllowed(t *testing.T) {
	user := &domain.User{ID: "stu4", Tier: domain.TierStudent}
	svc, _, _ := newPurchaseFixture(t, user)

	day1 := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day1 }
	_, err := svc.InitiatePurchase(context.Background(), user.ID, domain.MealLunch, domain.TierClassDiscounted)
	require.NoError(t, err)

	svc.now = func() time.Time { return day1.Add(24 * time.Hour) }
	_, err = svc.InitiatePurchase(context.Background(), user.ID, domain.MealLunch, domain.TierClassDiscounted)
	assert.NoError(t, err)
}
