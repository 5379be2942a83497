package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mealpass/ticket-service/internal/domain"
	"github.com/mealpass/ticket-service/internal/payment"
	"github.com/mealpass/ticket-service/internal/repository"
)

// memTicketRepo mirrors the Postgres repository's contract in memory:
// quota-index conflicts on insert, write-once payment refs and compare-and-set
// status updates, all serialized under one mutex.
type memTicketRepo struct {
	mu            sync.Mutex
	tickets       map[string]*domain.Ticket
	getByRefCalls int
	statusWrites  int
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ticket.PurchasedAt.IsZero() {
		ticket.PurchasedAt = time.Now()
	}
	if ticket.CountsAgainstQuota() {
		for _, existing := range r.tickets {
			if existing.OwnerID == ticket.OwnerID &&
				existing.Meal == ticket.Meal &&
				existing.TierClass == ticket.TierClass &&
				existing.Status != domain.TicketStatusInactive &&
				existing.PurchasedOn(ticket.PurchasedAt) {
				return repository.ErrDuplicateTicket
			}
		}
	}

	ticket.ID = uuid.NewString()
	ticket.UpdatedAt = ticket.PurchasedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *memTicketRepo) GetByPaymentRef(_ context.Context, ref string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getByRefCalls++
	for _, ticket := range r.tickets {
		if ticket.ExternalPaymentRef != nil && *ticket.ExternalPaymentRef == ref {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) SetPaymentRef(_ context.Context, ticketID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	if ticket.ExternalPaymentRef != nil {
		return repository.ErrPaymentRefAlreadySet
	}
	ticket.ExternalPaymentRef = &ref
	ticket.UpdatedAt = time.Now()
	return nil
}

func (r *memTicketRepo) UpdateStatusIf(_ context.Context, ticketID string, from, to domain.TicketStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok || ticket.Status != from {
		return false, nil
	}
	if to != domain.TicketStatusInactive && ticket.TierClass != domain.TierClassStandard {
		for id, other := range r.tickets {
			if id == ticketID {
				continue
			}
			if other.OwnerID == ticket.OwnerID &&
				other.Meal == ticket.Meal &&
				other.TierClass == ticket.TierClass &&
				other.Status != domain.TicketStatusInactive &&
				other.PurchasedOn(ticket.PurchasedAt) {
				return false, repository.ErrDuplicateTicket
			}
		}
	}
	ticket.Status = to
	ticket.UpdatedAt = time.Now()
	r.statusWrites++
	return true, nil
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.OwnerID != nil && ticket.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Meal != nil && ticket.Meal != *filter.Meal {
			continue
		}
		if filter.TierClass != nil && ticket.TierClass != *filter.TierClass {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		if filter.PurchasedOn != nil && !ticket.PurchasedOn(*filter.PurchasedOn) {
			continue
		}
		result = append(result, *ticket)
	}
	return result, nil
}

func ticketFilterForOwner(ownerID string) repository.TicketFilter {
	return repository.TicketFilter{OwnerID: &ownerID}
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo(users ...*domain.User) *memUserRepo {
	repo := &memUserRepo{users: make(map[string]*domain.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// fakeProvider fabricates checkout sessions and replays preconfigured webhook
// verification results.
type fakeProvider struct {
	mu          sync.Mutex
	sessions    int
	failCreate  bool
	verifyEvent *payment.Event
	verifyErr   error
}

func (p *fakeProvider) CreateSession(_ context.Context, input payment.SessionInput) (*payment.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCreate {
		return nil, fmt.Errorf("provider down")
	}
	p.sessions++
	id := fmt.Sprintf("cs_test_%d", p.sessions)
	return &payment.Session{
		ProviderPaymentID: id,
		RedirectURL:       "https://checkout.example/" + id,
	}, nil
}

func (p *fakeProvider) VerifyEvent(_ []byte, _ string) (*payment.Event, error) {
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	return p.verifyEvent, nil
}

type fakeDedup struct {
	seen map[string]bool
}

func (d *fakeDedup) Seen(_ context.Context, eventID string) bool {
	return d.seen[eventID]
}

func (d *fakeDedup) Mark(_ context.Context, eventID string) {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	d.seen[eventID] = true
}
