package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mealpass/ticket-service/internal/domain"
	"github.com/mealpass/ticket-service/pkg/errorutil"
)

// ErrDuplicateTicket is returned when an insert loses the race on the daily
// quota index. The orchestrator maps it to QUOTA_EXCEEDED.
var ErrDuplicateTicket = errors.New("duplicate ticket for quota window")

// ErrPaymentRefAlreadySet is returned when a second write to the write-once
// external payment reference is attempted.
var ErrPaymentRefAlreadySet = errors.New("external payment ref already set")

// TicketFilter captures ticket listing parameters. One parameterized lookup
// replaces per-combination finder methods.
type TicketFilter struct {
	OwnerID     *string
	Meal        *domain.Meal
	TierClass   *domain.TierClass
	Statuses    []domain.TicketStatus
	PurchasedOn *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence. Price, tier class and the
// external payment reference are write-once at this boundary: no update path
// exists for the first two, and SetPaymentRef rejects reassignment.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByPaymentRef(ctx context.Context, ref string) (*domain.Ticket, error)
	SetPaymentRef(ctx context.Context, ticketID, ref string) error
	UpdateStatusIf(ctx context.Context, ticketID string, from, to domain.TicketStatus) (bool, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (owner_user_id, meal, tier_class, price, status, purchased_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, purchased_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.OwnerID,
		ticket.Meal,
		ticket.TierClass,
		ticket.Price,
		ticket.Status,
		ticket.PurchasedAt,
	).Scan(&ticket.ID, &ticket.PurchasedAt, &ticket.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateTicket
	}
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, owner_user_id, meal, tier_class, price, status, external_payment_ref, purchased_at, updated_at
        FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByPaymentRef(ctx context.Context, ref string) (*domain.Ticket, error) {
	const query = `
        SELECT id, owner_user_id, meal, tier_class, price, status, external_payment_ref, purchased_at, updated_at
        FROM tickets WHERE external_payment_ref=$1`
	return r.fetchSingle(ctx, query, ref)
}

// SetPaymentRef records the provider payment id exactly once. The guarded
// UPDATE enforces write-once at the storage boundary rather than relying on
// caller discipline.
func (r *ticketRepository) SetPaymentRef(ctx context.Context, ticketID, ref string) error {
	const query = `
        UPDATE tickets SET external_payment_ref=$1, updated_at=NOW()
        WHERE id=$2 AND external_payment_ref IS NULL`
	cmd, err := r.pool.Exec(ctx, query, ref, ticketID)
	if err != nil {
		if isUniqueViolation(err) {
			return errorutil.NewConflict("payment reference already in use", map[string]any{"ref": ref})
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		existing, err := r.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if existing.ExternalPaymentRef != nil {
			return ErrPaymentRefAlreadySet
		}
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateStatusIf transitions the ticket status only if the current status is
// exactly from, reporting whether a row changed. This compare-and-set is the
// serialization point for reconciliation races.
func (r *ticketRepository) UpdateStatusIf(ctx context.Context, ticketID string, from, to domain.TicketStatus) (bool, error) {
	const query = `
        UPDATE tickets SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status=$3`
	cmd, err := r.pool.Exec(ctx, query, to, ticketID, from)
	if err != nil {
		// a reactivation can collide with a live ticket in the same quota window
		if isUniqueViolation(err) {
			return false, ErrDuplicateTicket
		}
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.OwnerID,
		&ticket.Meal,
		&ticket.TierClass,
		&ticket.Price,
		&ticket.Status,
		&ticket.ExternalPaymentRef,
		&ticket.PurchasedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT id, owner_user_id, meal, tier_class, price, status, external_payment_ref, purchased_at, updated_at
             FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_user_id=$%d", len(args)))
	}
	if filter.Meal != nil {
		args = append(args, *filter.Meal)
		clauses = append(clauses, fmt.Sprintf("meal=$%d", len(args)))
	}
	if filter.TierClass != nil {
		args = append(args, *filter.TierClass)
		clauses = append(clauses, fmt.Sprintf("tier_class=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.PurchasedOn != nil {
		args = append(args, *filter.PurchasedOn)
		clauses = append(clauses, fmt.Sprintf("purchased_at::date = $%d::date", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY purchased_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.OwnerID,
			&ticket.Meal,
			&ticket.TierClass,
			&ticket.Price,
			&ticket.Status,
			&ticket.ExternalPaymentRef,
			&ticket.PurchasedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
