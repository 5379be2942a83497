package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mealpass/ticket-service/internal/api/dto"
	"github.com/mealpass/ticket-service/internal/auth"
	"github.com/mealpass/ticket-service/internal/domain"
	"github.com/mealpass/ticket-service/internal/service"
	apperrors "github.com/mealpass/ticket-service/pkg/errorutil"
)

// TicketsHandler manages ticket listing, lookup and the admin status toggle.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListOwn GET /tickets.
func (h *TicketsHandler) ListOwn(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		return err
	}
	limit, offset := parsePagination(c)
	tickets, err := h.service.ListUserTickets(c.Context(), principal.User.ID, statuses, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// GetOwn GET /tickets/:id.
func (h *TicketsHandler) GetOwn(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.service.GetTicketForUser(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Options GET /tickets/options.
func (h *TicketsHandler) Options(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	options, err := h.service.DailyOptions(c.Context(), principal.User.ID)
	if err != nil {
		return err
	}
	resp := make([]dto.MealOptionResponse, 0, len(options))
	for _, opt := range options {
		resp = append(resp, dto.MealOptionResponse{
			Meal:      opt.Meal,
			TierClass: opt.TierClass,
			Remaining: opt.Remaining,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// ListAll GET /admin/tickets.
func (h *TicketsHandler) ListAll(c *fiber.Ctx) error {
	filter := service.TicketListFilter{}
	if owner := c.Query("owner_id"); owner != "" {
		filter.OwnerID = &owner
	}
	if mealStr := c.Query("meal"); mealStr != "" {
		meal, ok := domain.ParseMeal(mealStr)
		if !ok {
			return apperrors.NewValidationError("unknown meal", map[string]any{"meal": mealStr})
		}
		filter.Meal = &meal
	}
	if classStr := c.Query("tier_class"); classStr != "" {
		tierClass, ok := domain.ParseTierClass(classStr)
		if !ok {
			return apperrors.NewValidationError("unknown tier class", map[string]any{"tier_class": classStr})
		}
		filter.TierClass = &tierClass
	}
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		return err
	}
	filter.Statuses = statuses
	if dateStr := c.Query("purchased_on"); dateStr != "" {
		day, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return apperrors.NewValidationError("purchased_on must be YYYY-MM-DD", nil)
		}
		filter.PurchasedOn = &day
	}
	filter.Limit, filter.Offset = parsePagination(c)

	tickets, err := h.service.ListTickets(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// SetStatus PUT /admin/tickets/:id/status.
func (h *TicketsHandler) SetStatus(c *fiber.Ctx) error {
	var req dto.SetTicketStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status, ok := domain.ParseTicketStatus(req.Status)
	if !ok {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": req.Status})
	}
	ticket, err := h.service.SetTicketStatus(c.Context(), c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func parseStatuses(raw string) ([]domain.TicketStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var statuses []domain.TicketStatus
	for _, part := range strings.Split(raw, ",") {
		status, ok := domain.ParseTicketStatus(strings.TrimSpace(part))
		if !ok {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": part})
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func parsePagination(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                 ticket.ID,
		OwnerID:            ticket.OwnerID,
		Meal:               ticket.Meal,
		TierClass:          ticket.TierClass,
		Price:              ticket.Price.StringFixed(2),
		Status:             ticket.Status,
		ExternalPaymentRef: ticket.ExternalPaymentRef,
		PurchasedAt:        ticket.PurchasedAt,
		UpdatedAt:          ticket.UpdatedAt,
	}
}

func ticketResponses(tickets []domain.Ticket) []dto.TicketResponse {
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return items
}
