package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mealpass/ticket-service/internal/api/dto"
	"github.com/mealpass/ticket-service/internal/auth"
	"github.com/mealpass/ticket-service/internal/domain"
	"github.com/mealpass/ticket-service/internal/service"
	apperrors "github.com/mealpass/ticket-service/pkg/errorutil"
)

// PurchaseHandler exposes the purchase endpoint.
type PurchaseHandler struct {
	service *service.PurchaseService
}

// NewPurchaseHandler constructs handler.
func NewPurchaseHandler(purchaseService *service.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{service: purchaseService}
}

// Purchase POST /tickets/purchase.
func (h *PurchaseHandler) Purchase(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}

	var req dto.PurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	meal, ok := domain.ParseMeal(req.Meal)
	if !ok {
		return apperrors.NewValidationError("meal must be LUNCH or DINNER", map[string]any{"meal": req.Meal})
	}
	tierClass, ok := domain.ParseTierClass(req.TierClass)
	if !ok {
		return apperrors.NewValidationError("unknown tier class", map[string]any{"tier_class": req.TierClass})
	}

	session, err := h.service.InitiatePurchase(c.Context(), principal.User.ID, meal, tierClass)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.PurchaseResponse{
			TicketID:    session.TicketID,
			RedirectURL: session.RedirectURL,
		},
	})
}
