package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mealpass/ticket-service/internal/service"
)

// WebhookHandler receives provider payment events.
type WebhookHandler struct {
	service *service.ReconciliationService
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(reconciliation *service.ReconciliationService) *WebhookHandler {
	return &WebhookHandler{service: reconciliation}
}

// HandlePaymentEvent POST /payments/webhook. A 2xx acknowledges the event;
// any error response triggers the provider's redelivery.
func (h *WebhookHandler) HandlePaymentEvent(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get("Stripe-Signature")

	if err := h.service.HandlePaymentEvent(c.Context(), payload, signature); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"received": true})
}
