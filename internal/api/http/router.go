package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mealpass/ticket-service/internal/api/http/handlers"
	"github.com/mealpass/ticket-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Purchase       *handlers.PurchaseHandler
	Webhook        *handlers.WebhookHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)

	// provider callbacks authenticate via signature, not bearer tokens
	app.Post("/payments/webhook", cfg.Webhook.HandlePaymentEvent)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireUser())
	tickets.Post("/purchase", cfg.Purchase.Purchase)
	tickets.Get("/options", cfg.Tickets.Options)
	tickets.Get("/", cfg.Tickets.ListOwn)
	tickets.Get("/:id", cfg.Tickets.GetOwn)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Get("/tickets", cfg.Tickets.ListAll)
	admin.Put("/tickets/:id/status", cfg.Tickets.SetStatus)
}
