package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mealpass/ticket-service/internal/domain"
	apperrors "github.com/mealpass/ticket-service/pkg/errorutil"
)

// RequireUser ensures a caller is authenticated.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.User == nil {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// RequireAdmin ensures the authenticated caller has the ADMIN tier.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.User == nil {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.User.Tier != domain.TierAdmin {
			return apperrors.NewForbidden("admin required")
		}
		return c.Next()
	}
}
