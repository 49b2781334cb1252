package middleware

import (
	"strings"

	"member-onboarding/internal/config"
	"member-onboarding/internal/utils"

	"github.com/gofiber/fiber/v2"
)

const devTokenPrefix = "dev-token-"

// AuthMiddleware validates the bearer token and stores its claims in
// c.Locals. Dev tokens are accepted in development only.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization header is required", nil)
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid authorization header format", nil)
		}
		token := parts[1]

		if cfg.IsDevelopment() && strings.HasPrefix(token, devTokenPrefix) {
			c.Locals("user_id", 1)
			c.Locals("username", "admin")
			c.Locals("role", "admin")
			return c.Next()
		}

		claims, err := utils.ValidateToken(token, cfg.JWTSecret)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired token", nil)
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("username", claims.Username)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}

func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if role, _ := c.Locals("role").(string); role != "admin" {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Admin access required", nil)
		}
		return c.Next()
	}
}
