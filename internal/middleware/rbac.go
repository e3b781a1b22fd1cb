package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/newlearn-go-api/internal/utils"
)

// RequireRole lets the request through only when the authenticated role is one
// of roles. It must run after JWTProtected.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if UserID(c) == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
		}
		if _, ok := allowed[strings.ToLower(UserRole(c))]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
