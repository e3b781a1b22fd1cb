package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/newlearn-go-api/internal/utils"
)

// ErrInvalidToken is returned when a bearer token cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal extracted from a token.
type Identity struct {
	UserID string
	Role   string
}

// JWTProtected returns a middleware that validates JWT bearer tokens.
// Browsers cannot attach headers to websocket or EventSource requests, so the
// access_token query parameter is accepted as a fallback.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		identity, err := ParseToken(secret, tokenString)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		c.Locals("user_id", identity.UserID)
		if identity.Role != "" {
			c.Locals("user_role", identity.Role)
		}

		return c.Next()
	}
}

// ParseToken verifies an HMAC signed token and returns the identity it carries.
func ParseToken(secret, tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid token claims")
	}

	userID := extractUserIDFromClaims(claims)
	if userID == "" {
		return Identity{}, fmt.Errorf("token subject missing")
	}

	return Identity{UserID: userID, Role: extractUserRoleFromClaims(claims)}, nil
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authorization := c.Get("Authorization")
	if authorization == "" {
		if token := strings.TrimSpace(c.Query("access_token")); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("authorization header missing")
	}

	const bearer = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
		return "", fmt.Errorf("invalid authorization header")
	}

	tokenString := strings.TrimSpace(authorization[len(bearer):])
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	return tokenString, nil
}

func extractUserIDFromClaims(claims jwt.MapClaims) string {
	keys := []string{"sub", "user_id", "id"}
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if normalized := normalizeUserID(value); normalized != "" {
				return normalized
			}
		}
	}

	return ""
}

func normalizeUserID(value interface{}) string {
	switch v := value.(type) {
	case float64:
		if v < 0 {
			return ""
		}
		return strconv.FormatUint(uint64(v), 10)
	case string:
		return strings.TrimSpace(v)
	case int:
		if v < 0 {
			return ""
		}
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	candidates := []string{"role", "roles"}
	for _, key := range candidates {
		if value, ok := claims[key]; ok {
			if role := normalizeRole(value); role != "" {
				return role
			}
		}
	}
	return ""
}

func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				role := strings.ToLower(strings.TrimSpace(str))
				if role != "" {
					return role
				}
			}
		}
	default:
		return ""
	}
	return ""
}

// UserID returns the authenticated user id stored by JWTProtected.
func UserID(c *fiber.Ctx) string {
	if v, ok := c.Locals("user_id").(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// UserRole returns the authenticated role stored by JWTProtected.
func UserRole(c *fiber.Ctx) string {
	if v, ok := c.Locals("user_role").(string); ok {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return ""
}
