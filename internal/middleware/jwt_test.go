package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/newlearn-go-api/internal/middleware"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newIdentityApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.JWTProtected(testSecret))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": middleware.UserID(c), "role": middleware.UserRole(c)})
	})
	return app
}

func TestJWTProtectedStoresStringIdentity(t *testing.T) {
	app := newIdentityApp()
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "64f0c2", "role": "Instructor", "exp": time.Now().Add(time.Hour).Unix()})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "64f0c2", payload["user_id"])
	require.Equal(t, "instructor", payload["role"])
}

func TestJWTProtectedAcceptsQueryToken(t *testing.T) {
	app := newIdentityApp()
	token := signToken(t, testSecret, jwt.MapClaims{"user_id": float64(42)})

	req := httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "42", payload["user_id"])
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	app := newIdentityApp()

	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic abc",
		"wrong secret": "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": "1"}),
		"expired":      "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no subject":   "Bearer " + signToken(t, testSecret, jwt.MapClaims{"role": "student"}),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}
