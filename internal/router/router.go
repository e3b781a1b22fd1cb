package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/newlearn-go-api/internal/config"
	"github.com/noah-isme/newlearn-go-api/internal/handler"
	"github.com/noah-isme/newlearn-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler         *handler.ChatHandler
	DiscussionHandler   *handler.DiscussionHandler
	NotificationHandler *handler.NotificationHandler
	RealtimeHandler     *handler.RealtimeHandler
	HealthProbes        map[string]handler.HealthProbe
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2", jwtMiddleware)

	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(v2.Group("/realtime"))
	}

	if deps.ChatHandler != nil {
		deps.ChatHandler.Register(v2.Group("/chat"))
	}

	// Discussion routes span /lectures, /discussions and /comments.
	if deps.DiscussionHandler != nil {
		deps.DiscussionHandler.Register(v2)
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(v2.Group("/notifications"))
	}
}
