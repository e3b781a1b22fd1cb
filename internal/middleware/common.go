package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Config customises the shared middleware chain.
type Config struct {
	Logger *zerolog.Logger
	// AllowOrigins is passed to CORS. Defaults to "*".
	AllowOrigins string
}

// Register installs recovery, correlation, access logging and CORS on app.
func Register(app *fiber.App, cfg Config) {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	origins := cfg.AllowOrigins
	if origins == "" {
		origins = "*"
	}

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logger.Error().
				Str("correlation_id", GetCorrelationID(c)).
				Str("path", c.Path()).
				Interface("panic", e).
				Msg("recovered from panic")
		},
	}))
	app.Use(CorrelationID())
	app.Use(Observability(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods:  "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		ExposeHeaders: "X-Correlation-ID",
	}))
}
