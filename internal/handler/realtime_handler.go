package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/newlearn-go-api/internal/middleware"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
)

// RealtimeHandler upgrades authenticated requests into gateway sessions.
type RealtimeHandler struct {
	gateway *realtime.Gateway
	baseCtx context.Context
	logger  zerolog.Logger
}

// NewRealtimeHandler wires the websocket endpoint. ctx bounds every session
// and is cancelled on shutdown.
func NewRealtimeHandler(ctx context.Context, gateway *realtime.Gateway, logger zerolog.Logger) *RealtimeHandler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RealtimeHandler{
		gateway: gateway,
		baseCtx: ctx,
		logger:  logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("correlation_id", middleware.GetCorrelationID(c))
		return c.Next()
	})

	router.Get("/ws", websocket.New(h.serve))
}

func (h *RealtimeHandler) serve(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}
	role, _ := conn.Locals("user_role").(string)
	correlation, _ := conn.Locals("correlation_id").(string)

	ctx := middleware.ContextWithCorrelation(h.baseCtx, correlation)
	identity := realtime.Identity{UserID: userID, Role: role}

	h.logger.Info().Str("user_id", userID).Str("correlation_id", correlation).Msg("realtime websocket connected")
	h.gateway.Serve(ctx, conn, identity)
	h.logger.Info().Str("user_id", userID).Msg("realtime websocket disconnected")
}
