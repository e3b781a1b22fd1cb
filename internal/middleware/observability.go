package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/newlearn-go-api/internal/observability"
)

const apiPrefix = "/api/v2"

// Observability records request metrics and one access log line per API call.
// Long-lived realtime routes (the websocket upgrade and the notification
// stream) are counted but kept out of the latency histogram.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()
	logger = logger.With().Str("component", "http").Logger()

	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(c.Path(), apiPrefix) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		code := strconv.Itoa(status)
		streaming := isStreamRoute(route)

		observability.APIRequests().WithLabelValues(method, route, code).Inc()
		if !streaming {
			observability.APILatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
		}
		if status >= fiber.StatusBadRequest {
			observability.APIErrors().WithLabelValues(method, route, code).Inc()
		}

		event := logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error()
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		}

		event = event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("method", method).
			Str("route", route).
			Int("status", status)
		if userID := UserID(c); userID != "" {
			event = event.Str("user_id", userID)
		}
		if streaming {
			event.Dur("session", elapsed).Msg("stream closed")
			return err
		}
		event.
			Float64("latency_ms", float64(elapsed)/float64(time.Millisecond)).
			Str("latency_bucket", latencyBucket(elapsed)).
			Msg("request completed")

		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" {
		return route.Path
	}
	return c.Path()
}

func isStreamRoute(route string) bool {
	return strings.HasSuffix(route, "/realtime/ws") || strings.HasSuffix(route, "/notifications/stream")
}

// latencyBucket groups request latency against the 250ms delivery budget.
func latencyBucket(d time.Duration) string {
	switch {
	case d <= 50*time.Millisecond:
		return "<=50ms"
	case d <= 100*time.Millisecond:
		return "<=100ms"
	case d <= 250*time.Millisecond:
		return "<=250ms"
	default:
		return ">250ms"
	}
}
