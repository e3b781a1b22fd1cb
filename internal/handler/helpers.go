package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/newlearn-go-api/internal/middleware"
	"github.com/noah-isme/newlearn-go-api/internal/service"
	"github.com/noah-isme/newlearn-go-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseUintParamValue(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	if value == "" {
		return 0, fmt.Errorf("%s required", key)
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(parsed), nil
}

func withRequestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case isValidationError(err):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrMessageDeleted),
		errors.Is(err, service.ErrDiscussionNotFound),
		errors.Is(err, service.ErrCommentNotFound),
		errors.Is(err, service.ErrNotificationNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrMessageForbidden),
		errors.Is(err, service.ErrDiscussionForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrSelfMessage),
		errors.Is(err, service.ErrUploadMissing),
		errors.Is(err, service.ErrUploadScanFailed):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrUploadTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrUploadTypeNotAllowed):
		return fiber.StatusUnsupportedMediaType
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes the error envelope. Internal failures are logged and
// never leak their message to the caller.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	status := statusFor(err)
	switch {
	case status == fiber.StatusInternalServerError:
		requestLogger(logger, c).Error().Err(err).Msg(action + " failed")
		return utils.SendError(c, status, action+" failed")
	case isValidationError(err):
		return utils.Fail(c, status, "validation failed", validationDetails(err))
	default:
		return utils.SendError(c, status, err.Error())
	}
}
