package utils

import "github.com/gofiber/fiber/v2"

// APIResponse is the JSON envelope every REST handler answers with.
type APIResponse struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	Data          interface{} `json:"data,omitempty"`
	Meta          interface{} `json:"meta,omitempty"`
	Details       interface{} `json:"details,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// SendSuccess answers 200 with data.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return write(c, fiber.StatusOK, APIResponse{Success: true, Message: message, Data: data})
}

// SendSuccessWithStatus answers with data under an explicit status, e.g. 201 for created messages.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	return write(c, status, APIResponse{Success: true, Message: message, Data: data})
}

// OK answers 200 with data and page or cursor metadata.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	return write(c, fiber.StatusOK, APIResponse{Success: true, Message: message, Data: data, Meta: meta})
}

// SendError answers with a bare error message.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, message, nil)
}

// Fail answers with an error message and optional field details. The
// request correlation id is echoed so clients can quote it.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	correlationID, _ := c.Locals("correlation_id").(string)
	return write(c, status, APIResponse{Message: message, Details: details, CorrelationID: correlationID})
}

func write(c *fiber.Ctx, status int, body APIResponse) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	if body.Message == "" {
		body.Message = "success"
		if !body.Success {
			body.Message = "error"
		}
	}
	return c.Status(status).JSON(body)
}
