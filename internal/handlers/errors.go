package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"labelgen/internal/chrome"
	"labelgen/internal/label"
	u "labelgen/internal/utils"
)

// ErrorHandler renders every error as {"error":{"code","message"}}. Field
// errors also carry "field" and "reason".
func ErrorHandler(c *fiber.Ctx, err error) error {
	code, body := ErrorResponse(err)
	msg, _ := body["message"].(string)
	if code >= fiber.StatusInternalServerError {
		u.Error("Request failed", "path", c.Path(), "status", code, "message", msg, "error", err)
	} else {
		u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)
	}
	return c.Status(code).JSON(fiber.Map{"error": body})
}

// ErrorResponse maps a pipeline error to a status and error body.
func ErrorResponse(err error) (int, fiber.Map) {
	var (
		fe  *fiber.Error
		ee  *label.EncodingError
		re  *label.RenderingError
		ce  *label.CompositionError
		msg string
	)
	code := fiber.StatusInternalServerError

	switch {
	case errors.As(err, &fe):
		code, msg = fe.Code, fe.Message
	case errors.As(err, &ee):
		return fiber.StatusUnprocessableEntity, fiber.Map{
			"code":    fiber.StatusUnprocessableEntity,
			"message": ee.Error(),
			"field":   ee.Field,
			"reason":  string(ee.Reason),
		}
	case errors.Is(err, label.ErrNoTemplate):
		code, msg = fiber.StatusServiceUnavailable, "No label template available"
	case errors.Is(err, context.DeadlineExceeded):
		code, msg = fiber.StatusRequestTimeout, "Label rendering took too long"
	case chrome.IsSessionInterrupted(err):
		code, msg = fiber.StatusServiceUnavailable, "Chrome session interrupted"
	case errors.As(err, &re):
		msg = "Barcode rendering failed"
	case errors.As(err, &ce):
		code, msg = fiber.StatusUnprocessableEntity, ce.Error()
	default:
		msg = "Internal Server Error"
	}
	return code, fiber.Map{"code": code, "message": msg}
}
