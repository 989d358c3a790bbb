package handlers

import (
	"errors"

	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// fail maps a ledger error onto an HTTP status and a stable error code.
// Expected business outcomes never surface as 500.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusServiceUnavailable
	switch services.KindOf(err) {
	case services.KindValidation:
		status = fiber.StatusBadRequest
	case services.KindNotFound:
		status = fiber.StatusNotFound
	case services.KindConflict:
		status = fiber.StatusConflict
	case services.KindAuthorization:
		status = fiber.StatusForbidden
	}

	msg := "service temporarily unavailable"
	var le *services.LedgerError
	if errors.As(err, &le) && le.Kind != services.KindInfrastructure {
		msg = le.Message
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   services.ReasonCode(err),
		"message": msg,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   "InvalidRequest",
		"message": msg,
	})
}
