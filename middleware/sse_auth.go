package middleware

import (
	"context"
	"strings"

	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// TokenValidator resolves an end-user access token to an identity.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.Identity, error)
}

// SSEAuthMiddleware validates `token` and `device_id` query params against the auth
// service. EventSource clients cannot set headers, so streams bypass the gateway headers.
func SSEAuthMiddleware(validator TokenValidator, log *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))
		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or device_id in query",
			})
		}

		identity, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			log.WithFields(logrus.Fields{"device_id": deviceID, "path": c.Path()}).
				WithError(err).Warn("sse token validation failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals(LocalUserID, identity.UserID)
		c.Locals(LocalUserRoles, identity.Roles)
		return c.Next()
	}
}
