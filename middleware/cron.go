package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// CronSecretMiddleware guards internal job triggers with the X-Cron-Secret header.
func CronSecretMiddleware(secret string, log *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get("X-Cron-Secret")
		if secret == "" || got == "" || !tokenEqual(got, secret) {
			log.WithFields(logrus.Fields{"path": c.Path(), "ip": c.IP()}).Warn("cron trigger rejected")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized",
			})
		}
		return c.Next()
	}
}
