package handlers

import (
	"referral-ledger/middleware"
	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// SetupInternalRoutes mounts the cron trigger and metrics. They must be registered
// before the gateway middleware: callers are the in-cluster scheduler and scraper.
func SetupInternalRoutes(app *fiber.App, scheduler *services.CommissionScheduler, cronSecret string, log *logrus.Logger) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	internal := app.Group("/internal", middleware.CronSecretMiddleware(cronSecret, log))
	internal.Post("/commissions/approve", func(c *fiber.Ctx) error {
		lockDays := c.QueryInt("lock_days", scheduler.LockDays)
		n, err := scheduler.RunOnce(c.UserContext(), lockDays)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"success":   true,
			"approved":  n,
			"lock_days": lockDays,
		})
	})
}
