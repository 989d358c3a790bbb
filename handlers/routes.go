package handlers

import (
	"referral-ledger/middleware"
	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Services bundles what the HTTP layer talks to.
type Services struct {
	Profiles    *services.ProfileService
	Referrals   *services.ReferralService
	Discounts   *services.DiscountService
	Commissions *services.CommissionService
	Orders      *services.OrderService
	Wallets     *services.WalletService
	Scheduler   *services.CommissionScheduler
	Auth        middleware.TokenValidator
}

type RouteConfig struct {
	GatewayToken string
	CronSecret   string
}

// Register mounts every route in the order the middlewares require: internal
// endpoints first, then the gateway check, then the SSE stream (query-token auth)
// ahead of the header-authenticated groups.
func Register(app *fiber.App, svc Services, cfg RouteConfig, log *logrus.Logger) {
	SetupInternalRoutes(app, svc.Scheduler, cfg.CronSecret, log)

	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, log))

	app.Get("/user/wallet/stream", middleware.SSEAuthMiddleware(svc.Auth, log), StreamWallet(svc.Wallets, log))

	admin := app.Group("/s/admin", middleware.UserContextMiddleware(log), middleware.RequireRole(middleware.RoleAdmin))
	user := app.Group("/", middleware.UserContextMiddleware(log))

	SetupReferralRoutes(user.Group("/user"), svc.Profiles, svc.Referrals)
	SetupWalletRoutes(user.Group("/user"), svc.Wallets)
	SetupAffiliateRoutes(user.Group("/user"), admin, svc.Commissions)
	SetupDiscountRoutes(user, admin, svc.Discounts)
	SetupLedgerAdminRoutes(admin, svc.Orders, svc.Wallets)
}
