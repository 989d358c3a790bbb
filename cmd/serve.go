package cmd

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"referral-ledger/database"
	"referral-ledger/handlers"
	"referral-ledger/services"
	"referral-ledger/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/spf13/cobra"
)

const (
	notifierDrainTimeout = 10 * time.Second
	shutdownTimeout      = 15 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, scheduler and background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		if err := a.cfg.Validate(); err != nil {
			return err
		}
		if err := database.Migrate(a.db); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		notifier, closeNotifier := a.notifier()
		defer closeNotifier()

		profiles := services.NewProfileService(a.db, a.log)
		commissions := a.commissionService(notifier)
		wallets := services.NewWalletService(a.db, a.log, notifier)
		scheduler := services.NewCommissionScheduler(commissions, a.log, a.cfg.Scheduler.LockDays)
		orders := services.NewOrderService(a.db, a.log, notifier, commissions, a.cfg.Referral.RewardMB)

		if a.cfg.Scheduler.Enabled {
			if err := scheduler.Start(a.cfg.Scheduler.RunAt); err != nil {
				return err
			}
			defer func() { _ = scheduler.Shutdown() }()
		}

		if a.cfg.RabbitMQ.URL != "" {
			consumer := workers.NewOrderConsumer(a.cfg.RabbitMQ, orders, a.log)
			go func() { _ = consumer.Run(ctx) }()
		} else {
			a.log.Warn("RABBITMQ_URL not set, order events will only arrive via the admin API")
		}

		if a.cfg.ProfileSync.URL != "" {
			workers.NewProfileSyncWorker(profiles, a.cfg.ProfileSync.URL, a.cfg.Gateway.ServiceToken, a.cfg.ProfileSync.Interval, a.log).Start(ctx)
		}

		app := fiber.New(fiber.Config{DisableStartupMessage: true})
		app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(a.cfg.Server.AllowedOrigins, ","),
			AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Service-Token, X-Device-ID",
			ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
			AllowCredentials: true,
			MaxAge:           86400,
		}))

		handlers.Register(app, handlers.Services{
			Profiles:    profiles,
			Referrals:   services.NewReferralService(a.db, a.log, notifier),
			Discounts:   services.NewDiscountService(a.db, a.log),
			Commissions: commissions,
			Orders:      orders,
			Wallets:     wallets,
			Scheduler:   scheduler,
			Auth:        services.NewAuthServiceClient(a.cfg.Auth.ServiceURL, a.cfg.Gateway.ServiceToken),
		}, handlers.RouteConfig{
			GatewayToken: a.cfg.Gateway.ServiceToken,
			CronSecret:   a.cfg.Scheduler.CronSecret,
		}, a.log)

		errCh := make(chan error, 1)
		go func() {
			errCh <- app.Listen(":" + a.cfg.Server.Port)
		}()
		a.log.WithField("port", a.cfg.Server.Port).Info("server running")

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		a.log.Info("shutting down server")
		return app.ShutdownWithTimeout(shutdownTimeout)
	},
}
