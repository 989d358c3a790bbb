package cmd

import (
	"referral-ledger/config"
	"referral-ledger/database"
	"referral-ledger/logger"
	"referral-ledger/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:           "referral-ledger",
	Short:         "Referral, affiliate commission and data wallet ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(migrateCmd)
}

type app struct {
	cfg *config.Config
	log *logrus.Logger
	db  *gorm.DB
}

// bootstrap loads config, builds the logger and opens the database.
func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.File)
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) commissionService(notifier services.Notifier) *services.CommissionService {
	return services.NewCommissionService(a.db, a.log, notifier, a.cfg.Referral.DefaultCommissionPercent)
}

func (a *app) notifier() (services.Notifier, func()) {
	if a.cfg.Notification.ServiceURL == "" {
		a.log.Warn("NOTIFICATION_SERVICE_URL not set, notifications disabled")
		return services.NopNotifier{}, func() {}
	}
	n, err := services.NewHTTPNotifier(a.cfg.Notification.ServiceURL, a.cfg.Notification.Token, a.cfg.Notification.PoolSize, a.log)
	if err != nil {
		a.log.WithError(err).Warn("notifier unavailable, notifications disabled")
		return services.NopNotifier{}, func() {}
	}
	return n, func() { _ = n.Close(notifierDrainTimeout) }
}
