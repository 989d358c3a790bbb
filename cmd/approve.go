package cmd

import (
	"fmt"

	"referral-ledger/services"

	"github.com/spf13/cobra"
)

var approveLockDays int

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Run one commission approval sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		lockDays := a.cfg.Scheduler.LockDays
		if cmd.Flags().Changed("lock-days") {
			lockDays = approveLockDays
		}

		notifier, closeNotifier := a.notifier()
		defer closeNotifier()

		sched := services.NewCommissionScheduler(a.commissionService(notifier), a.log, a.cfg.Scheduler.LockDays)
		n, err := sched.RunOnce(cmd.Context(), lockDays)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "approved %d commission(s)\n", n)
		return nil
	},
}

func init() {
	approveCmd.Flags().IntVar(&approveLockDays, "lock-days", services.DefaultLockDays, "minimum commission age in days")
}
