package cmd

import (
	"encoding/json"
	"fmt"

	"referral-ledger/services"
	"referral-ledger/utils"

	"github.com/spf13/cobra"
)

var (
	reconcileExport bool
	reconcileRepair bool
	reconcileUser   string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check wallet balances against their transaction logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		wallets := services.NewWalletService(a.db, a.log, services.NopNotifier{})
		out := json.NewEncoder(cmd.OutOrStdout())
		out.SetIndent("", "  ")

		if reconcileUser != "" {
			var check *services.BalanceCheck
			if reconcileRepair {
				check, err = wallets.RepairBalance(ctx, reconcileUser)
			} else {
				check, err = wallets.Reconcile(ctx, reconcileUser)
			}
			if err != nil {
				return err
			}
			return out.Encode(check)
		}

		var uploader services.Uploader
		if reconcileExport {
			r2, err := utils.NewR2Client(ctx, a.cfg.R2)
			if err != nil {
				return err
			}
			uploader = r2
		}
		audit := services.NewAuditService(wallets, uploader, a.log)
		report, url, err := audit.ExportReconciliation(ctx)
		if err != nil {
			return err
		}
		if reconcileRepair {
			for _, d := range report.Drifted {
				if _, err := wallets.RepairBalance(ctx, d.UserID); err != nil {
					return fmt.Errorf("repair %s: %w", d.UserID, err)
				}
			}
		}
		if url != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "report uploaded to %s\n", url)
		}
		return out.Encode(report)
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileExport, "export", false, "upload the report to R2")
	reconcileCmd.Flags().BoolVar(&reconcileRepair, "repair", false, "rewrite drifted balances from the transaction log")
	reconcileCmd.Flags().StringVar(&reconcileUser, "user", "", "check a single user")
}
