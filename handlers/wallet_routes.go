package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"referral-ledger/middleware"
	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const streamPollInterval = 2 * time.Second

type spendRequest struct {
	AmountMB  int64  `json:"amount_mb"`
	Reference string `json:"reference"`
}

func SetupWalletRoutes(user fiber.Router, wallets *services.WalletService) {
	user.Get("/wallet", func(c *fiber.Ctx) error {
		view, err := wallets.GetWallet(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(view)
	})

	user.Post("/rewards/:id/redeem", func(c *fiber.Ctx) error {
		res, err := wallets.Redeem(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(res)
	})

	user.Post("/wallet/spend", func(c *fiber.Ctx) error {
		var req spendRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := wallets.Spend(c.UserContext(), middleware.UserID(c), req.AmountMB, req.Reference)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(res)
	})
}

// StreamWallet streams new wallet transactions for the authenticated user as
// server-sent events. The first event is a balance snapshot.
func StreamWallet(wallets *services.WalletService, log *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		view, err := wallets.GetWallet(c.UserContext(), userID)
		if err != nil {
			return fail(c, err)
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		done := c.Context().Done()
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			ticker := time.NewTicker(streamPollInterval)
			defer ticker.Stop()

			feed := wallets.NewWalletFeed(userID, view.RecentTransactions)

			snapshot, _ := json.Marshal(fiber.Map{"balanceMB": view.BalanceMB})
			fmt.Fprintf(w, "event: wallet\ndata: %s\n\n", snapshot)
			if err := w.Flush(); err != nil {
				return
			}

			for {
				select {
				case <-ticker.C:
					txs, err := feed.Next(context.Background())
					if err != nil {
						log.WithField("user_id", userID).WithError(err).Warn("wallet stream query failed")
						continue
					}
					if len(txs) == 0 {
						// keepalive comment
						_, _ = w.WriteString(":\n\n")
					}
					for _, tx := range txs {
						payload, _ := json.Marshal(tx)
						fmt.Fprintf(w, "event: transaction\ndata: %s\n\n", payload)
					}
					if err := w.Flush(); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		})
		return nil
	}
}
