package handlers

import (
	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
)

type grantRewardRequest struct {
	UserID    string `json:"user_id"`
	CreditsMB int64  `json:"credits_mb"`
}

// SetupLedgerAdminRoutes mounts order replay, refunds, reward grants and wallet repair.
func SetupLedgerAdminRoutes(admin fiber.Router, orders *services.OrderService, wallets *services.WalletService) {
	admin.Post("/orders", func(c *fiber.Ctx) error {
		var evt services.OrderCompleted
		if err := c.BodyParser(&evt); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := orders.IngestOrderCompleted(c.UserContext(), evt)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(res)
	})

	admin.Post("/orders/:id/refund", func(c *fiber.Ctx) error {
		order, err := orders.MarkOrderRefunded(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(order)
	})

	admin.Post("/rewards", func(c *fiber.Ctx) error {
		var req grantRewardRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		reward, err := wallets.GrantReward(c.UserContext(), req.UserID, req.CreditsMB)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(reward)
	})

	admin.Get("/wallets/:user_id/reconcile", func(c *fiber.Ctx) error {
		check, err := wallets.Reconcile(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(check)
	})

	admin.Post("/wallets/:user_id/repair", func(c *fiber.Ctx) error {
		check, err := wallets.RepairBalance(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(check)
	})
}
