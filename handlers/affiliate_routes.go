package handlers

import (
	"referral-ledger/middleware"
	"referral-ledger/models"
	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type applyAffiliateRequest struct {
	DisplayName string `json:"display_name"`
}

type reviewAffiliateRequest struct {
	Approve bool `json:"approve"`
}

type recordCommissionRequest struct {
	AffiliateID string          `json:"affiliate_id"`
	OrderID     string          `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
}

func SetupAffiliateRoutes(user, admin fiber.Router, commissions *services.CommissionService) {
	user.Post("/affiliate", func(c *fiber.Ctx) error {
		var req applyAffiliateRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		aff, err := commissions.ApplyAffiliate(c.UserContext(), middleware.UserID(c), req.DisplayName)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(aff)
	})

	user.Get("/affiliate", func(c *fiber.Ctx) error {
		aff, err := commissions.GetAffiliateByUser(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(aff)
	})

	user.Get("/affiliate/commissions", func(c *fiber.Ctx) error {
		aff, err := commissions.GetAffiliateByUser(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return fail(c, err)
		}
		list, err := commissions.ListCommissions(c.UserContext(), aff.ID, models.CommissionStatus(c.Query("status")))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"commissions": list})
	})

	admin.Post("/affiliates/:id/review", func(c *fiber.Ctx) error {
		var req reviewAffiliateRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		aff, err := commissions.ReviewAffiliate(c.UserContext(), c.Params("id"), req.Approve)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(aff)
	})

	admin.Post("/commissions", func(c *fiber.Ctx) error {
		var req recordCommissionRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		commission, err := commissions.RecordCommission(c.UserContext(), req.AffiliateID, req.OrderID, req.Amount)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(commission)
	})

	admin.Post("/commissions/:id/pay", func(c *fiber.Ctx) error {
		commission, err := commissions.MarkCommissionPaid(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(commission)
	})
}
