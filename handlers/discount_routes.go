package handlers

import (
	"time"

	"referral-ledger/middleware"
	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
)

type validateDiscountRequest struct {
	Code string `json:"code"`
}

type upsertDiscountRequest struct {
	Code            string    `json:"code"`
	DiscountPercent int       `json:"discount_percent"`
	MaxUsesPerUser  int       `json:"max_uses_per_user"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func SetupDiscountRoutes(user, admin fiber.Router, discounts *services.DiscountService) {
	user.Post("/discounts/validate", func(c *fiber.Ctx) error {
		var req validateDiscountRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := discounts.Validate(c.UserContext(), req.Code, middleware.UserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(res)
	})

	admin.Post("/discounts", func(c *fiber.Ctx) error {
		var req upsertDiscountRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		dc, err := discounts.UpsertCode(c.UserContext(), req.Code, req.DiscountPercent, req.MaxUsesPerUser, req.ExpiresAt)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(dc)
	})
}
