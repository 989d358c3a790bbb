package handlers

import (
	"referral-ledger/middleware"
	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
)

type linkRequest struct {
	Code string `json:"code"`
}

func SetupReferralRoutes(user fiber.Router, profiles *services.ProfileService, referrals *services.ReferralService) {
	user.Get("/referral", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		if _, err := profiles.EnsureProfile(c.UserContext(), userID); err != nil {
			return fail(c, err)
		}
		summary, err := profiles.GetReferralSummary(c.UserContext(), userID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(summary)
	})

	user.Post("/referral/link", func(c *fiber.Ctx) error {
		var req linkRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := referrals.LinkReferrer(c.UserContext(), middleware.UserID(c), req.Code)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"success":          true,
			"linked":           res.Linked,
			"referrer_user_id": res.ReferrerUserID,
			"code":             res.Code,
		})
	})
}
