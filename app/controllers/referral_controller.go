package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

// HandleTrackReferralClick records a visit through a share link. The
// response is the same whether the code exists or not.
func HandleTrackReferralClick(c *fiber.Ctx) error {
	code := strings.TrimSpace(c.Params("code"))
	if code == "" {
		return badRequest(c, "Missing referral code")
	}

	if _, err := svc.Referrals.TrackClick(code, GetClientIP(c), c.Get("User-Agent")); err != nil {
		return internalError(c, "Failed to record click")
	}
	return c.JSON(fiber.Map{"message": "ok"})
}

// HandleGetMyReferrals returns the user's share code and program stats.
func HandleGetMyReferrals(c *fiber.Ctx) error {
	stats, err := svc.Referrals.StatsFor(usercontext.GetUserID(c))
	if err != nil {
		return internalError(c, "Failed to load referral stats")
	}
	return c.JSON(stats)
}

// HandleGetMyCredits lists the user's referral credits.
func HandleGetMyCredits(c *fiber.Ctx) error {
	credits, err := svc.Referrals.Credits(usercontext.GetUserID(c))
	if err != nil {
		return internalError(c, "Failed to load credits")
	}
	return c.JSON(fiber.Map{"credits": credits})
}

// HandleListPendingFraudChecks lists conversions awaiting manual review.
func HandleListPendingFraudChecks(c *fiber.Ctx) error {
	checks, err := svc.Referrals.PendingFraudChecks()
	if err != nil {
		return internalError(c, "Failed to load fraud checks")
	}
	return c.JSON(fiber.Map{"fraud_checks": checks})
}

type fraudReviewRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

// HandleReviewFraudCheck settles a pending fraud check. Approving releases
// the referrer's credit.
func HandleReviewFraudCheck(c *fiber.Ctx) error {
	checkID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid fraud check id")
	}
	var req fraudReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	check, err := svc.Referrals.ReviewFraudCheck(checkID, usercontext.GetUserID(c), req.Approve, req.Notes)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(check)
}
