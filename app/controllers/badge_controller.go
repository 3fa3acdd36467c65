package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

// HandleGetMyBadges returns the user's earned badges and their progress
// toward the rest.
func HandleGetMyBadges(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	progress, err := svc.Badges.Progress(userID)
	if err != nil {
		return internalError(c, "Failed to load badges")
	}
	return c.JSON(fiber.Map{"badges": progress})
}

// HandleRecheckBadges re-evaluates the user's badges on demand. The award
// engine is idempotent, so this is always safe.
func HandleRecheckBadges(c *fiber.Ctx) error {
	awarded, err := svc.Badges.CheckAndAward(usercontext.GetUserID(c))
	if err != nil {
		return internalError(c, "Failed to check badges")
	}
	return c.JSON(fiber.Map{"new_badges": awarded})
}
