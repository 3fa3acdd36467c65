package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// HandleChangePassword rotates the user's password after re-checking the
// current one.
func HandleChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if len(req.NewPassword) < 8 {
		return badRequest(c, "New password must be at least 8 characters")
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	user, err := userRepo.GetByID(usercontext.GetUserID(c))
	if err != nil {
		return internalError(c, "Failed to load user")
	}
	if !user.CheckPassword(req.CurrentPassword) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "invalid_credentials",
			"message": "Current password is incorrect",
		})
	}

	if err := user.SetPassword(req.NewPassword); err != nil {
		return internalError(c, "Failed to update password")
	}
	if err := userRepo.Update(user); err != nil {
		return internalError(c, "Failed to update password")
	}
	return c.JSON(fiber.Map{"message": "Password updated"})
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// HandleUpdateProfile edits the user's display names.
func HandleUpdateProfile(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	user, err := userRepo.GetByID(usercontext.GetUserID(c))
	if err != nil {
		return internalError(c, "Failed to load user")
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if err := userRepo.Update(user); err != nil {
		return internalError(c, "Failed to update profile")
	}
	return c.JSON(fiber.Map{
		"id":         user.ID,
		"username":   user.Username,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	})
}
