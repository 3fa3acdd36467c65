package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/session"
	"github.com/dieselnoi/academy/internal/pkg/twofactor"
	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

// HandleTwoFactorStatus reports whether two-factor is on and how many
// backup codes remain.
func HandleTwoFactorStatus(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	enabled, err := svc.TwoFactor.IsEnabled(userID)
	if err != nil {
		return internalError(c, "Failed to load two-factor status")
	}
	remaining := int64(0)
	if enabled {
		remaining, err = svc.TwoFactor.RemainingBackupCodes(userID)
		if err != nil {
			return internalError(c, "Failed to load two-factor status")
		}
	}
	return c.JSON(fiber.Map{"enabled": enabled, "backup_codes_remaining": remaining})
}

// HandleTwoFactorSetup starts authenticator enrollment for the current
// user and returns the secret, provisioning URL and backup codes. The
// device stays inactive until confirmed.
func HandleTwoFactorSetup(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		return internalError(c, "Failed to load user")
	}

	enrollment, err := svc.TwoFactor.StartEnrollment(user.ID, user.Email)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(enrollment)
}

// HandleTwoFactorConfirm activates the pending authenticator.
func HandleTwoFactorConfirm(c *fiber.Ctx) error {
	var req twoFactorCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	err := svc.TwoFactor.ConfirmEnrollment(usercontext.GetUserID(c), req.Code)
	if errors.Is(err, twofactor.ErrInvalidCode) {
		return badRequest(c, "Invalid verification code")
	}
	if err != nil {
		return internalError(c, "Failed to confirm two-factor setup")
	}
	return c.JSON(fiber.Map{"enabled": true})
}

// HandleTwoFactorDisable turns two-factor off for the current user.
func HandleTwoFactorDisable(c *fiber.Ctx) error {
	if err := svc.TwoFactor.Disable(usercontext.GetUserID(c)); err != nil {
		return internalError(c, "Failed to disable two-factor")
	}
	return c.JSON(fiber.Map{"enabled": false})
}

type regenerateBackupCodesRequest struct {
	Password string `json:"password"`
}

// HandleTwoFactorRegenerateBackupCodes replaces and returns fresh backup
// codes. The current password must be re-verified first; a hijacked
// session alone must not be able to mint codes.
func HandleTwoFactorRegenerateBackupCodes(c *fiber.Ctx) error {
	var req regenerateBackupCodesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(usercontext.GetUserID(c))
	if err != nil {
		return internalError(c, "Failed to load user")
	}

	codes, err := svc.TwoFactor.RegenerateBackupCodes(user, req.Password)
	if errors.Is(err, twofactor.ErrInvalidPassword) {
		return forbidden(c, "invalid_password", "Password verification failed")
	}
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(fiber.Map{"backup_codes": codes})
}

// HandleTwoFactorVerify completes a pending two-step login. Valid TOTP or
// backup codes finish the session; invalid codes count as failed logins.
func HandleTwoFactorVerify(c *fiber.Ctx) error {
	var req twoFactorCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return internalError(c, "Verification failed")
	}
	pending := sess.Get(usercontext.KeyPending2FA)
	userID, ok := pending.(uint)
	if !ok || userID == 0 {
		return badRequest(c, "No pending two-factor login")
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userID)
	if err != nil {
		return internalError(c, "Verification failed")
	}

	ip := GetClientIP(c)
	if err := svc.TwoFactor.VerifyCode(userID, req.Code); err != nil {
		if errors.Is(err, twofactor.ErrInvalidCode) {
			return failLogin(c, user.Email, ip)
		}
		return internalError(c, "Verification failed")
	}

	return completeLogin(c, user, user.Email, ip)
}
