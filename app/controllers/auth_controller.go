package controllers

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/events"
	"github.com/dieselnoi/academy/internal/pkg/session"
	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	ReferralCode string `json:"referral_code"`
}

// HandleRegister creates a new account. Signups are capped per IP, and a
// referral code, when present and valid, ties the account to its referrer.
// A bad code never fails the registration.
func HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ip := GetClientIP(c)
	allowed, err := svc.RegLimiter.CanRegister(ip)
	if err != nil {
		log.Printf("auth: registration limit check failed: %v", err)
	} else if !allowed {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":   "rate_limited",
			"message": "Too many registrations from this address, try again later",
		})
	}

	user, err := models.CreateUser(strings.TrimSpace(req.Username), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		return badRequest(c, "Invalid registration data: "+err.Error())
	}
	user.FirstName = strings.TrimSpace(req.FirstName)
	user.LastName = strings.TrimSpace(req.LastName)

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	if _, err := userRepo.GetByEmail(user.Email); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "conflict",
			"message": "An account with this email already exists",
		})
	}
	if _, err := userRepo.GetByUsername(user.Username); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "conflict",
			"message": "This username is taken",
		})
	}

	if err := userRepo.Create(user); err != nil {
		return internalError(c, "Failed to create account")
	}
	if err := svc.RegLimiter.RecordRegistration(ip); err != nil {
		log.Printf("auth: recording registration for %s failed: %v", ip, err)
	}

	// Own share code is created eagerly so the welcome email can include it.
	code, err := svc.Referrals.GetOrCreateCode(user.ID)
	if err != nil {
		log.Printf("auth: creating referral code for user %d failed: %v", user.ID, err)
	}

	if _, err := svc.Referrals.AttributeSignup(user, strings.TrimSpace(req.ReferralCode), ip, c.Get("User-Agent")); err != nil {
		log.Printf("auth: referral attribution for user %d failed: %v", user.ID, err)
	}

	referralCode := ""
	if code != nil {
		referralCode = code.Code
	}
	svc.Dispatcher.Publish(events.UserRegistered{User: user, ReferralCode: req.ReferralCode})

	if err := establishSession(c, user); err != nil {
		return internalError(c, "Account created but login failed, please sign in")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":            user.ID,
		"username":      user.Username,
		"email":         user.Email,
		"referral_code": referralCode,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin authenticates by email and password. Repeated failures earn
// escalating delays and eventually a lockout; accounts with a confirmed
// authenticator get a pending session and must verify a second factor.
func HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ip := GetClientIP(c)

	locked, remaining, err := svc.LoginTracker.IsLockedOut(email)
	if err != nil {
		log.Printf("auth: lockout check for %s failed: %v", email, err)
	}
	if locked {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       "locked_out",
			"message":     "Too many failed attempts, account temporarily locked",
			"retry_after": remaining,
		})
	}

	if err := svc.LoginTracker.ApplyDelay(email, ip); err != nil {
		log.Printf("auth: applying login delay failed: %v", err)
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	user, err := userRepo.GetByEmail(email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return internalError(c, "Login failed")
		}
		return failLogin(c, email, ip)
	}
	if !user.CheckPassword(req.Password) {
		return failLogin(c, email, ip)
	}

	enabled, err := svc.TwoFactor.IsEnabled(user.ID)
	if err != nil {
		return internalError(c, "Login failed")
	}
	if enabled {
		sess, err := session.GetSessionStore().Get(c)
		if err != nil {
			return internalError(c, "Login failed")
		}
		sess.Set(usercontext.KeyPending2FA, user.ID)
		if err := sess.Save(); err != nil {
			return internalError(c, "Login failed")
		}
		return c.JSON(fiber.Map{"two_factor_required": true})
	}

	return completeLogin(c, user, email, ip)
}

func failLogin(c *fiber.Ctx, email, ip string) error {
	if err := svc.LoginTracker.RecordFailure(email, ip); err != nil {
		log.Printf("auth: recording login failure failed: %v", err)
	}
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "invalid_credentials",
		"message": "Invalid email or password",
	})
}

func completeLogin(c *fiber.Ctx, user *models.User, email, ip string) error {
	if err := svc.LoginTracker.ClearFailures(email, ip); err != nil {
		log.Printf("auth: clearing login failures failed: %v", err)
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := repository.GetGlobalFactory().GetUserRepository().Update(user); err != nil {
		log.Printf("auth: updating last login for user %d failed: %v", user.ID, err)
	}

	if err := establishSession(c, user); err != nil {
		return internalError(c, "Login failed")
	}
	return c.JSON(fiber.Map{
		"id":       user.ID,
		"username": user.Username,
		"is_admin": user.IsAdmin(),
	})
}

func establishSession(c *fiber.Ctx, user *models.User) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return err
	}
	// Fresh session ID on privilege change.
	if err := sess.Regenerate(); err != nil {
		return err
	}
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUsername, user.Username)
	sess.Set(usercontext.KeyIsAdmin, user.IsAdmin())
	sess.Delete(usercontext.KeyPending2FA)
	return sess.Save()
}

// HandleLogout destroys the session.
func HandleLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return internalError(c, "Logout failed")
	}
	if err := sess.Destroy(); err != nil {
		return internalError(c, "Logout failed")
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// HandleGetMe returns the authenticated user's profile.
func HandleGetMe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "User not found")
		}
		return internalError(c, "Failed to load user")
	}

	twoFactorEnabled, err := svc.TwoFactor.IsEnabled(user.ID)
	if err != nil {
		return internalError(c, "Failed to load user")
	}

	return c.JSON(fiber.Map{
		"id":                 user.ID,
		"username":           user.Username,
		"email":              user.Email,
		"first_name":         user.FirstName,
		"last_name":          user.LastName,
		"is_admin":           user.IsAdmin(),
		"two_factor_enabled": twoFactorEnabled,
		"created_at":         user.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at":      formatTimePtr(user.LastLoginAt),
	})
}
