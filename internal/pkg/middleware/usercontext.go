package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dieselnoi/academy/internal/pkg/session"
	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the complete user context for every request.
// A session holding only the pending-2FA marker is still anonymous; the
// login is not complete until the second factor is verified.
func UserContextMiddleware(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		c.Locals(usercontext.ContextKey, usercontext.UserContext{
			IsLoggedIn: false,
			IsAdmin:    false,
		})
		return c.Next()
	}

	userID := sess.Get(usercontext.KeyUserID)
	if userID == nil {
		c.Locals(usercontext.ContextKey, usercontext.UserContext{
			IsLoggedIn: false,
			IsAdmin:    false,
		})
		return c.Next()
	}

	username := session.GetSessionValue(c, usercontext.KeyUsername)
	isAdmin := sess.Get(usercontext.KeyIsAdmin)

	c.Locals(usercontext.ContextKey, usercontext.UserContext{
		UserID:     userID.(uint),
		Username:   username,
		IsLoggedIn: true,
		IsAdmin:    isAdmin != nil && isAdmin.(bool),
	})
	return c.Next()
}
