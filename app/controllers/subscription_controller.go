package controllers

import (
	"errors"
	"math"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/env"
	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

// HandleListMySubscriptions returns the user's subscriptions with their
// courses.
func HandleListMySubscriptions(c *fiber.Ctx) error {
	subs, err := repository.GetGlobalFactory().GetSubscriptionRepository().ListByUser(usercontext.GetUserID(c))
	if err != nil {
		return internalError(c, "Failed to load subscriptions")
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}

// HandleCreateCheckout starts a Stripe checkout for a monthly course
// subscription and returns the redirect URL.
func HandleCreateCheckout(c *fiber.Ctx) error {
	courseID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid course id")
	}

	factory := repository.GetGlobalFactory()
	course, err := factory.GetCourseRepository().GetByID(courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Course not found")
		}
		return internalError(c, "Failed to load course")
	}
	if !course.IsPublished {
		return notFound(c, "Course not found")
	}

	userID := usercontext.GetUserID(c)
	if sub, err := factory.GetSubscriptionRepository().GetByUserAndCourse(userID, courseID); err == nil && sub.IsActive() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "conflict",
			"message": "You already have an active subscription to this course",
		})
	}

	user, err := factory.GetUserRepository().GetByID(userID)
	if err != nil {
		return internalError(c, "Failed to load user")
	}

	if user.StripeCustomerID == "" {
		customerID, err := svc.StripeClient.CreateCustomer(user.Email, user.DisplayName(), user.ID)
		if err != nil {
			return internalError(c, "Failed to start checkout")
		}
		user.StripeCustomerID = customerID
		if err := factory.GetUserRepository().Update(user); err != nil {
			return internalError(c, "Failed to start checkout")
		}
	}

	baseURL := env.GetEnv("PUBLIC_BASE_URL", "http://localhost:3000")
	priceMinorUnits := int64(math.Round(course.Price * 100))
	session, err := svc.StripeClient.CreateCheckoutSession(
		user.StripeCustomerID, user.ID, course.ID, course.Title, priceMinorUnits,
		baseURL+"/courses/"+course.Slug+"?checkout=success",
		baseURL+"/courses/"+course.Slug+"?checkout=cancelled",
	)
	if err != nil {
		return internalError(c, "Failed to start checkout")
	}
	return c.JSON(fiber.Map{"checkout_url": session.URL, "session_id": session.ID})
}

// HandleCreatePortalSession opens the Stripe billing portal for the user.
func HandleCreatePortalSession(c *fiber.Ctx) error {
	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(usercontext.GetUserID(c))
	if err != nil {
		return internalError(c, "Failed to load user")
	}
	if user.StripeCustomerID == "" {
		return badRequest(c, "No billing account yet")
	}

	baseURL := env.GetEnv("PUBLIC_BASE_URL", "http://localhost:3000")
	url, err := svc.StripeClient.CreatePortalSession(user.StripeCustomerID, baseURL+"/account")
	if err != nil {
		return internalError(c, "Failed to open billing portal")
	}
	return c.JSON(fiber.Map{"portal_url": url})
}
