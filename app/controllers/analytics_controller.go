package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// Admin analytics endpoints. All of them sit behind RequireAdmin.

func HandleAnalyticsOverview(c *fiber.Ctx) error {
	overview, err := svc.Analytics.Overview()
	if err != nil {
		return internalError(c, "Failed to compute overview")
	}
	return c.JSON(overview)
}

func HandleAnalyticsCourses(c *fiber.Ctx) error {
	stats, err := svc.Analytics.Courses()
	if err != nil {
		return internalError(c, "Failed to compute course stats")
	}
	return c.JSON(fiber.Map{"courses": stats})
}

func HandleAnalyticsCourseDetail(c *fiber.Ctx) error {
	courseID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid course id")
	}
	lessons, err := svc.Analytics.CourseDetail(courseID)
	if err != nil {
		return internalError(c, "Failed to compute course detail")
	}
	return c.JSON(fiber.Map{"lessons": lessons})
}

func HandleAnalyticsEngagement(c *fiber.Ctx) error {
	engagement, err := svc.Analytics.Engagement()
	if err != nil {
		return internalError(c, "Failed to compute engagement")
	}
	return c.JSON(engagement)
}

func HandleAnalyticsUserGrowth(c *fiber.Ctx) error {
	points, err := svc.Analytics.UserGrowth()
	if err != nil {
		return internalError(c, "Failed to compute user growth")
	}
	return c.JSON(fiber.Map{"growth": points})
}
