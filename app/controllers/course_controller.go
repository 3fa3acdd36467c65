package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

// HandleListCourses returns the published course catalog.
func HandleListCourses(c *fiber.Ctx) error {
	courses, err := repository.GetGlobalFactory().GetCourseRepository().ListPublished()
	if err != nil {
		return internalError(c, "Failed to load courses")
	}

	out := make([]fiber.Map, 0, len(courses))
	for i := range courses {
		out = append(out, courseSummary(&courses[i]))
	}
	return c.JSON(fiber.Map{"courses": out})
}

// HandleGetCourse returns one course by slug with its lesson outline. Each
// lesson is annotated with whether the requester may play it, so the
// frontend can render locks without probing every lesson endpoint.
func HandleGetCourse(c *fiber.Ctx) error {
	courseRepo := repository.GetGlobalFactory().GetCourseRepository()
	course, err := courseRepo.GetBySlug(c.Params("slug"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Course not found")
		}
		return internalError(c, "Failed to load course")
	}
	if !course.IsPublished && !usercontext.IsAdmin(c) {
		return notFound(c, "Course not found")
	}

	userID := usercontext.GetUserID(c)
	lessons := make([]fiber.Map, 0, len(course.Lessons))
	for i := range course.Lessons {
		lesson := &course.Lessons[i]
		decision, err := svc.Entitlements.Resolve(userID, lesson)
		if err != nil {
			return internalError(c, "Failed to load course")
		}
		lessons = append(lessons, fiber.Map{
			"id":               lesson.ID,
			"title":            lesson.Title,
			"description":      lesson.Description,
			"order":            lesson.Order,
			"duration_minutes": lesson.DurationMinutes,
			"is_free_preview":  lesson.IsFreePreview,
			"unlock_date":      formatTimePtr(lesson.UnlockDate),
			"has_video":        lesson.HasVideo(),
			"accessible":       decision.Allowed,
			"locked_reason":    lockedReason(decision.Allowed, decision.Reason),
		})
	}

	out := courseSummary(course)
	out["lessons"] = lessons
	return c.JSON(out)
}

func lockedReason(allowed bool, reason string) interface{} {
	if allowed {
		return nil
	}
	return reason
}

func courseSummary(course *models.Course) fiber.Map {
	return fiber.Map{
		"id":             course.ID,
		"title":          course.Title,
		"description":    course.Description,
		"slug":           course.Slug,
		"difficulty":     course.Difficulty,
		"price":          course.Price,
		"thumbnail_url":  course.ThumbnailURL,
		"is_published":   course.IsPublished,
		"average_rating": course.AverageRating,
		"total_reviews":  course.TotalReviews,
		"created_at":     course.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleListCourseResources returns a course's downloadable extras.
// Resources are part of the paid package, so an entitling subscription is
// required.
func HandleListCourseResources(c *fiber.Ctx) error {
	courseID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid course id")
	}

	factory := repository.GetGlobalFactory()
	if _, err := factory.GetCourseRepository().GetByID(courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Course not found")
		}
		return internalError(c, "Failed to load course")
	}

	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsAdmin {
		sub, err := factory.GetSubscriptionRepository().GetByUserAndCourse(userCtx.UserID, courseID)
		if err != nil || !sub.IsActive() {
			return forbidden(c, "subscription_required", "An active subscription is required to download resources")
		}
	}

	resources, err := factory.GetCourseRepository().Resources(courseID)
	if err != nil {
		return internalError(c, "Failed to load resources")
	}
	return c.JSON(fiber.Map{"resources": resources})
}
