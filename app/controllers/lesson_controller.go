package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

// HandleGetLesson returns one lesson with its playback credential. A denied
// entitlement is a 403 carrying the reason; metadata is never leaked past
// the decision.
func HandleGetLesson(c *fiber.Ctx) error {
	lessonID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson id")
	}

	lesson, err := repository.GetGlobalFactory().GetLessonRepository().GetByID(lessonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Lesson not found")
		}
		return internalError(c, "Failed to load lesson")
	}

	decision, err := svc.Entitlements.Resolve(usercontext.GetUserID(c), lesson)
	if err != nil {
		return internalError(c, "Failed to resolve access")
	}
	if !decision.Allowed {
		return forbidden(c, decision.Reason, "You do not have access to this lesson")
	}

	return c.JSON(fiber.Map{
		"id":               lesson.ID,
		"course_id":        lesson.CourseID,
		"title":            lesson.Title,
		"description":      lesson.Description,
		"order":            lesson.Order,
		"duration_minutes": lesson.DurationMinutes,
		"is_free_preview":  lesson.IsFreePreview,
		"access_reason":    decision.Reason,
		"playback_id":      decision.PlaybackID,
		"video_url":        lesson.VideoURL,
	})
}
