package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/database"
)

type unlockLessonRequest struct {
	UserID uint `json:"user_id"`
}

// HandleAdminUnlockLesson grants one user early access to a drip-locked
// lesson. Repeat grants are no-ops.
func HandleAdminUnlockLesson(c *fiber.Ctx) error {
	lessonID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson id")
	}
	var req unlockLessonRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
		return badRequest(c, "user_id is required")
	}

	factory := repository.GetGlobalFactory()
	if _, err := factory.GetLessonRepository().GetByID(lessonID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Lesson not found")
		}
		return internalError(c, "Failed to load lesson")
	}
	if _, err := factory.GetUserRepository().GetByID(req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "User not found")
		}
		return internalError(c, "Failed to load user")
	}

	unlock := models.LessonUnlock{UserID: req.UserID, LessonID: lessonID}
	res := database.GetDB().Clauses(clause.OnConflict{DoNothing: true}).Create(&unlock)
	if res.Error != nil {
		return internalError(c, "Failed to unlock lesson")
	}
	return c.JSON(fiber.Map{"unlocked": true, "created": res.RowsAffected > 0})
}

type publishCourseRequest struct {
	IsPublished bool `json:"is_published"`
}

// HandleAdminPublishCourse toggles a course's published flag.
func HandleAdminPublishCourse(c *fiber.Ctx) error {
	courseID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid course id")
	}
	var req publishCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	courseRepo := repository.GetGlobalFactory().GetCourseRepository()
	course, err := courseRepo.GetByID(courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Course not found")
		}
		return internalError(c, "Failed to load course")
	}

	course.IsPublished = req.IsPublished
	if err := courseRepo.Save(course); err != nil {
		return internalError(c, "Failed to update course")
	}
	return c.JSON(courseSummary(course))
}
