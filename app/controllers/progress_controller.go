package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

// requireLessonAccess loads the lesson and checks the caller may interact
// with it. Progress writes follow the same entitlement rules as playback.
func requireLessonAccess(c *fiber.Ctx, lessonID uint) (bool, error) {
	lesson, err := repository.GetGlobalFactory().GetLessonRepository().GetByID(lessonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, notFound(c, "Lesson not found")
		}
		return false, internalError(c, "Failed to load lesson")
	}
	decision, err := svc.Entitlements.Resolve(usercontext.GetUserID(c), lesson)
	if err != nil {
		return false, internalError(c, "Failed to resolve access")
	}
	if !decision.Allowed {
		return false, forbidden(c, decision.Reason, "You do not have access to this lesson")
	}
	return true, nil
}

type markCompleteRequest struct {
	WatchTimeSeconds uint `json:"watch_time_seconds"`
}

// HandleMarkLessonComplete marks a lesson finished for the current user,
// recording the reported watch time. Completing it again updates both;
// the response lists any badges the completion earned.
func HandleMarkLessonComplete(c *fiber.Ctx) error {
	lessonID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson id")
	}
	var req markCompleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	if ok, err := requireLessonAccess(c, lessonID); !ok {
		return err
	}

	result, err := svc.Progress.MarkComplete(usercontext.GetUserID(c), lessonID, req.WatchTimeSeconds)
	if err != nil {
		return internalError(c, "Failed to record completion")
	}
	return c.JSON(result)
}

type watchTimeRequest struct {
	WatchTimeSeconds    uint `json:"watch_time_seconds"`
	LastPositionSeconds uint `json:"last_position_seconds"`
}

// HandleUpdateWatchTime records playback position for resume. Last write
// wins.
func HandleUpdateWatchTime(c *fiber.Ctx) error {
	lessonID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson id")
	}
	var req watchTimeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if ok, err := requireLessonAccess(c, lessonID); !ok {
		return err
	}

	p, err := svc.Progress.UpdateWatchTime(usercontext.GetUserID(c), lessonID, req.WatchTimeSeconds, req.LastPositionSeconds)
	if err != nil {
		return internalError(c, "Failed to record watch time")
	}
	return c.JSON(p)
}

// HandleGetCourseProgress returns the user's standing in one course.
func HandleGetCourseProgress(c *fiber.Ctx) error {
	courseID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid course id")
	}
	if _, err := repository.GetGlobalFactory().GetCourseRepository().GetByID(courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Course not found")
		}
		return internalError(c, "Failed to load course")
	}

	cp, err := svc.Progress.CourseProgress(usercontext.GetUserID(c), courseID)
	if err != nil {
		return internalError(c, "Failed to load progress")
	}
	return c.JSON(cp)
}

// HandleGetAllCourseProgress returns the user's standing in every course
// they hold an active or trialing subscription to.
func HandleGetAllCourseProgress(c *fiber.Ctx) error {
	courses, err := svc.Progress.AllCourseProgress(usercontext.GetUserID(c))
	if err != nil {
		return internalError(c, "Failed to load progress")
	}
	return c.JSON(fiber.Map{"courses": courses})
}
