package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/events"
	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

const reviewCompletionThreshold = 50.0

// HandleListCourseReviews returns a course's visible reviews, featured
// first.
func HandleListCourseReviews(c *fiber.Ctx) error {
	courseID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid course id")
	}
	reviews, err := repository.GetGlobalFactory().GetReviewRepository().ListVisibleByCourse(courseID)
	if err != nil {
		return internalError(c, "Failed to load reviews")
	}
	return c.JSON(fiber.Map{"reviews": reviews})
}

type reviewRequest struct {
	Rating     uint   `json:"rating"`
	ReviewText string `json:"review_text"`
}

// HandleCreateReview posts a course review. One review per user per course,
// and only after completing at least half of the course's lessons.
func HandleCreateReview(c *fiber.Ctx) error {
	courseID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid course id")
	}
	var req reviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return badRequest(c, "Rating must be between 1 and 5")
	}

	factory := repository.GetGlobalFactory()
	course, err := factory.GetCourseRepository().GetByID(courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Course not found")
		}
		return internalError(c, "Failed to load course")
	}

	userID := usercontext.GetUserID(c)
	if _, err := factory.GetReviewRepository().GetByUserAndCourse(userID, courseID); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "conflict",
			"message": "You already reviewed this course",
		})
	}

	cp, err := svc.Progress.CourseProgress(userID, courseID)
	if err != nil {
		return internalError(c, "Failed to check progress")
	}
	if cp.Percentage < reviewCompletionThreshold {
		return forbidden(c, "completion_required", "Complete at least half of the course before reviewing it")
	}

	review := &models.CourseReview{
		CourseID:   courseID,
		UserID:     userID,
		Rating:     req.Rating,
		ReviewText: strings.TrimSpace(req.ReviewText),
	}
	if err := factory.GetReviewRepository().Create(review); err != nil {
		return internalError(c, "Failed to post review")
	}

	announceReviewChange(course.ID)
	return c.Status(fiber.StatusCreated).JSON(review)
}

// HandleUpdateReview edits the author's own review.
func HandleUpdateReview(c *fiber.Ctx) error {
	reviewID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid review id")
	}
	var req reviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return badRequest(c, "Rating must be between 1 and 5")
	}

	factory := repository.GetGlobalFactory()
	review, err := factory.GetReviewRepository().GetByID(reviewID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Review not found")
		}
		return internalError(c, "Failed to load review")
	}
	if review.UserID != usercontext.GetUserID(c) {
		return forbidden(c, "forbidden", "You can only edit your own reviews")
	}

	review.Rating = req.Rating
	review.ReviewText = strings.TrimSpace(req.ReviewText)
	review.IsEdited = true
	if err := factory.GetReviewRepository().Update(review); err != nil {
		return internalError(c, "Failed to update review")
	}

	announceReviewChange(review.CourseID)
	return c.JSON(review)
}

// HandleDeleteReview removes a review. Authors delete their own; admins
// delete anything.
func HandleDeleteReview(c *fiber.Ctx) error {
	reviewID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid review id")
	}

	factory := repository.GetGlobalFactory()
	review, err := factory.GetReviewRepository().GetByID(reviewID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Review not found")
		}
		return internalError(c, "Failed to load review")
	}

	userCtx := usercontext.GetUserContext(c)
	if review.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return forbidden(c, "forbidden", "You can only delete your own reviews")
	}

	if err := factory.GetReviewRepository().Delete(reviewID); err != nil {
		return internalError(c, "Failed to delete review")
	}

	announceReviewChange(review.CourseID)
	return c.JSON(fiber.Map{"message": "Review deleted"})
}

type moderateReviewRequest struct {
	IsHidden   *bool `json:"is_hidden"`
	IsFeatured *bool `json:"is_featured"`
}

// HandleModerateReview lets an admin hide or feature a review. Hidden
// reviews leave the rating cache.
func HandleModerateReview(c *fiber.Ctx) error {
	reviewID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid review id")
	}
	var req moderateReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	factory := repository.GetGlobalFactory()
	review, err := factory.GetReviewRepository().GetByID(reviewID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Review not found")
		}
		return internalError(c, "Failed to load review")
	}

	if req.IsHidden != nil {
		review.IsHidden = *req.IsHidden
	}
	if req.IsFeatured != nil {
		review.IsFeatured = *req.IsFeatured
	}
	if err := factory.GetReviewRepository().Update(review); err != nil {
		return internalError(c, "Failed to update review")
	}

	announceReviewChange(review.CourseID)
	return c.JSON(review)
}

// announceReviewChange publishes the change; the rating cache refresh
// rides on the event subscriber.
func announceReviewChange(courseID uint) {
	if svc.Dispatcher != nil {
		svc.Dispatcher.Publish(events.ReviewChanged{CourseID: courseID})
	}
}
