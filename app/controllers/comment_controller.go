package controllers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/usercontext"
)

// HandleListLessonComments returns a lesson's comment thread, one reply
// level deep.
func HandleListLessonComments(c *fiber.Ctx) error {
	lessonID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson id")
	}
	if _, err := repository.GetGlobalFactory().GetLessonRepository().GetByID(lessonID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Lesson not found")
		}
		return internalError(c, "Failed to load lesson")
	}

	comments, err := repository.GetGlobalFactory().GetCommentRepository().ListByLesson(lessonID)
	if err != nil {
		return internalError(c, "Failed to load comments")
	}
	return c.JSON(fiber.Map{"comments": comments})
}

type commentRequest struct {
	Content          string `json:"content"`
	ParentID         *uint  `json:"parent_id"`
	TimestampSeconds *uint  `json:"timestamp_seconds"`
}

// HandleCreateComment posts a comment or a reply on a lesson the user can
// access. Replies stay on the parent's lesson and cannot nest deeper than
// one level.
func HandleCreateComment(c *fiber.Ctx) error {
	lessonID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson id")
	}
	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return badRequest(c, "Comment content is required")
	}
	if ok, err := requireLessonAccess(c, lessonID); !ok {
		return err
	}

	commentRepo := repository.GetGlobalFactory().GetCommentRepository()
	if req.ParentID != nil {
		parent, err := commentRepo.GetByID(*req.ParentID)
		if err != nil {
			return badRequest(c, "Parent comment not found")
		}
		if parent.LessonID != lessonID {
			return badRequest(c, "Parent comment belongs to another lesson")
		}
		if parent.ParentID != nil {
			return badRequest(c, "Replies cannot be nested")
		}
	}

	comment := &models.Comment{
		UserID:           usercontext.GetUserID(c),
		LessonID:         lessonID,
		ParentID:         req.ParentID,
		Content:          strings.TrimSpace(req.Content),
		TimestampSeconds: req.TimestampSeconds,
	}
	if err := commentRepo.Create(comment); err != nil {
		return internalError(c, "Failed to post comment")
	}

	if _, err := svc.Badges.CheckAndAward(comment.UserID); err != nil {
		log.Printf("comments: badge check for user %d failed: %v", comment.UserID, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// HandleUpdateComment edits the author's own comment.
func HandleUpdateComment(c *fiber.Ctx) error {
	commentID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid comment id")
	}
	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return badRequest(c, "Comment content is required")
	}

	commentRepo := repository.GetGlobalFactory().GetCommentRepository()
	comment, err := commentRepo.GetByID(commentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Comment not found")
		}
		return internalError(c, "Failed to load comment")
	}
	if comment.UserID != usercontext.GetUserID(c) {
		return forbidden(c, "forbidden", "You can only edit your own comments")
	}

	comment.Content = strings.TrimSpace(req.Content)
	comment.IsEdited = true
	if err := commentRepo.Update(comment); err != nil {
		return internalError(c, "Failed to update comment")
	}
	return c.JSON(comment)
}

// HandleDeleteComment removes a comment. Authors delete their own; admins
// delete anything.
func HandleDeleteComment(c *fiber.Ctx) error {
	commentID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid comment id")
	}

	commentRepo := repository.GetGlobalFactory().GetCommentRepository()
	comment, err := commentRepo.GetByID(commentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Comment not found")
		}
		return internalError(c, "Failed to load comment")
	}

	userCtx := usercontext.GetUserContext(c)
	if comment.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return forbidden(c, "forbidden", "You can only delete your own comments")
	}

	if err := commentRepo.Delete(commentID); err != nil {
		return internalError(c, "Failed to delete comment")
	}
	return c.JSON(fiber.Map{"message": "Comment deleted"})
}
