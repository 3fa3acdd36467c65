package controllers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/env"
	"github.com/dieselnoi/academy/internal/pkg/payments"
	"github.com/dieselnoi/academy/internal/pkg/video"
)

// HandleStripeWebhook ingests Stripe events. The signature is checked
// against the raw body, deliveries are persisted idempotently, and a
// duplicate event ID is acknowledged without reprocessing.
func HandleStripeWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")
	signatureValid := payments.VerifyStripeWebhookSignature(payload, c.Get("Stripe-Signature"), secret, time.Now())
	if !signatureValid {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_signature",
			"message": "Webhook signature verification failed",
		})
	}

	event, err := payments.ParseEvent(payload)
	if err != nil {
		return badRequest(c, "Malformed webhook payload")
	}

	created, stored, err := svc.Payments.RecordWebhookEvent(event.ID, event.Type, payload, signatureValid)
	if err != nil {
		return internalError(c, "Failed to persist webhook event")
	}
	if !created {
		log.Printf("payments: duplicate webhook delivery %s ignored", event.ID)
		return c.JSON(fiber.Map{"received": true, "duplicate": true})
	}

	processErr := svc.Payments.ProcessEvent(event)
	if err := svc.Payments.MarkWebhookProcessed(stored.ID, processErr); err != nil {
		log.Printf("payments: marking webhook %d processed failed: %v", stored.ID, err)
	}
	if processErr != nil {
		log.Printf("payments: processing webhook %s failed: %v", event.ID, processErr)
		return internalError(c, "Webhook processing failed")
	}
	return c.JSON(fiber.Map{"received": true})
}

// HandleMuxWebhook ingests Mux video events. Asset-ready attaches playback
// data to the lesson the upload was created for; asset errors are logged.
func HandleMuxWebhook(c *fiber.Ctx) error {
	event, err := video.ParseWebhookEvent(c.Body())
	if err != nil {
		return badRequest(c, "Malformed webhook payload")
	}

	switch event.Type {
	case video.EventAssetReady:
		lessonID := event.LessonID()
		if lessonID == 0 {
			log.Printf("video: asset %s ready without lesson passthrough", event.Data.ID)
			return c.JSON(fiber.Map{"received": true})
		}
		err := repository.GetGlobalFactory().GetLessonRepository().
			SetMuxAsset(lessonID, event.Data.ID, event.FirstPlaybackID(), event.DurationMinutes())
		if err != nil {
			log.Printf("video: attaching asset %s to lesson %d failed: %v", event.Data.ID, lessonID, err)
			return internalError(c, "Failed to attach asset")
		}
	case video.EventAssetErrored:
		log.Printf("video: asset %s errored: %s %v", event.Data.ID, event.Data.Errors.Type, event.Data.Errors.Messages)
	}
	return c.JSON(fiber.Map{"received": true})
}

// HandleCreateDirectUpload asks Mux for a direct-upload URL for a lesson's
// video. Staff only.
func HandleCreateDirectUpload(c *fiber.Ctx) error {
	lessonID, ok := paramUint(c, "id")
	if !ok {
		return badRequest(c, "Invalid lesson id")
	}
	if _, err := repository.GetGlobalFactory().GetLessonRepository().GetByID(lessonID); err != nil {
		return notFound(c, "Lesson not found")
	}

	upload, err := svc.MuxClient.CreateDirectUpload(lessonID, env.GetEnv("PUBLIC_BASE_URL", "http://localhost:3000"))
	if err != nil {
		return internalError(c, "Failed to create upload")
	}
	return c.JSON(upload)
}
