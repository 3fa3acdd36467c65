package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dieselnoi/academy/app/controllers"
	"github.com/dieselnoi/academy/internal/pkg/middleware"
	"github.com/dieselnoi/academy/internal/pkg/session"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	h.registerAuthRoutes(api)
	h.registerCatalogRoutes(api)
	h.registerLearningRoutes(api)
	h.registerBillingRoutes(api)
	h.registerReferralRoutes(api)
	h.registerAdminRoutes(api)
}

func (h ApiRouter) registerAuthRoutes(api fiber.Router) {
	auth := api.Group("/auth")
	auth.Post("/register", controllers.HandleRegister)
	auth.Post("/login", controllers.HandleLogin)
	auth.Post("/logout", middleware.RequireAuth, controllers.HandleLogout)
	auth.Get("/user", middleware.RequireAuth, controllers.HandleGetMe)
	auth.Post("/change-password", middleware.RequireAuth, controllers.HandleChangePassword)
	auth.Put("/profile", middleware.RequireAuth, controllers.HandleUpdateProfile)

	twofa := auth.Group("/2fa")
	twofa.Get("/status", middleware.RequireAuth, controllers.HandleTwoFactorStatus)
	twofa.Post("/setup", middleware.RequireAuth, controllers.HandleTwoFactorSetup)
	twofa.Post("/verify", middleware.RequireAuth, controllers.HandleTwoFactorConfirm)
	twofa.Post("/disable", middleware.RequireAuth, controllers.HandleTwoFactorDisable)
	twofa.Post("/backup-codes", middleware.RequireAuth, controllers.HandleTwoFactorRegenerateBackupCodes)
	// Completes a pending two-step login; no session user yet.
	twofa.Post("/verify-login", controllers.HandleTwoFactorVerify)
}

func (h ApiRouter) registerCatalogRoutes(api fiber.Router) {
	api.Get("/courses", controllers.HandleListCourses)
	api.Get("/courses/:slug", controllers.HandleGetCourse)
	api.Get("/courses/id/:id/reviews", controllers.HandleListCourseReviews)
	api.Get("/courses/id/:id/resources", middleware.RequireAuth, controllers.HandleListCourseResources)
	api.Get("/lessons/:id", controllers.HandleGetLesson)
	api.Get("/lessons/:id/comments", controllers.HandleListLessonComments)
}

func (h ApiRouter) registerLearningRoutes(api fiber.Router) {
	api.Post("/lessons/:id/complete", middleware.RequireAuth, controllers.HandleMarkLessonComplete)
	api.Post("/lessons/:id/watch-time", middleware.RequireAuth, controllers.HandleUpdateWatchTime)
	api.Get("/courses/id/:id/progress", middleware.RequireAuth, controllers.HandleGetCourseProgress)
	api.Get("/progress/courses", middleware.RequireAuth, controllers.HandleGetAllCourseProgress)

	api.Post("/lessons/:id/comments", middleware.RequireAuth, controllers.HandleCreateComment)
	api.Put("/comments/:id", middleware.RequireAuth, controllers.HandleUpdateComment)
	api.Delete("/comments/:id", middleware.RequireAuth, controllers.HandleDeleteComment)

	api.Post("/courses/id/:id/reviews", middleware.RequireAuth, controllers.HandleCreateReview)
	api.Put("/reviews/:id", middleware.RequireAuth, controllers.HandleUpdateReview)
	api.Delete("/reviews/:id", middleware.RequireAuth, controllers.HandleDeleteReview)

	api.Get("/badges/mine", middleware.RequireAuth, controllers.HandleGetMyBadges)
	api.Post("/badges/check", middleware.RequireAuth, controllers.HandleRecheckBadges)
}

func (h ApiRouter) registerBillingRoutes(api fiber.Router) {
	api.Get("/subscriptions", middleware.RequireAuth, controllers.HandleListMySubscriptions)
	api.Post("/courses/id/:id/checkout", middleware.RequireAuth, controllers.HandleCreateCheckout)
	api.Post("/billing/portal", middleware.RequireAuth, controllers.HandleCreatePortalSession)

	// Webhooks authenticate via signature, not session.
	api.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
	api.Post("/webhooks/mux", controllers.HandleMuxWebhook)
}

func (h ApiRouter) registerReferralRoutes(api fiber.Router) {
	api.Post("/referrals/click/:code", controllers.HandleTrackReferralClick)
	api.Get("/referrals/mine", middleware.RequireAuth, controllers.HandleGetMyReferrals)
	api.Get("/referrals/credits", middleware.RequireAuth, controllers.HandleGetMyCredits)
}

func (h ApiRouter) registerAdminRoutes(api fiber.Router) {
	admin := api.Group("/admin", middleware.RequireAdmin)

	admin.Post("/lessons/:id/upload", controllers.HandleCreateDirectUpload)
	admin.Post("/lessons/:id/unlock", controllers.HandleAdminUnlockLesson)
	admin.Put("/courses/:id/publish", controllers.HandleAdminPublishCourse)
	admin.Put("/reviews/:id/moderate", controllers.HandleModerateReview)

	admin.Get("/referrals/fraud-checks", controllers.HandleListPendingFraudChecks)
	admin.Post("/referrals/fraud-checks/:id/review", controllers.HandleReviewFraudCheck)

	admin.Get("/analytics/overview", controllers.HandleAnalyticsOverview)
	admin.Get("/analytics/courses", controllers.HandleAnalyticsCourses)
	admin.Get("/analytics/courses/:id", controllers.HandleAnalyticsCourseDetail)
	admin.Get("/analytics/engagement", controllers.HandleAnalyticsEngagement)
	admin.Get("/analytics/user-growth", controllers.HandleAnalyticsUserGrowth)
}
