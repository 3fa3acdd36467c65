package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/dieselnoi/academy/app/controllers"
	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/app/repository"
	"github.com/dieselnoi/academy/internal/pkg/analytics"
	"github.com/dieselnoi/academy/internal/pkg/authguard"
	"github.com/dieselnoi/academy/internal/pkg/badges"
	"github.com/dieselnoi/academy/internal/pkg/cache"
	"github.com/dieselnoi/academy/internal/pkg/database"
	"github.com/dieselnoi/academy/internal/pkg/entitlements"
	"github.com/dieselnoi/academy/internal/pkg/env"
	"github.com/dieselnoi/academy/internal/pkg/events"
	"github.com/dieselnoi/academy/internal/pkg/mail"
	"github.com/dieselnoi/academy/internal/pkg/payments"
	"github.com/dieselnoi/academy/internal/pkg/progress"
	"github.com/dieselnoi/academy/internal/pkg/referrals"
	"github.com/dieselnoi/academy/internal/pkg/router"
	"github.com/dieselnoi/academy/internal/pkg/twofactor"
	"github.com/dieselnoi/academy/internal/pkg/video"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)

	counter := cache.NewRedisCounter(cache.GetClient())
	dispatcher := events.NewDispatcher()

	referralEngine := referrals.NewEngineFromDB(db, dispatcher)
	badgeEngine := badges.NewEngineFromDB(db)

	services := controllers.Services{
		Dispatcher:   dispatcher,
		LoginTracker: authguard.NewTracker(counter),
		RegLimiter:   authguard.NewRegistrationLimiter(counter),
		TwoFactor:    twofactor.NewServiceFromDB(db, env.GetEnv("APP_NAME", "Diesel Noi Academy")),
		Entitlements: entitlements.NewResolverFromDB(db, video.NewSignerFromEnv()),
		MuxClient:    video.NewClientFromEnv(),
		StripeClient: payments.NewStripeClientFromEnv(),
		Payments:     payments.NewServiceFromDB(db, dispatcher),
		Referrals:    referralEngine,
		Progress:     progress.NewTrackerFromDB(db, counter, dispatcher),
		Badges:       badgeEngine,
		Analytics:    analytics.NewService(db),
	}
	controllers.Setup(services)
	subscribeEventHandlers(dispatcher, referralEngine)

	app := fiber.New(fiber.Config{
		AppName: env.GetEnv("APP_NAME", "Diesel Noi Academy"),
	})

	app.Use(recover.New(), logger.New())

	router.InstallRouter(app)

	return app
}

// subscribeEventHandlers wires the side effects that ride on domain events:
// notification emails and referral conversion.
func subscribeEventHandlers(dispatcher *events.Dispatcher, referralEngine *referrals.Engine) {
	userRepo := func() repository.UserRepository {
		return repository.GetGlobalFactory().GetUserRepository()
	}

	dispatcher.Subscribe(events.NameUserRegistered, func(event interface{}) {
		e := event.(events.UserRegistered)
		code, err := referralEngine.GetOrCreateCode(e.User.ID)
		if err != nil {
			log.Printf("events: loading referral code for welcome mail failed: %v", err)
			return
		}
		mail.SendWelcome(e.User, code.Code)
	})

	dispatcher.Subscribe(events.NameReferralSignedUp, func(event interface{}) {
		e := event.(events.ReferralSignedUp)
		referrer, err := userRepo().GetByID(e.Referral.ReferrerID)
		if err != nil {
			log.Printf("events: loading referrer %d failed: %v", e.Referral.ReferrerID, err)
			return
		}
		mail.SendReferrerSignupNotice(referrer, e.Referral.CodeUsed)
		if e.Referral.RefereeID != nil {
			if referee, err := userRepo().GetByID(*e.Referral.RefereeID); err == nil {
				mail.SendRefereeWelcome(referee)
			}
		}
	})

	dispatcher.Subscribe(events.NameSubscriptionActivated, func(event interface{}) {
		e := event.(events.SubscriptionActivated)
		referralEngine.OnSubscriptionActivated(e.Subscription.UserID)
		if _, err := referralEngine.ApplyCreditToSubscription(e.Subscription.UserID, e.Subscription.ID); err != nil {
			log.Printf("events: applying credit for user %d failed: %v", e.Subscription.UserID, err)
		}
	})

	dispatcher.Subscribe(events.NameReferralCreditIssued, func(event interface{}) {
		e := event.(events.ReferralCreditIssued)
		referrer, err := userRepo().GetByID(e.Credit.UserID)
		if err != nil {
			log.Printf("events: loading referrer %d failed: %v", e.Credit.UserID, err)
			return
		}
		mail.SendCreditEarned(referrer, e.Credit)
	})

	dispatcher.Subscribe(events.NameReviewChanged, func(event interface{}) {
		e := event.(events.ReviewChanged)
		db := database.GetDB()
		var course models.Course
		if err := db.First(&course, e.CourseID).Error; err != nil {
			log.Printf("events: loading course %d failed: %v", e.CourseID, err)
			return
		}
		if err := course.UpdateRatingCache(db); err != nil {
			log.Printf("events: refreshing rating cache for course %d failed: %v", e.CourseID, err)
		}
	})

	dispatcher.Subscribe(events.NameCourseCompleted, func(event interface{}) {
		e := event.(events.CourseCompleted)
		user, err := userRepo().GetByID(e.UserID)
		if err != nil {
			log.Printf("events: loading user %d failed: %v", e.UserID, err)
			return
		}
		var course models.Course
		if err := database.GetDB().First(&course, e.CourseID).Error; err != nil {
			log.Printf("events: loading course %d failed: %v", e.CourseID, err)
			return
		}
		mail.SendCourseCompletion(user, &course)
	})
}
