package main

import (
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/internal/pkg/database"
	"github.com/dieselnoi/academy/internal/pkg/env"
)

func intPtr(v int64) *int64 { return &v }

// The fixed badge catalog. Seeding is idempotent; existing badges are left
// untouched.
var badgeCatalog = []models.Badge{
	{Name: "First Steps", Description: "Complete your first lesson", Icon: "footprints", Category: models.BadgeCategoryStarter, RequirementValue: intPtr(1)},
	{Name: "Getting Warmed Up", Description: "Complete 5 lessons", Icon: "flame", Category: models.BadgeCategoryStarter, RequirementValue: intPtr(5)},
	{Name: "Committed Student", Description: "Complete 25 lessons", Icon: "book", Category: models.BadgeCategoryStarter, RequirementValue: intPtr(25)},
	{Name: "Lesson Century", Description: "Complete 100 lessons", Icon: "trophy", Category: models.BadgeCategoryStarter, RequirementValue: intPtr(100)},

	{Name: models.BadgeNameCourseComplete, Description: "Finish every lesson of a course", Icon: "medal", Category: models.BadgeCategoryCompletion},
	{Name: models.BadgeNameCompletionist, Description: "Finish every published course", Icon: "crown", Category: models.BadgeCategoryCompletion},

	{Name: "Conversation Starter", Description: "Post your first comment", Icon: "chat", Category: models.BadgeCategoryEngagement, RequirementValue: intPtr(1)},
	{Name: "Active Voice", Description: "Post 10 comments", Icon: "megaphone", Category: models.BadgeCategoryEngagement, RequirementValue: intPtr(10)},
	{Name: "Community Pillar", Description: "Post 50 comments", Icon: "pillar", Category: models.BadgeCategoryEngagement, RequirementValue: intPtr(50)},
}

func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	db := database.GetDB()

	seeded := 0
	for _, badge := range badgeCatalog {
		b := badge
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&b)
		if res.Error != nil {
			log.Fatalf("Failed to seed badge %q: %v", badge.Name, res.Error)
		}
		if res.RowsAffected > 0 {
			seeded++
		}
	}
	log.Printf("Badge catalog: %d new, %d total", seeded, len(badgeCatalog))

	if err := backfillReferralCodes(db); err != nil {
		log.Fatalf("Failed to backfill referral codes: %v", err)
	}
}

// backfillReferralCodes creates share codes for users that predate the
// referral program.
func backfillReferralCodes(db *gorm.DB) error {
	var users []models.User
	err := db.Where("id NOT IN (?)", db.Model(&models.ReferralCode{}).Select("user_id")).
		Find(&users).Error
	if err != nil {
		return err
	}

	for _, user := range users {
		code, err := models.GenerateReferralCode(db)
		if err != nil {
			return err
		}
		if err := db.Create(&models.ReferralCode{UserID: user.ID, Code: code}).Error; err != nil {
			return err
		}
	}
	log.Printf("Referral codes: %d backfilled", len(users))
	return nil
}
