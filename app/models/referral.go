package models

import (
	"crypto/rand"
	"time"

	"gorm.io/gorm"
)

const (
	ReferralStatusClicked   = "clicked"
	ReferralStatusSignedUp  = "signed_up"
	ReferralStatusConverted = "converted"
	ReferralStatusRewarded  = "rewarded"
)

const (
	FraudStatusPending  = "pending"
	FraudStatusApproved = "approved"
	FraudStatusRejected = "rejected"
)

// ReferralCode is each user's unique share code, created with the user.
type ReferralCode struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Code      string    `gorm:"uniqueIndex;type:varchar(20);not null" json:"code"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateReferralCode produces an unused code of the form DN-XXXXX.
func GenerateReferralCode(db *gorm.DB) (string, error) {
	for {
		buf := make([]byte, 5)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for i := range buf {
			buf[i] = referralCodeAlphabet[int(buf[i])%len(referralCodeAlphabet)]
		}
		code := "DN-" + string(buf)

		var count int64
		if err := db.Model(&ReferralCode{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
}

// Referral tracks one referred visitor from click through reward. Status only
// moves forward: clicked -> signed_up -> converted -> rewarded.
type Referral struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	ReferrerID          uint       `gorm:"not null;index" json:"referrer_id"`
	RefereeID           *uint      `gorm:"default:null;index" json:"referee_id,omitempty"`
	CodeUsed            string     `gorm:"type:varchar(20);not null;index" json:"code_used"`
	Status              string     `gorm:"type:varchar(20);default:'clicked';index" json:"status"`
	ClickedAt           *time.Time `gorm:"type:timestamp;default:null" json:"clicked_at,omitempty"`
	SignedUpAt          *time.Time `gorm:"type:timestamp;default:null" json:"signed_up_at,omitempty"`
	FirstSubscriptionAt *time.Time `gorm:"type:timestamp;default:null" json:"first_subscription_at,omitempty"`
	IPAddress           string     `gorm:"type:varchar(45);default:null" json:"-"`
	UserAgent           string     `gorm:"type:text" json:"-"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Referrer *User `gorm:"foreignKey:ReferrerID;constraint:OnDelete:CASCADE" json:"-"`
	Referee  *User `gorm:"foreignKey:RefereeID" json:"-"`
}

// ReferralCredit is the reward for an approved conversion. The unique
// referral relation guarantees at most one credit per referral.
type ReferralCredit struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	UserID              uint       `gorm:"not null;index" json:"user_id"`
	ReferralID          uint       `gorm:"uniqueIndex;not null" json:"referral_id"`
	Amount              float64    `gorm:"type:decimal(10,2);default:10.00" json:"amount"`
	EarnedAt            time.Time  `gorm:"autoCreateTime" json:"earned_at"`
	ExpiresAt           time.Time  `gorm:"not null;index" json:"expires_at"`
	Used                bool       `gorm:"default:false" json:"used"`
	UsedAt              *time.Time `gorm:"type:timestamp;default:null" json:"used_at,omitempty"`
	UsedForSubscription *uint      `gorm:"default:null" json:"used_for_subscription,omitempty"`
}

// IsExpired reports whether the credit can no longer be applied.
func (c *ReferralCredit) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ReferralFraudCheck scores a referral conversion once, at creation.
type ReferralFraudCheck struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ReferralID      uint       `gorm:"uniqueIndex;not null" json:"referral_id"`
	SameIP          bool       `gorm:"default:false" json:"same_ip"`
	RapidSignup     bool       `gorm:"default:false" json:"rapid_signup"`
	DisposableEmail bool       `gorm:"default:false" json:"disposable_email"`
	FraudScore      int        `gorm:"default:0" json:"fraud_score"`
	Status          string     `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ReviewedBy      *uint      `gorm:"default:null" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `gorm:"type:timestamp;default:null" json:"reviewed_at,omitempty"`
	Notes           string     `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// AutoReview classifies the check from its fraud score. Low scores approve,
// high scores reject, the band between goes to manual review.
func (f *ReferralFraudCheck) AutoReview() {
	switch {
	case f.FraudScore < 20:
		f.Status = FraudStatusApproved
	case f.FraudScore > 50:
		f.Status = FraudStatusRejected
	default:
		f.Status = FraudStatusPending
	}
}
