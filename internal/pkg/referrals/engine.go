// Package referrals runs the refer-a-friend program: share codes, click and
// signup attribution, conversion fraud scoring and credit rewards.
package referrals

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dieselnoi/academy/app/models"
	"github.com/dieselnoi/academy/internal/pkg/events"
)

const (
	creditAmount   = 10.00
	creditValidity = 365 * 24 * time.Hour
)

// Repository abstracts the persistence the referral engine needs.
type Repository interface {
	GetCodeByUser(userID uint) (*models.ReferralCode, error)
	GetCodeByCode(code string) (*models.ReferralCode, error)
	CreateCode(code *models.ReferralCode) error

	CreateReferral(ref *models.Referral) error
	SaveReferral(ref *models.Referral) error
	GetPendingClick(referrerID uint, code, ip string) (*models.Referral, error)
	GetSignedUpByReferee(refereeID uint) (*models.Referral, error)
	ListByReferrer(referrerID uint) ([]models.Referral, error)

	CountSameIPReferrals(referrerID uint, ip string, excludeID uint) (int64, error)
	CountRecentReferrals(referrerID uint, since time.Time) (int64, error)

	// CreateFraudCheckIfNotExists scores at most once per referral; the
	// boolean reports whether this call created the row.
	CreateFraudCheckIfNotExists(check *models.ReferralFraudCheck) (bool, *models.ReferralFraudCheck, error)
	GetFraudCheck(referralID uint) (*models.ReferralFraudCheck, error)
	GetFraudCheckByID(checkID uint) (*models.ReferralFraudCheck, error)
	SaveFraudCheck(check *models.ReferralFraudCheck) error
	ListPendingFraudChecks() ([]models.ReferralFraudCheck, error)

	// CreateCreditIfNotExists issues at most one credit per referral.
	CreateCreditIfNotExists(credit *models.ReferralCredit) (bool, *models.ReferralCredit, error)
	ListCreditsByUser(userID uint) ([]models.ReferralCredit, error)
	SaveCredit(credit *models.ReferralCredit) error

	GetUserByID(userID uint) (*models.User, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed referral repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetCodeByUser(userID uint) (*models.ReferralCode, error) {
	var code models.ReferralCode
	if err := r.db.Where("user_id = ?", userID).First(&code).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *gormRepository) GetCodeByCode(code string) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	if err := r.db.Where("code = ?", code).First(&rc).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *gormRepository) CreateCode(code *models.ReferralCode) error {
	return r.db.Create(code).Error
}

func (r *gormRepository) CreateReferral(ref *models.Referral) error {
	return r.db.Create(ref).Error
}

func (r *gormRepository) SaveReferral(ref *models.Referral) error {
	return r.db.Save(ref).Error
}

func (r *gormRepository) GetPendingClick(referrerID uint, code, ip string) (*models.Referral, error) {
	var ref models.Referral
	err := r.db.Where("referrer_id = ? AND code_used = ? AND ip_address = ? AND status = ?",
		referrerID, code, ip, models.ReferralStatusClicked).
		Order("created_at DESC").First(&ref).Error
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *gormRepository) GetSignedUpByReferee(refereeID uint) (*models.Referral, error) {
	var ref models.Referral
	err := r.db.Where("referee_id = ? AND status = ?", refereeID, models.ReferralStatusSignedUp).
		First(&ref).Error
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *gormRepository) ListByReferrer(referrerID uint) ([]models.Referral, error) {
	var refs []models.Referral
	err := r.db.Where("referrer_id = ?", referrerID).
		Order("created_at DESC").Find(&refs).Error
	return refs, err
}

func (r *gormRepository) CountSameIPReferrals(referrerID uint, ip string, excludeID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Referral{}).
		Where("referrer_id = ? AND ip_address = ? AND id <> ?", referrerID, ip, excludeID).
		Count(&count).Error
	return count, err
}

// CountRecentReferrals counts every referral row in the window, clicks
// included. Click spam is the cheapest signal to generate and must feed
// the rapid-signup check.
func (r *gormRepository) CountRecentReferrals(referrerID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Referral{}).
		Where("referrer_id = ? AND created_at >= ?", referrerID, since).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) CreateFraudCheckIfNotExists(check *models.ReferralFraudCheck) (bool, *models.ReferralFraudCheck, error) {
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(check)
	if res.Error != nil {
		return false, nil, res.Error
	}
	if res.RowsAffected > 0 {
		return true, check, nil
	}
	existing, err := r.GetFraudCheck(check.ReferralID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *gormRepository) GetFraudCheck(referralID uint) (*models.ReferralFraudCheck, error) {
	var check models.ReferralFraudCheck
	if err := r.db.Where("referral_id = ?", referralID).First(&check).Error; err != nil {
		return nil, err
	}
	return &check, nil
}

func (r *gormRepository) GetFraudCheckByID(checkID uint) (*models.ReferralFraudCheck, error) {
	var check models.ReferralFraudCheck
	if err := r.db.First(&check, checkID).Error; err != nil {
		return nil, err
	}
	return &check, nil
}

func (r *gormRepository) SaveFraudCheck(check *models.ReferralFraudCheck) error {
	return r.db.Save(check).Error
}

func (r *gormRepository) ListPendingFraudChecks() ([]models.ReferralFraudCheck, error) {
	var checks []models.ReferralFraudCheck
	err := r.db.Where("status = ?", models.FraudStatusPending).
		Order("created_at ASC").Find(&checks).Error
	return checks, err
}

func (r *gormRepository) CreateCreditIfNotExists(credit *models.ReferralCredit) (bool, *models.ReferralCredit, error) {
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(credit)
	if res.Error != nil {
		return false, nil, res.Error
	}
	if res.RowsAffected > 0 {
		return true, credit, nil
	}
	var existing models.ReferralCredit
	if err := r.db.Where("referral_id = ?", credit.ReferralID).First(&existing).Error; err != nil {
		return false, nil, err
	}
	return false, &existing, nil
}

// ListCreditsByUser orders by expiry so the soonest-expiring credit is
// spent first.
func (r *gormRepository) ListCreditsByUser(userID uint) ([]models.ReferralCredit, error) {
	var credits []models.ReferralCredit
	err := r.db.Where("user_id = ?", userID).
		Order("expires_at ASC").Find(&credits).Error
	return credits, err
}

func (r *gormRepository) SaveCredit(credit *models.ReferralCredit) error {
	return r.db.Save(credit).Error
}

func (r *gormRepository) GetUserByID(userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Engine drives the referral lifecycle.
type Engine struct {
	repo       Repository
	db         *gorm.DB
	dispatcher *events.Dispatcher
	now        func() time.Time
}

// NewEngine creates a referral engine. The DB handle is only used for code
// generation uniqueness checks.
func NewEngine(repo Repository, db *gorm.DB, dispatcher *events.Dispatcher) *Engine {
	return &Engine{repo: repo, db: db, dispatcher: dispatcher, now: time.Now}
}

// NewEngineFromDB creates a referral engine from a GORM DB handle.
func NewEngineFromDB(db *gorm.DB, dispatcher *events.Dispatcher) *Engine {
	return NewEngine(NewRepository(db), db, dispatcher)
}

// SetClock overrides the engine clock, for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// GetOrCreateCode returns the user's share code, creating it on first use.
func (e *Engine) GetOrCreateCode(userID uint) (*models.ReferralCode, error) {
	code, err := e.repo.GetCodeByUser(userID)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	generated, err := models.GenerateReferralCode(e.db)
	if err != nil {
		return nil, err
	}
	code = &models.ReferralCode{UserID: userID, Code: generated}
	if err := e.repo.CreateCode(code); err != nil {
		return nil, err
	}
	return code, nil
}

// TrackClick records a visit through a share link. Unknown codes are
// ignored without error so the landing page never breaks.
func (e *Engine) TrackClick(code, ip, userAgent string) (*models.Referral, error) {
	rc, err := e.repo.GetCodeByCode(code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := e.now()
	ref := &models.Referral{
		ReferrerID: rc.UserID,
		CodeUsed:   rc.Code,
		Status:     models.ReferralStatusClicked,
		ClickedAt:  &now,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := e.repo.CreateReferral(ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// AttributeSignup ties a new account to the referral code it arrived with.
// Invalid codes and self-referrals are dropped silently; registration must
// never fail because of a bad code.
func (e *Engine) AttributeSignup(user *models.User, code, ip, userAgent string) (*models.Referral, error) {
	if code == "" {
		return nil, nil
	}
	rc, err := e.repo.GetCodeByCode(code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rc.UserID == user.ID {
		return nil, nil
	}

	now := e.now()

	// Upgrade the click row for this IP when one exists, otherwise the
	// signup came with the code directly. The IP match picks the visitor's
	// own click when several un-attributed clicks exist for the code.
	ref, err := e.repo.GetPendingClick(rc.UserID, rc.Code, ip)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ref = &models.Referral{
			ReferrerID: rc.UserID,
			CodeUsed:   rc.Code,
			IPAddress:  ip,
			UserAgent:  userAgent,
		}
	} else if err != nil {
		return nil, err
	}

	ref.RefereeID = &user.ID
	ref.Status = models.ReferralStatusSignedUp
	ref.SignedUpAt = &now
	if ref.ID == 0 {
		err = e.repo.CreateReferral(ref)
	} else {
		err = e.repo.SaveReferral(ref)
	}
	if err != nil {
		return nil, err
	}

	if e.dispatcher != nil {
		e.dispatcher.Publish(events.ReferralSignedUp{Referral: ref})
	}
	return ref, nil
}

// OnSubscriptionActivated converts the referee's referral, scores it for
// fraud and rewards the referrer when the check approves. Errors are
// logged, never propagated; subscription activation must not fail on
// referral bookkeeping.
func (e *Engine) OnSubscriptionActivated(userID uint) {
	if err := e.convertAndReward(userID); err != nil {
		log.Printf("referrals: conversion for user %d failed: %v", userID, err)
	}
}

func (e *Engine) convertAndReward(userID uint) error {
	ref, err := e.repo.GetSignedUpByReferee(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	now := e.now()
	ref.Status = models.ReferralStatusConverted
	ref.FirstSubscriptionAt = &now
	if err := e.repo.SaveReferral(ref); err != nil {
		return err
	}

	check, err := e.scoreConversion(ref)
	if err != nil {
		return err
	}
	if check.Status != models.FraudStatusApproved {
		log.Printf("referrals: referral %d held for review (score %d, status %s)",
			ref.ID, check.FraudScore, check.Status)
		return nil
	}
	return e.issueCredit(ref)
}

// scoreConversion computes the fraud signals once per referral. A repeat
// conversion returns the stored check unchanged.
func (e *Engine) scoreConversion(ref *models.Referral) (*models.ReferralFraudCheck, error) {
	signals := FraudSignals{}

	if ref.IPAddress != "" {
		sameIP, err := e.repo.CountSameIPReferrals(ref.ReferrerID, ref.IPAddress, ref.ID)
		if err != nil {
			return nil, err
		}
		signals.SameIP = sameIP > 0
	}

	recent, err := e.repo.CountRecentReferrals(ref.ReferrerID, e.now().Add(-rapidSignupWindow))
	if err != nil {
		return nil, err
	}
	signals.RapidSignup = recent > rapidSignupThreshold

	if ref.RefereeID != nil {
		referee, err := e.repo.GetUserByID(*ref.RefereeID)
		if err != nil {
			return nil, err
		}
		signals.DisposableEmail = IsDisposableEmail(referee.Email)
	}

	check := &models.ReferralFraudCheck{
		ReferralID:      ref.ID,
		SameIP:          signals.SameIP,
		RapidSignup:     signals.RapidSignup,
		DisposableEmail: signals.DisposableEmail,
		FraudScore:      signals.Score(),
	}
	check.AutoReview()

	_, stored, err := e.repo.CreateFraudCheckIfNotExists(check)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (e *Engine) issueCredit(ref *models.Referral) error {
	credit := &models.ReferralCredit{
		UserID:     ref.ReferrerID,
		ReferralID: ref.ID,
		Amount:     creditAmount,
		ExpiresAt:  e.now().Add(creditValidity),
	}
	created, stored, err := e.repo.CreateCreditIfNotExists(credit)
	if err != nil {
		return err
	}

	ref.Status = models.ReferralStatusRewarded
	if err := e.repo.SaveReferral(ref); err != nil {
		return err
	}

	if created && e.dispatcher != nil {
		e.dispatcher.Publish(events.ReferralCreditIssued{Referral: ref, Credit: stored})
	}
	return nil
}

// ReviewFraudCheck settles a pending check by hand. Approval releases the
// withheld credit.
func (e *Engine) ReviewFraudCheck(checkID, reviewerID uint, approve bool, notes string) (*models.ReferralFraudCheck, error) {
	check, err := e.repo.GetFraudCheckByID(checkID)
	if err != nil {
		return nil, err
	}
	if check.Status != models.FraudStatusPending {
		return nil, fmt.Errorf("referrals: fraud check %d already %s", check.ID, check.Status)
	}

	now := e.now()
	check.ReviewedBy = &reviewerID
	check.ReviewedAt = &now
	check.Notes = notes
	if approve {
		check.Status = models.FraudStatusApproved
	} else {
		check.Status = models.FraudStatusRejected
	}
	if err := e.repo.SaveFraudCheck(check); err != nil {
		return nil, err
	}

	if approve {
		var ref models.Referral
		if err := e.db.First(&ref, check.ReferralID).Error; err != nil {
			return check, err
		}
		if err := e.issueCredit(&ref); err != nil {
			return check, err
		}
	}
	return check, nil
}

// PendingFraudChecks lists conversions awaiting manual review.
func (e *Engine) PendingFraudChecks() ([]models.ReferralFraudCheck, error) {
	return e.repo.ListPendingFraudChecks()
}

// Stats summarizes a referrer's program standing.
type Stats struct {
	Code           string  `json:"code"`
	TotalClicks    int64   `json:"total_clicks"`
	TotalSignups   int64   `json:"total_signups"`
	TotalConverted int64   `json:"total_converted"`
	TotalRewarded  int64   `json:"total_rewarded"`
	CreditsEarned  float64 `json:"credits_earned"`
	CreditsUnused  float64 `json:"credits_unused"`
	CreditsExpired float64 `json:"credits_expired"`
}

// StatsFor assembles the user's referral dashboard numbers.
func (e *Engine) StatsFor(userID uint) (*Stats, error) {
	code, err := e.GetOrCreateCode(userID)
	if err != nil {
		return nil, err
	}
	refs, err := e.repo.ListByReferrer(userID)
	if err != nil {
		return nil, err
	}
	credits, err := e.repo.ListCreditsByUser(userID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Code: code.Code}
	for _, ref := range refs {
		stats.TotalClicks++
		switch ref.Status {
		case models.ReferralStatusSignedUp:
			stats.TotalSignups++
		case models.ReferralStatusConverted:
			stats.TotalSignups++
			stats.TotalConverted++
		case models.ReferralStatusRewarded:
			stats.TotalSignups++
			stats.TotalConverted++
			stats.TotalRewarded++
		}
	}
	now := e.now()
	for _, credit := range credits {
		stats.CreditsEarned += credit.Amount
		switch {
		case credit.Used:
		case credit.IsExpired(now):
			stats.CreditsExpired += credit.Amount
		default:
			stats.CreditsUnused += credit.Amount
		}
	}
	return stats, nil
}

// Credits lists the user's earned credits, soonest-expiring first.
func (e *Engine) Credits(userID uint) ([]models.ReferralCredit, error) {
	return e.repo.ListCreditsByUser(userID)
}

// ApplyCreditToSubscription spends the user's soonest-expiring unused
// credit on a newly activated subscription. Returns nil without error when
// no usable credit exists.
func (e *Engine) ApplyCreditToSubscription(userID, subscriptionID uint) (*models.ReferralCredit, error) {
	credits, err := e.repo.ListCreditsByUser(userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	for i := range credits {
		credit := &credits[i]
		if credit.Used || credit.IsExpired(now) {
			continue
		}
		credit.Used = true
		credit.UsedAt = &now
		credit.UsedForSubscription = &subscriptionID
		if err := e.repo.SaveCredit(credit); err != nil {
			return nil, err
		}
		log.Printf("referrals: credit %d applied to subscription %d for user %d",
			credit.ID, subscriptionID, userID)
		return credit, nil
	}
	return nil, nil
}
