// Package twofactor implements TOTP-based two-step login with single-use
// backup codes.
package twofactor

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
)

// ErrInvalidCode is returned when neither the TOTP code nor a backup code
// matches.
var ErrInvalidCode = errors.New("twofactor: invalid code")

// ErrInvalidPassword is returned when the password re-verification for a
// sensitive operation fails.
var ErrInvalidPassword = errors.New("twofactor: invalid password")

const (
	backupCodeCount  = 10
	backupCodeLength = 10
)

var totpCodePattern = regexp.MustCompile(`^\d{6}$`)

// Repository abstracts the persistence the two-factor service needs.
type Repository interface {
	GetDevice(userID uint) (*models.TOTPDevice, error)
	SaveDevice(device *models.TOTPDevice) error
	DeleteDevice(userID uint) error

	ReplaceBackupCodes(userID uint, hashes []string) error
	GetUnusedBackupCode(userID uint, codeHash string) (*models.BackupCode, error)
	MarkBackupCodeUsed(codeID uint, usedAt time.Time) error
	CountUnusedBackupCodes(userID uint) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed two-factor repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetDevice(userID uint) (*models.TOTPDevice, error) {
	var device models.TOTPDevice
	if err := r.db.Where("user_id = ?", userID).First(&device).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *gormRepository) SaveDevice(device *models.TOTPDevice) error {
	return r.db.Save(device).Error
}

func (r *gormRepository) DeleteDevice(userID uint) error {
	return r.db.Where("user_id = ?", userID).Delete(&models.TOTPDevice{}).Error
}

func (r *gormRepository) ReplaceBackupCodes(userID uint, hashes []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.BackupCode{}).Error; err != nil {
			return err
		}
		for _, h := range hashes {
			if err := tx.Create(&models.BackupCode{UserID: userID, CodeHash: h}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *gormRepository) GetUnusedBackupCode(userID uint, codeHash string) (*models.BackupCode, error) {
	var code models.BackupCode
	err := r.db.Where("user_id = ? AND code_hash = ? AND used_at IS NULL", userID, codeHash).
		First(&code).Error
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *gormRepository) MarkBackupCodeUsed(codeID uint, usedAt time.Time) error {
	return r.db.Model(&models.BackupCode{}).
		Where("id = ? AND used_at IS NULL", codeID).
		Update("used_at", &usedAt).Error
}

func (r *gormRepository) CountUnusedBackupCodes(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.BackupCode{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

// Service provisions, confirms and verifies TOTP devices.
type Service struct {
	repo   Repository
	issuer string
	now    func() time.Time
}

// NewService creates a two-factor service. The issuer appears in
// authenticator apps next to the account name.
func NewService(repo Repository, issuer string) *Service {
	return &Service{repo: repo, issuer: issuer, now: time.Now}
}

// NewServiceFromDB creates a two-factor service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, issuer string) *Service {
	return NewService(NewRepository(db), issuer)
}

// SetClock overrides the service clock, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Enrollment is the result of starting two-factor setup: the secret, the
// otpauth URL for QR rendering, and the fresh backup codes shown once.
type Enrollment struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	BackupCodes []string `json:"backup_codes"`
}

// StartEnrollment generates a new unconfirmed device for the user,
// replacing any previous unconfirmed one. A confirmed device must be
// disabled first.
func (s *Service) StartEnrollment(userID uint, accountName string) (*Enrollment, error) {
	existing, err := s.repo.GetDevice(userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil && existing.Confirmed {
		return nil, errors.New("twofactor: already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}

	device := existing
	if device == nil {
		device = &models.TOTPDevice{UserID: userID}
	}
	device.Secret = key.Secret()
	device.Confirmed = false
	if err := s.repo.SaveDevice(device); err != nil {
		return nil, err
	}

	codes, err := s.regenerateBackupCodes(userID)
	if err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		BackupCodes: codes,
	}, nil
}

// ConfirmEnrollment activates the pending device once the user proves they
// hold the secret.
func (s *Service) ConfirmEnrollment(userID uint, code string) error {
	device, err := s.repo.GetDevice(userID)
	if err != nil {
		return err
	}
	if device.Confirmed {
		return nil
	}
	if !totp.Validate(strings.TrimSpace(code), device.Secret) {
		return ErrInvalidCode
	}
	device.Confirmed = true
	return s.repo.SaveDevice(device)
}

// Disable removes the user's device and backup codes.
func (s *Service) Disable(userID uint) error {
	if err := s.repo.DeleteDevice(userID); err != nil {
		return err
	}
	return s.repo.ReplaceBackupCodes(userID, nil)
}

// IsEnabled reports whether the user has a confirmed device.
func (s *Service) IsEnabled(userID uint) (bool, error) {
	device, err := s.repo.GetDevice(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return device.Confirmed, nil
}

// VerifyCode checks a second-factor submission. Six-digit inputs are
// checked against the TOTP secret; anything else is tried as a backup
// code, which is consumed on success.
func (s *Service) VerifyCode(userID uint, code string) error {
	device, err := s.repo.GetDevice(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return err
	}
	if !device.Confirmed {
		return ErrInvalidCode
	}

	trimmed := strings.TrimSpace(code)
	if totpCodePattern.MatchString(trimmed) {
		if totp.Validate(trimmed, device.Secret) {
			return nil
		}
		return ErrInvalidCode
	}

	return s.consumeBackupCode(userID, trimmed)
}

func (s *Service) consumeBackupCode(userID uint, code string) error {
	normalized := strings.ToUpper(strings.ReplaceAll(code, "-", ""))
	backup, err := s.repo.GetUnusedBackupCode(userID, models.HashBackupCode(normalized))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return err
	}
	return s.repo.MarkBackupCodeUsed(backup.ID, s.now())
}

// RegenerateBackupCodes replaces the user's backup codes and returns the
// fresh plaintext codes, shown once. The current password must be
// re-verified; a live session alone is not enough to mint codes.
func (s *Service) RegenerateBackupCodes(user *models.User, password string) ([]string, error) {
	if !user.CheckPassword(password) {
		return nil, ErrInvalidPassword
	}
	enabled, err := s.IsEnabled(user.ID)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, errors.New("twofactor: not enabled")
	}
	return s.regenerateBackupCodes(user.ID)
}

// RemainingBackupCodes counts unused backup codes.
func (s *Service) RemainingBackupCodes(userID uint) (int64, error) {
	return s.repo.CountUnusedBackupCodes(userID)
}

func (s *Service) regenerateBackupCodes(userID uint) ([]string, error) {
	codes := make([]string, 0, backupCodeCount)
	hashes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code, err := randomBackupCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, models.HashBackupCode(code))
	}
	if err := s.repo.ReplaceBackupCodes(userID, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomBackupCode() (string, error) {
	var b strings.Builder
	for i := 0; i < backupCodeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupCodeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("twofactor: generating backup code: %w", err)
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
