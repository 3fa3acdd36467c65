package twofactor

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dieselnoi/academy/app/models"
)

type fakeRepo struct {
	devices map[uint]*models.TOTPDevice
	codes   map[uint][]*models.BackupCode
	nextID  uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		devices: make(map[uint]*models.TOTPDevice),
		codes:   make(map[uint][]*models.BackupCode),
	}
}

func (r *fakeRepo) GetDevice(userID uint) (*models.TOTPDevice, error) {
	d, ok := r.devices[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return d, nil
}

func (r *fakeRepo) SaveDevice(device *models.TOTPDevice) error {
	r.devices[device.UserID] = device
	return nil
}

func (r *fakeRepo) DeleteDevice(userID uint) error {
	delete(r.devices, userID)
	return nil
}

func (r *fakeRepo) ReplaceBackupCodes(userID uint, hashes []string) error {
	r.codes[userID] = nil
	for _, h := range hashes {
		r.nextID++
		r.codes[userID] = append(r.codes[userID], &models.BackupCode{
			ID: r.nextID, UserID: userID, CodeHash: h,
		})
	}
	return nil
}

func (r *fakeRepo) GetUnusedBackupCode(userID uint, codeHash string) (*models.BackupCode, error) {
	for _, c := range r.codes[userID] {
		if c.CodeHash == codeHash && c.UsedAt == nil {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) MarkBackupCodeUsed(codeID uint, usedAt time.Time) error {
	for _, codes := range r.codes {
		for _, c := range codes {
			if c.ID == codeID {
				c.UsedAt = &usedAt
			}
		}
	}
	return nil
}

func (r *fakeRepo) CountUnusedBackupCodes(userID uint) (int64, error) {
	var count int64
	for _, c := range r.codes[userID] {
		if c.UsedAt == nil {
			count++
		}
	}
	return count, nil
}

func enroll(t *testing.T, svc *Service, userID uint) *Enrollment {
	t.Helper()
	enrollment, err := svc.StartEnrollment(userID, "alice@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmEnrollment(userID, code))
	return enrollment
}

func TestStartEnrollment(t *testing.T) {
	svc := NewService(newFakeRepo(), "Diesel Noi Academy")

	enrollment, err := svc.StartEnrollment(7, "alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.OTPAuthURL, "otpauth://")
	assert.Len(t, enrollment.BackupCodes, 10)
	for _, code := range enrollment.BackupCodes {
		assert.Len(t, code, 10)
	}

	enabled, err := svc.IsEnabled(7)
	require.NoError(t, err)
	assert.False(t, enabled, "enrollment is not active until confirmed")
}

func TestConfirmEnrollment_WrongCode(t *testing.T) {
	svc := NewService(newFakeRepo(), "Diesel Noi Academy")

	_, err := svc.StartEnrollment(7, "alice@example.com")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ConfirmEnrollment(7, "000000"), ErrInvalidCode)
}

func TestConfirmEnrollment_EnablesDevice(t *testing.T) {
	svc := NewService(newFakeRepo(), "Diesel Noi Academy")
	enroll(t, svc, 7)

	enabled, err := svc.IsEnabled(7)
	require.NoError(t, err)
	assert.True(t, enabled)

	// A second enrollment on an active device is refused.
	_, err = svc.StartEnrollment(7, "alice@example.com")
	assert.Error(t, err)
}

func TestVerifyCode_TOTP(t *testing.T) {
	svc := NewService(newFakeRepo(), "Diesel Noi Academy")
	enrollment := enroll(t, svc, 7)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	assert.NoError(t, svc.VerifyCode(7, code))
	assert.ErrorIs(t, svc.VerifyCode(7, "000000"), ErrInvalidCode)
}

func TestVerifyCode_BackupCodeSingleUse(t *testing.T) {
	svc := NewService(newFakeRepo(), "Diesel Noi Academy")
	enrollment := enroll(t, svc, 7)

	backup := enrollment.BackupCodes[0]
	require.NoError(t, svc.VerifyCode(7, backup))

	remaining, err := svc.RemainingBackupCodes(7)
	require.NoError(t, err)
	assert.Equal(t, int64(9), remaining)

	assert.ErrorIs(t, svc.VerifyCode(7, backup), ErrInvalidCode, "a consumed backup code must not verify twice")
}

func TestVerifyCode_BackupCodeNormalization(t *testing.T) {
	svc := NewService(newFakeRepo(), "Diesel Noi Academy")
	enrollment := enroll(t, svc, 7)

	backup := enrollment.BackupCodes[1]
	// Lowercased with a dash in the middle, the way users retype codes.
	submitted := backup[:5] + "-" + backup[5:]
	assert.NoError(t, svc.VerifyCode(7, strings.ToLower(submitted)))
}

func TestVerifyCode_NoDevice(t *testing.T) {
	svc := NewService(newFakeRepo(), "Diesel Noi Academy")
	assert.ErrorIs(t, svc.VerifyCode(7, "123456"), ErrInvalidCode)
}

func TestDisable(t *testing.T) {
	svc := NewService(newFakeRepo(), "Diesel Noi Academy")
	enroll(t, svc, 7)

	require.NoError(t, svc.Disable(7))

	enabled, err := svc.IsEnabled(7)
	require.NoError(t, err)
	assert.False(t, enabled)

	remaining, err := svc.RemainingBackupCodes(7)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func testUser(t *testing.T, id uint, password string) *models.User {
	t.Helper()
	user := &models.User{ID: id, Username: "alice", Email: "alice@example.com"}
	require.NoError(t, user.SetPassword(password))
	return user
}

func TestRegenerateBackupCodes(t *testing.T) {
	svc := NewService(newFakeRepo(), "Diesel Noi Academy")
	enrollment := enroll(t, svc, 7)
	user := testUser(t, 7, "correct horse")

	fresh, err := svc.RegenerateBackupCodes(user, "correct horse")
	require.NoError(t, err)
	assert.Len(t, fresh, 10)

	// The old codes are invalidated wholesale.
	assert.ErrorIs(t, svc.VerifyCode(7, enrollment.BackupCodes[0]), ErrInvalidCode)
	assert.NoError(t, svc.VerifyCode(7, fresh[0]))
}

func TestRegenerateBackupCodes_RequiresPassword(t *testing.T) {
	svc := NewService(newFakeRepo(), "Diesel Noi Academy")
	enrollment := enroll(t, svc, 7)
	user := testUser(t, 7, "correct horse")

	_, err := svc.RegenerateBackupCodes(user, "wrong password")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	// The existing codes survive a refused regeneration.
	assert.NoError(t, svc.VerifyCode(7, enrollment.BackupCodes[0]))
}

func TestRegenerateBackupCodes_RequiresEnabled(t *testing.T) {
	svc := NewService(newFakeRepo(), "Diesel Noi Academy")
	user := testUser(t, 7, "correct horse")
	_, err := svc.RegenerateBackupCodes(user, "correct horse")
	assert.Error(t, err)
}
