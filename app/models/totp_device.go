package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TOTPDevice holds a user's authenticator secret. Only a confirmed device
// participates in the two-step login flow.
type TOTPDevice struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Secret    string    `gorm:"type:varchar(64);not null" json:"-"`
	Confirmed bool      `gorm:"default:false" json:"confirmed"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BackupCode is a single-use recovery code. Only the hash is stored.
type BackupCode struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	CodeHash  string     `gorm:"type:varchar(64);not null;index" json:"-"`
	UsedAt    *time.Time `gorm:"type:timestamp;default:null" json:"used_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// HashBackupCode normalizes and hashes a backup code for storage and lookup.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
