package video

import (
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/dieselnoi/academy/internal/pkg/env"
)

// Signer issues short-lived signed playback tokens for Mux playback IDs.
// With no key configured it hands back the raw playback ID, which keeps
// non-production environments functional without signed URLs.
type Signer struct {
	keyID string
	key   []byte
	now   func() time.Time
}

// NewSigner creates a signer from an explicit key pair. The private key is
// expected base64 encoded, matching how Mux hands out signing keys.
func NewSigner(keyID, privateKeyB64 string) *Signer {
	s := &Signer{keyID: keyID, now: time.Now}
	if keyID == "" || privateKeyB64 == "" {
		return s
	}
	key, err := base64.StdEncoding.DecodeString(privateKeyB64)
	if err != nil {
		// Fall back to the raw string for keys provided unencoded.
		key = []byte(privateKeyB64)
	}
	s.key = key
	return s
}

// NewSignerFromEnv creates a signer from MUX_SIGNING_KEY_ID /
// MUX_SIGNING_KEY_PRIVATE.
func NewSignerFromEnv() *Signer {
	return NewSigner(
		env.GetEnv("MUX_SIGNING_KEY_ID", ""),
		env.GetEnv("MUX_SIGNING_KEY_PRIVATE", ""),
	)
}

// Configured reports whether a signing key is available.
func (s *Signer) Configured() bool {
	return s.keyID != "" && len(s.key) > 0
}

// SetClock overrides the time source; tests use this to pin expiry.
func (s *Signer) SetClock(now func() time.Time) {
	s.now = now
}

// SignPlayback returns a signed playback token expiring after ttl, or the
// raw playback ID when no signing key is configured.
func (s *Signer) SignPlayback(playbackID string, ttl time.Duration) (string, error) {
	if !s.Configured() {
		return playbackID, nil
	}

	claims := jwt.MapClaims{
		"sub": playbackID,
		"aud": "v", // video playback
		"exp": s.now().Add(ttl).Unix(),
		"kid": s.keyID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = s.keyID

	return token.SignedString(s.key)
}
