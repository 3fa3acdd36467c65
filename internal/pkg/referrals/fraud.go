package referrals

import (
	"strings"
	"time"
)

// Fraud score weights. The score is capped at 100.
const (
	fraudScoreSameIP          = 30
	fraudScoreRapidSignup     = 25
	fraudScoreDisposableEmail = 40
	fraudScoreCap             = 100

	rapidSignupWindow    = 24 * time.Hour
	rapidSignupThreshold = 5
)

var disposableEmailDomains = []string{
	"tempmail.com",
	"guerrillamail.com",
	"mailinator.com",
	"10minutemail.com",
}

// IsDisposableEmail reports whether the email's domain is a known
// throwaway provider.
func IsDisposableEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	for _, d := range disposableEmailDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// FraudSignals are the inputs to conversion scoring.
type FraudSignals struct {
	SameIP          bool
	RapidSignup     bool
	DisposableEmail bool
}

// Score converts the signals to a capped fraud score.
func (s FraudSignals) Score() int {
	score := 0
	if s.SameIP {
		score += fraudScoreSameIP
	}
	if s.RapidSignup {
		score += fraudScoreRapidSignup
	}
	if s.DisposableEmail {
		score += fraudScoreDisposableEmail
	}
	if score > fraudScoreCap {
		score = fraudScoreCap
	}
	return score
}
