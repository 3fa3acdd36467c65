// Package authguard throttles authentication abuse: failed-login tracking
// with escalating delays and lockouts, and per-IP registration limits.
// All state lives in expiring cache counters, never in the database.
package authguard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dieselnoi/academy/internal/pkg/cache"
)

const (
	attemptWindow   = time.Hour
	lockoutDuration = 15 * time.Minute

	lockoutThreshold = 15

	registrationWindow = time.Hour
	registrationLimit  = 10
)

// delaySteps maps failed-attempt counts to the delay applied before the
// next attempt is answered. The highest step at or below the count wins.
var delaySteps = []struct {
	attempts int64
	delay    time.Duration
}{
	{3, 2 * time.Second},
	{5, 5 * time.Second},
	{7, 10 * time.Second},
	{10, 30 * time.Second},
}

// Tracker counts failed logins per account and per source IP.
type Tracker struct {
	counter cache.Counter
	sleep   func(time.Duration)
}

// NewTracker creates a failed-login tracker on top of a cache counter.
func NewTracker(counter cache.Counter) *Tracker {
	return &Tracker{counter: counter, sleep: time.Sleep}
}

// SetSleep overrides the delay function, for tests.
func (t *Tracker) SetSleep(sleep func(time.Duration)) {
	t.sleep = sleep
}

func identityKey(identity string) string {
	return "auth:fail:user:" + strings.ToLower(strings.TrimSpace(identity))
}

func ipKey(ip string) string {
	return "auth:fail:ip:" + strings.TrimSpace(ip)
}

func lockoutKey(identity string) string {
	return "auth:lock:" + strings.ToLower(strings.TrimSpace(identity))
}

// RecordFailure bumps both counters inside their rolling window and arms
// the lockout once the account counter reaches the threshold. The IP
// counter only feeds delays; locking on it would let one hot address lock
// every account it touches.
func (t *Tracker) RecordFailure(identity, ip string) error {
	userCount, err := t.counter.Increment(identityKey(identity), attemptWindow)
	if err != nil {
		return err
	}
	if _, err := t.counter.Increment(ipKey(ip), attemptWindow); err != nil {
		return err
	}
	if userCount >= lockoutThreshold {
		return t.counter.Set(lockoutKey(identity), "1", lockoutDuration)
	}
	return nil
}

// ClearFailures resets both counters and any lockout after a successful
// login.
func (t *Tracker) ClearFailures(identity, ip string) error {
	return t.counter.Delete(identityKey(identity), ipKey(ip), lockoutKey(identity))
}

// AttemptCounts returns the current failed-attempt counts for the account
// and the IP. Absent counters read as zero.
func (t *Tracker) AttemptCounts(identity, ip string) (int64, int64, error) {
	userCount, err := t.counter.Get(identityKey(identity))
	if err != nil && !errors.Is(err, cache.ErrNoKey) {
		return 0, 0, err
	}
	ipCount, err := t.counter.Get(ipKey(ip))
	if err != nil && !errors.Is(err, cache.ErrNoKey) {
		return 0, 0, err
	}
	return userCount, ipCount, nil
}

// IsLockedOut reports whether the account is locked and for how many more
// seconds.
func (t *Tracker) IsLockedOut(identity string) (bool, int, error) {
	ttl, err := t.counter.TTL(lockoutKey(identity))
	if errors.Is(err, cache.ErrNoKey) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	secs := int(ttl.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return true, secs, nil
}

// RequiredDelay returns the delay owed for the current failure counts,
// taking the worse of the account and IP counters.
func (t *Tracker) RequiredDelay(identity, ip string) (time.Duration, error) {
	userCount, ipCount, err := t.AttemptCounts(identity, ip)
	if err != nil {
		return 0, err
	}
	return DelayFor(max64(userCount, ipCount)), nil
}

// ApplyDelay blocks for the delay owed before a login attempt is processed.
func (t *Tracker) ApplyDelay(identity, ip string) error {
	delay, err := t.RequiredDelay(identity, ip)
	if err != nil {
		return err
	}
	if delay > 0 {
		t.sleep(delay)
	}
	return nil
}

// DelayFor maps a failed-attempt count to the delay it earns.
func DelayFor(attempts int64) time.Duration {
	var delay time.Duration
	for _, step := range delaySteps {
		if attempts >= step.attempts {
			delay = step.delay
		}
	}
	return delay
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// RegistrationLimiter caps account creations per source IP.
type RegistrationLimiter struct {
	counter cache.Counter
}

// NewRegistrationLimiter creates a registration limiter on top of a cache
// counter.
func NewRegistrationLimiter(counter cache.Counter) *RegistrationLimiter {
	return &RegistrationLimiter{counter: counter}
}

func registrationKey(ip string) string {
	return fmt.Sprintf("auth:register:ip:%s", strings.TrimSpace(ip))
}

// CanRegister reports whether the IP is still under its hourly limit.
func (l *RegistrationLimiter) CanRegister(ip string) (bool, error) {
	count, err := l.counter.Get(registrationKey(ip))
	if errors.Is(err, cache.ErrNoKey) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return count < registrationLimit, nil
}

// RecordRegistration bumps the IP's registration counter.
func (l *RegistrationLimiter) RecordRegistration(ip string) error {
	_, err := l.counter.Increment(registrationKey(ip), registrationWindow)
	return err
}
