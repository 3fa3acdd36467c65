package authguard

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dieselnoi/academy/internal/pkg/cache"
)

func TestDelayFor(t *testing.T) {
	tests := []struct {
		attempts int64
		want     time.Duration
	}{
		{0, 0},
		{1, 0},
		{2, 0},
		{3, 2 * time.Second},
		{4, 2 * time.Second},
		{5, 5 * time.Second},
		{6, 5 * time.Second},
		{7, 10 * time.Second},
		{9, 10 * time.Second},
		{10, 30 * time.Second},
		{50, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := DelayFor(tt.attempts); got != tt.want {
			t.Fatalf("DelayFor(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestTracker_RecordFailureCountsBothKeys(t *testing.T) {
	tracker := NewTracker(cache.NewMemoryCounter())

	require.NoError(t, tracker.RecordFailure("alice@example.com", "10.0.0.1"))
	require.NoError(t, tracker.RecordFailure("alice@example.com", "10.0.0.2"))
	require.NoError(t, tracker.RecordFailure("bob@example.com", "10.0.0.1"))

	userCount, ipCount, err := tracker.AttemptCounts("alice@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), userCount)
	assert.Equal(t, int64(2), ipCount)
}

func TestTracker_IdentityIsCaseInsensitive(t *testing.T) {
	tracker := NewTracker(cache.NewMemoryCounter())

	require.NoError(t, tracker.RecordFailure("Alice@Example.com", "10.0.0.1"))

	userCount, _, err := tracker.AttemptCounts("alice@example.com", "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, int64(1), userCount)
}

func TestTracker_LockoutAtThreshold(t *testing.T) {
	tracker := NewTracker(cache.NewMemoryCounter())

	for i := 0; i < lockoutThreshold-1; i++ {
		require.NoError(t, tracker.RecordFailure("alice@example.com", "10.0.0.1"))
	}
	locked, _, err := tracker.IsLockedOut("alice@example.com")
	require.NoError(t, err)
	assert.False(t, locked, "one failure short of the threshold must not lock")

	require.NoError(t, tracker.RecordFailure("alice@example.com", "10.0.0.1"))

	locked, retryAfter, err := tracker.IsLockedOut("alice@example.com")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, int(lockoutDuration.Seconds()))
}

func TestTracker_IPCounterNeverLocksAccounts(t *testing.T) {
	tracker := NewTracker(cache.NewMemoryCounter())

	// Spray across many accounts from one IP until the IP counter passes
	// the threshold. A single failure for another account from that IP
	// must not lock it; the IP counter only earns delays.
	for i := 0; i < lockoutThreshold; i++ {
		require.NoError(t, tracker.RecordFailure(fmt.Sprintf("user%d@example.com", i), "10.0.0.1"))
	}
	require.NoError(t, tracker.RecordFailure("victim@example.com", "10.0.0.1"))

	locked, _, err := tracker.IsLockedOut("victim@example.com")
	require.NoError(t, err)
	assert.False(t, locked, "an account with one failure must not be locked by a hot IP")

	delay, err := tracker.RequiredDelay("victim@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, delay, "the hot IP still earns the maximum delay")
}

func TestTracker_ClearFailuresResetsEverything(t *testing.T) {
	tracker := NewTracker(cache.NewMemoryCounter())

	for i := 0; i < lockoutThreshold; i++ {
		require.NoError(t, tracker.RecordFailure("alice@example.com", "10.0.0.1"))
	}
	require.NoError(t, tracker.ClearFailures("alice@example.com", "10.0.0.1"))

	locked, _, err := tracker.IsLockedOut("alice@example.com")
	require.NoError(t, err)
	assert.False(t, locked)

	userCount, ipCount, err := tracker.AttemptCounts("alice@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.Zero(t, userCount)
	assert.Zero(t, ipCount)
}

func TestTracker_ApplyDelayUsesWorseCounter(t *testing.T) {
	tracker := NewTracker(cache.NewMemoryCounter())

	var slept time.Duration
	tracker.SetSleep(func(d time.Duration) { slept = d })

	// Three failures for the account, one for the IP.
	require.NoError(t, tracker.RecordFailure("alice@example.com", "10.0.0.1"))
	require.NoError(t, tracker.RecordFailure("alice@example.com", "10.0.0.2"))
	require.NoError(t, tracker.RecordFailure("alice@example.com", "10.0.0.3"))

	require.NoError(t, tracker.ApplyDelay("alice@example.com", "10.0.0.3"))
	assert.Equal(t, 2*time.Second, slept)
}

func TestTracker_NoDelayWithoutFailures(t *testing.T) {
	tracker := NewTracker(cache.NewMemoryCounter())

	slept := false
	tracker.SetSleep(func(time.Duration) { slept = true })

	require.NoError(t, tracker.ApplyDelay("fresh@example.com", "10.0.0.1"))
	assert.False(t, slept)
}

func TestTracker_WindowExpiryResetsCounts(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	counter := cache.NewMemoryCounter()
	counter.SetClock(func() time.Time { return now })
	tracker := NewTracker(counter)

	require.NoError(t, tracker.RecordFailure("alice@example.com", "10.0.0.1"))
	require.NoError(t, tracker.RecordFailure("alice@example.com", "10.0.0.1"))

	now = now.Add(attemptWindow + time.Minute)

	userCount, ipCount, err := tracker.AttemptCounts("alice@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.Zero(t, userCount)
	assert.Zero(t, ipCount)
}

func TestRegistrationLimiter(t *testing.T) {
	limiter := NewRegistrationLimiter(cache.NewMemoryCounter())

	for i := 0; i < registrationLimit; i++ {
		ok, err := limiter.CanRegister("10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "registration %d should be allowed", i+1)
		require.NoError(t, limiter.RecordRegistration("10.0.0.1"))
	}

	ok, err := limiter.CanRegister("10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok, "limit reached, further registrations must be refused")

	// Other IPs are unaffected.
	ok, err = limiter.CanRegister("10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)
}
