package proctor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for deterministic transitions.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(desktop bool, hook LockHook) (*Guard, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	g := NewGuard(GuardConfig{Desktop: desktop, OnLock: hook, Now: clock.now})
	return g, clock
}

func TestGuardStartsActive(t *testing.T) {
	g, _ := newTestGuard(true, nil)
	require.Equal(t, StateActive, g.State())
	require.False(t, g.Locked())
}

func TestTabSwitchEntersTimedLock(t *testing.T) {
	g, clock := newTestGuard(true, nil)

	g.Observe(EventVisibilityHidden)
	require.Equal(t, StateTimedLock, g.State())
	require.Equal(t, TimedLockDuration, g.LockRemaining())

	clock.advance(TimedLockDuration - time.Second)
	require.Equal(t, StateTimedLock, g.State())

	clock.advance(2 * time.Second)
	require.Equal(t, StateActive, g.State())
	require.Zero(t, g.LockRemaining())
}

func TestWindowBlurResetsTimedLockWithoutStacking(t *testing.T) {
	g, clock := newTestGuard(false, nil)

	g.Observe(EventWindowBlur)
	clock.advance(10 * time.Second)
	// Re-trigger: lock window restarts from now, it does not accumulate.
	g.Observe(EventWindowBlur)
	require.Equal(t, TimedLockDuration, g.LockRemaining())

	clock.advance(TimedLockDuration)
	require.Equal(t, StateActive, g.State())
}

func TestFullscreenExitLocksIndefinitelyOnDesktop(t *testing.T) {
	g, clock := newTestGuard(true, nil)

	g.Observe(EventFullscreenExit)
	require.Equal(t, StateIndefiniteLock, g.State())

	// Time alone never clears an indefinite lock.
	clock.advance(time.Hour)
	require.Equal(t, StateIndefiniteLock, g.State())

	g.Observe(EventFullscreenEnter)
	require.Equal(t, StateActive, g.State())
}

func TestFullscreenExitIgnoredOnMobile(t *testing.T) {
	g, _ := newTestGuard(false, nil)

	g.Observe(EventFullscreenExit)
	require.Equal(t, StateActive, g.State())
}

func TestTimedLockNeedsFullscreenToClearOnDesktop(t *testing.T) {
	g, clock := newTestGuard(true, nil)

	g.Observe(EventFullscreenExit)
	g.Observe(EventVisibilityHidden)
	clock.advance(TimedLockDuration + time.Second)

	// Timed window elapsed but fullscreen is still lost.
	require.Equal(t, StateIndefiniteLock, g.State())

	g.Observe(EventFullscreenEnter)
	require.Equal(t, StateActive, g.State())
}

func TestLockHookFiresOncePerEntry(t *testing.T) {
	var calls []EventKind
	g, clock := newTestGuard(true, func(kind EventKind) {
		calls = append(calls, kind)
	})

	g.Observe(EventVisibilityHidden)
	g.Observe(EventWindowBlur) // already locked, no second hook
	require.Equal(t, []EventKind{EventVisibilityHidden}, calls)

	clock.advance(TimedLockDuration + time.Second)
	require.Equal(t, StateActive, g.State())

	g.Observe(EventFullscreenExit)
	require.Equal(t, []EventKind{EventVisibilityHidden, EventFullscreenExit}, calls)
}

func TestSuppressDisablesGuard(t *testing.T) {
	var hookCount int
	g, _ := newTestGuard(true, func(EventKind) { hookCount++ })

	g.Suppress()
	g.Observe(EventFullscreenExit)
	g.Observe(EventVisibilityHidden)

	require.Equal(t, StateActive, g.State())
	require.Zero(t, hookCount)
	require.True(t, g.Suppressed())
}

func TestSuppressClearsExistingLock(t *testing.T) {
	g, _ := newTestGuard(true, nil)

	g.Observe(EventFullscreenExit)
	require.True(t, g.Locked())

	g.Suppress()
	require.False(t, g.Locked())
}

// Locks are orthogonal to the attempt countdown: time spent locked is
// plain wall-clock time and keeps counting against the student.
func TestLockDoesNotAffectElapsedTime(t *testing.T) {
	g, clock := newTestGuard(true, nil)
	startedAt := clock.now()

	g.Observe(EventVisibilityHidden)
	clock.advance(40 * time.Second)

	elapsed := clock.now().Sub(startedAt)
	require.Equal(t, 40*time.Second, elapsed)
	// The guard went through a full lock cycle meanwhile.
	require.Equal(t, StateActive, g.State())
}
