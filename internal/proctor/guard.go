// Package proctor implements the focus guard for timed attempts: a
// small state machine that reacts to loss of exclusive focus
// (tab/window switches, fullscreen exits) reported by the client and
// decides whether the attempt UI must be locked. Locks never pause the
// attempt clock; elapsed wall time always counts against the student.
package proctor

import (
	"sync"
	"time"
)

// State is the guard's externally visible lock state.
type State string

const (
	// StateActive means the attempt is focused and interactive.
	StateActive State = "ACTIVE"
	// StateTimedLock is a fixed-duration lock after a tab/window switch.
	StateTimedLock State = "TIMED_LOCK"
	// StateIndefiniteLock holds until fullscreen is re-entered (desktop only).
	StateIndefiniteLock State = "INDEFINITE_LOCK"
)

// TimedLockDuration is how long a tab/window switch locks the attempt.
// Re-triggering resets the window; locks do not stack.
const TimedLockDuration = 15 * time.Second

// EventKind enumerates focus transitions reported by the client.
type EventKind string

const (
	EventVisibilityHidden EventKind = "visibility_hidden"
	EventWindowBlur       EventKind = "window_blur"
	EventFullscreenExit   EventKind = "fullscreen_exit"
	EventFullscreenEnter  EventKind = "fullscreen_enter"
)

// LockHook is invoked once on every Active→locked transition, before
// the UI becomes non-interactive. Used to force a best-effort autosave
// flush. It must not block.
type LockHook func(kind EventKind)

// GuardConfig configures a Guard.
type GuardConfig struct {
	// Desktop marks a pointer-precise device. The fullscreen dimension
	// (IndefiniteLock) only applies on desktop; tab/window switches lock
	// on every device.
	Desktop bool
	// OnLock is called on lock entry. May be nil.
	OnLock LockHook
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// Guard tracks the focus state of one live attempt. Safe for
// concurrent use. A Guard is only ever constructed for timed,
// non-practice student attempts; practice mode and admin previews
// never get one.
type Guard struct {
	mu         sync.Mutex
	desktop    bool
	onLock     LockHook
	now        func() time.Time
	suppressed bool
	fullscreen bool
	lockUntil  time.Time
}

// NewGuard creates a Guard in the Active state. The attempt starts
// fullscreen (entering fullscreen is what starts a proctored attempt),
// so the fullscreen flag begins true.
func NewGuard(cfg GuardConfig) *Guard {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Guard{
		desktop:    cfg.Desktop,
		onLock:     cfg.OnLock,
		now:        now,
		fullscreen: true,
	}
}

// Observe applies a focus event. Events are ignored entirely while the
// guard is suppressed (deliberate exit or submission in progress).
func (g *Guard) Observe(kind EventKind) {
	g.mu.Lock()
	if g.suppressed {
		g.mu.Unlock()
		return
	}

	prev := g.stateLocked()

	switch kind {
	case EventVisibilityHidden, EventWindowBlur:
		// Reset, never stack.
		g.lockUntil = g.now().Add(TimedLockDuration)
	case EventFullscreenExit:
		g.fullscreen = false
	case EventFullscreenEnter:
		g.fullscreen = true
	}

	next := g.stateLocked()
	hook := g.onLock
	g.mu.Unlock()

	if hook != nil && prev == StateActive && next != StateActive {
		hook(kind)
	}
}

// State reports the current lock state. A timed lock clears only once
// its window has elapsed AND fullscreen is held (the fullscreen
// condition applies on desktop only).
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

func (g *Guard) stateLocked() State {
	if g.suppressed {
		return StateActive
	}
	if g.desktop && !g.fullscreen {
		return StateIndefiniteLock
	}
	if g.now().Before(g.lockUntil) {
		return StateTimedLock
	}
	return StateActive
}

// Locked reports whether interaction must be blocked.
func (g *Guard) Locked() bool {
	return g.State() != StateActive
}

// LockRemaining returns how long the current timed lock still holds,
// zero if none. Indefinite locks report zero; they have no deadline.
func (g *Guard) LockRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.suppressed || (g.desktop && !g.fullscreen) {
		return 0
	}
	if remaining := g.lockUntil.Sub(g.now()); remaining > 0 {
		return remaining
	}
	return 0
}

// Suppress disables the guard for the rest of the attempt. Called when
// the student deliberately exits or when submission starts, so the
// finalize/navigate flow is never blocked by a lock overlay.
func (g *Guard) Suppress() {
	g.mu.Lock()
	g.suppressed = true
	g.mu.Unlock()
}

// Suppressed reports whether the guard has been turned off.
func (g *Guard) Suppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suppressed
}
