package tracker

import (
	"sync"
	"time"

	"remoteintegrity/ri-tracker/internal/metrics"
	"remoteintegrity/ri-tracker/internal/platform"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// ActivityState represents the current activity state
type ActivityState string

const (
	StateActive ActivityState = "active"
	StateIdle   ActivityState = "idle"
)

// ActivityKind is the input source of a recorded activity.
type ActivityKind string

const (
	KindKeyboard ActivityKind = "keyboard"
	KindMouse    ActivityKind = "mouse"
)

// InputSource delivers raw input events from the operating system.
type InputSource interface {
	StartActivityMonitoring(callback func(platform.ActivityEvent)) error
	StopActivityMonitoring() error
}

// ActivitySnapshot is a consistent copy of the accumulators.
type ActivitySnapshot struct {
	StartedAt      time.Time
	LastAccounted  time.Time
	LastActivity   time.Time
	Active         time.Duration
	Idle           time.Duration
	State          ActivityState
	KeyboardEvents int
	MouseEvents    int
}

func (s ActivitySnapshot) IsIdle() bool {
	return s.State == StateIdle
}

// ActivityTracker splits wall-clock time since Reset into active and idle
// time. Every interval between two accounting points is attributed to
// exactly one state, so Active+Idle always equals LastAccounted-StartedAt.
type ActivityTracker struct {
	clock         clock.Clock
	input         InputSource
	idleThreshold time.Duration
	throttle      time.Duration
	logger        *zap.Logger

	mu              sync.Mutex
	running         bool
	inputMonitoring bool
	startedAt       time.Time
	lastActivity    time.Time
	lastAccounted   time.Time
	active          time.Duration
	idle            time.Duration
	state           ActivityState
	keyboardEvents  int
	mouseEvents     int
	lastCounted     map[ActivityKind]time.Time
}

// NewActivityTracker creates a new activity tracker. input may be nil, in
// which case activity only arrives through RecordActivity.
func NewActivityTracker(
	clk clock.Clock,
	input InputSource,
	idleThreshold time.Duration,
	throttle time.Duration,
	logger *zap.Logger,
) *ActivityTracker {
	return &ActivityTracker{
		clock:         clk,
		input:         input,
		idleThreshold: idleThreshold,
		throttle:      throttle,
		logger:        logger,
		state:         StateActive,
		lastCounted:   make(map[ActivityKind]time.Time),
	}
}

// Reset starts a new accounting period at start, in the active state.
func (at *ActivityTracker) Reset(start time.Time) {
	at.mu.Lock()
	defer at.mu.Unlock()

	at.running = true
	at.startedAt = start
	at.lastActivity = start
	at.lastAccounted = start
	at.active = 0
	at.idle = 0
	at.state = StateActive
	at.keyboardEvents = 0
	at.mouseEvents = 0
	at.lastCounted = make(map[ActivityKind]time.Time)
}

// StartInput hooks the OS input source. Failure is not fatal: the tracker
// keeps working from manual RecordActivity calls.
func (at *ActivityTracker) StartInput() {
	if at.input == nil {
		return
	}
	if err := at.input.StartActivityMonitoring(at.handleActivityEvent); err != nil {
		at.logger.Warn("Input monitoring unavailable, relying on reported activity only", zap.Error(err))
		at.setInputMonitoring(false)
		return
	}
	at.setInputMonitoring(true)
	at.logger.Info("Input monitoring started",
		zap.Duration("idle_threshold", at.idleThreshold),
	)
}

func (at *ActivityTracker) StopInput() {
	at.mu.Lock()
	monitoring := at.inputMonitoring
	at.inputMonitoring = false
	at.mu.Unlock()

	if !monitoring || at.input == nil {
		return
	}
	if err := at.input.StopActivityMonitoring(); err != nil {
		at.logger.Warn("Failed to stop input monitoring", zap.Error(err))
	}
}

// InputMonitoring reports whether OS input hooks are delivering events.
func (at *ActivityTracker) InputMonitoring() bool {
	at.mu.Lock()
	defer at.mu.Unlock()
	return at.inputMonitoring
}

func (at *ActivityTracker) setInputMonitoring(v bool) {
	at.mu.Lock()
	at.inputMonitoring = v
	at.mu.Unlock()
}

func (at *ActivityTracker) handleActivityEvent(event platform.ActivityEvent) {
	if event.Type.IsKeyboard() {
		at.RecordActivity(KindKeyboard)
		return
	}
	at.RecordActivity(KindMouse)
}

// RecordActivity marks user input of the given kind. Leaving the idle
// state closes the idle interval at the moment of the input. Counters are
// throttled per kind; classification is not.
func (at *ActivityTracker) RecordActivity(kind ActivityKind) {
	now := at.clock.Now()

	at.mu.Lock()
	defer at.mu.Unlock()

	if !at.running {
		return
	}

	at.lastActivity = now
	if at.state == StateIdle {
		at.accountLocked(now)
		at.state = StateActive
		at.logger.Debug("Activity resumed")
	}

	last, seen := at.lastCounted[kind]
	if seen && now.Sub(last) < at.throttle {
		return
	}
	at.lastCounted[kind] = now
	switch kind {
	case KindKeyboard:
		at.keyboardEvents++
	default:
		at.mouseEvents++
	}
}

// Tick accounts the time since the previous accounting point and moves
// to idle once no input has been seen for the idle threshold. The
// interval that crosses the threshold is still counted as active.
func (at *ActivityTracker) Tick() {
	now := at.clock.Now()

	at.mu.Lock()
	defer at.mu.Unlock()

	if !at.running {
		return
	}

	at.accountLocked(now)
	if at.state == StateActive && now.Sub(at.lastActivity) >= at.idleThreshold {
		at.state = StateIdle
		at.logger.Debug("User went idle",
			zap.Duration("since_last_activity", now.Sub(at.lastActivity)),
		)
	}
}

// Finalize performs a last accounting step in the current state and
// freezes the tracker. Later calls are ignored until Reset.
func (at *ActivityTracker) Finalize() ActivitySnapshot {
	now := at.clock.Now()

	at.mu.Lock()
	defer at.mu.Unlock()

	if at.running {
		at.accountLocked(now)
		at.running = false
	}
	return at.snapshotLocked()
}

func (at *ActivityTracker) Snapshot() ActivitySnapshot {
	at.mu.Lock()
	defer at.mu.Unlock()
	return at.snapshotLocked()
}

// Rates returns keyboard and mouse events per minute since Reset.
func (at *ActivityTracker) Rates() (keyboard, mouse int) {
	now := at.clock.Now()

	at.mu.Lock()
	defer at.mu.Unlock()

	elapsed := now.Sub(at.startedAt)
	return ComputeRate(at.keyboardEvents, elapsed), ComputeRate(at.mouseEvents, elapsed)
}

// accountLocked attributes now-lastAccounted to the current state. A clock
// that went backwards contributes nothing and never rewinds the cursor.
func (at *ActivityTracker) accountLocked(now time.Time) {
	elapsed := now.Sub(at.lastAccounted)
	if elapsed <= 0 {
		return
	}
	if at.state == StateIdle {
		at.idle += elapsed
	} else {
		at.active += elapsed
	}
	at.lastAccounted = now
	metrics.TrackedSeconds.WithLabelValues(string(at.state)).Add(elapsed.Seconds())
}

func (at *ActivityTracker) snapshotLocked() ActivitySnapshot {
	return ActivitySnapshot{
		StartedAt:      at.startedAt,
		LastAccounted:  at.lastAccounted,
		LastActivity:   at.lastActivity,
		Active:         at.active,
		Idle:           at.idle,
		State:          at.state,
		KeyboardEvents: at.keyboardEvents,
		MouseEvents:    at.mouseEvents,
	}
}

// ComputeRate converts an event count into whole events per minute.
func ComputeRate(count int, elapsed time.Duration) int {
	if elapsed <= 0 || count <= 0 {
		return 0
	}
	return int(float64(count) / elapsed.Minutes())
}
