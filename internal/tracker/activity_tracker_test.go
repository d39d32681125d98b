package tracker

import (
	"errors"
	"testing"
	"time"

	"remoteintegrity/ri-tracker/internal/platform"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestActivityTracker(t *testing.T, input InputSource) (*ActivityTracker, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	at := NewActivityTracker(clk, input, 60*time.Second, 500*time.Millisecond, zaptest.NewLogger(t))
	at.Reset(clk.Now())
	return at, clk
}

func tickFor(at *ActivityTracker, clk *clock.Mock, seconds int) {
	for i := 0; i < seconds; i++ {
		clk.Add(time.Second)
		at.Tick()
	}
}

func TestActivityTrackerConservesTime(t *testing.T) {
	at, clk := newTestActivityTracker(t, nil)

	tickFor(at, clk, 30)
	at.RecordActivity(KindMouse)
	tickFor(at, clk, 90)
	clk.Add(7 * time.Second)
	at.RecordActivity(KindKeyboard)
	tickFor(at, clk, 13)

	snap := at.Snapshot()
	assert.Equal(t, snap.LastAccounted.Sub(snap.StartedAt), snap.Active+snap.Idle)
	assert.Equal(t, 140*time.Second, snap.Active+snap.Idle)
}

func TestActivityTrackerGoesIdleAtThreshold(t *testing.T) {
	at, clk := newTestActivityTracker(t, nil)

	tickFor(at, clk, 59)
	assert.False(t, at.Snapshot().IsIdle())

	tickFor(at, clk, 1)
	snap := at.Snapshot()
	assert.True(t, snap.IsIdle())
	assert.Equal(t, 60*time.Second, snap.Active)
	assert.Zero(t, snap.Idle)

	tickFor(at, clk, 10)
	snap = at.Snapshot()
	assert.Equal(t, 60*time.Second, snap.Active)
	assert.Equal(t, 10*time.Second, snap.Idle)
}

func TestActivityTrackerReactivationClosesIdleInterval(t *testing.T) {
	at, clk := newTestActivityTracker(t, nil)

	tickFor(at, clk, 60)
	require.True(t, at.Snapshot().IsIdle())

	clk.Add(2500 * time.Millisecond)
	at.RecordActivity(KindMouse)

	snap := at.Snapshot()
	assert.False(t, snap.IsIdle())
	assert.Equal(t, 2500*time.Millisecond, snap.Idle)
	assert.Equal(t, clk.Now(), snap.LastAccounted)

	tickFor(at, clk, 5)
	snap = at.Snapshot()
	assert.Equal(t, 65*time.Second, snap.Active)
	assert.Equal(t, 2500*time.Millisecond, snap.Idle)
}

func TestActivityTrackerSessionScenario(t *testing.T) {
	at, clk := newTestActivityTracker(t, nil)

	tickFor(at, clk, 20)
	at.RecordActivity(KindKeyboard)
	tickFor(at, clk, 105)

	snap := at.Finalize()
	assert.Equal(t, 80*time.Second, snap.Active)
	assert.Equal(t, 45*time.Second, snap.Idle)
}

func TestActivityTrackerThrottlesCountsPerKind(t *testing.T) {
	at, clk := newTestActivityTracker(t, nil)

	at.RecordActivity(KindKeyboard)
	clk.Add(100 * time.Millisecond)
	at.RecordActivity(KindKeyboard)
	at.RecordActivity(KindMouse)
	clk.Add(400 * time.Millisecond)
	at.RecordActivity(KindKeyboard)

	snap := at.Snapshot()
	assert.Equal(t, 2, snap.KeyboardEvents)
	assert.Equal(t, 1, snap.MouseEvents)
	assert.Equal(t, clk.Now(), snap.LastActivity)
}

func TestActivityTrackerRates(t *testing.T) {
	at, clk := newTestActivityTracker(t, nil)

	for i := 0; i < 10; i++ {
		clk.Add(time.Second)
		at.RecordActivity(KindKeyboard)
	}
	clk.Add(110 * time.Second)

	keyboard, mouse := at.Rates()
	assert.Equal(t, 5, keyboard)
	assert.Zero(t, mouse)
}

func TestComputeRate(t *testing.T) {
	assert.Equal(t, 0, ComputeRate(10, 0))
	assert.Equal(t, 0, ComputeRate(10, -time.Second))
	assert.Equal(t, 0, ComputeRate(0, time.Minute))
	assert.Equal(t, 40, ComputeRate(20, 30*time.Second))
	assert.Equal(t, 3, ComputeRate(7, 2*time.Minute))
}

func TestActivityTrackerIgnoresBackwardClock(t *testing.T) {
	at, clk := newTestActivityTracker(t, nil)

	tickFor(at, clk, 10)
	before := at.Snapshot()

	clk.Set(clk.Now().Add(-5 * time.Second))
	at.Tick()

	after := at.Snapshot()
	assert.Equal(t, before.Active, after.Active)
	assert.Equal(t, before.LastAccounted, after.LastAccounted)
}

func TestActivityTrackerFinalizeFreezes(t *testing.T) {
	at, clk := newTestActivityTracker(t, nil)

	tickFor(at, clk, 5)
	clk.Add(500 * time.Millisecond)
	snap := at.Finalize()
	assert.Equal(t, 5500*time.Millisecond, snap.Active)

	clk.Add(time.Minute)
	at.Tick()
	at.RecordActivity(KindMouse)

	frozen := at.Snapshot()
	assert.Equal(t, snap.Active, frozen.Active)
	assert.Zero(t, frozen.MouseEvents)
}

type fakeInput struct {
	err      error
	callback func(platform.ActivityEvent)
	stopped  bool
}

func (f *fakeInput) StartActivityMonitoring(cb func(platform.ActivityEvent)) error {
	if f.err != nil {
		return f.err
	}
	f.callback = cb
	return nil
}

func (f *fakeInput) StopActivityMonitoring() error {
	f.stopped = true
	return nil
}

func TestActivityTrackerInputEvents(t *testing.T) {
	input := &fakeInput{}
	at, clk := newTestActivityTracker(t, input)

	at.StartInput()
	require.True(t, at.InputMonitoring())
	require.NotNil(t, input.callback)

	input.callback(platform.ActivityEvent{Type: platform.ActivityKeyPress, Timestamp: clk.Now()})
	clk.Add(time.Second)
	input.callback(platform.ActivityEvent{Type: platform.ActivityMouseClick, Timestamp: clk.Now()})

	snap := at.Snapshot()
	assert.Equal(t, 1, snap.KeyboardEvents)
	assert.Equal(t, 1, snap.MouseEvents)

	at.StopInput()
	assert.True(t, input.stopped)
	assert.False(t, at.InputMonitoring())
}

func TestActivityTrackerInputUnavailable(t *testing.T) {
	input := &fakeInput{err: errors.New("no display")}
	at, clk := newTestActivityTracker(t, input)

	at.StartInput()
	assert.False(t, at.InputMonitoring())

	clk.Add(time.Second)
	at.RecordActivity(KindMouse)
	assert.Equal(t, 1, at.Snapshot().MouseEvents)

	at.StopInput()
	assert.False(t, input.stopped)
}
