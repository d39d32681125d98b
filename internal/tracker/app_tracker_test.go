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

type fakeLister struct {
	procs []platform.Process
	err   error
}

func (f *fakeLister) ListProcesses() ([]platform.Process, error) {
	return f.procs, f.err
}

func TestAppTrackerAttributesElapsedToEachApplication(t *testing.T) {
	clk := clock.NewMock()
	lister := &fakeLister{procs: []platform.Process{
		{PID: 10, Name: "code", Exe: "/usr/share/code/code"},
		{PID: 11, Name: "code", Exe: "/usr/share/code/code"},
		{PID: 12, Name: "firefox", Exe: "/usr/lib/firefox/firefox"},
		{PID: 13, Name: "systemd", Exe: "/usr/lib/systemd/systemd"},
		{PID: 14, Name: "kthreadd"},
	}}
	tr := NewAppTracker(clk, lister, platform.NewProcessFilter("linux"), zaptest.NewLogger(t))
	tr.Reset(clk.Now())

	clk.Add(5 * time.Second)
	tr.Poll()
	clk.Add(5 * time.Second)
	tr.Poll()

	entries := tr.Drain()
	require.Len(t, entries, 2)
	assert.Equal(t, "code", entries[0].Key)
	assert.Equal(t, 10*time.Second, entries[0].TimeSpent)
	assert.Equal(t, "/usr/share/code/code", entries[0].Path)
	assert.Equal(t, "firefox", entries[1].Key)
	assert.Equal(t, 10*time.Second, entries[1].TimeSpent)

	assert.Empty(t, tr.Snapshot())
}

func TestAppTrackerSkipsFailedPollWindow(t *testing.T) {
	clk := clock.NewMock()
	lister := &fakeLister{err: errors.New("permission denied")}
	tr := NewAppTracker(clk, lister, platform.NewProcessFilter("linux"), zaptest.NewLogger(t))
	tr.Reset(clk.Now())

	clk.Add(5 * time.Second)
	tr.Poll()
	assert.Empty(t, tr.Snapshot())

	lister.err = nil
	lister.procs = []platform.Process{{PID: 1, Name: "slack", Exe: "/opt/slack/slack"}}
	clk.Add(5 * time.Second)
	tr.Poll()

	entries := tr.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, 5*time.Second, entries[0].TimeSpent, "the failed cycle contributes nothing")
}

func TestAppTrackerResetClears(t *testing.T) {
	clk := clock.NewMock()
	lister := &fakeLister{procs: []platform.Process{{PID: 1, Name: "slack", Exe: "/opt/slack/slack"}}}
	tr := NewAppTracker(clk, lister, nil, zaptest.NewLogger(t))
	tr.Reset(clk.Now())

	clk.Add(30 * time.Second)
	tr.Poll()
	require.NotEmpty(t, tr.Snapshot())

	tr.Reset(clk.Now())
	assert.Empty(t, tr.Snapshot())
}
