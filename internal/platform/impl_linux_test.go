//go:build linux

package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinuxListProcessesReadsProcTree(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(t.TempDir(), "editor")
	require.NoError(t, os.WriteFile(target, nil, 0o755))

	pidDir := filepath.Join(root, "4242")
	require.NoError(t, os.MkdirAll(pidDir, 0o755))
	require.NoError(t, os.Symlink(target, filepath.Join(pidDir, "exe")))
	require.NoError(t, os.WriteFile(filepath.Join(pidDir, "comm"), []byte("editor\n"), 0o644))

	// No exe link: skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2"), 0o755))
	// Not a pid.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "self-test"), 0o755))

	p := &linuxImpl{procRoot: root}
	procs, err := p.ListProcesses()
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, Process{PID: 4242, Name: "editor", Exe: target}, procs[0])
}

func TestLinuxCaptureUnavailableOnWayland(t *testing.T) {
	t.Setenv("XDG_SESSION_TYPE", "wayland")

	p := &linuxImpl{procRoot: "/proc"}
	_, err := p.CaptureScreen()
	assert.ErrorIs(t, err, ErrCaptureUnavailable)
}
