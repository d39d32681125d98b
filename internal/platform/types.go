package platform

import (
	"errors"
	"time"
)

// ErrCaptureUnavailable means the screen cannot be captured in the current
// session at all, for example a missing display server or a denied
// permission, as opposed to a one-off failure.
var ErrCaptureUnavailable = errors.New("screen capture unavailable")

// Platform defines the interface for platform-specific operations
type Platform interface {
	// StartActivityMonitoring starts monitoring mouse and keyboard activity
	// It calls the callback function whenever activity is detected
	StartActivityMonitoring(callback func(ActivityEvent)) error

	// StopActivityMonitoring stops the activity monitoring
	StopActivityMonitoring() error

	// ListProcesses returns the running processes visible to the user
	ListProcesses() ([]Process, error)

	// CaptureScreen returns a PNG image of the primary screen
	CaptureScreen() ([]byte, error)

	// GetSystemInfo returns system information
	GetSystemInfo() (*SystemInfo, error)
}

type Process struct {
	PID  int
	Name string
	Exe  string
}

// ActivityEvent represents a user activity event
type ActivityEvent struct {
	Type      ActivityType
	Timestamp time.Time
}

// ActivityType represents the type of activity
type ActivityType string

const (
	ActivityMouseMove  ActivityType = "mouse_move"
	ActivityMouseClick ActivityType = "mouse_click"
	ActivityKeyPress   ActivityType = "key_press"
)

func (t ActivityType) IsKeyboard() bool {
	return t == ActivityKeyPress
}

// SystemInfo contains system information
type SystemInfo struct {
	OS        string
	OSVersion string
	Arch      string
	Hostname  string
}
