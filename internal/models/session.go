package models

import "time"

const timestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t as a UTC ISO-8601 string with millisecond
// precision, the format the tracking API expects.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

type CreateSessionRequest struct {
	EmployeeID string `json:"employeeId"`
	CompanyID  string `json:"companyId"`
	StartTime  string `json:"startTime"`
	Notes      string `json:"notes"`
	UserNote   string `json:"userNote"`
}

type Session struct {
	ID         string `json:"_id"`
	EmployeeID string `json:"employeeId,omitempty"`
	StartTime  string `json:"startTime,omitempty"`
	EndTime    string `json:"endTime,omitempty"`
}

// SessionUpdate carries cumulative active/idle seconds and the detail
// collected since the previous update.
type SessionUpdate struct {
	ActiveTime           int64              `json:"activeTime"`
	IdleTime             int64              `json:"idleTime"`
	KeyboardActivityRate int                `json:"keyboardActivityRate"`
	MouseActivityRate    int                `json:"mouseActivityRate"`
	Screenshots          []Screenshot       `json:"screenshots"`
	Applications         []ApplicationUsage `json:"applications"`
	Links                []LinkUsage        `json:"links"`
	Notes                string             `json:"notes"`
	UserNote             string             `json:"userNote"`
	EndTime              string             `json:"endTime,omitempty"`
}

func (u SessionUpdate) IsFinal() bool {
	return u.EndTime != ""
}

type Screenshot struct {
	Timestamp string `json:"timestamp"`
	ImageURL  string `json:"imageUrl"`
}

type ApplicationUsage struct {
	Name      string `json:"name"`
	TimeSpent int64  `json:"timeSpent"`
	Timestamp string `json:"timestamp"`
}

type LinkUsage struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	TimeSpent  int64  `json:"timeSpent"`
	Timestamp  string `json:"timestamp"`
	VisitCount int    `json:"visit_count,omitempty"`
}

// Stats is passed through from the stats endpoints without interpretation.
type Stats map[string]any

type StatsSnapshot struct {
	Daily     Stats     `json:"daily,omitempty"`
	Weekly    Stats     `json:"weekly,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ActivityStats is the live view of the running session's accounting.
type ActivityStats struct {
	ActiveTime   int64 `json:"active_time"`
	IdleTime     int64 `json:"idle_time"`
	KeyboardRate int   `json:"keyboard_rate"`
	MouseRate    int   `json:"mouse_rate"`
	IsIdle       bool  `json:"is_idle"`
}

// SessionResult reports the outcome of a lifecycle operation. Remote
// failures are carried here instead of as errors.
type SessionResult struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Duration  int64          `json:"duration,omitempty"`
	Stats     *StatsSnapshot `json:"stats,omitempty"`
}

// PendingUpdate is a terminal update that could not be delivered.
type PendingUpdate struct {
	ID         int64
	SessionID  string
	Update     SessionUpdate
	RetryCount int
	CreatedAt  time.Time
}

// TimerStatus describes the timer for the local control surfaces.
type TimerStatus struct {
	Running         bool   `json:"running"`
	SessionID       string `json:"session_id,omitempty"`
	ProjectName     string `json:"project_name,omitempty"`
	UserNote        string `json:"user_note,omitempty"`
	StartedAt       string `json:"started_at,omitempty"`
	Elapsed         int64  `json:"elapsed"`
	InputMonitoring bool   `json:"input_monitoring"`
}
