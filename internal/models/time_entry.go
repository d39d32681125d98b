package models

import (
	"fmt"
	"time"
)

// TimeEntry is one completed timer run kept in the local history.
type TimeEntry struct {
	ID          int64     `json:"id"`
	ProjectName string    `json:"project_name"`
	Timestamp   time.Time `json:"timestamp"`
	Duration    int64     `json:"duration"` // seconds
}

type CreateTimeEntryRequest struct {
	ProjectName string
	Timestamp   time.Time
	Duration    time.Duration
}

// FormatSeconds renders a duration in seconds as H:MM:SS.
func FormatSeconds(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}
