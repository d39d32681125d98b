package repository

import (
	"database/sql"
	"fmt"
	"time"

	"remoteintegrity/ri-tracker/internal/models"
)

// TimeEntryRepository is the local history of completed timer runs.
type TimeEntryRepository struct {
	db *sql.DB
}

func NewTimeEntryRepository(db *sql.DB) *TimeEntryRepository {
	return &TimeEntryRepository{db: db}
}

func (r *TimeEntryRepository) Create(entry *models.CreateTimeEntryRequest) (*models.TimeEntry, error) {
	duration := int64(entry.Duration / time.Second)
	if duration < 0 {
		duration = 0
	}

	result, err := r.db.Exec(`
		INSERT INTO time_entries (project_name, timestamp, duration)
		VALUES (?, ?, ?)
	`, entry.ProjectName, entry.Timestamp.Unix(), duration)
	if err != nil {
		return nil, fmt.Errorf("failed to create time entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read time entry id: %w", err)
	}

	return &models.TimeEntry{
		ID:          id,
		ProjectName: entry.ProjectName,
		Timestamp:   time.Unix(entry.Timestamp.Unix(), 0).UTC(),
		Duration:    duration,
	}, nil
}

// Recent returns the newest entries first.
func (r *TimeEntryRepository) Recent(limit int) ([]*models.TimeEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, project_name, timestamp, duration
		FROM time_entries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.TimeEntry
	for rows.Next() {
		var entry models.TimeEntry
		var ts int64
		if err := rows.Scan(&entry.ID, &entry.ProjectName, &ts, &entry.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		entry.Timestamp = time.Unix(ts, 0).UTC()
		entries = append(entries, &entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}
