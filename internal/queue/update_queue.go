package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"remoteintegrity/ri-tracker/internal/metrics"
	"remoteintegrity/ri-tracker/internal/models"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// MaxRetries is the retry count after which an old entry may be purged.
const MaxRetries = 10

// UpdateQueue persists final session updates that could not be delivered
type UpdateQueue struct {
	db     *sql.DB
	clock  clock.Clock
	logger *zap.Logger
}

// NewUpdateQueue creates a new update queue
func NewUpdateQueue(db *sql.DB, clk clock.Clock, logger *zap.Logger) *UpdateQueue {
	return &UpdateQueue{
		db:     db,
		clock:  clk,
		logger: logger,
	}
}

// Enqueue stores an update for later delivery
func (q *UpdateQueue) Enqueue(sessionID string, update models.SessionUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	if _, err := q.db.Exec(`
		INSERT INTO pending_updates (session_id, update_data, created_at, retry_count)
		VALUES (?, ?, ?, 0)
	`, sessionID, string(data), q.clock.Now().Unix()); err != nil {
		return fmt.Errorf("failed to enqueue update: %w", err)
	}

	q.logger.Info("Session update queued for retry",
		zap.String("session_id", sessionID),
		zap.Bool("final", update.IsFinal()),
	)
	q.refreshGauge()
	return nil
}

// Dequeue returns up to limit pending updates, oldest first. Rows that no
// longer decode are dropped.
func (q *UpdateQueue) Dequeue(limit int) ([]models.PendingUpdate, error) {
	rows, err := q.db.Query(`
		SELECT id, session_id, update_data, retry_count, created_at
		FROM pending_updates
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending updates: %w", err)
	}

	var pending []models.PendingUpdate
	var corrupted []int64
	for rows.Next() {
		var p models.PendingUpdate
		var data string
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.SessionID, &data, &p.RetryCount, &createdAt); err != nil {
			q.logger.Error("Failed to scan row", zap.Error(err))
			continue
		}
		if err := json.Unmarshal([]byte(data), &p.Update); err != nil {
			q.logger.Error("Failed to unmarshal update", zap.Error(err), zap.Int64("id", p.ID))
			corrupted = append(corrupted, p.ID)
			continue
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		pending = append(pending, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if err := q.Remove(corrupted); err != nil {
		q.logger.Warn("Failed to drop corrupted updates", zap.Error(err))
	}
	return pending, nil
}

// Remove removes updates from the queue by their IDs
func (q *UpdateQueue) Remove(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args := inClause("DELETE FROM pending_updates WHERE id IN (%s)", ids)
	result, err := q.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to remove updates: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	q.logger.Debug("Updates removed from queue", zap.Int64("count", rowsAffected))
	q.refreshGauge()
	return nil
}

// IncrementRetry increments the retry count for updates
func (q *UpdateQueue) IncrementRetry(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args := inClause("UPDATE pending_updates SET retry_count = retry_count + 1, last_attempt = ? WHERE id IN (%s)", ids)
	args = append([]any{q.clock.Now().Unix()}, args...)
	if _, err := q.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to increment retry: %w", err)
	}
	return nil
}

// PendingCount returns the number of queued updates
func (q *UpdateQueue) PendingCount() (int, error) {
	var count int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM pending_updates`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return count, nil
}

// CleanupOld removes updates older than olderThan that exhausted their
// retries.
func (q *UpdateQueue) CleanupOld(olderThan time.Duration) (int64, error) {
	cutoff := q.clock.Now().Add(-olderThan).Unix()
	result, err := q.db.Exec(`
		DELETE FROM pending_updates
		WHERE created_at < ? AND retry_count > ?
	`, cutoff, MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old updates: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		q.logger.Info("Cleaned up old updates", zap.Int64("count", rowsAffected))
		q.refreshGauge()
	}
	return rowsAffected, nil
}

func (q *UpdateQueue) refreshGauge() {
	if n, err := q.PendingCount(); err == nil {
		metrics.PendingUpdates.Set(float64(n))
	}
}

func inClause(format string, ids []int64) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return fmt.Sprintf(format, placeholders), args
}
