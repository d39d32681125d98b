package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.db")
	logger := zaptest.NewLogger(t)

	db, err := New(path, logger)
	require.NoError(t, err)

	v, err := db.Version()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	for _, table := range []string{"auth_data", "time_entries", "pending_updates"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, table)
	}
	require.NoError(t, db.Close())

	db, err = New(path, logger)
	require.NoError(t, err)
	defer db.Close()

	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&rows))
	assert.Equal(t, 2, rows)
}
