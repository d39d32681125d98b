package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestURLStoreRecordAndQuery(t *testing.T) {
	store := NewURLStore(time.Hour, 100, zaptest.NewLogger(t))
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	store.RecordVisit("Google Chrome", "Pull requests - Google Chrome", "https://github.com/pulls", base)
	store.RecordVisit("chrome", "", "https://github.com/pulls", base.Add(time.Minute))
	store.RecordVisit("Mozilla Firefox", "Go", "https://go.dev", base.Add(2*time.Minute))
	store.RecordVisit("Brave Browser", "Old", "https://old.example", base.Add(-time.Hour))

	chrome, err := store.QueryHistory(context.Background(), "chrome", base)
	require.NoError(t, err)
	require.Len(t, chrome, 1)
	assert.Equal(t, "https://github.com/pulls", chrome[0].URL)
	assert.Equal(t, "Pull requests", chrome[0].Title)
	assert.Equal(t, 2, chrome[0].VisitCount)
	assert.Equal(t, base.Add(time.Minute), chrome[0].VisitedAt)

	firefox, err := store.QueryHistory(context.Background(), "firefox", base)
	require.NoError(t, err)
	assert.Len(t, firefox, 1)

	brave, err := store.QueryHistory(context.Background(), "brave", base)
	require.NoError(t, err)
	assert.Empty(t, brave)

	assert.Equal(t, 3, store.Len())
	store.Clear()
	assert.Zero(t, store.Len())
}

func TestURLStoreEvictsBeyondSize(t *testing.T) {
	store := NewURLStore(time.Hour, 2, zaptest.NewLogger(t))
	now := time.Now()

	store.RecordVisit("edge", "a", "https://a.example", now)
	store.RecordVisit("edge", "b", "https://b.example", now)
	store.RecordVisit("edge", "c", "https://c.example", now)

	visits, err := store.QueryHistory(context.Background(), "edge", now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, visits, 2)
	urls := []string{visits[0].URL, visits[1].URL}
	assert.NotContains(t, urls, "https://a.example")
}

func TestNormalizeApplicationName(t *testing.T) {
	assert.Equal(t, "chrome", normalizeApplicationName("Google Chrome"))
	assert.Equal(t, "chrome", normalizeApplicationName("chromium-browser"))
	assert.Equal(t, "edge", normalizeApplicationName("msedge.exe"))
	assert.Equal(t, "edge", normalizeApplicationName("Microsoft Edge"))
	assert.Equal(t, "brave", normalizeApplicationName("Brave Browser"))
	assert.Equal(t, "firefox", normalizeApplicationName("Mozilla Firefox"))
	assert.Equal(t, "slack", normalizeApplicationName(" Slack "))
}
