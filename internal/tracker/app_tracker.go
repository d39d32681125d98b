package tracker

import (
	"sync"
	"time"

	"remoteintegrity/ri-tracker/internal/metrics"
	"remoteintegrity/ri-tracker/internal/platform"
	"remoteintegrity/ri-tracker/internal/usage"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// ProcessLister enumerates running processes.
type ProcessLister interface {
	ListProcesses() ([]platform.Process, error)
}

// AppTracker attributes the time between polls to every user application
// that was running at the poll.
type AppTracker struct {
	clock  clock.Clock
	lister ProcessLister
	filter *platform.ProcessFilter
	bucket *usage.Bucket
	logger *zap.Logger

	mu       sync.Mutex
	lastPoll time.Time
}

// NewAppTracker creates a new application tracker
func NewAppTracker(clk clock.Clock, lister ProcessLister, filter *platform.ProcessFilter, logger *zap.Logger) *AppTracker {
	if filter == nil {
		filter = platform.DefaultProcessFilter()
	}
	return &AppTracker{
		clock:  clk,
		lister: lister,
		filter: filter,
		bucket: usage.NewBucket(0),
		logger: logger,
	}
}

// Reset clears accumulated usage and starts measuring from now.
func (t *AppTracker) Reset(now time.Time) {
	t.mu.Lock()
	t.lastPoll = now
	t.mu.Unlock()
	t.bucket.Clear()
}

// Poll lists processes once. The window is consumed before enumerating,
// so a failed enumeration credits nothing for its cycle.
func (t *AppTracker) Poll() {
	now := t.clock.Now()

	t.mu.Lock()
	elapsed := now.Sub(t.lastPoll)
	if elapsed < 0 {
		elapsed = 0
	}
	t.lastPoll = now
	t.mu.Unlock()

	procs, err := t.lister.ListProcesses()
	if err != nil {
		metrics.EnumerationErrors.WithLabelValues("processes").Inc()
		t.logger.Warn("Failed to list processes", zap.Error(err))
		return
	}

	seen := make(map[string]struct{}, len(procs))
	for _, p := range procs {
		if !t.filter.Allowed(p) {
			continue
		}
		name := platform.AppName(p.Exe)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		t.bucket.Observe(usage.Observation{
			Key:    name,
			Delta:  elapsed,
			Path:   p.Exe,
			SeenAt: now,
		})
	}

	t.logger.Debug("Applications polled",
		zap.Int("processes", len(procs)),
		zap.Int("applications", len(seen)),
		zap.Duration("elapsed", elapsed),
	)
}

// Drain returns the reportable applications and clears them.
func (t *AppTracker) Drain() []usage.Entry {
	return t.bucket.Drain()
}

func (t *AppTracker) Snapshot() []usage.Entry {
	return t.bucket.Snapshot()
}
