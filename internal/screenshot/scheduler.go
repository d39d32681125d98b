// Package screenshot captures the screen at random moments of a running
// session and uploads each image.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"remoteintegrity/ri-tracker/internal/collector"
	"remoteintegrity/ri-tracker/internal/metrics"
	"remoteintegrity/ri-tracker/internal/models"
	"remoteintegrity/ri-tracker/internal/platform"
	"remoteintegrity/ri-tracker/internal/scheduler"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Capturer interface {
	CaptureScreen() ([]byte, error)
}

type Uploader interface {
	UploadScreenshot(ctx context.Context, filename string, data []byte) (string, error)
}

type Config struct {
	MinDelay      time.Duration
	MaxDelay      time.Duration
	Cooldown      time.Duration
	UploadTimeout time.Duration
}

// Scheduler keeps at most one pending capture. Each Schedule call
// replaces the pending one with a new uniformly random delay.
type Scheduler struct {
	clock    clock.Clock
	capturer Capturer
	uploader Uploader
	cfg      Config
	logger   *zap.Logger
	shots    *collector.Collector[models.Screenshot]

	// randDelay returns a delay in [0, n).
	randDelay func(n int64) int64
	notify    func(string)

	mu           sync.Mutex
	running      bool
	timer        *clock.Timer
	generation   uint64
	blockedUntil time.Time
	notified     bool
}

// NewScheduler creates a screenshot scheduler. notify, when set, receives
// the one-time message shown when capture is blocked.
func NewScheduler(clk clock.Clock, capturer Capturer, uploader Uploader, cfg Config, notify func(string), logger *zap.Logger) *Scheduler {
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	return &Scheduler{
		clock:     clk,
		capturer:  capturer,
		uploader:  uploader,
		cfg:       cfg,
		logger:    logger,
		shots:     collector.New[models.Screenshot](),
		randDelay: rand.Int64N,
		notify:    notify,
	}
}

// Start enables capturing and schedules the first one.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.Schedule()
}

// Stop cancels the pending capture. A capture already in flight finishes
// but its timer generation is stale, so nothing new is scheduled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Schedule cancels any pending capture and arms a new one.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	gen := s.generation

	delay := s.nextDelay()
	s.timer = s.clock.AfterFunc(delay, func() {
		scheduler.Safe("screenshot", func() { s.fire(gen) }, s.logger)
	})
	s.logger.Debug("Screenshot scheduled", zap.Duration("delay", delay))
}

func (s *Scheduler) nextDelay() time.Duration {
	window := s.cfg.MaxDelay - s.cfg.MinDelay
	if window <= 0 {
		return s.cfg.MinDelay
	}
	return s.cfg.MinDelay + time.Duration(s.randDelay(int64(window)+1))
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	current := s.running && gen == s.generation
	if current {
		s.timer = nil
	}
	s.mu.Unlock()
	if !current {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.UploadTimeout)
	defer cancel()
	s.CaptureNow(ctx)
}

// CaptureNow takes and uploads one screenshot and reports whether it was
// added to the collector.
func (s *Scheduler) CaptureNow(ctx context.Context) bool {
	now := s.clock.Now()

	s.mu.Lock()
	blocked := now.Before(s.blockedUntil)
	s.mu.Unlock()
	if blocked {
		metrics.Screenshots.WithLabelValues("skipped").Inc()
		return false
	}

	data, err := s.capturer.CaptureScreen()
	if err != nil {
		if errors.Is(err, platform.ErrCaptureUnavailable) {
			s.block(now, err)
			return false
		}
		metrics.Screenshots.WithLabelValues("capture_failed").Inc()
		s.logger.Warn("Screenshot capture failed", zap.Error(err))
		return false
	}

	filename := fmt.Sprintf("screenshot_%s.png", uuid.NewString())
	url, err := s.uploader.UploadScreenshot(ctx, filename, data)
	if err != nil {
		metrics.Screenshots.WithLabelValues("upload_failed").Inc()
		s.logger.Warn("Screenshot upload failed",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return false
	}

	s.shots.Add(models.Screenshot{
		Timestamp: models.FormatTimestamp(now),
		ImageURL:  url,
	})
	metrics.Screenshots.WithLabelValues("ok").Inc()
	s.logger.Debug("Screenshot uploaded", zap.String("url", url))
	return true
}

func (s *Scheduler) block(now time.Time, cause error) {
	s.mu.Lock()
	s.blockedUntil = now.Add(s.cfg.Cooldown)
	first := !s.notified
	s.notified = true
	s.mu.Unlock()

	metrics.Screenshots.WithLabelValues("blocked").Inc()
	s.logger.Warn("Screen capture blocked, pausing screenshots",
		zap.Duration("cooldown", s.cfg.Cooldown),
		zap.Error(cause),
	)
	if first && s.notify != nil {
		s.notify(fmt.Sprintf("Screenshots are unavailable: %v. Grant screen recording access to RI Tracker to enable them.", cause))
	}
}

// Drain returns the screenshots taken since the previous drain.
func (s *Scheduler) Drain() []models.Screenshot {
	return s.shots.Drain()
}

func (s *Scheduler) Pending() int {
	return s.shots.Len()
}

// Reset drops collected screenshots and clears the cooldown.
func (s *Scheduler) Reset() {
	s.shots.Reset()
	s.mu.Lock()
	s.blockedUntil = time.Time{}
	s.mu.Unlock()
}
