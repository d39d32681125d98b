package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"remoteintegrity/ri-tracker/internal/auth"
	"remoteintegrity/ri-tracker/internal/client"
	"remoteintegrity/ri-tracker/internal/metrics"
	"remoteintegrity/ri-tracker/internal/models"
	"remoteintegrity/ri-tracker/internal/scheduler"
	"remoteintegrity/ri-tracker/internal/tracker"
	"remoteintegrity/ri-tracker/internal/usage"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultNotes       = "Session from RI Tracker Lite APP v1."
	DefaultProjectName = "General"

	defaultHistoryLimit = 10
	pendingBatchSize    = 20
	pendingMaxAge       = 7 * 24 * time.Hour
)

var (
	ErrAlreadyRunning   = errors.New("timer is already running")
	ErrNotRunning       = errors.New("timer is not running")
	ErrNotAuthenticated = auth.ErrNotAuthenticated
)

// SessionClient is the part of the backend used by a running session.
type SessionClient interface {
	CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error)
	UpdateSession(ctx context.Context, sessionID string, update models.SessionUpdate) error
	GetDailyStats(ctx context.Context, employeeID, timezone string) (models.Stats, error)
	GetWeeklyStats(ctx context.Context, employeeID, timezone string) (models.Stats, error)
}

type Authenticator interface {
	IsAuthenticated() bool
	ResolveIDs(ctx context.Context) (employeeID, companyID string, err error)
	EmployeeID() (string, error)
}

// HistoryStore is the local record of completed timer runs.
type HistoryStore interface {
	Create(entry *models.CreateTimeEntryRequest) (*models.TimeEntry, error)
	Recent(limit int) ([]*models.TimeEntry, error)
}

// PendingQueue holds final updates that could not be delivered.
type PendingQueue interface {
	Enqueue(sessionID string, update models.SessionUpdate) error
	Dequeue(limit int) ([]models.PendingUpdate, error)
	Remove(ids []int64) error
	IncrementRetry(ids []int64) error
	CleanupOld(olderThan time.Duration) (int64, error)
}

type ScreenshotSource interface {
	Start()
	Stop()
	Schedule()
	CaptureNow(ctx context.Context) bool
	Drain() []models.Screenshot
	Reset()
}

// Trackers are the per-session collectors driven by the manager.
// Screenshots may be nil when capturing is disabled.
type Trackers struct {
	Activity    *tracker.ActivityTracker
	Apps        *tracker.AppTracker
	Links       *tracker.LinkTracker
	Screenshots ScreenshotSource
}

type Options struct {
	ActivityTick     time.Duration
	AppPollInterval  time.Duration
	LinkPollInterval time.Duration
	FlushInterval    time.Duration
	StatsInterval    time.Duration
	RetryInterval    time.Duration
	RequestTimeout   time.Duration
	Timezone         string
	Notes            string
}

type StartRequest struct {
	ProjectName string `json:"project_name"`
	UserNote    string `json:"user_note"`
	Force       bool   `json:"force"`
}

// SessionManager owns the timer lifecycle: it starts the collectors,
// mirrors the run as a remote session, sends periodic and final updates
// and records completed runs locally.
type SessionManager struct {
	clock    clock.Clock
	client   SessionClient
	auth     Authenticator
	history  HistoryStore
	pending  PendingQueue
	activity *tracker.ActivityTracker
	apps     *tracker.AppTracker
	links    *tracker.LinkTracker
	shots    ScreenshotSource
	opts     Options
	logger   *zap.Logger

	// lifeMu serialises StartTimer and StopTimer so a new run cannot
	// begin while the previous one is still being torn down.
	lifeMu sync.Mutex

	mu          sync.Mutex
	running     bool
	run         uint64
	sessionID   string
	startTime   time.Time
	projectName string
	userNote    string
	stats       *models.StatsSnapshot
	jobs        scheduler.Group

	// updateMu serialises create and update calls of one session.
	updateMu sync.Mutex
}

// NewSessionManager creates a new session manager
func NewSessionManager(
	clk clock.Clock,
	apiClient SessionClient,
	authenticator Authenticator,
	history HistoryStore,
	pending PendingQueue,
	trackers Trackers,
	opts Options,
	logger *zap.Logger,
) *SessionManager {
	if opts.Notes == "" {
		opts.Notes = DefaultNotes
	}
	if opts.Timezone == "" {
		opts.Timezone = "UTC"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &SessionManager{
		clock:    clk,
		client:   apiClient,
		auth:     authenticator,
		history:  history,
		pending:  pending,
		activity: trackers.Activity,
		apps:     trackers.Apps,
		links:    trackers.Links,
		shots:    trackers.Screenshots,
		opts:     opts,
		logger:   logger,
	}
}

// StartTimer begins a new run. A remote failure does not prevent local
// tracking; it is reported through the result and the session is created
// on the next flush or RetryCreateSession.
func (m *SessionManager) StartTimer(ctx context.Context, req StartRequest) (models.SessionResult, error) {
	if !m.auth.IsAuthenticated() {
		return models.SessionResult{}, ErrNotAuthenticated
	}

	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.IsRunning() {
		if !req.Force {
			return models.SessionResult{}, ErrAlreadyRunning
		}
		m.logger.Info("Restarting running timer")
		if _, err := m.stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
			return models.SessionResult{}, err
		}
	}

	projectName := strings.TrimSpace(req.ProjectName)
	if projectName == "" {
		projectName = DefaultProjectName
	}

	now := m.clock.Now()
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return models.SessionResult{}, ErrAlreadyRunning
	}
	m.running = true
	m.run++
	run := m.run
	m.sessionID = ""
	m.startTime = now
	m.projectName = projectName
	m.userNote = req.UserNote
	m.mu.Unlock()

	m.activity.Reset(now)
	m.apps.Reset(now)
	m.links.Reset(now)
	if m.shots != nil {
		m.shots.Reset()
	}

	m.activity.StartInput()
	m.startJobs()
	if m.shots != nil {
		m.shots.Start()
	}
	metrics.SessionRunning.Set(1)

	m.logger.Info("Timer started",
		zap.String("project", projectName),
		zap.Time("start", now),
	)

	m.updateMu.Lock()
	sessionID, err := m.createRemote(ctx, run, now)
	m.updateMu.Unlock()

	if err != nil {
		return models.SessionResult{
			Success: false,
			Message: createFailureMessage(err),
		}, nil
	}
	return models.SessionResult{Success: true, SessionID: sessionID}, nil
}

func (m *SessionManager) startJobs() {
	bg := context.Background()

	m.jobs.Add(scheduler.Every(m.clock, m.opts.ActivityTick, "activity-tick", m.activity.Tick, m.logger))
	m.jobs.Add(scheduler.Every(m.clock, m.opts.AppPollInterval, "app-poll", m.apps.Poll, m.logger))
	m.jobs.Add(scheduler.Every(m.clock, m.opts.LinkPollInterval, "link-poll", func() {
		ctx, cancel := context.WithTimeout(bg, m.opts.LinkPollInterval)
		defer cancel()
		m.links.Poll(ctx)
	}, m.logger))
	m.jobs.Add(scheduler.Every(m.clock, m.opts.FlushInterval, "session-flush", func() {
		if err := m.Flush(bg); err != nil && !errors.Is(err, ErrNotRunning) {
			m.logger.Warn("Periodic session update failed", zap.Error(err))
		}
	}, m.logger))
	m.jobs.Add(scheduler.Every(m.clock, m.opts.StatsInterval, "stats-refresh", func() {
		m.fetchStats(bg)
	}, m.logger, scheduler.Immediately()))
	m.jobs.Add(scheduler.Every(m.clock, m.opts.RetryInterval, "pending-retry", func() {
		m.RetryPending(bg)
	}, m.logger, scheduler.Immediately()))
}

// createRemote opens the remote session for the given run. The id is kept
// while that run is current, including during its teardown, so StopTimer
// can still send the final update. Callers hold updateMu.
func (m *SessionManager) createRemote(ctx context.Context, run uint64, start time.Time) (string, error) {
	employeeID, companyID, err := m.auth.ResolveIDs(ctx)
	if err != nil {
		metrics.SessionUpdates.WithLabelValues("create", "error").Inc()
		m.logger.Warn("Cannot create session", zap.Error(err))
		return "", err
	}

	m.mu.Lock()
	userNote := m.userNote
	m.mu.Unlock()

	req := models.CreateSessionRequest{
		EmployeeID: employeeID,
		CompanyID:  companyID,
		StartTime:  models.FormatTimestamp(start),
		Notes:      m.opts.Notes,
		UserNote:   userNote,
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()

	session, err := m.client.CreateSession(reqCtx, req)
	if err != nil {
		metrics.SessionUpdates.WithLabelValues("create", "error").Inc()
		m.logger.Warn("Failed to create remote session", zap.Error(err))
		return "", err
	}

	m.mu.Lock()
	current := m.run == run
	if current {
		m.sessionID = session.ID
	}
	m.mu.Unlock()

	if !current {
		// A newer run started while the call was in flight.
		m.logger.Warn("Remote session created for a superseded run", zap.String("session_id", session.ID))
		return session.ID, nil
	}

	metrics.SessionUpdates.WithLabelValues("create", "ok").Inc()
	m.logger.Info("Remote session created", zap.String("session_id", session.ID))
	return session.ID, nil
}

// RetryCreateSession creates the remote session for a run whose create
// call failed.
func (m *SessionManager) RetryCreateSession(ctx context.Context) (models.SessionResult, error) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	m.mu.Lock()
	running, run, sessionID, start := m.running, m.run, m.sessionID, m.startTime
	m.mu.Unlock()

	if !running {
		return models.SessionResult{}, ErrNotRunning
	}
	if sessionID != "" {
		return models.SessionResult{Success: true, SessionID: sessionID}, nil
	}

	id, err := m.createRemote(ctx, run, start)
	if err != nil {
		return models.SessionResult{Success: false, Message: createFailureMessage(err)}, nil
	}
	return models.SessionResult{Success: true, SessionID: id}, nil
}

// Flush sends one periodic update. Collected detail is drained before the
// call, so a failed call loses it while active and idle totals are resent
// cumulatively next time.
func (m *SessionManager) Flush(ctx context.Context) error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	m.mu.Lock()
	running, run, sessionID, start := m.running, m.run, m.sessionID, m.startTime
	m.mu.Unlock()

	if !running {
		return ErrNotRunning
	}
	if m.shots != nil {
		defer m.shots.Schedule()
	}

	if sessionID == "" {
		id, err := m.createRemote(ctx, run, start)
		if err != nil {
			metrics.SessionUpdates.WithLabelValues("periodic", "skipped").Inc()
			return fmt.Errorf("no remote session, update skipped: %w", err)
		}
		sessionID = id
	}

	m.activity.Tick()
	snap := m.activity.Snapshot()
	update := m.buildUpdate(ctx, snap.Active, snap.Idle, false)

	return m.sendUpdate(ctx, sessionID, update)
}

// StopTimer ends the run. Local state is torn down whatever the backend
// answers; the session id is cleared only when the final update succeeds
// and a failed final update is queued for retry.
func (m *SessionManager) StopTimer(ctx context.Context) (models.SessionResult, error) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	return m.stop(ctx)
}

// stop tears the current run down. Callers hold lifeMu.
func (m *SessionManager) stop(ctx context.Context) (models.SessionResult, error) {
	// The end time is taken before teardown, which may wait on an
	// in-flight flush.
	now := m.clock.Now()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return models.SessionResult{}, ErrNotRunning
	}
	m.running = false
	start, projectName := m.startTime, m.projectName
	m.mu.Unlock()

	snap := m.activity.Finalize()
	m.activity.StopInput()
	m.jobs.StopAll()
	if m.shots != nil {
		m.shots.Stop()
	}
	metrics.SessionRunning.Set(0)

	// Waits for an in-flight flush or create, whose session id then
	// belongs to this run.
	m.updateMu.Lock()
	duration := now.Sub(start).Truncate(time.Second)
	if duration < 0 {
		duration = 0
	}
	active, idle := Reconcile(snap.Active, snap.Idle, duration)

	m.recordHistory(projectName, now, duration)

	m.mu.Lock()
	sessionID := m.sessionID
	m.mu.Unlock()

	result := models.SessionResult{
		Success:   true,
		SessionID: sessionID,
		Duration:  int64(duration / time.Second),
	}

	if sessionID == "" {
		result.Success = false
		result.Message = "Timer stopped; no remote session was created for this run"
	} else {
		update := m.buildUpdate(ctx, active, idle, true)
		update.EndTime = models.FormatTimestamp(now)

		if err := m.sendUpdate(ctx, sessionID, update); err != nil {
			result.Success = false
			result.Message = fmt.Sprintf("Timer stopped, but the final update failed: %v", err)
			if qerr := m.pending.Enqueue(sessionID, update); qerr != nil {
				m.logger.Error("Failed to queue final update", zap.Error(qerr))
			} else {
				result.Message += " (queued for retry)"
			}
		} else {
			m.mu.Lock()
			if m.sessionID == sessionID {
				m.sessionID = ""
			}
			m.mu.Unlock()
		}
	}
	m.updateMu.Unlock()

	m.logger.Info("Timer stopped",
		zap.String("session_id", sessionID),
		zap.Duration("duration", duration),
		zap.Duration("active", active),
		zap.Duration("idle", idle),
		zap.Bool("delivered", result.Success),
	)

	result.Stats = m.fetchStats(ctx)
	return result, nil
}

// Reconcile makes active+idle agree with the wall-clock duration. When
// they differ by more than a second the difference is charged to active.
func Reconcile(active, idle, duration time.Duration) (time.Duration, time.Duration) {
	diff := active + idle - duration
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Second {
		active = duration - idle
		if active < 0 {
			active = 0
		}
	}
	return active, idle
}

func (m *SessionManager) recordHistory(projectName string, at time.Time, duration time.Duration) {
	if _, err := m.history.Create(&models.CreateTimeEntryRequest{
		ProjectName: projectName,
		Timestamp:   at,
		Duration:    duration,
	}); err != nil {
		m.logger.Error("Failed to record time entry", zap.Error(err))
	}
}

// buildUpdate drains the period collectors into an update. A periodic
// update without screenshots gets one synchronous capture attempt.
func (m *SessionManager) buildUpdate(ctx context.Context, active, idle time.Duration, final bool) models.SessionUpdate {
	keyboardRate, mouseRate := m.activity.Rates()

	screenshots := []models.Screenshot{}
	if m.shots != nil {
		screenshots = append(screenshots, m.shots.Drain()...)
		if len(screenshots) == 0 && !final && m.shots.CaptureNow(ctx) {
			screenshots = append(screenshots, m.shots.Drain()...)
		}
	}

	m.mu.Lock()
	userNote := m.userNote
	m.mu.Unlock()

	return models.SessionUpdate{
		ActiveTime:           int64(active / time.Second),
		IdleTime:             int64(idle / time.Second),
		KeyboardActivityRate: keyboardRate,
		MouseActivityRate:    mouseRate,
		Screenshots:          screenshots,
		Applications:         applicationUsage(m.apps.Drain()),
		Links:                linkUsage(m.links.Drain()),
		Notes:                m.opts.Notes,
		UserNote:             userNote,
	}
}

func applicationUsage(entries []usage.Entry) []models.ApplicationUsage {
	out := make([]models.ApplicationUsage, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.ApplicationUsage{
			Name:      e.Key,
			TimeSpent: int64(e.TimeSpent / time.Second),
			Timestamp: models.FormatTimestamp(e.LastSeen),
		})
	}
	return out
}

func linkUsage(entries []usage.Entry) []models.LinkUsage {
	out := make([]models.LinkUsage, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.LinkUsage{
			URL:        e.Key,
			Title:      tracker.LinkTitle(e.Title, e.Key),
			TimeSpent:  int64(e.TimeSpent / time.Second),
			Timestamp:  models.FormatTimestamp(e.LastSeen),
			VisitCount: e.VisitCount,
		})
	}
	return out
}

func (m *SessionManager) sendUpdate(ctx context.Context, sessionID string, update models.SessionUpdate) error {
	kind := "periodic"
	if update.IsFinal() {
		kind = "final"
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()

	if err := m.client.UpdateSession(reqCtx, sessionID, update); err != nil {
		metrics.SessionUpdates.WithLabelValues(kind, "error").Inc()
		m.logger.Warn("Session update failed",
			zap.String("session_id", sessionID),
			zap.String("kind", kind),
			zap.Bool("retryable", client.IsUnavailable(err)),
			zap.Error(err),
		)
		return err
	}

	metrics.SessionUpdates.WithLabelValues(kind, "ok").Inc()
	m.logger.Info("Session updated",
		zap.String("session_id", sessionID),
		zap.String("kind", kind),
		zap.Int64("active", update.ActiveTime),
		zap.Int64("idle", update.IdleTime),
		zap.Int("applications", len(update.Applications)),
		zap.Int("links", len(update.Links)),
		zap.Int("screenshots", len(update.Screenshots)),
	)
	return nil
}

// fetchStats loads daily and weekly stats concurrently. Either may fail
// without affecting the other.
func (m *SessionManager) fetchStats(ctx context.Context) *models.StatsSnapshot {
	employeeID, err := m.auth.EmployeeID()
	if err != nil {
		m.logger.Debug("Skipping stats refresh", zap.Error(err))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()

	var daily, weekly models.Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := m.client.GetDailyStats(gctx, employeeID, m.opts.Timezone)
		if err != nil {
			m.logger.Warn("Failed to get daily stats", zap.Error(err))
			return nil
		}
		daily = s
		return nil
	})
	g.Go(func() error {
		s, err := m.client.GetWeeklyStats(gctx, employeeID, m.opts.Timezone)
		if err != nil {
			m.logger.Warn("Failed to get weekly stats", zap.Error(err))
			return nil
		}
		weekly = s
		return nil
	})
	_ = g.Wait()

	if daily == nil && weekly == nil {
		return nil
	}

	snapshot := &models.StatsSnapshot{Daily: daily, Weekly: weekly, FetchedAt: m.clock.Now()}
	m.mu.Lock()
	m.stats = snapshot
	m.mu.Unlock()
	return snapshot
}

// RetryPending resends queued final updates and purges the ones that
// have been failing for too long.
func (m *SessionManager) RetryPending(ctx context.Context) {
	pending, err := m.pending.Dequeue(pendingBatchSize)
	if err != nil {
		m.logger.Error("Failed to dequeue pending updates", zap.Error(err))
		return
	}

	var sent, failed []int64
	for _, p := range pending {
		if err := m.sendUpdate(ctx, p.SessionID, p.Update); err != nil {
			failed = append(failed, p.ID)
			continue
		}
		sent = append(sent, p.ID)
	}

	if err := m.pending.Remove(sent); err != nil {
		m.logger.Error("Failed to remove delivered updates", zap.Error(err))
	}
	if err := m.pending.IncrementRetry(failed); err != nil {
		m.logger.Error("Failed to increment retry count", zap.Error(err))
	}
	if len(sent) > 0 {
		m.logger.Info("Delivered queued updates", zap.Int("count", len(sent)))
	}

	if _, err := m.pending.CleanupOld(pendingMaxAge); err != nil {
		m.logger.Error("Failed to clean up pending updates", zap.Error(err))
	}
}

func (m *SessionManager) RecordKeyboardActivity() {
	m.activity.RecordActivity(tracker.KindKeyboard)
}

func (m *SessionManager) RecordMouseActivity() {
	m.activity.RecordActivity(tracker.KindMouse)
}

// ActivityStats returns the live accounting of the running session.
func (m *SessionManager) ActivityStats() (models.ActivityStats, error) {
	if !m.IsRunning() {
		return models.ActivityStats{}, ErrNotRunning
	}
	m.activity.Tick()
	snap := m.activity.Snapshot()
	keyboard, mouse := m.activity.Rates()
	return models.ActivityStats{
		ActiveTime:   int64(snap.Active / time.Second),
		IdleTime:     int64(snap.Idle / time.Second),
		KeyboardRate: keyboard,
		MouseRate:    mouse,
		IsIdle:       snap.IsIdle(),
	}, nil
}

// CurrentSessionTime returns whole seconds since the timer started.
func (m *SessionManager) CurrentSessionTime() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return 0, false
	}
	return int64(m.clock.Now().Sub(m.startTime) / time.Second), true
}

func (m *SessionManager) TimeEntries(limit int) ([]*models.TimeEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return m.history.Recent(limit)
}

// Stats returns the most recently fetched stats, or nil.
func (m *SessionManager) Stats() *models.StatsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *SessionManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SessionID returns the remote id of the current or last undelivered run.
func (m *SessionManager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

func (m *SessionManager) Status() models.TimerStatus {
	m.mu.Lock()
	status := models.TimerStatus{
		Running:   m.running,
		SessionID: m.sessionID,
	}
	if m.running {
		status.ProjectName = m.projectName
		status.UserNote = m.userNote
		status.StartedAt = models.FormatTimestamp(m.startTime)
		status.Elapsed = int64(m.clock.Now().Sub(m.startTime) / time.Second)
	}
	m.mu.Unlock()

	status.InputMonitoring = m.activity.InputMonitoring()
	return status
}

// Shutdown stops a running timer so its final update is sent.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	if _, err := m.StopTimer(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return nil
}

// createFailureMessage turns a create error into the message shown to the
// user. An active-session conflict names the blocking session.
func createFailureMessage(err error) string {
	if errors.Is(err, auth.ErrIDsUnresolved) {
		return "Employee ID or Company ID not found"
	}
	msg := err.Error()
	if !strings.Contains(strings.ToLower(msg), "active session") {
		return msg
	}
	activeID := "Unknown"
	if i := strings.LastIndex(msg, "ID:"); i >= 0 {
		activeID = strings.TrimSpace(msg[i+len("ID:"):])
	}
	return "Employee already has an active session. Please stop the current session before starting a new one. Active session ID: " + activeID
}
