package main

import (
	"fmt"
	"time"

	"remoteintegrity/ri-tracker/internal/auth"
	"remoteintegrity/ri-tracker/internal/client"
	"remoteintegrity/ri-tracker/internal/config"
	"remoteintegrity/ri-tracker/internal/database"
	"remoteintegrity/ri-tracker/internal/device"
	"remoteintegrity/ri-tracker/internal/logger"
	"remoteintegrity/ri-tracker/internal/platform"
	"remoteintegrity/ri-tracker/internal/queue"
	"remoteintegrity/ri-tracker/internal/repository"
	"remoteintegrity/ri-tracker/internal/screenshot"
	"remoteintegrity/ri-tracker/internal/service"
	"remoteintegrity/ri-tracker/internal/tracker"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// app holds the dependencies shared by the commands.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	clock    clock.Clock
	db       *database.DB
	identity device.Identity
	client   *client.APIClient
	auth     *auth.Service
	history  *repository.TimeEntryRepository
	pending  *queue.UpdateQueue
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	db, err := database.New(cfg.StoragePath, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	identity := device.NewResolver().Resolve(cfg.Device.ID, cfg.Device.Name)
	apiClient := client.NewAPIClient(cfg.Backend, identity.ID, cfg.BackendTimeout(), log.Logger)
	clk := clock.New()

	return &app{
		cfg:      cfg,
		log:      log,
		clock:    clk,
		db:       db,
		identity: identity,
		client:   apiClient,
		auth:     auth.NewService(apiClient, repository.NewCredentialRepository(db.DB), log.Logger),
		history:  repository.NewTimeEntryRepository(db.DB),
		pending:  queue.NewUpdateQueue(db.DB, clk, log.Logger),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Error("Failed to close database", zap.Error(err))
	}
	a.log.Sync()
}

// restore loads a remembered login. A failure leaves the app signed out.
func (a *app) restore() bool {
	ok, err := a.auth.Restore()
	if err != nil {
		a.log.Warn("Failed to restore login", zap.Error(err))
		return false
	}
	return ok
}

// newManager wires the trackers onto plat. history may be nil when the
// extension feed is disabled.
func (a *app) newManager(plat platform.Platform, history tracker.HistoryProvider) *service.SessionManager {
	cfg := a.cfg
	log := a.log.Logger

	var shots service.ScreenshotSource
	if !cfg.Screenshot.Disabled {
		shots = screenshot.NewScheduler(a.clock, plat, a.client, screenshot.Config{
			MinDelay:      cfg.Screenshot.MinDelay,
			MaxDelay:      cfg.Screenshot.MaxDelay,
			Cooldown:      cfg.Screenshot.Cooldown,
			UploadTimeout: cfg.BackendTimeout(),
		}, func(msg string) {
			log.Warn("Screenshots unavailable", zap.String("message", msg))
		}, log)
	}

	return service.NewSessionManager(a.clock, a.client, a.auth, a.history, a.pending, service.Trackers{
		Activity:    tracker.NewActivityTracker(a.clock, plat, cfg.Tracking.IdleThreshold, cfg.Tracking.Throttle, log),
		Apps:        tracker.NewAppTracker(a.clock, plat, nil, log),
		Links:       tracker.NewLinkTracker(a.clock, history, cfg.Tracking.LinkPollInterval, cfg.Tracking.LinkLimit, log),
		Screenshots: shots,
	}, service.Options{
		ActivityTick:     cfg.Tracking.ActivityTick,
		AppPollInterval:  cfg.Tracking.AppPollInterval,
		LinkPollInterval: cfg.Tracking.LinkPollInterval,
		FlushInterval:    cfg.Tracking.FlushInterval,
		StatsInterval:    cfg.Tracking.StatsInterval,
		RetryInterval:    cfg.Tracking.RetryInterval,
		RequestTimeout:   cfg.BackendTimeout(),
		Timezone:         service.LocalTimezone(),
	}, log)
}

func (a *app) urlStoreTTL() time.Duration {
	return time.Duration(a.cfg.Server.URLStoreTTL) * time.Second
}
