package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remoteintegrity/ri-tracker/internal/handler"
	"remoteintegrity/ri-tracker/internal/metrics"
	"remoteintegrity/ri-tracker/internal/platform"
	"remoteintegrity/ri-tracker/internal/router"
	"remoteintegrity/ri-tracker/internal/server"
	"remoteintegrity/ri-tracker/internal/service"
	"remoteintegrity/ri-tracker/internal/tracker"
	"remoteintegrity/ri-tracker/internal/tray"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	runProject   string
	runAutoStart bool
	runTray      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracking agent",
	Long: `Run the agent in the foreground. The timer is controlled from the tray,
the local control API or the start and stop commands. SIGINT and SIGTERM stop a
running timer and send its final update before exiting.`,
	Example: `  ri-tracker run
  ri-tracker run --start --project "Client work"
  ri-tracker -c /etc/ri-tracker.yaml run --tray`,
	RunE: runAgent,
}

func init() {
	runCmd.Flags().StringVarP(&runProject, "project", "p", service.DefaultProjectName, "Project name for timers started by the agent")
	runCmd.Flags().BoolVar(&runAutoStart, "start", false, "Start the timer as soon as the agent is up")
	runCmd.Flags().BoolVar(&runTray, "tray", false, "Show the system tray menu (overrides tray.enabled)")
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	log.Info("Starting RI Tracker",
		zap.String("version", version),
		zap.String("env", cfg.Env),
		zap.String("config_path", configPath),
		zap.String("device_id", a.identity.ID),
	)

	if !a.restore() {
		log.Warn("Not signed in; run 'ri-tracker login' to enable the timer")
	}

	plat, err := platform.NewPlatform()
	if err != nil {
		return fmt.Errorf("failed to initialize platform: %w", err)
	}
	if info, err := plat.GetSystemInfo(); err == nil {
		log.Info("Platform detected",
			zap.String("os", info.OS),
			zap.String("os_version", info.OSVersion),
			zap.String("arch", info.Arch),
			zap.String("hostname", info.Hostname),
		)
	}

	var (
		urlStore *service.URLStore
		history  tracker.HistoryProvider
	)
	if cfg.Server.Enabled {
		urlStore = service.NewURLStore(a.urlStoreTTL(), cfg.Server.URLStoreSize, log.Logger)
		history = urlStore
	}

	manager := a.newManager(plat, history)

	var httpServer *http.Server
	if cfg.Server.Enabled {
		addr := fmt.Sprintf("localhost:%d", cfg.Server.Port)
		httpServer = &http.Server{
			Addr: addr,
			Handler: router.New(
				server.NewURLServer(urlStore, a.clock, log.Logger),
				handler.NewControlHandler(manager, a.auth, log.Logger),
				log.Logger,
			),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 45 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info("Starting local server", zap.String("address", addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Local server error", zap.Error(err))
			}
		}()
	} else {
		log.Info("Local server disabled in configuration")
	}

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Addr, log.Logger)
		if err := metricsServer.Start(); err != nil {
			log.Warn("Metrics server not started", zap.Error(err))
		} else {
			defer metricsServer.Stop()
		}
	}

	if runAutoStart {
		res, err := manager.StartTimer(cmd.Context(), service.StartRequest{ProjectName: runProject})
		switch {
		case err != nil:
			log.Warn("Timer not started", zap.Error(err))
		case !res.Success:
			log.Warn("Timer running without a remote session", zap.String("message", res.Message))
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	if cfg.Tray.Enabled || runTray {
		t := tray.New(manager, a.clock, runProject, nil, log.Logger)
		go func() {
			sig := <-quit
			log.Info("Received shutdown signal", zap.String("signal", sig.String()))
			t.Close()
		}()
		t.Run()
	} else {
		sig := <-quit
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	log.Info("Shutting down RI Tracker...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := manager.Shutdown(ctx); err != nil {
		log.Error("Failed to stop timer", zap.Error(err))
	}

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Warn("Local server shutdown error", zap.Error(err))
		}
	}
	if urlStore != nil {
		urlStore.Clear()
	}

	log.Info("RI Tracker stopped")
	return nil
}
