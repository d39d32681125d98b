// Package tray shows the timer in the system tray with start and stop
// entries and a quit item.
package tray

import (
	"context"
	"fmt"
	"time"

	"remoteintegrity/ri-tracker/internal/models"
	"remoteintegrity/ri-tracker/internal/service"

	"github.com/benbjohnson/clock"
	"github.com/getlantern/systray"
	"go.uber.org/zap"
)

type Timer interface {
	StartTimer(ctx context.Context, req service.StartRequest) (models.SessionResult, error)
	StopTimer(ctx context.Context) (models.SessionResult, error)
	Status() models.TimerStatus
}

// Tray drives the system tray menu. Run blocks on the UI thread until
// Quit is chosen or Close is called.
type Tray struct {
	timer   Timer
	clock   clock.Clock
	project string
	onQuit  func()
	timeout time.Duration
	logger  *zap.Logger
}

func New(timer Timer, clk clock.Clock, project string, onQuit func(), logger *zap.Logger) *Tray {
	return &Tray{
		timer:   timer,
		clock:   clk,
		project: project,
		onQuit:  onQuit,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Close removes the icon and makes Run return.
func (t *Tray) Close() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("RI Tracker")
	systray.SetTooltip("RI Tracker")

	status := systray.AddMenuItem("", "Timer status")
	status.Disable()
	systray.AddSeparator()
	start := systray.AddMenuItem("Start timer", "Start tracking time")
	stop := systray.AddMenuItem("Stop timer", "Stop tracking time")
	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Stop the timer and exit")

	refresh := func() {
		st := t.timer.Status()
		status.SetTitle(StatusLabel(st))
		if st.Running {
			start.Disable()
			stop.Enable()
		} else {
			start.Enable()
			stop.Disable()
		}
	}
	refresh()

	ticker := t.clock.Ticker(time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-start.ClickedCh:
				t.start()
				refresh()
			case <-stop.ClickedCh:
				t.stop()
				refresh()
			case <-ticker.C:
				refresh()
			case <-quit.ClickedCh:
				t.logger.Info("Quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	t.logger.Debug("Tray closed")
}

func (t *Tray) start() {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	res, err := t.timer.StartTimer(ctx, service.StartRequest{ProjectName: t.project})
	if err != nil {
		t.logger.Warn("Cannot start timer", zap.Error(err))
		return
	}
	if !res.Success {
		t.logger.Warn("Timer started without a remote session", zap.String("message", res.Message))
	}
}

func (t *Tray) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	if _, err := t.timer.StopTimer(ctx); err != nil {
		t.logger.Warn("Cannot stop timer", zap.Error(err))
	}
}

// StatusLabel renders the status line shown at the top of the menu.
func StatusLabel(st models.TimerStatus) string {
	if !st.Running {
		return "Timer stopped"
	}
	return fmt.Sprintf("%s: %s", st.ProjectName, models.FormatSeconds(st.Elapsed))
}
