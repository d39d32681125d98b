package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"remoteintegrity/ri-tracker/internal/config"
	"remoteintegrity/ri-tracker/internal/models"
	"remoteintegrity/ri-tracker/internal/service"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	startProject string
	startNote    string
	startForce   bool
)

// The start, stop and status commands talk to a running agent through
// its local control API.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the timer in the running agent",
	Example: `  ri-tracker start --project "Client work" --note "sprint review"
  ri-tracker start --force`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the timer in the running agent",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show login, timer and queue status",
	RunE:  runStatus,
}

func init() {
	startCmd.Flags().StringVarP(&startProject, "project", "p", service.DefaultProjectName, "Project name")
	startCmd.Flags().StringVarP(&startNote, "note", "m", "", "Note attached to the session")
	startCmd.Flags().BoolVarP(&startForce, "force", "f", false, "Stop a running timer first")
	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
}

type controlClient struct {
	base string
	http *http.Client
}

func newControlClient(cfg *config.Config) *controlClient {
	return &controlClient{
		base: fmt.Sprintf("http://localhost:%d/api/v1", cfg.Server.Port),
		http: &http.Client{Timeout: cfg.BackendTimeout() + 5*time.Second},
	}
}

func (c *controlClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agent not reachable (is 'ri-tracker run' running with server.enabled?): %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var failure models.SessionResult
		if json.Unmarshal(data, &failure) == nil && failure.Message != "" {
			return fmt.Errorf("%s", failure.Message)
		}
		return fmt.Errorf("agent returned status %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	var res models.SessionResult
	req := service.StartRequest{ProjectName: startProject, UserNote: startNote, Force: startForce}
	if err := newControlClient(cfg).do(cmd.Context(), http.MethodPost, "/timer/start", req, &res); err != nil {
		return err
	}

	printResult("Timer started", res)
	return nil
}

func runStop(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	var res models.SessionResult
	if err := newControlClient(cfg).do(cmd.Context(), http.MethodPost, "/timer/stop", nil, &res); err != nil {
		return err
	}

	printResult("Timer stopped", res)
	fmt.Printf("  Duration:   %s\n", models.FormatSeconds(res.Duration))
	if res.Stats != nil && res.Stats.Daily != nil {
		printStats("Today", res.Stats.Daily)
	}
	return nil
}

func printResult(title string, res models.SessionResult) {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	if res.Success {
		green.Println(title)
	} else {
		yellow.Println(title + " with warnings")
	}
	if res.SessionID != "" {
		fmt.Printf("  Session ID: %s\n", res.SessionID)
	}
	if res.Message != "" {
		fmt.Printf("  %s\n", res.Message)
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	cyan.Print("Login:       ")
	if a.restore() {
		user, _ := a.auth.CurrentUser()
		green.Printf("signed in as %s (%s)\n", user.Email, user.EmployeeID)
	} else {
		red.Println("signed out")
	}

	fmt.Printf("Device:      %s (%s)\n", a.identity.Name, a.identity.ID)

	if schema, err := a.db.Version(); err == nil {
		fmt.Printf("Database:    %s (schema v%d)\n", cfg.StoragePath, schema)
	}
	if n, err := a.pending.PendingCount(); err == nil {
		fmt.Printf("Queued:      %d undelivered final update(s)\n", n)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
	defer cancel()

	cyan.Print("Timer:       ")
	var status models.TimerStatus
	if err := newControlClient(cfg).do(ctx, http.MethodGet, "/timer/status", nil, &status); err != nil {
		red.Println("agent not reachable")
		return nil
	}
	if !status.Running {
		fmt.Println("stopped")
		return nil
	}
	green.Printf("running %s on %s", models.FormatSeconds(status.Elapsed), status.ProjectName)
	if started, err := time.Parse(time.RFC3339, status.StartedAt); err == nil {
		fmt.Printf(" (started %s)", formatAge(time.Now(), started))
	}
	fmt.Println()
	if status.SessionID == "" {
		red.Println("             no remote session yet")
	}
	if !status.InputMonitoring {
		fmt.Println("             input monitoring unavailable")
	}
	return nil
}
