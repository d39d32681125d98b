package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"remoteintegrity/ri-tracker/internal/models"
	"remoteintegrity/ri-tracker/internal/service"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"entries"},
	Short:   "Show recent timer runs recorded on this machine",
	RunE:    runHistory,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show daily and weekly totals from the tracking service",
	RunE:  runStats,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of entries to show")
	rootCmd.AddCommand(historyCmd, statsCmd)
}

func runHistory(_ *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.history.Recent(historyLimit)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println("Recent time entries")
	if len(entries) == 0 {
		fmt.Println("  (none)")
		return nil
	}

	var total int64
	for _, e := range entries {
		fmt.Printf("  %s  %-24s %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			e.ProjectName,
			models.FormatSeconds(e.Duration),
		)
		total += e.Duration
	}
	fmt.Println()
	cyan.Print("Total: ")
	fmt.Println(models.FormatSeconds(total))
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if !a.restore() {
		return service.ErrNotAuthenticated
	}
	employeeID, err := a.auth.EmployeeID()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.BackendTimeout())
	defer cancel()

	tz := service.LocalTimezone()
	var daily, weekly models.Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		daily, err = a.client.GetDailyStats(gctx, employeeID, tz)
		return err
	})
	g.Go(func() error {
		var err error
		weekly, err = a.client.GetWeeklyStats(gctx, employeeID, tz)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to fetch stats: %w", err)
	}

	printStats("Today", daily)
	printStats("This week", weekly)
	return nil
}

// printStats prints the stats document as sorted key/value lines.
// Durations reported in seconds are rendered as H:MM:SS.
func printStats(title string, stats models.Stats) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println(title)

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-20s %s\n", k, formatStat(k, stats[k]))
	}
	fmt.Println()
}

func formatStat(key string, v any) string {
	n, ok := v.(float64)
	if !ok {
		return fmt.Sprint(v)
	}
	switch key {
	case "totalTime", "activeTime", "idleTime":
		return models.FormatSeconds(int64(n))
	}
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%.2f", n)
}

// formatAge renders how long ago t was, for status output.
func formatAge(now, t time.Time) string {
	d := now.Sub(t).Round(time.Second)
	if d < time.Minute {
		return d.String() + " ago"
	}
	return d.Round(time.Minute).String() + " ago"
}
