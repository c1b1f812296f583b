package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"staffcal/internal/config"
	"staffcal/internal/ics"
	appLog "staffcal/internal/log"
	"staffcal/internal/schedule"
	"staffcal/internal/web"
)

const version = "0.1.0"

var (
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "staffcal",
		Short: "Staff calendar board with side-by-side meeting lanes",
		Long: `staffcal pulls each staff member's ICS feed and serves a day/week board
where overlapping meetings share their column in side-by-side lanes.

Examples:
  staffcal serve --config /etc/staffcal/config.yaml
  staffcal layout --input meetings.json --timezone Asia/Kolkata
  staffcal board --date 2025-10-29 --days 7 --meetings meetings.yaml`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				appLog.SetLevel(appLog.LevelDebug)
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the feed refresher",
		RunE:  runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/staffcal/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and applies its log level unless
// --debug already forced one.
func loadConfig() (*config.Config, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyLogLevel(conf)
	return conf, nil
}

func applyLogLevel(conf *config.Config) {
	if debug {
		return
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
}

// feedSource builds the ICS-backed meeting source from the active staff
// that have a feed configured.
func feedSource(conf *config.Config) *ics.FeedSource {
	sources := make([]ics.Source, 0, len(conf.Staff))
	for _, s := range conf.Staff {
		if s.Inactive || s.ICSURL == "" {
			continue
		}
		sources = append(sources, ics.Source{ID: s.ID, URL: s.ICSURL})
	}
	return ics.NewFeedSource(ics.NewFetcher(conf.CacheDir), sources, conf.Location())
}

func runServe(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	appLog.Info("staffcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"show_all_day", conf.ShowAllDay,
		"staff_count", len(conf.Staff),
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := schedule.NewStore()
	refresher, err := schedule.NewRefresher(feedSource(conf), store, schedule.RefresherConfig{
		Spec:     conf.RefreshCron,
		Location: conf.Location(),
		Backfill: 1,
		Horizon:  conf.HorizonDays,
	})
	if err != nil {
		return fmt.Errorf("init refresher: %w", err)
	}

	// An empty first pull is not fatal; the board answers 503 until a
	// refresh succeeds.
	if _, err := refresher.Refresh(ctx); err != nil {
		appLog.Warn("initial refresh failed", "err", err.Error())
	}
	if err := refresher.Start(ctx); err != nil {
		return fmt.Errorf("start refresher: %w", err)
	}
	defer refresher.Stop()

	srv := web.NewServer(conf, store, refresher)

	go func() {
		err := config.Watch(ctx, configPath, func(next *config.Config) {
			applyLogLevel(next)
			refresher.SetSource(feedSource(next))
			srv.SetConfig(next)
			if next.RefreshCron != conf.RefreshCron || next.Timezone != conf.Timezone {
				appLog.Warn("refresh schedule and timezone changes apply after restart")
			}
			appLog.Info("config reloaded", "staff_count", len(next.Staff))
		})
		if err != nil {
			appLog.Error("config watcher stopped", err)
		}
	}()

	if err := web.StartServer(ctx, srv); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	appLog.Info("staffcal exiting")
	return nil
}
