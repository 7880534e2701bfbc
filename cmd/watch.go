package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/compresr/pool-watcher/internal/config"
	"github.com/compresr/pool-watcher/internal/monitoring"
	"github.com/compresr/pool-watcher/internal/notify"
	"github.com/compresr/pool-watcher/internal/server"
	"github.com/compresr/pool-watcher/internal/tail"
	"github.com/compresr/pool-watcher/internal/watcher"
)

// resolveConfig loads the config for a command.
// Checks: user flag -> filesystem locations -> environment only.
// Returns the config and a description of its source.
func resolveConfig(userConfig string) (*config.Config, string, error) {
	if userConfig != "" {
		cfg, err := config.Load(userConfig)
		if err != nil {
			return nil, "", err
		}
		return cfg, userConfig, nil
	}

	var searchPaths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "pool-watcher", "config.yaml"))
	}
	searchPaths = append(searchPaths, "configs/watcher.yaml", "/etc/pool-watcher/config.yaml")

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			cfg, err := config.Load(path)
			if err != nil {
				return nil, "", err
			}
			return cfg, path, nil
		}
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, "", err
	}
	return cfg, "(environment)", nil
}

// setupLogging installs the global logger from config; debug forces debug level.
func setupLogging(cfg *config.Config, debug bool) {
	lc := cfg.Monitoring.LoggerConfig()
	if debug {
		lc.Level = "debug"
	}
	monitoring.Global(lc)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigChan:
			log.Info().Msg("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// buildEngine wires the engine with its sink, metrics and journal.
func buildEngine(cfg *config.Config, wcfg watcher.Config) (*watcher.Engine, *monitoring.MetricsCollector, *monitoring.Journal, error) {
	var sink watcher.Sink
	if wcfg.NotificationEndpointConfigured {
		ws, err := notify.New(cfg.Notifier)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("notifier: %w", err)
		}
		sink = ws
	}

	journal, err := monitoring.NewJournal(cfg.Monitoring.JournalConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("alert journal: %w", err)
	}

	metrics := monitoring.NewMetricsCollector()
	engine, err := watcher.New(wcfg, sink,
		watcher.WithMetrics(metrics),
		watcher.WithJournal(journal),
		watcher.WithIdleBackoff(cfg.Source.IdlePollInterval, cfg.Source.MaxIdlePollInterval),
		watcher.WithStatusInterval(cfg.Monitoring.StatusInterval),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	return engine, metrics, journal, nil
}

// runWatch runs the daemon until a shutdown signal. Returns the exit code.
func runWatch(args []string) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	noBanner := fs.Bool("no-banner", false, "suppress startup banner")
	_ = fs.Parse(args) // ExitOnError handles errors

	if !*noBanner {
		printBanner()
	}

	cfg, source, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	setupLogging(cfg, *debug)

	wcfg := cfg.WatcherConfig()
	log.Info().
		Str("version", Version).
		Str("config", source).
		Str("log_file", cfg.Source.Path).
		Bool("webhook", wcfg.NotificationEndpointConfigured).
		Float64("error_threshold", wcfg.ErrorThresholdPercent).
		Int("window_size", wcfg.WindowSize).
		Dur("cooldown", wcfg.Cooldown).
		Bool("maintenance_mode", wcfg.MaintenanceMode).
		Msg("pool watcher starting")

	engine, metrics, journal, err := buildEngine(cfg, wcfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to start watcher")
		return 1
	}
	defer journal.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var status *server.Server
	if cfg.Server.Enabled {
		status = server.New(cfg.Server, engine, metrics.Handler())
		go func() {
			if err := status.Start(); err != nil {
				log.Error().Err(err).Msg("status server error")
			}
		}()
	}

	open := func(ctx context.Context) (watcher.Source, func() error, error) {
		f, err := tail.Open(ctx, cfg.Source)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
	if err := watcher.Supervise(ctx, engine, open, cfg.Supervisor.RestartDelay); err != nil {
		log.Error().Err(err).Msg("watcher error")
	}

	if status != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := status.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("status server shutdown error")
		}
	}

	log.Info().Msg("pool watcher stopped")
	return 0
}

// runReplay feeds an existing log through a fresh engine.
func runReplay(args []string) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	dryRun := fs.Bool("dry-run", false, "log alerts instead of sending them")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pool-watcher replay [--config FILE] [--dry-run] FILE|-")
		return 2
	}

	cfg, _, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	setupLogging(cfg, *debug)

	var in io.Reader = os.Stdin
	if name := fs.Arg(0); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			log.Error().Err(err).Msg("failed to open log")
			return 1
		}
		defer f.Close()
		in = f
	}

	wcfg := cfg.WatcherConfig()
	if *dryRun {
		wcfg.NotificationEndpointConfigured = false
	}
	engine, _, journal, err := buildEngine(cfg, wcfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to start watcher")
		return 1
	}
	defer journal.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := engine.Run(ctx, tail.NewReader(in)); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("replay failed")
		return 1
	}

	s := engine.Snapshot()
	log.Info().
		Int64("lines", s.LinesRead).
		Int64("records", s.Records).
		Int64("alerts_raised", s.AlertsRaised).
		Int64("alerts_suppressed", s.AlertsSuppressed).
		Int64("alerts_delivered", s.AlertsDelivered).
		Int64("alerts_failed", s.AlertsFailed).
		Str("final_pool", s.CurrentPool).
		Msg("replay complete")
	return 0
}

// runCheckConfig validates configuration and prints the effective values.
func runCheckConfig(args []string) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("check-config", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	example := fs.Bool("example", false, "print the example config and exit")
	_ = fs.Parse(args)

	if *example {
		data, err := getEmbeddedConfig("watcher")
		if err != nil {
			fmt.Fprintf(os.Stderr, "example config unavailable: %v\n", err)
			return 1
		}
		os.Stdout.Write(data)
		return 0
	}

	cfg, source, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		return 1
	}

	// Never echo the webhook secret.
	shown := *cfg
	if shown.Notifier.WebhookURL != "" {
		shown.Notifier.WebhookURL = "(set)"
	}
	out, err := yaml.Marshal(&shown)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to render configuration: %v\n", err)
		return 1
	}
	fmt.Printf("# source: %s\n%s", source, out)
	return 0
}
