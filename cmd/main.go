// Package main is the entry point for the pool watcher.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"golang.org/x/term"
)

// ANSI color codes
const (
	watcherBlue = "\033[38;2;41;121;255m"
	bold        = "\033[1m"
	reset       = "\033[0m"
)

// ASCII banner for startup
const banner = `
 ┌─┐┌─┐┌─┐┬    ┬ ┬┌─┐┌┬┐┌─┐┬ ┬┌─┐┬─┐
 ├─┘│ ││ ││    │││├─┤ │ │  ├─┤├┤ ├┬┘
 ┴  └─┘└─┘┴─┘  └┴┘┴ ┴ ┴ └─┘┴ ┴└─┘┴└─
  blue/green failover & error-rate alerts
`

func printBanner() {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print(watcherBlue + bold + banner + reset + "\n")
		return
	}
	fmt.Print(banner + "\n")
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/pool-watcher/.env first
	configEnv := filepath.Join(homeDir, ".config", "pool-watcher", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (godotenv never overrides variables already set)
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "watch":
			os.Exit(runWatch(os.Args[2:]))
		case "replay":
			os.Exit(runReplay(os.Args[2:]))
		case "check-config":
			os.Exit(runCheckConfig(os.Args[2:]))
		case "version", "-v", "--version":
			PrintVersion()
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}

	// Default: run the daemon
	os.Exit(runWatch(os.Args[1:]))
}

// printHelp prints usage information
func printHelp() {
	printBanner()
	fmt.Println("pool-watcher - blue/green access log watcher")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pool-watcher [watch] [options]")
	fmt.Println("  pool-watcher [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  watch          Follow the access log and send alerts (default)")
	fmt.Println("  replay FILE    Run an existing log (or - for stdin) through the detectors")
	fmt.Println("  check-config   Validate configuration and print the effective values")
	fmt.Println("  version        Print version information")
	fmt.Println("  help           Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config FILE  YAML config (default: search, then environment only)")
	fmt.Println("  --debug        Enable debug logging")
	fmt.Println("  --no-banner    Suppress startup banner (watch)")
	fmt.Println("  --dry-run      Log alerts instead of sending them (replay)")
	fmt.Println("  --example      Print the example config (check-config)")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  SLACK_WEBHOOK_URL, ERROR_RATE_THRESHOLD, WINDOW_SIZE, ALERT_COOLDOWN_SEC,")
	fmt.Println("  MAINTENANCE_MODE, ACCESS_LOG_PATH, LOG_LEVEL, STATUS_ADDR")
}
