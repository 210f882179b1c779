// Package main is the entry point for llm-alerts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/compresr/llm-alerts/internal/config"
	"github.com/compresr/llm-alerts/internal/ingest"
	"github.com/compresr/llm-alerts/internal/lifecycle"
	"github.com/compresr/llm-alerts/internal/monitoring"
)

// Version is set at build time via ldflags.
var Version = "v0.1.0"

const shutdownTimeout = 30 * time.Second

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	configEnv := filepath.Join(homeDir, ".config", "llm-alerts", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Local .env does not override values already set
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve", "start":
		os.Exit(runServe(os.Args[2:]))
	case "check-config":
		os.Exit(runCheckConfig(os.Args[2:]))
	case "version", "-v", "--version":
		fmt.Println("llm-alerts", Version)
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printHelp()
		os.Exit(2)
	}
}

// loadConfig reads the YAML file when given, otherwise the environment.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	cfg, err := config.FromEnv()
	return cfg, "environment", err
}

// runServe starts the event ingest server.
func runServe(args []string) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file (default: environment)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, source, err := loadConfig(*configPath)
	if err != nil {
		setupLogging(config.MonitoringConfig{}, *debug)
		log.Error().Err(err).Str("config", source).Msg("failed to load configuration")
		return 1
	}

	logger := setupLogging(cfg.Monitoring, *debug)
	metrics := monitoring.NewMetricsCollector()

	handler := lifecycle.New(cfg.Alerts, logger, metrics)
	defer handler.Close()

	srv := ingest.New(cfg.Server, handler, logger, metrics)

	logger.Info().
		Str("version", Version).
		Str("config", source).
		Str("notify_mode", string(cfg.Alerts.NotifyMode)).
		Float64("latency_seconds", cfg.Alerts.LatencySeconds).
		Int("token_threshold", cfg.Alerts.TokenThreshold).
		Dur("run_ttl", cfg.Alerts.RunTTL).
		Msg("llm-alerts starting")

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("server error")
		return 1
	}

	logger.Info().Int("pending_runs", handler.Pending()).Msg("llm-alerts stopped")
	return 0
}

// runCheckConfig validates the configuration and prints the alert settings.
func runCheckConfig(args []string) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("check-config", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file (default: environment)")
	_ = fs.Parse(args)

	cfg, source, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration from %s is invalid: %v\n", source, err)
		return 1
	}

	out, err := yaml.Marshal(cfg.Alerts.Redacted())
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode configuration: %v\n", err)
		return 1
	}

	fmt.Printf("configuration from %s is valid\n%s", source, out)
	if !cfg.Alerts.NotifyMode.Known() {
		fmt.Printf("warning: notify mode %q is not one of log, webhook, smtp; alerts will only be logged\n", cfg.Alerts.NotifyMode)
	}
	return 0
}

// setupLogging configures zerolog and returns the application logger.
// Console output is used on a terminal unless a format is configured.
func setupLogging(cfg config.MonitoringConfig, debug bool) *monitoring.Logger {
	lc := monitoring.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	}
	if lc.Format == "" {
		lc.Format = "json"
		if term.IsTerminal(int(os.Stdout.Fd())) {
			lc.Format = "console"
		}
	}
	if debug {
		lc.Level = zerolog.LevelDebugValue
	}

	logger := monitoring.New(lc)
	monitoring.Global(logger)
	return logger
}

// printHelp prints usage information
func printHelp() {
	fmt.Println("llm-alerts - latency, token and error alerts for LLM invocations")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  llm-alerts <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve          Start the event ingest server")
	fmt.Println("  check-config   Validate configuration and print alert settings")
	fmt.Println("  version        Print version information")
	fmt.Println("  help           Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config FILE  YAML config (default: ALERT_* and SMTP_* environment variables)")
	fmt.Println("  --debug        Enable debug logging (serve)")
}
