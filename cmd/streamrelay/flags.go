package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func newFlagSet(cfg *CLIConfig) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(appName, pflag.ContinueOnError)

	// Flags fall back to environment variables
	flagSet.StringVarP(&cfg.ConfigPath, "config", "c",
		getEnv("STREAMRELAY_CONFIG", ""),
		"Path to a YAML or JSON configuration file, empty for defaults (env: STREAMRELAY_CONFIG)")

	flagSet.StringVar(&cfg.LogLevel, "log-level",
		getEnv("STREAMRELAY_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: STREAMRELAY_LOG_LEVEL)")

	flagSet.StringVar(&cfg.LogFormat, "log-format",
		getEnv("STREAMRELAY_LOG_FORMAT", "json"),
		"Log format: json, text (env: STREAMRELAY_LOG_FORMAT)")

	flagSet.BoolVar(&cfg.Debug, "debug",
		getEnvBool("STREAMRELAY_DEBUG", false),
		"Enable debug logging (env: STREAMRELAY_DEBUG)")

	flagSet.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("STREAMRELAY_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: STREAMRELAY_SHUTDOWN_TIMEOUT)")

	flagSet.BoolVarP(&cfg.ShowVersion, "version", "v", false, "Show version information")
	flagSet.BoolVarP(&cfg.ShowHelp, "help", "h", false, "Show help information")
	flagSet.BoolVar(&cfg.Validate, "validate", false, "Validate configuration, print it and exit")

	return flagSet
}

func parseFlags(args []string) (*CLIConfig, *pflag.FlagSet, error) {
	cfg := &CLIConfig{}
	flagSet := newFlagSet(cfg)
	flagSet.Usage = func() {}
	flagSet.SetOutput(io.Discard)

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			cfg.ShowHelp = true
			return cfg, flagSet, nil
		}
		return nil, nil, err
	}

	if args := flagSet.Args(); len(args) > 0 {
		return nil, nil, fmt.Errorf("unexpected argument: %s", args[0])
	}

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, flagSet, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(w io.Writer, flagSet *pflag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - real-time fan-out relay from the message bus to WebSocket consumers

Usage: %s [options]

Options:
`, appName, appName)
	_, _ = fmt.Fprint(w, flagSet.FlagUsages())
	_, _ = fmt.Fprintf(w, `
Environment:
  DEVICE_ADDR                  Bus host, host:port or URL
  WS_HOST, WS_PORT             Consumer listener address
  STREAMRELAY_BUS_URL          Bus URL, wins over DEVICE_ADDR
  STREAMRELAY_CHANNELS         Comma separated channel list

Examples:
  # Run with built-in defaults against a local bus
  %s

  # Run with a config file and text logs
  %s --config=/etc/streamrelay/relay.yaml --log-format=text

  # Point at a device on the network
  DEVICE_ADDR=192.168.1.20 %s

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, appName, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
