package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/7-Dany/Stress-Strain/config"
	"github.com/7-Dany/Stress-Strain/transport"
)

// Commands
const (
	cmdIngest   = "ingest"
	cmdSimulate = "simulate"
	cmdDemo     = "demo"
	cmdAnalyze  = "analyze"
	cmdPorts    = "ports"
)

var commands = []string{cmdIngest, cmdSimulate, cmdDemo, cmdAnalyze, cmdPorts}

// CLIConfig holds command-line configuration. Empty strings leave the
// loaded configuration untouched.
type CLIConfig struct {
	Command         string
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	Preset          string
	Transport       string
	Fast            bool
	Ramp            int
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags(args []string, output io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("TENSILE_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: TENSILE_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("TENSILE_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: TENSILE_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (env: TENSILE_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text (env: TENSILE_LOG_FORMAT)")
	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("TENSILE_DEBUG", false),
		"Enable debug logging (env: TENSILE_DEBUG)")

	fs.StringVar(&cfg.Preset, "preset", "",
		"Calibration preset: production, bench (env: TENSILE_CALIBRATION_PRESET)")
	fs.StringVar(&cfg.Transport, "transport", "",
		"Transport: serial, udp, nats, websocket, loopback (env: TENSILE_TRANSPORT)")
	fs.BoolVar(&cfg.Fast, "fast", false, "Stream simulated records without pacing")
	fs.IntVar(&cfg.Ramp, "ramp", 0, "Simulate a code ramp of this length instead of a curve")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("TENSILE_SHUTDOWN_TIMEOUT", 5*time.Second),
		"Graceful shutdown timeout (env: TENSILE_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(output, fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Command = fs.Arg(0)

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, validateFlags(cfg)
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if !cfg.Validate && !contains(commands, cfg.Command) {
		return fmt.Errorf("unknown command %q, want one of %v", cfg.Command, commands)
	}
	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.Transport != "" && !transport.Kind(cfg.Transport).Valid() {
		return fmt.Errorf("invalid transport: %s", cfg.Transport)
	}
	if cfg.Ramp < 0 {
		return fmt.Errorf("invalid ramp length: %d", cfg.Ramp)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v", cfg.ShutdownTimeout)
	}
	return nil
}

// apply copies explicit flags over the loaded configuration
func (c *CLIConfig) apply(cfg *config.Config) {
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Log.Format = c.LogFormat
	}
	if c.Preset != "" {
		cfg.Calibration.Preset = c.Preset
	}
	if c.Transport != "" {
		cfg.Transport.Kind = transport.Kind(c.Transport)
	}
	if c.Ramp > 0 {
		cfg.Simulation.Ramp = c.Ramp
	}
}

// pace returns the simulator pace override, zero keeps the configured one
func (c *CLIConfig) pace() time.Duration {
	if c.Fast {
		return -1
	}
	return 0
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - tensile test acquisition and analysis

Usage: %s [options] <command>

Commands:
  ingest     read records from the transport and report properties on EOF or Ctrl-C
  simulate   stream a synthesized curve to the transport
  demo       simulate and ingest in one process over a loopback pipe
  analyze    synthesize a curve and print its properties
  ports      list serial ports

Options:
`, appName, appName)
	if fs != nil {
		fs.PrintDefaults()
	}
	_, _ = fmt.Fprintf(w, `
Examples:
  # Acquire from the rig on a serial port
  %s -transport=serial ingest

  # Replay the bench rig into a NATS subject without pacing
  TENSILE_NATS_URLS=nats://localhost:4222 %s -transport=nats -preset=bench -fast simulate

  # Validate a configuration file
  %s -config=rig.yaml -validate

Version: %s
Build: %s
`, appName, appName, appName, Version, BuildTime)
}

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

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
