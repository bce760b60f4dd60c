// Package main implements the tensile command: it streams, ingests and
// analyzes tensile test data from a hydraulic rig or its simulator.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/7-Dany/Stress-Strain/config"
	"github.com/7-Dany/Stress-Strain/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "tensile"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cliCfg, err := parseFlags(args, stderr)
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(stderr, nil)
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := newApp(cfg, logger, stdout)
	a.pace = cliCfg.pace()

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.registry)
		if err := server.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		logger.Info("Metrics server started", "address", server.Address())
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
			defer stopCancel()
			if err := server.Stop(stopCtx); err != nil {
				logger.Warn("Metrics server stop failed", "error", err)
			}
		}()
	}

	logger.Debug("Running command",
		"command", cliCfg.Command,
		"version", Version,
		"build_time", BuildTime,
		"config", cfg.String())

	switch cliCfg.Command {
	case cmdIngest:
		return a.ingest(ctx)
	case cmdSimulate:
		return a.simulate(ctx)
	case cmdDemo:
		return a.demo(ctx)
	case cmdAnalyze:
		return a.analyze()
	case cmdPorts:
		return a.ports()
	default:
		return fmt.Errorf("unknown command %q", cliCfg.Command)
	}
}

// loadConfig layers the optional config file, environment and flag overrides
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(false)
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cliCfg.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// drainTimeout bounds how long the consumer may take to drain once the
// producer has finished
var drainTimeout = 30 * time.Second
