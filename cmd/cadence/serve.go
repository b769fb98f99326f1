package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/cadence/config"
	"github.com/jpalmerr/cadence/internal/logging"
	"github.com/jpalmerr/cadence/internal/monitor"
)

const shutdownTimeout = 10 * time.Second

var serveViper = newViper()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll targets and serve the API",
	Long: `Load the configuration, poll every configured target and serve the
JSON API, the SSE stream and /metrics on the configured port.

Flags and CADENCE_* environment variables override the file:
  --port        CADENCE_PORT
  --log-level   CADENCE_LOG_LEVEL
  --log-format  CADENCE_LOG_FORMAT

The server runs until interrupted (Ctrl+C) or it receives SIGTERM.

Example:
  cadence serve -c cadence.yaml
  CADENCE_LOG_LEVEL=debug cadence serve -c cadence.yaml --port 9090`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(serveViper, cmd.Flags())
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file")
	serveCmd.Flags().Int("port", 0, "HTTP port, overrides the config file")
	serveCmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	serveCmd.Flags().String("log-format", "", "log format (json, text)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(serveViper)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	targets, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("failed to build targets: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := monitor.New(
		monitor.WithTitle(cfg.Title),
		monitor.WithTargets(targets...),
		monitor.WithPort(cfg.Port),
		monitor.WithPollingInterval(cfg.PollInterval.Duration()),
		monitor.WithHistorySize(cfg.HistorySize),
		monitor.WithStreamThrottle(cfg.StreamThrottle.Duration()),
		monitor.WithSummaryDelay(cfg.SummaryDebounce.Duration()),
		monitor.WithRegistry(registry),
		monitor.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	logger.Info().
		Int("targets", len(targets)).
		Int("port", cfg.Port).
		Dur("poll_interval", cfg.PollInterval.Duration()).
		Msg("config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- m.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		case <-time.After(shutdownTimeout):
			logger.Warn().Dur("timeout", shutdownTimeout).Msg("shutdown timed out, forcing exit")
			return nil
		}
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
