package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"codeberg.org/fancurved/fancurved/internal/config"
	"codeberg.org/fancurved/fancurved/internal/control"
	"codeberg.org/fancurved/fancurved/internal/errors"
	"codeberg.org/fancurved/fancurved/internal/logger"
	"codeberg.org/fancurved/fancurved/internal/pid"
	"codeberg.org/fancurved/fancurved/internal/status"
	"codeberg.org/fancurved/fancurved/internal/telemetry"
)

func main() {
	flags := pflag.NewFlagSet("fancurved", pflag.ExitOnError)
	configDir := flags.String("config-dir", "", "directory containing "+config.ConfigFileName)
	flags.String("log-level", "", "log level (debug, info, warning, error)")
	flags.Bool("monitor", false, "compute fan speeds without applying them")
	flags.Int("interval", 0, "seconds between control cycles")
	flags.Parse(os.Args[1:])

	dir, err := config.ResolveDir(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	publisher := status.NewFilePublisher(filepath.Join(dir, status.FileName))

	cfg, err := config.Load(dir, flags)
	if err != nil {
		// Publish the error snapshot for observers, then remove it so a
		// missing status file stays an unambiguous stopped signal.
		logger.Init(config.DefaultLogLevel, logger.IsService())
		logFailure(err, "Failed to load configuration")
		if publishErr := publisher.Publish(status.ErrorSnapshot(err.Error())); publishErr != nil {
			logger.Error().Err(publishErr).Msg("Failed to publish error status")
		}
		if clearErr := publisher.Clear(); clearErr != nil {
			logger.Warn().Err(clearErr).Msg("Failed to remove status file")
		}
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())

	if err := pid.Write(); err != nil {
		// The status file may belong to the running instance, leave it alone
		logFailure(err, "Failed to write PID file")
		os.Exit(1)
	}

	collector, err := telemetry.NewService(telemetry.Config{
		Enabled: cfg.Telemetry,
		DBPath:  cfg.TelemetryDB,
	})
	if err != nil {
		logFailure(err, "Failed to initialize telemetry")
		removePIDFile()
		os.Exit(1)
	}

	controller := control.New(cfg, publisher, control.WithCollector(collector))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleSignals(cancel)

	runErr := controller.Run(ctx)

	cleanup(publisher, collector)

	if runErr != nil {
		logFailure(runErr, "Error in main loop")
		os.Exit(1)
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup(publisher *status.FilePublisher, collector telemetry.Collector) {
	if err := publisher.Clear(); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove status file")
	}

	if err := collector.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close telemetry")
	}

	removePIDFile()

	logger.Info().Msg("Shutdown complete")
}

func removePIDFile() {
	if err := pid.Remove(); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove PID file")
	}
}

func logFailure(err error, message string) {
	var coded errors.Error
	if errors.As(err, &coded) {
		logger.ErrorWithCode(coded).Msg(message)
		return
	}

	logger.Error().Err(err).Msg(message)
}
