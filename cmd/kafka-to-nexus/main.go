// Package main implements the entry point for kafka-to-nexus, a streaming
// ingest engine that demultiplexes messaging-topic traffic by source and
// writes each write job to its own hierarchical data file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/umithardal/kafka-to-nexus/config"
	"github.com/umithardal/kafka-to-nexus/master"
	"github.com/umithardal/kafka-to-nexus/metric"
	"github.com/umithardal/kafka-to-nexus/natsbroker"
	"github.com/umithardal/kafka-to-nexus/natsclient"

	_ "github.com/umithardal/kafka-to-nexus/writermodule/ep00"
	_ "github.com/umithardal/kafka-to-nexus/writermodule/ev42"
	_ "github.com/umithardal/kafka-to-nexus/writermodule/f142"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "kafka-to-nexus"
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

	if err := run(); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		logger.Info("configuration is valid")
		return nil
	}

	ctx := context.Background()

	natsClient, metricsRegistry, err := createCoreDependencies(cfg)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	if err := connectToNATS(ctx, natsClient, logger); err != nil {
		return err
	}

	metricsServer := metric.NewServer(cfg.MetricsPort, "/metrics", metricsRegistry)
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	defer func() { _ = metricsServer.Stop() }()

	m := master.New(master.Config{
		ServiceID:       cfg.ServiceID,
		StatusTopic:     cfg.StatusTopic,
		StatusCadence:   cfg.StatusCadence,
		OutputDir:       cfg.OutputDir,
		QueueCapacity:   cfg.QueueCapacity,
		AfterStopGrace:  cfg.AfterStopGrace,
		FinalizeTimeout: cfg.FinalizeTimeout,
	}, natsbroker.New(natsClient), natsClient, metricsRegistry, logger)

	if err := subscribeCommands(ctx, natsClient, cfg.CommandTopic, m, logger); err != nil {
		return err
	}

	return runWithSignalHandling(ctx, m, cliCfg.ShutdownTimeout, logger)
}

func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}
	if cliCfg.ShowHelp {
		printHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting kafka-to-nexus", "version", Version, "build_time", BuildTime, "config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func createCoreDependencies(cfg *config.Config) (*natsclient.Client, *metric.MetricsRegistry, error) {
	url := "nats://localhost:4222"
	if len(cfg.BrokerURLs) > 0 {
		url = cfg.BrokerURLs[0]
	}

	natsClient, err := natsclient.NewClient(url)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	return natsClient, metric.NewMetricsRegistry(), nil
}

func connectToNATS(ctx context.Context, natsClient *natsclient.Client, logger *slog.Logger) error {
	logger.Info("connecting to NATS")
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}
	return nil
}

// subscribeCommands wires the command topic to Master.HandleCommand. Decode
// and dispatch failures are logged, never fatal to the subscription itself.
func subscribeCommands(ctx context.Context, natsClient *natsclient.Client, topic string, m *master.Master, logger *slog.Logger) error {
	handler := func(ctx context.Context, data []byte) {
		if err := m.HandleCommand(ctx, json.RawMessage(data)); err != nil {
			logger.Error("command handling failed", "error", err)
		}
	}
	if err := natsClient.Subscribe(ctx, topic, handler); err != nil {
		return fmt.Errorf("subscribe to command topic %s: %w", topic, err)
	}
	logger.Info("subscribed to command topic", "topic", topic)
	return nil
}

// runWithSignalHandling runs Master until SIGINT/SIGTERM or a FileWriter_exit
// command, then tears down every remaining job before returning.
func runWithSignalHandling(ctx context.Context, m *master.Master, shutdownTimeout time.Duration, logger *slog.Logger) error {
	signalCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("kafka-to-nexus started")
	runErr := m.Run(signalCtx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := m.HandleCommand(shutdownCtx, json.RawMessage(`{"cmd": "file_writer_tasks_clear_all"}`)); err != nil {
		logger.Warn("shutdown teardown reported an error", "error", err)
	}

	logger.Info("kafka-to-nexus shutdown complete")
	return runErr
}
