// Package main implements the entry point for the streamrelay service.
// streamrelay collects the latest value of each configured bus channel and
// fans it out to WebSocket consumers as periodic, de-duplicated batches.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/streamrelay/bus"
	"github.com/c360/streamrelay/collector"
	"github.com/c360/streamrelay/component"
	"github.com/c360/streamrelay/config"
	"github.com/c360/streamrelay/errors"
	"github.com/c360/streamrelay/health"
	"github.com/c360/streamrelay/metric"
	"github.com/c360/streamrelay/natsclient"
	"github.com/c360/streamrelay/output/websocket"
	"github.com/c360/streamrelay/snapshot"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "streamrelay"
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
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI(os.Args[1:])
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		fmt.Print(cfg.String())
		logger.Info("Configuration is valid")
		return nil
	}

	catalog, err := loadCatalog(cfg.Bus.CatalogPath)
	if err != nil {
		return err
	}

	metricsRegistry := metric.NewMetricsRegistry()
	metricsRegistry.CoreMetrics().RecordBuildInfo(Version)

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	natsClient, err := connectToBus(signalCtx, cfg.Bus.URL, metricsRegistry, logger)
	if err != nil {
		return err
	}
	defer closeBus(natsClient, cliCfg.ShutdownTimeout)

	components, monitor, err := buildComponents(cfg, catalog, natsClient, metricsRegistry, logger)
	if err != nil {
		return err
	}
	monitor.AddCheck("bus", busCheck(natsClient))

	return runWithSignalHandling(signalCtx, cliCfg.ShutdownTimeout, logger, components...)
}

// initializeCLI parses flags and sets up logging
func initializeCLI(args []string) (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg, flagSet, err := parseFlags(args)
	if err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp(os.Stderr, flagSet)
		return nil, nil, true, nil
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting streamrelay",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// loadConfig layers the optional config file over the defaults and applies
// environment overrides
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func loadCatalog(path string) (*bus.Catalog, error) {
	if path == "" {
		return bus.DefaultCatalog(), nil
	}
	catalog, err := bus.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return catalog, nil
}

// connectToBus connects with backoff on transient failures and waits for the
// connection to be ready. Later disconnects are handled by reconnects.
func connectToBus(
	ctx context.Context,
	url string,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	core := metricsRegistry.CoreMetrics()

	natsClient, err := natsclient.NewClient(url,
		natsclient.WithName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithHealthChangeCallback(core.RecordBusStatus),
		natsclient.WithRTTCallback(core.RecordBusRTT),
		natsclient.WithReconnectCallback(func() {
			core.RecordBusReconnect()
			logger.Info("Bus connection restored")
		}),
		natsclient.WithDisconnectCallback(func(err error) {
			core.RecordBusStatus(false)
			logger.Warn("Bus connection lost", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create bus client: %w", err)
	}

	logger.Info("Connecting to bus", "url", url)
	retryConfig := errors.DefaultRetryConfig()
	retryConfig.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Bus connect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}
	err = errors.Retry(ctx, retryConfig, func() error {
		return natsClient.Connect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to bus: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("bus connection timeout: %w", err)
	}
	core.RecordBusStatus(true)

	return natsClient, nil
}

func closeBus(natsClient *natsclient.Client, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := natsClient.Close(ctx); err != nil {
		slog.Warn("Bus close failed", "error", err)
	}
}

// buildComponents wires the snapshot cache, the collector and the relay. The
// returned components are in start order.
func buildComponents(
	cfg *config.Config,
	catalog *bus.Catalog,
	natsClient *natsclient.Client,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) ([]component.LifecycleComponent, *health.Monitor, error) {
	cache, err := snapshot.New(snapshot.WithMetrics(metricsRegistry))
	if err != nil {
		return nil, nil, fmt.Errorf("create snapshot cache: %w", err)
	}

	coll, err := collector.New(collector.Deps{
		Config: collector.Config{
			Channels:    cfg.Channels,
			PollTimeout: cfg.Bus.PollTimeout,
		},
		Bus:             bus.NewNATSBus(natsClient, cfg.Bus.SubjectPrefix, logger),
		Catalog:         catalog,
		Cache:           cache,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create collector: %w", err)
	}

	monitor := health.NewMonitor(appName)
	monitor.AddComponent("collector", coll)

	relay, err := websocket.NewOutput(websocket.Deps{
		Config: websocket.Config{
			Host:         cfg.Listen.Host,
			Port:         cfg.Listen.Port,
			Path:         cfg.Listen.Path,
			SendInterval: cfg.Relay.SendInterval,
			WriteTimeout: cfg.Relay.WriteTimeout,
			ReadTimeout:  cfg.Relay.ReadTimeout,
			PingInterval: cfg.Relay.PingInterval,
			Topics:       cfg.Channels,
		},
		Cache:           cache,
		Catalog:         catalog,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
		Routes: map[string]http.Handler{
			config.MetricsPath: metricsRegistry.Handler(),
			config.HealthPath:  monitor.Handler(),
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create relay: %w", err)
	}
	monitor.AddComponent("relay", relay)

	return []component.LifecycleComponent{coll, relay}, monitor, nil
}

// busCheck reports reconnecting as degraded: the relay keeps serving the
// last known values meanwhile
func busCheck(natsClient *natsclient.Client) health.Check {
	return func() health.Status {
		status := natsClient.GetStatus()
		switch status.Status {
		case natsclient.StatusConnected:
			return health.NewHealthy("bus", fmt.Sprintf("Connected, rtt %v", status.RTT))
		case natsclient.StatusReconnecting, natsclient.StatusConnecting:
			return health.NewDegraded("bus", "Bus connection "+status.Status.String())
		default:
			return health.NewUnhealthy("bus", "Bus connection "+status.Status.String())
		}
	}
}

// runWithSignalHandling starts the components and stops them in reverse order
// once ctx is cancelled by a signal
func runWithSignalHandling(
	ctx context.Context,
	shutdownTimeout time.Duration,
	logger *slog.Logger,
	components ...component.LifecycleComponent,
) error {
	if err := component.StartAll(ctx, shutdownTimeout, components...); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	logger.Info("streamrelay started", "components", len(components))

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	if err := component.StopAll(shutdownTimeout, components...); err != nil {
		logger.Error("Error stopping components", "error", err)
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("streamrelay shutdown complete")
	return nil
}
