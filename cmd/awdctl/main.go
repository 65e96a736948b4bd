// Package main provides the awdctl binary entry point.
// Awdctl is a closed-loop controller for alternate wetting and drying
// (AWD) paddy irrigation: it evaluates fields on a schedule, drives the
// SCADA gates, and serves the control HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/config"
	"github.com/paddyops/awd/events"
	controlapi "github.com/paddyops/awd/processor/control-api"
	"github.com/paddyops/awd/processor/controller"
	gatemonitor "github.com/paddyops/awd/processor/gate-monitor"
	"github.com/paddyops/awd/processor/stack"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "awdctl"
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

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		httpAddr   string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "awdctl",
		Short: "AWD irrigation controller",
		Long: `Awdctl runs the alternate wetting and drying control loop for
paddy fields.

It provides:
- Scheduled decision evaluation for every active field
- Irrigation runs driven through SCADA-controlled gates
- Gate acknowledgement monitoring
- An HTTP API for field setup, decisions, and status

Events flow over NATS JetStream; state lives in PostgreSQL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, httpAddr, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, httpAddr, logLevel string) error {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	natsClient, err := connectToNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	if err := ensureStreams(ctx, natsClient, logger); err != nil {
		return err
	}

	st, err := stack.Build(cfg, natsClient, awd.SystemClock(), logger)
	if err != nil {
		return fmt.Errorf("build control stack: %w", err)
	}
	defer st.Close()

	slog.Info("Awdctl ready", "version", Version, "nats_url", cfg.NATS.URL)

	// One stack, three components. The controller owns the decision loop,
	// the gate monitor confirms actuator commands, and the API serves
	// operators.
	ctlCfg := controller.DefaultConfig()
	ctlCfg.DecisionInterval = cfg.Controller.DecisionInterval
	ctl, err := controller.New(ctlCfg, st, natsClient, logger)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	monCfg := gatemonitor.DefaultConfig()
	monCfg.ScanInterval = cfg.Controller.GateMonitorInterval
	monCfg.CommandWindow = cfg.Controller.GateCommandWindow
	mon, err := gatemonitor.New(monCfg, st, logger)
	if err != nil {
		return fmt.Errorf("create gate-monitor: %w", err)
	}

	api, err := controlapi.New(controlapi.DefaultConfig(), st, logger)
	if err != nil {
		return fmt.Errorf("create control-api: %w", err)
	}

	components := []managedComponent{
		{"controller", ctl},
		{"gate-monitor", mon},
		{"control-api", api},
	}

	for _, entry := range components {
		if err := entry.c.Initialize(); err != nil {
			return fmt.Errorf("initialize %s: %w", entry.name, err)
		}
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	started := 0
	for _, entry := range components {
		if err := entry.c.Start(signalCtx); err != nil {
			stopComponents(components[:started])
			return fmt.Errorf("start %s: %w", entry.name, err)
		}
		started++
		slog.Info("Component started", "name", entry.name)
	}

	httpServer := startHTTPServer(httpAddr, api, logger)

	// Reload runtime limits on config file changes. Structural settings
	// (DSN, NATS URL) need a restart.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, st.Publisher, func(next *config.Config) {
			slog.Info("Runtime configuration reloaded",
				"decision_interval", next.Controller.DecisionInterval,
				"gate_monitor_interval", next.Controller.GateMonitorInterval)
		}, logger)
		if err != nil {
			slog.Warn("Config watcher unavailable", "error", err)
		} else {
			go watcher.Run(signalCtx)
		}
	}

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}

	// Stop in reverse start order. The controller's Stop drains the
	// runner, closing gates on active runs.
	stopComponents(components)

	slog.Info("Awdctl shutdown complete")
	return nil
}

// managedComponent pairs a component with the name used in logs.
type managedComponent struct {
	name string
	c    lifecycle
}

// lifecycle is the slice of the component contract the binary drives.
type lifecycle interface {
	Initialize() error
	Start(context.Context) error
	Stop(time.Duration) error
}

func stopComponents(components []managedComponent) {
	for i := len(components) - 1; i >= 0; i-- {
		entry := components[i]
		if err := entry.c.Stop(30 * time.Second); err != nil {
			slog.Error("Component stop failed", "name", entry.name, "error", err)
		}
	}
}

func startHTTPServer(addr string, api *controlapi.Component, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	api.RegisterHTTPHandlers("api/awd", mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()
	return server
}

func connectToNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsURL := cfg.NATS.URL
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		natsURL = envURL
	}

	logger.Info("Connecting to NATS", "url", natsURL)

	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	logger.Info("Connected to NATS", "url", natsURL)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL environment variable to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

func ensureStreams(ctx context.Context, natsClient *natsclient.Client, logger *slog.Logger) error {
	js, err := natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}

	streams := []jetstream.StreamConfig{
		{
			Name: events.StreamAWD,
			Subjects: []string{
				events.SubjectControlCommands + ".>",
				events.SubjectIrrigation + ".>",
				events.SubjectAlerts + ".>",
			},
			MaxAge:   7 * 24 * time.Hour,
			Storage:  jetstream.FileStorage,
			Replicas: 1,
		},
		{
			Name: events.StreamGate,
			Subjects: []string{
				events.SubjectGateCommands + ".>",
				events.SubjectGateStatus + ".>",
			},
			MaxAge:   7 * 24 * time.Hour,
			Storage:  jetstream.FileStorage,
			Replicas: 1,
		},
	}

	for _, sc := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("ensure stream %s: %w", sc.Name, err)
		}
		logger.Debug("JetStream stream ready", "stream", sc.Name)
	}
	return nil
}
