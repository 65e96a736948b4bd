// Package gatemonitor provides the SCADA command completion monitor. It
// periodically polls sent-but-unconfirmed gate commands, marks confirmed
// ones complete in the local log, and publishes the acknowledgement.
package gatemonitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/events"
	"github.com/paddyops/awd/processor/stack"
	"github.com/paddyops/awd/store"
)

// CommandLog is the slice of the persistent store the monitor scans.
type CommandLog interface {
	ListOpenCommands(ctx context.Context, since time.Time) ([]store.CommandLogEntry, error)
	MarkCommandCompleted(ctx context.Context, commandID string, at time.Time) error
}

// StatusPoller polls the actuator for command completion.
type StatusPoller interface {
	CommandStatus(ctx context.Context, commandID string) (awd.CommandStatus, error)
}

// Component implements the gate-monitor processor.
type Component struct {
	name   string
	config Config
	logger *slog.Logger

	db        CommandLog
	gates     StatusPoller
	publisher *events.Publisher
	clock     awd.Clock

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	scansPerformed    atomic.Int64
	commandsCompleted atomic.Int64
	pollErrors        atomic.Int64
	lastScanMu        sync.RWMutex
	lastScan          time.Time
}

// New creates a gate monitor over an already-built stack.
func New(cfg Config, st *stack.Stack, logger *slog.Logger) (*Component, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Component{
		name:      "gate-monitor",
		config:    cfg,
		logger:    logger,
		db:        st.Store,
		gates:     st.Gates,
		publisher: st.Publisher,
		clock:     st.Clock,
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized gate-monitor",
		"scan_interval", c.config.ScanInterval,
		"command_window", c.config.CommandWindow)
	return nil
}

// Start begins the completion scan loop.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}

	c.running = true
	c.startTime = time.Now()

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.scanLoop(subCtx)

	c.logger.Info("gate-monitor started",
		"scan_interval", c.config.ScanInterval,
		"command_window", c.config.CommandWindow)
	return nil
}

// scanLoop polls open commands on the scan interval.
func (c *Component) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.ScanInterval)
	defer ticker.Stop()

	c.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.scan(ctx)
		}
	}
}

// scan checks every open command from the trailing window against the
// actuator and completes the confirmed ones.
func (c *Component) scan(ctx context.Context) {
	c.scansPerformed.Add(1)
	c.updateLastScan()

	since := c.clock.Now().Add(-c.config.CommandWindow)
	entries, err := c.db.ListOpenCommands(ctx, since)
	if err != nil {
		c.pollErrors.Add(1)
		c.logger.Error("Failed to list open gate commands", "error", err)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		c.checkCommand(ctx, entry)
	}
}

// checkCommand polls one command and, when the actuator confirms it,
// completes the log row and announces the acknowledgement.
func (c *Component) checkCommand(ctx context.Context, entry store.CommandLogEntry) {
	status, err := c.gates.CommandStatus(ctx, entry.CommandID)
	if err != nil {
		c.pollErrors.Add(1)
		c.logger.Warn("Failed to poll gate command status",
			"command_id", entry.CommandID,
			"station_code", entry.GateName,
			"error", err)
		return
	}
	if !status.Complete {
		return
	}

	completedAt := c.clock.Now().UTC()
	if err := c.db.MarkCommandCompleted(ctx, entry.CommandID, completedAt); err != nil {
		// ErrNotFound means another scan already completed it.
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		c.logger.Error("Failed to complete gate command",
			"command_id", entry.CommandID, "error", err)
		return
	}

	c.commandsCompleted.Add(1)
	c.publisher.GateStatusUpdated(ctx, events.GateStatusUpdatedEvent{
		CommandID:   entry.CommandID,
		StationCode: entry.GateName,
		FieldID:     entry.FieldID,
		GateLevel:   status.GateLevel,
		CompletedAt: completedAt,
	})

	c.logger.Info("Gate command completed",
		"command_id", entry.CommandID,
		"station_code", entry.GateName,
		"gate_level", status.GateLevel)
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.running = false
	c.logger.Info("gate-monitor stopped",
		"scans_performed", c.scansPerformed.Load(),
		"commands_completed", c.commandsCompleted.Load())
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "gate-monitor",
		Type:        "processor",
		Description: "Polls SCADA gate commands for completion",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list — this component has no NATS inputs.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionOutput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return monitorSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.pollErrors.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		LastActivity: c.getLastScan(),
	}
}

func (c *Component) updateLastScan() {
	c.lastScanMu.Lock()
	c.lastScan = time.Now()
	c.lastScanMu.Unlock()
}

func (c *Component) getLastScan() time.Time {
	c.lastScanMu.RLock()
	defer c.lastScanMu.RUnlock()
	return c.lastScan
}
