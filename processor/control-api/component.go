// Package controlapi provides HTTP endpoints for AWD field control: making
// and executing control decisions, querying irrigation status, stopping
// runs, and managing field lifecycle.
package controlapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/decision"
	"github.com/paddyops/awd/processor/stack"
)

// DecisionService is the slice of the decision engine the API exposes.
type DecisionService interface {
	Decide(ctx context.Context, fieldID string) (awd.ControlDecision, error)
	Execute(ctx context.Context, fieldID string, d awd.ControlDecision) (decision.ExecutionResult, error)
	Status(ctx context.Context, fieldID string) (decision.FieldStatus, error)
	StopIrrigation(ctx context.Context, fieldID string, reason awd.StopReason) (decision.ExecutionResult, error)
}

// FieldAdmin manages field configuration lifecycle.
type FieldAdmin interface {
	Initialize(ctx context.Context, fieldID string, method awd.PlantingMethod, startDate time.Time) (awd.FieldConfig, error)
	Deactivate(ctx context.Context, fieldID string) error
}

// Component implements the control-api component.
type Component struct {
	name   string
	config Config
	logger *slog.Logger

	engine DecisionService
	fields FieldAdmin

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	requestsServed atomic.Int64
	lastRequestMu  sync.RWMutex
	lastRequest    time.Time
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// New creates a control API component over an already-built stack.
func New(cfg Config, st *stack.Stack, logger *slog.Logger) (*Component, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Component{
		name:   "control-api",
		config: cfg,
		logger: logger,
		engine: st.Engine,
		fields: st.Fields,
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized control-api", "path_prefix", c.config.PathPrefix)
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		current := c.state.Load()
		if current == stateRunning || current == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", current)
	}

	defer func() {
		if c.state.Load() == stateStarting {
			c.state.Store(stateStopped)
		}
	}()

	_, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.startTime = time.Now()
	c.mu.Unlock()

	c.state.Store(stateRunning)
	c.logger.Info("control-api started", "path_prefix", c.config.PathPrefix)
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		current := c.state.Load()
		if current == stateStopped || current == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", current)
	}

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.state.Store(stateStopped)
	c.logger.Info("control-api stopped", "requests_served", c.requestsServed.Load())
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "control-api",
		Type:        "processor",
		Description: "HTTP endpoints for AWD field control and status",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list — this component has no NATS inputs.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns an empty port list — this component has no NATS outputs.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return apiSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	state := c.state.Load()
	running := state == stateRunning

	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    time.Since(startTime),
		Status:    status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	c.lastRequestMu.RLock()
	defer c.lastRequestMu.RUnlock()
	return component.FlowMetrics{
		LastActivity: c.lastRequest,
	}
}

func (c *Component) touch() {
	c.requestsServed.Add(1)
	c.lastRequestMu.Lock()
	c.lastRequest = time.Now()
	c.lastRequestMu.Unlock()
}
