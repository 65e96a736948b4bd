// Package controller provides the closed-loop AWD control processor. It
// re-evaluates every active field on a fixed interval, carries out the
// resulting decisions, and serves evaluate/stop requests from the command
// stream.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/decision"
	"github.com/paddyops/awd/events"
	"github.com/paddyops/awd/processor/stack"
)

// DecisionEngine is the slice of the decision engine the controller drives.
type DecisionEngine interface {
	Decide(ctx context.Context, fieldID string) (awd.ControlDecision, error)
	Execute(ctx context.Context, fieldID string, d awd.ControlDecision) (decision.ExecutionResult, error)
	StopIrrigation(ctx context.Context, fieldID string, reason awd.StopReason) (decision.ExecutionResult, error)
}

// FieldLister enumerates fields under AWD control.
type FieldLister interface {
	ListActive(ctx context.Context) ([]string, error)
}

// RunnerControl is the runner lifecycle hook used on shutdown.
type RunnerControl interface {
	Shutdown(ctx context.Context)
}

// Component implements the controller processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	engine DecisionEngine
	fields FieldLister
	runner RunnerControl

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	consumer jetstream.Consumer

	// Metrics
	evaluationsPerformed atomic.Int64
	commandsHandled      atomic.Int64
	evaluationErrors     atomic.Int64
	lastRunMu            sync.RWMutex
	lastRun              time.Time
}

// New creates a controller component over an already-built stack. Every
// component in the process must share one stack so the runner's active-run
// registry has a single owner.
func New(cfg Config, st *stack.Stack, nc *natsclient.Client, logger *slog.Logger) (*Component, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Component{
		name:       "controller",
		config:     cfg,
		natsClient: nc,
		logger:     logger,
		engine:     st.Engine,
		fields:     st.Fields,
		runner:     st.Runner,
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized controller",
		"decision_interval", c.config.DecisionInterval,
		"auto_execute", !c.config.DisableAutoExecute)
	return nil
}

// Start begins the evaluation loop and the command consumer.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get jetstream: %w", err)
	}

	stream, err := js.Stream(subCtx, c.config.StreamName)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(subCtx, jetstream.ConsumerConfig{
		Durable: c.config.ConsumerName,
		FilterSubjects: []string{
			events.SubjectControlCommands + ".evaluate.>",
			events.SubjectControlCommands + ".stop.>",
		},
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    2 * time.Minute,
		MaxDeliver: 3,
	})
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer

	go c.evaluationLoop(subCtx)
	go c.consumeLoop(subCtx)

	c.logger.Info("controller started",
		"decision_interval", c.config.DecisionInterval,
		"auto_execute", !c.config.DisableAutoExecute,
		"consumer", c.config.ConsumerName)
	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

// evaluationLoop re-evaluates all active fields on the decision interval.
func (c *Component) evaluationLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.DecisionInterval)
	defer ticker.Stop()

	c.evaluateAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evaluateAll(ctx)
		}
	}
}

// evaluateAll runs one decision pass over every active field.
func (c *Component) evaluateAll(ctx context.Context) {
	c.updateLastRun()

	fieldIDs, err := c.fields.ListActive(ctx)
	if err != nil {
		c.evaluationErrors.Add(1)
		c.logger.Error("Failed to list active fields", "error", err)
		return
	}

	c.logger.Debug("Evaluating active fields", "count", len(fieldIDs))
	for _, fieldID := range fieldIDs {
		if ctx.Err() != nil {
			return
		}
		c.evaluateField(ctx, fieldID)
	}
}

// evaluateField decides for one field and, when auto-execution is on,
// carries the decision out.
func (c *Component) evaluateField(ctx context.Context, fieldID string) {
	c.evaluationsPerformed.Add(1)

	d, err := c.engine.Decide(ctx, fieldID)
	if err != nil {
		c.evaluationErrors.Add(1)
		c.logger.Error("Decision failed", "field_id", fieldID, "error", err)
		return
	}

	if c.config.DisableAutoExecute {
		return
	}

	switch d.Outcome.Action() {
	case awd.ActionStartIrrigation, awd.ActionStopIrrigation:
		res, err := c.engine.Execute(ctx, fieldID, d)
		if err != nil {
			c.logger.Error("Decision execution failed",
				"field_id", fieldID,
				"action", string(d.Outcome.Action()),
				"error", err)
			return
		}
		c.logger.Info("Decision executed",
			"field_id", fieldID,
			"action", string(d.Outcome.Action()),
			"schedule_id", res.ScheduleID,
			"method", res.Method)
	}
}

// EvaluateRequest asks the controller to evaluate one field immediately.
type EvaluateRequest struct {
	FieldID string `json:"field_id"`
}

// StopRequest asks the controller to stop a field's active irrigation.
type StopRequest struct {
	FieldID string `json:"field_id"`
	Reason  string `json:"reason,omitempty"`
}

// consumeLoop serves evaluate/stop requests from the command stream.
func (c *Component) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("Fetch timeout or error", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleCommand(ctx, msg)
		}
	}
}

// handleCommand dispatches one command request by subject.
func (c *Component) handleCommand(ctx context.Context, msg jetstream.Msg) {
	c.commandsHandled.Add(1)
	c.updateLastRun()

	subject := msg.Subject()
	switch {
	case strings.HasPrefix(subject, events.SubjectControlCommands+".evaluate."):
		req, err := decodePayload[EvaluateRequest](msg.Data())
		if err != nil || req.FieldID == "" {
			c.logger.Error("Invalid evaluate request", "subject", subject, "error", err)
			c.ack(msg)
			return
		}
		c.evaluateField(ctx, req.FieldID)

	case strings.HasPrefix(subject, events.SubjectControlCommands+".stop."):
		req, err := decodePayload[StopRequest](msg.Data())
		if err != nil || req.FieldID == "" {
			c.logger.Error("Invalid stop request", "subject", subject, "error", err)
			c.ack(msg)
			return
		}
		if _, err := c.engine.StopIrrigation(ctx, req.FieldID, awd.StopExternalCommand); err != nil {
			c.logger.Error("Stop request failed", "field_id", req.FieldID, "error", err)
		}

	default:
		c.logger.Warn("Unexpected command subject", "subject", subject)
	}

	c.ack(msg)
}

func (c *Component) ack(msg jetstream.Msg) {
	if err := msg.Ack(); err != nil {
		c.logger.Warn("Failed to ACK message", "error", err)
	}
}

// decodePayload accepts both BaseMessage-wrapped and raw JSON payloads.
func decodePayload[T any](data []byte) (T, error) {
	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Payload) > 0 {
		data = envelope.Payload
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

// Stop drains active irrigation runs and stops the component.
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.cancel = nil
	c.running = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Close gates on every active run before the process exits.
	ctx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()
	c.runner.Shutdown(ctx)

	c.logger.Info("controller stopped",
		"evaluations_performed", c.evaluationsPerformed.Load(),
		"commands_handled", c.commandsHandled.Load())
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "controller",
		Type:        "processor",
		Description: "Closed-loop AWD decision and irrigation control",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionInput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return ports
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
	return controllerSchema
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
		ErrorCount: int(c.evaluationErrors.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		LastActivity: c.getLastRun(),
	}
}

func (c *Component) updateLastRun() {
	c.lastRunMu.Lock()
	c.lastRun = time.Now()
	c.lastRunMu.Unlock()
}

func (c *Component) getLastRun() time.Time {
	c.lastRunMu.RLock()
	defer c.lastRunMu.RUnlock()
	return c.lastRun
}
