// Package gate sends commands to the canal-side gate actuator and keeps a
// local log of every command for the completion monitor.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/events"
	"github.com/paddyops/awd/store"
)

// ErrNoStation is returned when a field has no gate mapping.
var ErrNoStation = errors.New("gate: no station mapped for field")

// Actuator is the external SCADA command API.
type Actuator interface {
	// SendCommand forwards a gate command and returns the external command
	// ID. Commands are idempotent on (stationCode, startTime).
	SendCommand(ctx context.Context, cmd awd.GateCommand) (string, error)
	// CommandStatus polls a previously sent command.
	CommandStatus(ctx context.Context, commandID string) (awd.CommandStatus, error)
}

// FlowModel converts a target flow rate into a gate level. The hydraulic
// HTTP client implements it.
type FlowModel interface {
	GateLevelForFlow(ctx context.Context, stationCode string, targetFlowRateM3S float64) (int, error)
}

// CommandStore is the slice of the persistent store the gateway needs.
type CommandStore interface {
	StationForField(ctx context.Context, fieldID string) (string, error)
	InsertCommandLog(ctx context.Context, e store.CommandLogEntry) error
}

// Gateway resolves stations, sends gate commands, and logs them locally.
type Gateway struct {
	db        CommandStore
	actuator  Actuator
	flowModel FlowModel
	publisher *events.Publisher
	clock     awd.Clock
	logger    *slog.Logger
}

// New creates a gate gateway. flowModel may be nil; OpenForFlow then always
// uses the static fallback table.
func New(db CommandStore, actuator Actuator, flowModel FlowModel, publisher *events.Publisher, clock awd.Clock, logger *slog.Logger) *Gateway {
	return &Gateway{
		db:        db,
		actuator:  actuator,
		flowModel: flowModel,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// ResolveStation maps a field to its canal station.
func (g *Gateway) ResolveStation(ctx context.Context, fieldID string) (string, error) {
	station, err := g.db.StationForField(ctx, fieldID)
	if errors.Is(err, store.ErrNoStation) {
		return "", fmt.Errorf("%w: %s", ErrNoStation, fieldID)
	}
	if err != nil {
		return "", err
	}
	return station, nil
}

// Send forwards a gate command to the actuator, records it in the local
// command log with status sent, and mirrors it onto the gate command topic.
// The returned ID identifies the command for status polling.
func (g *Gateway) Send(ctx context.Context, cmd awd.GateCommand) (string, error) {
	if cmd.StartTime.IsZero() {
		cmd.StartTime = g.clock.Now().UTC()
	}

	commandID, err := g.actuator.SendCommand(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("send gate command to %s: %w", cmd.StationCode, err)
	}
	if commandID == "" {
		commandID = uuid.New().String()
	}

	entry := store.CommandLogEntry{
		CommandID:      commandID,
		FieldID:        cmd.FieldID,
		GateName:       cmd.StationCode,
		GateLevel:      cmd.GateLevel,
		TargetFlowRate: cmd.TargetFlowRateM3S,
		CommandTime:    cmd.StartTime,
		Status:         "sent",
	}
	if err := g.db.InsertCommandLog(ctx, entry); err != nil {
		// The actuator accepted the command; a log failure must not undo it.
		g.logger.Error("Failed to log gate command",
			"command_id", commandID, "station_code", cmd.StationCode, "error", err)
	}

	g.publisher.GateCommand(ctx, events.GateCommandEvent{
		CommandID: commandID,
		Command:   cmd,
		SentAt:    g.clock.Now().UTC(),
	})

	g.logger.Info("Gate command sent",
		"command_id", commandID,
		"station_code", cmd.StationCode,
		"gate_level", cmd.GateLevel,
		"field_id", cmd.FieldID)
	return commandID, nil
}

// CommandStatus polls the actuator for a command's completion state.
func (g *Gateway) CommandStatus(ctx context.Context, commandID string) (awd.CommandStatus, error) {
	return g.actuator.CommandStatus(ctx, commandID)
}

// FallbackGateLevel is the static flow-to-level table used when the
// hydraulic service is unavailable.
func FallbackGateLevel(targetFlowRateM3S float64) int {
	switch {
	case targetFlowRateM3S < 5:
		return 2
	case targetFlowRateM3S < 10:
		return 3
	default:
		return 4
	}
}

// clampOpenLevel forces a level into the open range {2, 3, 4}.
func clampOpenLevel(level int) int {
	if level < 2 {
		return 2
	}
	if level > awd.GateLevelMax {
		return awd.GateLevelMax
	}
	return level
}

// OpenForFlow opens a field's gate at the level the hydraulic model
// recommends for the target flow rate, falling back to the static table
// when the model is down. The hydraulic collaborator is never fatal.
func (g *Gateway) OpenForFlow(ctx context.Context, fieldID string, targetFlowRateM3S float64) (string, error) {
	station, err := g.ResolveStation(ctx, fieldID)
	if err != nil {
		return "", err
	}

	level := FallbackGateLevel(targetFlowRateM3S)
	if g.flowModel != nil {
		modeled, err := g.flowModel.GateLevelForFlow(ctx, station, targetFlowRateM3S)
		if err != nil {
			g.logger.Warn("Hydraulic service unavailable, using fallback gate level",
				"station_code", station, "fallback_level", level, "error", err)
		} else {
			level = clampOpenLevel(modeled)
		}
	}

	return g.Send(ctx, awd.GateCommand{
		StationCode:       station,
		GateLevel:         level,
		FieldID:           fieldID,
		TargetFlowRateM3S: targetFlowRateM3S,
	})
}

// Open opens a field's gate at an explicit level in {2..4}.
func (g *Gateway) Open(ctx context.Context, fieldID string, level int) (string, error) {
	station, err := g.ResolveStation(ctx, fieldID)
	if err != nil {
		return "", err
	}
	return g.Send(ctx, awd.GateCommand{
		StationCode: station,
		GateLevel:   clampOpenLevel(level),
		FieldID:     fieldID,
	})
}

// Close commands a field's gate to level 1 (fully closed). Re-issuing a
// close is safe; the actuator treats commands as idempotent.
func (g *Gateway) Close(ctx context.Context, fieldID string) (string, error) {
	station, err := g.ResolveStation(ctx, fieldID)
	if err != nil {
		return "", err
	}
	return g.Send(ctx, awd.GateCommand{
		StationCode: station,
		GateLevel:   awd.GateLevelClosed,
		FieldID:     fieldID,
	})
}
