// Package events defines the controller's durable domain events and the
// NATS subjects they are published on.
//
// Subjects fan out under five roots, one per broker topic:
//
//	awd.control.command.<field>         control decisions and commands
//	awd.irrigation.event.<type>.<field> irrigation lifecycle events
//	alert.notification.<priority>       operator notifications
//	gate.control.command.<station>      outbound gate commands
//	gate.status.update.<station>        actuator acknowledgements
//
// Every event type implements message.Payload so it can travel inside a
// semstreams BaseMessage envelope.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/message"

	"github.com/paddyops/awd/awd"
)

// Stream names provisioned at boot.
const (
	StreamAWD  = "AWD_EVENTS"
	StreamGate = "GATE_EVENTS"
)

// Subject roots.
const (
	SubjectControlCommands = "awd.control.command"
	SubjectIrrigation      = "awd.irrigation.event"
	SubjectAlerts          = "alert.notification"
	SubjectGateCommands    = "gate.control.command"
	SubjectGateStatus      = "gate.status.update"
)

// ControlCommandSubject returns the subject for control commands to a field.
func ControlCommandSubject(fieldID string) string {
	return fmt.Sprintf("%s.%s", SubjectControlCommands, fieldID)
}

// IrrigationSubject returns the subject for one irrigation event type.
func IrrigationSubject(eventType, fieldID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectIrrigation, eventType, fieldID)
}

// AlertSubject returns the subject for a notification priority.
func AlertSubject(priority awd.NotificationPriority) string {
	return fmt.Sprintf("%s.%s", SubjectAlerts, priority)
}

// GateCommandSubject returns the subject for commands to a station.
func GateCommandSubject(stationCode string) string {
	return fmt.Sprintf("%s.%s", SubjectGateCommands, stationCode)
}

// GateStatusSubject returns the subject for a station's acknowledgements.
func GateStatusSubject(stationCode string) string {
	return fmt.Sprintf("%s.%s", SubjectGateStatus, stationCode)
}

// Irrigation lifecycle event types (the <type> subject token).
const (
	EventIrrigationStarted   = "started"
	EventIrrigationStopped   = "stopped"
	EventIrrigationCompleted = "completed"
	EventIrrigationAnomaly   = "anomaly"
)

// Message types carried in the envelope header, one per event.
var (
	IrrigationStartedType       = message.Type{Domain: "irrigation", Category: "started", Version: "v1"}
	IrrigationStoppedType       = message.Type{Domain: "irrigation", Category: "stopped", Version: "v1"}
	IrrigationCompletedType     = message.Type{Domain: "irrigation", Category: "completed", Version: "v1"}
	IrrigationAnomalyType       = message.Type{Domain: "irrigation", Category: "anomaly", Version: "v1"}
	PhaseChangeType             = message.Type{Domain: "awd", Category: "phase_change", Version: "v1"}
	ControlDecisionType         = message.Type{Domain: "awd", Category: "decision", Version: "v1"}
	ConfigUpdatedType           = message.Type{Domain: "awd", Category: "config_updated", Version: "v1"}
	NotificationType            = message.Type{Domain: "alert", Category: "notification", Version: "v1"}
	GateCommandType             = message.Type{Domain: "gate", Category: "command", Version: "v1"}
	GateStatusUpdatedType       = message.Type{Domain: "gate", Category: "status", Version: "v1"}
	GateCloseUnacknowledgedType = message.Type{Domain: "gate", Category: "close_unacknowledged", Version: "v1"}
)

// Every event payload satisfies the semstreams envelope contract.
var (
	_ message.Payload = (*IrrigationStartedEvent)(nil)
	_ message.Payload = (*IrrigationStoppedEvent)(nil)
	_ message.Payload = (*IrrigationCompletedEvent)(nil)
	_ message.Payload = (*IrrigationAnomalyEvent)(nil)
	_ message.Payload = (*PhaseChangeEvent)(nil)
	_ message.Payload = (*ControlDecisionEvent)(nil)
	_ message.Payload = (*ConfigUpdatedEvent)(nil)
	_ message.Payload = (*NotificationEvent)(nil)
	_ message.Payload = (*GateCommandEvent)(nil)
	_ message.Payload = (*GateStatusUpdatedEvent)(nil)
	_ message.Payload = (*GateCloseUnacknowledgedEvent)(nil)
)

// IrrigationStartedEvent is published when the runner opens a gate.
type IrrigationStartedEvent struct {
	ScheduleID     string    `json:"schedule_id"`
	FieldID        string    `json:"field_id"`
	InitialLevelCm float64   `json:"initial_level_cm"`
	TargetLevelCm  float64   `json:"target_level_cm"`
	StartedAt      time.Time `json:"started_at"`
}

// Schema returns the message type for this payload.
func (e *IrrigationStartedEvent) Schema() message.Type { return IrrigationStartedType }

// Validate validates the event.
func (e *IrrigationStartedEvent) Validate() error {
	if e.ScheduleID == "" {
		return fmt.Errorf("schedule_id is required")
	}
	if e.FieldID == "" {
		return fmt.Errorf("field_id is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *IrrigationStartedEvent) MarshalJSON() ([]byte, error) {
	type Alias IrrigationStartedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *IrrigationStartedEvent) UnmarshalJSON(data []byte) error {
	type Alias IrrigationStartedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// IrrigationStoppedEvent is published when a run ends without reaching its
// target.
type IrrigationStoppedEvent struct {
	ScheduleID   string             `json:"schedule_id"`
	FieldID      string             `json:"field_id"`
	Reason       awd.StopReason     `json:"reason"`
	FinalLevelCm float64            `json:"final_level_cm"`
	Status       awd.ScheduleStatus `json:"status"`
	StoppedAt    time.Time          `json:"stopped_at"`
}

// Schema returns the message type for this payload.
func (e *IrrigationStoppedEvent) Schema() message.Type { return IrrigationStoppedType }

// Validate validates the event.
func (e *IrrigationStoppedEvent) Validate() error {
	if e.ScheduleID == "" {
		return fmt.Errorf("schedule_id is required")
	}
	if e.Reason == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *IrrigationStoppedEvent) MarshalJSON() ([]byte, error) {
	type Alias IrrigationStoppedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *IrrigationStoppedEvent) UnmarshalJSON(data []byte) error {
	type Alias IrrigationStoppedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// IrrigationCompletedEvent is published when a run reaches its target.
type IrrigationCompletedEvent struct {
	ScheduleID        string    `json:"schedule_id"`
	FieldID           string    `json:"field_id"`
	FinalLevelCm      float64   `json:"final_level_cm"`
	TargetLevelCm     float64   `json:"target_level_cm"`
	DurationMin       float64   `json:"duration_min"`
	WaterVolumeLiters float64   `json:"water_volume_liters"`
	EfficiencyScore   float64   `json:"efficiency_score"`
	CompletedAt       time.Time `json:"completed_at"`
}

// Schema returns the message type for this payload.
func (e *IrrigationCompletedEvent) Schema() message.Type { return IrrigationCompletedType }

// Validate validates the event.
func (e *IrrigationCompletedEvent) Validate() error {
	if e.ScheduleID == "" {
		return fmt.Errorf("schedule_id is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *IrrigationCompletedEvent) MarshalJSON() ([]byte, error) {
	type Alias IrrigationCompletedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *IrrigationCompletedEvent) UnmarshalJSON(data []byte) error {
	type Alias IrrigationCompletedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// IrrigationAnomalyEvent is published for every detected anomaly.
type IrrigationAnomalyEvent struct {
	ScheduleID string      `json:"schedule_id"`
	FieldID    string      `json:"field_id"`
	Anomaly    awd.Anomaly `json:"anomaly"`
	DetectedAt time.Time   `json:"detected_at"`
}

// Schema returns the message type for this payload.
func (e *IrrigationAnomalyEvent) Schema() message.Type { return IrrigationAnomalyType }

// Validate validates the event.
func (e *IrrigationAnomalyEvent) Validate() error {
	if e.ScheduleID == "" {
		return fmt.Errorf("schedule_id is required")
	}
	if e.Anomaly.Type == "" {
		return fmt.Errorf("anomaly type is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *IrrigationAnomalyEvent) MarshalJSON() ([]byte, error) {
	type Alias IrrigationAnomalyEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *IrrigationAnomalyEvent) UnmarshalJSON(data []byte) error {
	type Alias IrrigationAnomalyEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// PhaseChangeEvent is published when a field crosses into a new AWD phase.
type PhaseChangeEvent struct {
	FieldID       string    `json:"field_id"`
	FromPhase     awd.Phase `json:"from_phase"`
	ToPhase       awd.Phase `json:"to_phase"`
	Week          int       `json:"week"`
	TargetLevelCm float64   `json:"target_level_cm"`
	ChangedAt     time.Time `json:"changed_at"`
}

// Schema returns the message type for this payload.
func (e *PhaseChangeEvent) Schema() message.Type { return PhaseChangeType }

// Validate validates the event.
func (e *PhaseChangeEvent) Validate() error {
	if e.FieldID == "" {
		return fmt.Errorf("field_id is required")
	}
	if e.ToPhase == "" {
		return fmt.Errorf("to_phase is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *PhaseChangeEvent) MarshalJSON() ([]byte, error) {
	type Alias PhaseChangeEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *PhaseChangeEvent) UnmarshalJSON(data []byte) error {
	type Alias PhaseChangeEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// NotificationEvent wraps an advisory notification on the alert topic.
type NotificationEvent struct {
	Notification awd.Notification `json:"notification"`
}

// Schema returns the message type for this payload.
func (e *NotificationEvent) Schema() message.Type { return NotificationType }

// Validate validates the event.
func (e *NotificationEvent) Validate() error {
	if e.Notification.Type == "" {
		return fmt.Errorf("notification type is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *NotificationEvent) MarshalJSON() ([]byte, error) {
	type Alias NotificationEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *NotificationEvent) UnmarshalJSON(data []byte) error {
	type Alias NotificationEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// GateCommandEvent mirrors an outbound gate command.
type GateCommandEvent struct {
	CommandID string          `json:"command_id"`
	Command   awd.GateCommand `json:"command"`
	SentAt    time.Time       `json:"sent_at"`
}

// Schema returns the message type for this payload.
func (e *GateCommandEvent) Schema() message.Type { return GateCommandType }

// Validate validates the event.
func (e *GateCommandEvent) Validate() error {
	if e.CommandID == "" {
		return fmt.Errorf("command_id is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *GateCommandEvent) MarshalJSON() ([]byte, error) {
	type Alias GateCommandEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *GateCommandEvent) UnmarshalJSON(data []byte) error {
	type Alias GateCommandEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// GateStatusUpdatedEvent is published when the actuator confirms a command.
type GateStatusUpdatedEvent struct {
	CommandID   string    `json:"command_id"`
	StationCode string    `json:"station_code"`
	FieldID     string    `json:"field_id"`
	GateLevel   int       `json:"gate_level"`
	CompletedAt time.Time `json:"completed_at"`
}

// Schema returns the message type for this payload.
func (e *GateStatusUpdatedEvent) Schema() message.Type { return GateStatusUpdatedType }

// Validate validates the event.
func (e *GateStatusUpdatedEvent) Validate() error {
	if e.CommandID == "" {
		return fmt.Errorf("command_id is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *GateStatusUpdatedEvent) MarshalJSON() ([]byte, error) {
	type Alias GateStatusUpdatedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *GateStatusUpdatedEvent) UnmarshalJSON(data []byte) error {
	type Alias GateStatusUpdatedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// GateCloseUnacknowledgedEvent is the critical alert raised when a close
// command times out without acknowledgement during a stop.
type GateCloseUnacknowledgedEvent struct {
	ScheduleID  string    `json:"schedule_id"`
	FieldID     string    `json:"field_id"`
	StationCode string    `json:"station_code"`
	RaisedAt    time.Time `json:"raised_at"`
}

// Schema returns the message type for this payload.
func (e *GateCloseUnacknowledgedEvent) Schema() message.Type { return GateCloseUnacknowledgedType }

// Validate validates the event.
func (e *GateCloseUnacknowledgedEvent) Validate() error {
	if e.ScheduleID == "" {
		return fmt.Errorf("schedule_id is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *GateCloseUnacknowledgedEvent) MarshalJSON() ([]byte, error) {
	type Alias GateCloseUnacknowledgedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *GateCloseUnacknowledgedEvent) UnmarshalJSON(data []byte) error {
	type Alias GateCloseUnacknowledgedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// ConfigUpdatedEvent is published when the controller configuration file
// changes on disk.
type ConfigUpdatedEvent struct {
	Path      string    `json:"path"`
	ChangedAt time.Time `json:"changed_at"`
}

// Schema returns the message type for this payload.
func (e *ConfigUpdatedEvent) Schema() message.Type { return ConfigUpdatedType }

// Validate validates the event.
func (e *ConfigUpdatedEvent) Validate() error {
	if e.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *ConfigUpdatedEvent) MarshalJSON() ([]byte, error) {
	type Alias ConfigUpdatedEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *ConfigUpdatedEvent) UnmarshalJSON(data []byte) error {
	type Alias ConfigUpdatedEvent
	return json.Unmarshal(data, (*Alias)(e))
}

// ControlDecisionEvent mirrors a decision onto the control command topic.
type ControlDecisionEvent struct {
	FieldID  string              `json:"field_id"`
	Decision awd.ControlDecision `json:"decision"`
}

// Schema returns the message type for this payload.
func (e *ControlDecisionEvent) Schema() message.Type { return ControlDecisionType }

// Validate validates the event.
func (e *ControlDecisionEvent) Validate() error {
	if e.FieldID == "" {
		return fmt.Errorf("field_id is required")
	}
	if e.Decision.Outcome == nil {
		return fmt.Errorf("decision outcome is required")
	}
	return nil
}

// MarshalJSON marshals the event to JSON.
func (e *ControlDecisionEvent) MarshalJSON() ([]byte, error) {
	type Alias ControlDecisionEvent
	return json.Marshal((*Alias)(e))
}

// UnmarshalJSON unmarshals the event from JSON.
func (e *ControlDecisionEvent) UnmarshalJSON(data []byte) error {
	type Alias ControlDecisionEvent
	return json.Unmarshal(data, (*Alias)(e))
}
