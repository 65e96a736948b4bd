package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/paddyops/awd/awd"
)

// Publisher emits domain events to JetStream. Publication is fire-and-
// forget: failures are logged and counted but never surfaced to the control
// loop, so a broker outage cannot abort a decision or a stop.
type Publisher struct {
	nc     *natsclient.Client
	logger *slog.Logger
	source string
}

// NewPublisher creates a Publisher. A nil client degrades to logging only,
// which keeps unit tests and offline tools honest.
func NewPublisher(nc *natsclient.Client, logger *slog.Logger) *Publisher {
	return &Publisher{nc: nc, logger: logger, source: "awd-controller"}
}

// publish wraps the payload in a BaseMessage and sends it, swallowing
// errors after logging them.
func (p *Publisher) publish(ctx context.Context, subject string, payload message.Payload) {
	if p.nc == nil {
		p.logger.Debug("No NATS client, dropping event", "subject", subject)
		return
	}

	baseMsg := message.NewBaseMessage(payload.Schema(), payload, p.source)
	data, err := json.Marshal(baseMsg)
	if err != nil {
		p.logger.Error("Failed to marshal event", "subject", subject, "error", err)
		return
	}

	if err := p.nc.PublishToStream(ctx, subject, data); err != nil {
		p.logger.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}

// IrrigationStarted announces a newly started run.
func (p *Publisher) IrrigationStarted(ctx context.Context, ev IrrigationStartedEvent) {
	p.publish(ctx, IrrigationSubject(EventIrrigationStarted, ev.FieldID), &ev)
}

// IrrigationStopped announces a run stopped short of target.
func (p *Publisher) IrrigationStopped(ctx context.Context, ev IrrigationStoppedEvent) {
	p.publish(ctx, IrrigationSubject(EventIrrigationStopped, ev.FieldID), &ev)
}

// IrrigationCompleted announces a run that reached its target.
func (p *Publisher) IrrigationCompleted(ctx context.Context, ev IrrigationCompletedEvent) {
	p.publish(ctx, IrrigationSubject(EventIrrigationCompleted, ev.FieldID), &ev)
}

// IrrigationAnomaly announces a detected anomaly.
func (p *Publisher) IrrigationAnomaly(ctx context.Context, ev IrrigationAnomalyEvent) {
	p.publish(ctx, IrrigationSubject(EventIrrigationAnomaly, ev.FieldID), &ev)
}

// PhaseChange announces a calendar phase transition.
func (p *Publisher) PhaseChange(ctx context.Context, ev PhaseChangeEvent) {
	p.publish(ctx, ControlCommandSubject(ev.FieldID), &ev)
}

// Decision mirrors a control decision onto the command topic.
func (p *Publisher) Decision(ctx context.Context, d awd.ControlDecision) {
	p.publish(ctx, ControlCommandSubject(d.FieldID),
		&ControlDecisionEvent{FieldID: d.FieldID, Decision: d})
}

// Notify publishes an operator notification on the alert topic.
func (p *Publisher) Notify(ctx context.Context, n awd.Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}
	p.publish(ctx, AlertSubject(n.Priority), &NotificationEvent{Notification: n})
}

// GateCommand mirrors an outbound actuator command.
func (p *Publisher) GateCommand(ctx context.Context, ev GateCommandEvent) {
	p.publish(ctx, GateCommandSubject(ev.Command.StationCode), &ev)
}

// GateStatusUpdated announces actuator confirmation of a command.
func (p *Publisher) GateStatusUpdated(ctx context.Context, ev GateStatusUpdatedEvent) {
	p.publish(ctx, GateStatusSubject(ev.StationCode), &ev)
}

// GateCloseUnacknowledged raises the critical alert for an unconfirmed
// close during a stop.
func (p *Publisher) GateCloseUnacknowledged(ctx context.Context, ev GateCloseUnacknowledgedEvent) {
	p.publish(ctx, AlertSubject(awd.PriorityHigh), &ev)
	p.logger.Error("Gate close unacknowledged",
		"schedule_id", ev.ScheduleID,
		"field_id", ev.FieldID,
		"station_code", ev.StationCode)
}

// ConfigUpdated announces a controller configuration change.
func (p *Publisher) ConfigUpdated(ctx context.Context, ev ConfigUpdatedEvent) {
	p.publish(ctx, fmt.Sprintf("%s.config", SubjectControlCommands), &ev)
}
