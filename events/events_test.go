package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddyops/awd/awd"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "awd.control.command.field-1", ControlCommandSubject("field-1"))
	assert.Equal(t, "awd.irrigation.event.started.field-1", IrrigationSubject(EventIrrigationStarted, "field-1"))
	assert.Equal(t, "alert.notification.high", AlertSubject(awd.PriorityHigh))
	assert.Equal(t, "gate.control.command.ST01", GateCommandSubject("ST01"))
	assert.Equal(t, "gate.status.update.ST01", GateStatusSubject("ST01"))
}

func TestEventSchemas(t *testing.T) {
	cases := []struct {
		payload message.Payload
		want    message.Type
	}{
		{&IrrigationStartedEvent{}, IrrigationStartedType},
		{&IrrigationStoppedEvent{}, IrrigationStoppedType},
		{&IrrigationCompletedEvent{}, IrrigationCompletedType},
		{&IrrigationAnomalyEvent{}, IrrigationAnomalyType},
		{&PhaseChangeEvent{}, PhaseChangeType},
		{&ControlDecisionEvent{}, ControlDecisionType},
		{&ConfigUpdatedEvent{}, ConfigUpdatedType},
		{&NotificationEvent{}, NotificationType},
		{&GateCommandEvent{}, GateCommandType},
		{&GateStatusUpdatedEvent{}, GateStatusUpdatedType},
		{&GateCloseUnacknowledgedEvent{}, GateCloseUnacknowledgedType},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.payload.Schema())
		assert.True(t, tc.payload.Schema().IsValid(), "type %s must be a valid message type", tc.want)
	}
}

func TestEventValidate(t *testing.T) {
	assert.Error(t, (&IrrigationStartedEvent{FieldID: "field-1"}).Validate(),
		"schedule_id is required")
	assert.Error(t, (&IrrigationStoppedEvent{ScheduleID: "sched-1"}).Validate(),
		"reason is required")
	assert.Error(t, (&PhaseChangeEvent{FieldID: "field-1"}).Validate(),
		"to_phase is required")
	assert.Error(t, (&GateCommandEvent{}).Validate(),
		"command_id is required")
	assert.Error(t, (&ControlDecisionEvent{FieldID: "field-1"}).Validate(),
		"decision outcome is required")

	assert.NoError(t, (&IrrigationStartedEvent{ScheduleID: "sched-1", FieldID: "field-1"}).Validate())
	assert.NoError(t, (&ConfigUpdatedEvent{Path: "/etc/awd/config.yaml"}).Validate())
}

func TestEventEnvelope(t *testing.T) {
	ev := IrrigationStoppedEvent{
		ScheduleID:   "sched-1",
		FieldID:      "field-1",
		Reason:       awd.StopGateUnacknowledged,
		FinalLevelCm: 9.4,
		Status:       awd.StatusFailed,
		StoppedAt:    time.Date(2026, 4, 15, 8, 0, 0, 0, time.UTC),
	}
	msg := message.NewBaseMessage(ev.Schema(), &ev, "awd-controller")

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var wire struct {
		ID      string                 `json:"id"`
		Type    message.Type           `json:"type"`
		Payload IrrigationStoppedEvent `json:"payload"`
		Meta    map[string]any         `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(data, &wire))

	assert.NotEmpty(t, wire.ID)
	assert.Equal(t, IrrigationStoppedType, wire.Type)
	assert.Equal(t, ev, wire.Payload)
	assert.Equal(t, "awd-controller", wire.Meta["source"])
}

func TestEnvelopeRejectsInvalidPayload(t *testing.T) {
	// The envelope validates its payload on marshal, so a malformed event
	// can never reach the broker.
	msg := message.NewBaseMessage(IrrigationStartedType, &IrrigationStartedEvent{}, "awd-controller")
	_, err := json.Marshal(msg)
	assert.Error(t, err)
}

func TestPublisher_NilClientDoesNotPanic(t *testing.T) {
	p := NewPublisher(nil, slog.Default())

	// Publish failure must never reach the control loop; with no client the
	// publisher degrades to logging.
	p.IrrigationStarted(context.Background(), IrrigationStartedEvent{FieldID: "field-1"})
	p.Notify(context.Background(), awd.Notification{Type: awd.NotifyPhaseChange, Priority: awd.PriorityMedium})
	p.Decision(context.Background(), awd.ControlDecision{
		FieldID: "field-1",
		Outcome: awd.Maintain{Why: "test"},
	})
}
