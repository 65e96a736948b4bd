package awd

import (
	"encoding/json"
	"time"
)

// Action names the kind of control decision.
type Action string

const (
	ActionStartIrrigation Action = "start_irrigation"
	ActionStopIrrigation  Action = "stop_irrigation"
	ActionMaintain        Action = "maintain"
	ActionNotify          Action = "notify"
)

// Outcome is the tagged variant at the heart of a control decision. Exactly
// one of StartIrrigation, StopIrrigation, Maintain, or Notify implements it.
type Outcome interface {
	Action() Action
	Reason() string
}

// StartIrrigation instructs the runner to begin flooding toward a target.
type StartIrrigation struct {
	TargetLevelCm        float64                `json:"target_water_level_cm"`
	EstimatedDurationMin float64                `json:"estimated_duration_min,omitempty"`
	Why                  string                 `json:"reason"`
	Prediction           *PerformancePrediction `json:"prediction,omitempty"`
	RecommendedStart     *time.Time             `json:"recommended_start,omitempty"`
}

func (StartIrrigation) Action() Action   { return ActionStartIrrigation }
func (s StartIrrigation) Reason() string { return s.Why }

// StopIrrigation instructs the runner to stop (or stay stopped).
type StopIrrigation struct {
	Why string `json:"reason"`
}

func (StopIrrigation) Action() Action   { return ActionStopIrrigation }
func (s StopIrrigation) Reason() string { return s.Why }

// Maintain keeps the current state, optionally carrying live metadata such
// as the status of an active run.
type Maintain struct {
	Why      string         `json:"reason"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (Maintain) Action() Action   { return ActionMaintain }
func (m Maintain) Reason() string { return m.Why }

// Notify changes nothing but raises notifications.
type Notify struct {
	Why string `json:"reason"`
}

func (Notify) Action() Action   { return ActionNotify }
func (n Notify) Reason() string { return n.Why }

// ControlDecision is the result of evaluating a field: one outcome plus any
// advisory notifications accumulated along the way.
type ControlDecision struct {
	FieldID       string
	Outcome       Outcome
	Notifications []Notification
	DecidedAt     time.Time
}

// MarshalJSON flattens the decision into the wire shape consumed by the
// HTTP layer and event subscribers: the outcome's fields are inlined next
// to the action tag.
func (d ControlDecision) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"field_id":   d.FieldID,
		"action":     string(d.Outcome.Action()),
		"reason":     d.Outcome.Reason(),
		"decided_at": d.DecidedAt,
	}
	switch o := d.Outcome.(type) {
	case StartIrrigation:
		out["target_water_level_cm"] = o.TargetLevelCm
		if o.EstimatedDurationMin > 0 {
			out["estimated_duration_min"] = o.EstimatedDurationMin
		}
		if o.Prediction != nil {
			out["prediction"] = o.Prediction
		}
		if o.RecommendedStart != nil {
			out["recommended_start"] = o.RecommendedStart
		}
	case Maintain:
		if len(o.Metadata) > 0 {
			out["metadata"] = o.Metadata
		}
	}
	if len(d.Notifications) > 0 {
		out["notifications"] = d.Notifications
	}
	return json.Marshal(out)
}

// PerformancePrediction is the learner's forecast for an upcoming run.
type PerformancePrediction struct {
	FieldID              string    `json:"field_id" db:"field_id"`
	EstimatedDurationMin float64   `json:"estimated_duration_min" db:"estimated_duration_min"`
	ExpectedFlowRate     float64   `json:"expected_flow_rate_cm_per_min" db:"expected_flow_rate_cm_per_min"`
	ExpectedVolumeLiters float64   `json:"expected_volume_liters" db:"expected_volume_liters"`
	Confidence           float64   `json:"confidence" db:"confidence"`
	SampleCount          int       `json:"sample_count" db:"sample_count"`
	DurationCI95Min      float64   `json:"duration_ci95_min,omitempty" db:"duration_ci95_min"`
	DurationCI95Max      float64   `json:"duration_ci95_max,omitempty" db:"duration_ci95_max"`
	Season               string    `json:"season" db:"season"`
	GeneratedAt          time.Time `json:"generated_at" db:"generated_at"`
}

// OptimalParameters are the learner's recommended runner settings.
type OptimalParameters struct {
	FieldID                string  `json:"field_id"`
	SensorCheckIntervalSec int     `json:"sensor_check_interval_sec"`
	MinFlowRateThreshold   float64 `json:"min_flow_rate_threshold"`
	MaxDurationMin         float64 `json:"max_duration_min"`
	ToleranceCm            float64 `json:"tolerance_cm"`
	BasedOnSamples         int     `json:"based_on_samples"`
}
