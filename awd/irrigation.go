package awd

import (
	"time"
)

// ScheduleStatus is the lifecycle state of a persisted irrigation run.
type ScheduleStatus string

const (
	StatusActive    ScheduleStatus = "active"
	StatusCompleted ScheduleStatus = "completed"
	StatusFailed    ScheduleStatus = "failed"
	StatusCancelled ScheduleStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s ScheduleStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IrrigationConfig parameterizes a single irrigation run.
type IrrigationConfig struct {
	FieldID              string  `json:"field_id"`
	TargetLevelCm        float64 `json:"target_level_cm"`
	ToleranceCm          float64 `json:"tolerance_cm"`
	MaxDurationMin       float64 `json:"max_duration_min"`
	SensorCheckInterval  int     `json:"sensor_check_interval_sec"`
	MinFlowRateCmPerMin  float64 `json:"min_flow_rate_cm_per_min"`
	EmergencyStopLevelCm float64 `json:"emergency_stop_level_cm"`
	TargetFlowRateM3S    float64 `json:"target_flow_rate_m3s,omitempty"`
	FieldAreaM2          float64 `json:"field_area_m2,omitempty"`
}

// WithDefaults fills any zero-valued tuning knob with the runner defaults.
func (c IrrigationConfig) WithDefaults() IrrigationConfig {
	if c.ToleranceCm == 0 {
		c.ToleranceCm = DefaultToleranceCm
	}
	if c.MaxDurationMin == 0 {
		c.MaxDurationMin = DefaultMaxDurationMin
	}
	if c.SensorCheckInterval == 0 {
		c.SensorCheckInterval = DefaultSensorCheckIntervalSec
	}
	if c.MinFlowRateCmPerMin == 0 {
		c.MinFlowRateCmPerMin = DefaultMinFlowRateCmPerMin
	}
	if c.EmergencyStopLevelCm == 0 {
		c.EmergencyStopLevelCm = DefaultEmergencyStopLevelCm
	}
	if c.FieldAreaM2 == 0 {
		c.FieldAreaM2 = DefaultFieldAreaM2
	}
	return c
}

// IrrigationSchedule is the persistent record of one irrigation run.
type IrrigationSchedule struct {
	ID                  string         `json:"id" db:"id"`
	FieldID             string         `json:"field_id" db:"field_id"`
	ScheduledStart      time.Time      `json:"scheduled_start" db:"scheduled_start"`
	ActualEnd           *time.Time     `json:"actual_end,omitempty" db:"actual_end"`
	InitialLevelCm      float64        `json:"initial_level_cm" db:"initial_level_cm"`
	TargetLevelCm       float64        `json:"target_level_cm" db:"target_level_cm"`
	FinalLevelCm        *float64       `json:"final_level_cm,omitempty" db:"final_level_cm"`
	WaterVolumeLiters   *float64       `json:"water_volume_liters,omitempty" db:"water_volume_liters"`
	AvgFlowRateCmPerMin *float64       `json:"avg_flow_rate_cm_per_min,omitempty" db:"avg_flow_rate_cm_per_min"`
	Status              ScheduleStatus `json:"status" db:"status"`
}

// IrrigationStatus is the live, cached view of an active run. It is a
// superset of the schedule row and round-trips through the KV cache as JSON.
type IrrigationStatus struct {
	ScheduleID              string         `json:"schedule_id"`
	FieldID                 string         `json:"field_id"`
	Status                  ScheduleStatus `json:"status"`
	StartedAt               time.Time      `json:"started_at"`
	InitialLevelCm          float64        `json:"initial_level_cm"`
	TargetLevelCm           float64        `json:"target_level_cm"`
	CurrentLevelCm          float64        `json:"current_level_cm"`
	FlowRateCmPerMin        float64        `json:"flow_rate_cm_per_min"`
	EstimatedCompletionTime *time.Time     `json:"estimated_completion_time,omitempty"`
	AnomaliesDetected       int            `json:"anomalies_detected"`
	LastSampleAt            time.Time      `json:"last_sample_at"`
}

// MonitoringSample is one observation taken by the irrigation runner.
type MonitoringSample struct {
	ScheduleID       string    `json:"schedule_id" db:"schedule_id"`
	FieldID          string    `json:"field_id" db:"field_id"`
	Time             time.Time `json:"time" db:"time"`
	WaterLevelCm     float64   `json:"water_level_cm" db:"water_level_cm"`
	FlowRateCmPerMin float64   `json:"flow_rate_cm_per_min" db:"flow_rate_cm_per_min"`
	SensorID         string    `json:"sensor_id" db:"sensor_id"`
}

// AnomalyType classifies irrigation anomalies.
type AnomalyType string

const (
	AnomalyLowFlow       AnomalyType = "low_flow"
	AnomalyNoRise        AnomalyType = "no_rise"
	AnomalyRapidDrop     AnomalyType = "rapid_drop"
	AnomalySensorFailure AnomalyType = "sensor_failure"
	AnomalyOverflowRisk  AnomalyType = "overflow_risk"
)

// AnomalySeverity grades an anomaly. A critical anomaly terminates the run.
type AnomalySeverity string

const (
	SeverityWarning  AnomalySeverity = "warning"
	SeverityCritical AnomalySeverity = "critical"
)

// Anomaly is a detected irregularity during an irrigation run.
type Anomaly struct {
	Type        AnomalyType        `json:"type"`
	Severity    AnomalySeverity    `json:"severity"`
	Description string             `json:"description"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// Critical reports whether the anomaly must terminate the run.
func (a Anomaly) Critical() bool { return a.Severity == SeverityCritical }

// PerformanceRecord summarizes a completed irrigation for the learner.
type PerformanceRecord struct {
	FieldID             string    `json:"field_id" db:"field_id"`
	ScheduleID          string    `json:"schedule_id" db:"schedule_id"`
	StartTime           time.Time `json:"start_time" db:"start_time"`
	EndTime             time.Time `json:"end_time" db:"end_time"`
	InitialLevelCm      float64   `json:"initial_level_cm" db:"initial_level_cm"`
	TargetLevelCm       float64   `json:"target_level_cm" db:"target_level_cm"`
	AchievedLevelCm     float64   `json:"achieved_level_cm" db:"achieved_level_cm"`
	TotalDurationMin    float64   `json:"total_duration_min" db:"total_duration_min"`
	WaterVolumeLiters   float64   `json:"water_volume_liters" db:"water_volume_liters"`
	AvgFlowRateCmPerMin float64   `json:"avg_flow_rate_cm_per_min" db:"avg_flow_rate_cm_per_min"`
	EfficiencyScore     float64   `json:"efficiency_score" db:"efficiency_score"`
}

// EfficiencyScore combines target accuracy (70%) with duration efficiency
// (30%, full marks at six hours or less). The result is always in [0, 1].
func EfficiencyScore(achievedLevelCm, targetLevelCm, totalDurationMin float64) float64 {
	score := 0.0
	if diff := achievedLevelCm - targetLevelCm; diff < 1 && diff > -1 {
		score += 0.7
	}
	if totalDurationMin > 0 {
		ratio := 360 / totalDurationMin
		if ratio > 1 {
			ratio = 1
		}
		score += 0.3 * ratio
	}
	return score
}

// GateCommand is an instruction for the canal-side actuator. GateLevel 1
// means fully closed; levels 2-4 open progressively wider.
type GateCommand struct {
	StationCode       string    `json:"station_code"`
	GateLevel         int       `json:"gate_level"`
	StartTime         time.Time `json:"start_time"`
	FieldID           string    `json:"field_id"`
	TargetFlowRateM3S float64   `json:"target_flow_rate_m3s,omitempty"`
}

const (
	GateLevelClosed = 1
	GateLevelMax    = 4
)

// CommandStatus is the actuator's view of a previously sent command.
type CommandStatus struct {
	Complete  bool      `json:"complete"`
	GateLevel int       `json:"gate_level"`
	StartTime time.Time `json:"start_time"`
}

// StopReason explains why an irrigation run was stopped short of target.
type StopReason string

const (
	StopAnomalyCritical    StopReason = "anomaly_critical"
	StopTimeout            StopReason = "timeout"
	StopAnomalyDetected    StopReason = "anomaly_detected"
	StopMonitoringError    StopReason = "monitoring_error"
	StopExternalCommand    StopReason = "external_command"
	StopShutdown           StopReason = "shutdown"
	StopGateUnacknowledged StopReason = "gate_close_unacknowledged"
)
