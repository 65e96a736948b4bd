// Package awd defines the core domain types for the AWD (Alternate Wetting
// and Drying) irrigation controller: phases, sensor readings, irrigation
// runs, anomalies, and control decisions.
package awd

import (
	"time"
)

// PlantingMethod identifies how the paddy was planted. The method selects
// which built-in AWD schedule applies to the field.
type PlantingMethod string

const (
	PlantingTransplanted PlantingMethod = "transplanted"
	PlantingDirectSeeded PlantingMethod = "direct-seeded"
)

// Valid reports whether the planting method is one of the known values.
func (m PlantingMethod) Valid() bool {
	return m == PlantingTransplanted || m == PlantingDirectSeeded
}

// Phase is a stage in the AWD growing calendar.
type Phase string

const (
	PhasePreparation Phase = "preparation"
	PhaseWetting     Phase = "wetting"
	PhaseDrying      Phase = "drying"
	PhaseHarvest     Phase = "harvest"
)

// WaterLevelSource distinguishes a direct sensor reading from a GIS-derived
// estimate.
type WaterLevelSource string

const (
	SourceSensor WaterLevelSource = "sensor"
	SourceGIS    WaterLevelSource = "gis"
)

// WaterLevelReading is the most recent observed water level for a field.
// Negative WaterLevelCm means the water table is below the soil surface.
type WaterLevelReading struct {
	Time         time.Time        `json:"time" db:"time"`
	SensorID     string           `json:"sensor_id,omitempty" db:"sensor_id"`
	FieldID      string           `json:"field_id" db:"field_id"`
	WaterLevelCm float64          `json:"water_level_cm" db:"water_level_cm"`
	Source       WaterLevelSource `json:"source" db:"source"`
}

// MoistureReading is a soil moisture observation. Not every field has a
// moisture sensor; callers must handle absence.
type MoistureReading struct {
	Time            time.Time `json:"time" db:"time"`
	SensorID        string    `json:"sensor_id" db:"sensor_id"`
	FieldID         string    `json:"field_id" db:"field_id"`
	MoisturePercent float64   `json:"moisture_percent" db:"moisture_percent"`
	DepthCm         float64   `json:"depth_cm" db:"depth_cm"`
}

// RainfallData carries observed or forecast rainfall for a field.
type RainfallData struct {
	FieldID  string             `json:"field_id"`
	AmountMm float64            `json:"amount_mm"`
	Time     time.Time          `json:"time"`
	Forecast []RainfallForecast `json:"forecast,omitempty"`
}

// RainfallForecast is a single forecast entry.
type RainfallForecast struct {
	Time     time.Time `json:"time"`
	AmountMm float64   `json:"amount_mm"`
}

// WeatherData is the current weather snapshot for a field.
type WeatherData struct {
	FieldID         string    `json:"field_id"`
	TemperatureC    float64   `json:"temperature_c"`
	HumidityPercent float64   `json:"humidity_percent"`
	Time            time.Time `json:"time"`
}

// IrrigationNeedReason classifies why (or why not) a field needs water.
type IrrigationNeedReason string

const (
	NeedWaterLevelThreshold IrrigationNeedReason = "water_level_threshold"
	NeedMoistureThreshold   IrrigationNeedReason = "moisture_threshold"
	NeedDryingDaysExceeded  IrrigationNeedReason = "drying_days_exceeded"
	NeedWithinThresholds    IrrigationNeedReason = "within_thresholds"
)

// IrrigationNeed is the composite result of CheckIrrigationNeed.
type IrrigationNeed struct {
	FieldID         string               `json:"field_id"`
	NeedsIrrigation bool                 `json:"needs_irrigation"`
	Reason          IrrigationNeedReason `json:"reason"`
	Data            map[string]any       `json:"data,omitempty"`
}

// FieldConfig is the cached per-field AWD configuration. It is created on
// initialization, advanced by the decision engine as calendar weeks pass,
// and removed only on explicit deactivation.
type FieldConfig struct {
	FieldID            string         `json:"field_id"`
	PlantingMethod     PlantingMethod `json:"planting_method"`
	StartDate          time.Time      `json:"start_date"`
	CurrentWeek        int            `json:"current_week"`
	CurrentPhase       Phase          `json:"current_phase"`
	NextPhaseDate      time.Time      `json:"next_phase_date"`
	IsActive           bool           `json:"is_active"`
	HasRainfallData    bool           `json:"has_rainfall_data"`
	TargetWaterLevelCm float64        `json:"target_water_level_cm"`
}

// NotificationPriority orders alert notifications.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

// NotificationType classifies alert notifications.
type NotificationType string

const (
	NotifyPhaseChange NotificationType = "phase_change"
	NotifyFertilizer  NotificationType = "fertilizer"
	NotifyEmergency   NotificationType = "emergency"
)

// Notification is an advisory message attached to a control decision or
// published on the alert topic.
type Notification struct {
	Type     NotificationType     `json:"type"`
	Priority NotificationPriority `json:"priority"`
	FieldID  string               `json:"field_id"`
	Message  string               `json:"message"`
	Time     time.Time            `json:"time"`
}
