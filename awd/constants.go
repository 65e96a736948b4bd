package awd

// Tunable control constants. Changing any of these at runtime must go
// through the config watcher so a config event is emitted.
const (
	// CriticalMoistureThreshold is the soil moisture percentage below which
	// a drying field gets an emergency irrigation.
	CriticalMoistureThreshold = 20.0

	// RainfallThresholdMm is the rainfall amount above which expected rain
	// counts toward the target water level.
	RainfallThresholdMm = 5.0

	// MinSamplesForPrediction is the minimum number of similar historical
	// runs required before the learner trusts a weighted prediction.
	MinSamplesForPrediction = 5

	// Seasonal duration multipliers applied to predicted durations.
	SeasonalMultiplierDry    = 1.2
	SeasonalMultiplierWet    = 0.9
	SeasonalMultiplierNormal = 1.0
)

// Runner defaults, used when an IrrigationConfig leaves a knob unset.
const (
	DefaultToleranceCm            = 1.0
	DefaultSensorCheckIntervalSec = 300
	DefaultMaxDurationMin         = 1440.0
	DefaultMinFlowRateCmPerMin    = 0.05
	DefaultEmergencyStopLevelCm   = 15.0
	DefaultFieldAreaM2            = 1000.0
)

// OverflowMarginCm is how far above target the level must rise before the
// detector raises overflow_risk. The boundary itself is not a breach.
const OverflowMarginCm = 5.0

// RapidDropThresholdCm is the per-sample level drop that raises rapid_drop.
const RapidDropThresholdCm = 2.0

// NoRiseThreshold is the count of consecutive below-minimum-flow samples
// after which no_rise becomes critical.
const NoRiseThreshold = 3

// Season labels for the learner's duration multiplier.
type Season string

const (
	SeasonDry    Season = "dry"
	SeasonWet    Season = "wet"
	SeasonNormal Season = "normal"
)

// SeasonForMonth maps a calendar month to the local irrigation season:
// Nov-Feb dry, Jun-Oct wet, otherwise normal.
func SeasonForMonth(month int) Season {
	switch {
	case month >= 11 || month <= 2:
		return SeasonDry
	case month >= 6 && month <= 10:
		return SeasonWet
	default:
		return SeasonNormal
	}
}

// Multiplier returns the seasonal duration multiplier.
func (s Season) Multiplier() float64 {
	switch s {
	case SeasonDry:
		return SeasonalMultiplierDry
	case SeasonWet:
		return SeasonalMultiplierWet
	default:
		return SeasonalMultiplierNormal
	}
}
