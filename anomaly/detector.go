// Package anomaly implements pure anomaly detection over irrigation
// monitoring samples. Detection is free of I/O so the rules can be
// property-tested in isolation; the runner owns persistence and reaction.
package anomaly

import (
	"fmt"

	"github.com/paddyops/awd/awd"
)

// Input carries everything one detection pass needs.
type Input struct {
	Sample     awd.MonitoringSample
	Previous   *awd.MonitoringSample
	History    []awd.MonitoringSample
	NoRiseRun  int     // consecutive below-minimum-flow samples before this one
	TargetCm   float64 // target water level for the run
	MinFlowCm  float64 // minimum acceptable flow rate, cm/min
}

// Detect evaluates one monitoring sample and returns any anomalies, in the
// fixed order low_flow, rapid_drop, no_rise, overflow_risk. The caller
// terminates the run on the first critical entry.
func Detect(in Input) []awd.Anomaly {
	minFlow := in.MinFlowCm
	if minFlow == 0 {
		minFlow = awd.DefaultMinFlowRateCmPerMin
	}

	var found []awd.Anomaly

	// low_flow: positive-but-weak inflow. Exactly minFlow is acceptable.
	if in.Sample.FlowRateCmPerMin >= 0 && in.Sample.FlowRateCmPerMin < minFlow {
		found = append(found, awd.Anomaly{
			Type:        awd.AnomalyLowFlow,
			Severity:    awd.SeverityWarning,
			Description: fmt.Sprintf("flow rate %.3f cm/min below minimum %.3f cm/min", in.Sample.FlowRateCmPerMin, minFlow),
			Metrics: map[string]float64{
				"flow_rate_cm_per_min": in.Sample.FlowRateCmPerMin,
				"min_flow_rate":        minFlow,
			},
		})
	}

	// rapid_drop: level fell more than the threshold since the last sample.
	if in.Previous != nil {
		if drop := in.Previous.WaterLevelCm - in.Sample.WaterLevelCm; drop > awd.RapidDropThresholdCm {
			found = append(found, awd.Anomaly{
				Type:        awd.AnomalyRapidDrop,
				Severity:    awd.SeverityCritical,
				Description: fmt.Sprintf("water level dropped %.1f cm since previous sample", drop),
				Metrics: map[string]float64{
					"drop_cm":        drop,
					"previous_level": in.Previous.WaterLevelCm,
					"current_level":  in.Sample.WaterLevelCm,
				},
			})
		}
	}

	// no_rise: stagnant inflow across consecutive samples. The run counter
	// includes this sample when its flow is below minimum.
	if in.Sample.FlowRateCmPerMin < minFlow && in.NoRiseRun+1 >= awd.NoRiseThreshold {
		found = append(found, awd.Anomaly{
			Type:        awd.AnomalyNoRise,
			Severity:    awd.SeverityCritical,
			Description: fmt.Sprintf("no water level rise across %d consecutive samples", in.NoRiseRun+1),
			Metrics: map[string]float64{
				"consecutive_samples": float64(in.NoRiseRun + 1),
				"flow_rate":           in.Sample.FlowRateCmPerMin,
			},
		})
	}

	// overflow_risk: strictly above target plus margin.
	if in.Sample.WaterLevelCm > in.TargetCm+awd.OverflowMarginCm {
		found = append(found, awd.Anomaly{
			Type:        awd.AnomalyOverflowRisk,
			Severity:    awd.SeverityCritical,
			Description: fmt.Sprintf("water level %.1f cm exceeds target %.1f cm by more than %.0f cm", in.Sample.WaterLevelCm, in.TargetCm, awd.OverflowMarginCm),
			Metrics: map[string]float64{
				"current_level": in.Sample.WaterLevelCm,
				"target_level":  in.TargetCm,
			},
		})
	}

	return found
}

// SensorFailure builds the anomaly the runner raises when a sample cannot
// be obtained. It is critical by definition.
func SensorFailure(fieldID string, attempts int) awd.Anomaly {
	return awd.Anomaly{
		Type:        awd.AnomalySensorFailure,
		Severity:    awd.SeverityCritical,
		Description: fmt.Sprintf("no water level reading for field %s after %d attempts", fieldID, attempts),
		Metrics:     map[string]float64{"attempts": float64(attempts)},
	}
}

// FirstCritical returns the first critical anomaly, if any.
func FirstCritical(anomalies []awd.Anomaly) (awd.Anomaly, bool) {
	for _, a := range anomalies {
		if a.Critical() {
			return a, true
		}
	}
	return awd.Anomaly{}, false
}
