package learn

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/paddyops/awd/awd"
)

// PatternType names a recognized behavioral pattern.
type PatternType string

const (
	PatternHighFlowVariability     PatternType = "high_flow_variability"
	PatternTimeDependentEfficiency PatternType = "time_dependent_efficiency"
	PatternFrequentAnomalies       PatternType = "frequent_anomalies"
	PatternImprovingEfficiency     PatternType = "improving_efficiency"
	PatternDecliningEfficiency     PatternType = "declining_efficiency"
)

// Pattern detection thresholds.
const (
	flowVariabilityCV      = 0.3
	hourlyEfficiencySpread = 0.2
	minRunsPerHour         = 2
	minDistinctHours       = 3
	frequentAnomalyCount   = 5
	efficiencyTrendDelta   = 0.1
	minSamplesForTrend     = 6
)

// Pattern is one detected behavioral pattern with its evidence.
type Pattern struct {
	Type           PatternType        `json:"type"`
	Description    string             `json:"description"`
	Threshold      float64            `json:"threshold"`
	Observed       float64            `json:"observed"`
	Recommendation string             `json:"recommendation"`
	Details        map[string]float64 `json:"details,omitempty"`
}

// Patterns inspects a field's history and returns every pattern whose test
// fires. An empty slice means no pattern was detected.
func (l *Learner) Patterns(ctx context.Context, fieldID string) ([]Pattern, error) {
	now := l.clock.Now()
	records, err := l.db.ListPerformanceSince(ctx, fieldID, now.Add(-patternWindow))
	if err != nil {
		return nil, fmt.Errorf("patterns for %s: %w", fieldID, err)
	}

	var patterns []Pattern

	if p, ok := flowVariability(records, now.Add(-flowVarWindow)); ok {
		patterns = append(patterns, p)
	}
	if p, ok := hourlyEfficiency(records); ok {
		patterns = append(patterns, p)
	}

	anomalies, err := l.db.CountAnomaliesSince(ctx, fieldID, now.Add(-flowVarWindow))
	if err != nil {
		return nil, fmt.Errorf("patterns for %s: %w", fieldID, err)
	}
	if anomalies > frequentAnomalyCount {
		patterns = append(patterns, Pattern{
			Type:           PatternFrequentAnomalies,
			Description:    fmt.Sprintf("%d anomalies detected in the last 30 days", anomalies),
			Threshold:      frequentAnomalyCount,
			Observed:       float64(anomalies),
			Recommendation: "Inspect gate hardware and sensor placement; consider tightening tolerance",
		})
	}

	if p, ok := efficiencyTrend(records); ok {
		patterns = append(patterns, p)
	}

	return patterns, nil
}

// flowVariability flags fields whose flow rate swings widely between runs
// (coefficient of variation above 0.3 over the last 30 days, n >= 5).
func flowVariability(records []awd.PerformanceRecord, since time.Time) (Pattern, bool) {
	var flows []float64
	for _, r := range records {
		if r.EndTime.Before(since) {
			continue
		}
		flows = append(flows, r.AvgFlowRateCmPerMin)
	}
	if len(flows) < awd.MinSamplesForPrediction {
		return Pattern{}, false
	}

	mean, stddev := meanStddev(flows)
	if mean <= 0 {
		return Pattern{}, false
	}
	cv := stddev / mean
	if cv <= flowVariabilityCV {
		return Pattern{}, false
	}
	return Pattern{
		Type:           PatternHighFlowVariability,
		Description:    fmt.Sprintf("Flow rate varies widely between runs (CV %.2f over %d runs)", cv, len(flows)),
		Threshold:      flowVariabilityCV,
		Observed:       cv,
		Recommendation: "Check canal supply pressure and gate calibration",
		Details: map[string]float64{
			"mean_flow_cm_per_min": mean,
			"stddev":               stddev,
			"sample_count":         float64(len(flows)),
		},
	}, true
}

// hourlyEfficiency flags fields whose efficiency depends strongly on the
// start hour: at least three hours with more than two runs each, and a
// best-to-worst spread above 0.2.
func hourlyEfficiency(records []awd.PerformanceRecord) (Pattern, bool) {
	byHour := map[int][]float64{}
	for _, r := range records {
		h := r.StartTime.Hour()
		byHour[h] = append(byHour[h], r.EfficiencyScore)
	}

	type hourAvg struct {
		hour int
		avg  float64
	}
	var qualified []hourAvg
	for h, scores := range byHour {
		if len(scores) <= minRunsPerHour {
			continue
		}
		avg, _ := meanStddev(scores)
		qualified = append(qualified, hourAvg{hour: h, avg: avg})
	}
	if len(qualified) < minDistinctHours {
		return Pattern{}, false
	}

	sort.Slice(qualified, func(i, j int) bool { return qualified[i].avg > qualified[j].avg })
	best, worst := qualified[0], qualified[len(qualified)-1]
	spread := best.avg - worst.avg
	if spread <= hourlyEfficiencySpread {
		return Pattern{}, false
	}
	return Pattern{
		Type: PatternTimeDependentEfficiency,
		Description: fmt.Sprintf("Runs starting at %02d:00 outperform %02d:00 starts by %.2f efficiency",
			best.hour, worst.hour, spread),
		Threshold:      hourlyEfficiencySpread,
		Observed:       spread,
		Recommendation: fmt.Sprintf("Prefer starting irrigation around %02d:00", best.hour),
		Details: map[string]float64{
			"best_hour":        float64(best.hour),
			"best_efficiency":  best.avg,
			"worst_hour":       float64(worst.hour),
			"worst_efficiency": worst.avg,
		},
	}, true
}

// efficiencyTrend compares the older and newer halves of the window and
// flags a sustained improvement or decline.
func efficiencyTrend(records []awd.PerformanceRecord) (Pattern, bool) {
	if len(records) < minSamplesForTrend {
		return Pattern{}, false
	}

	// Records arrive most recent first.
	mid := len(records) / 2
	var newer, older []float64
	for i, r := range records {
		if i < mid {
			newer = append(newer, r.EfficiencyScore)
		} else {
			older = append(older, r.EfficiencyScore)
		}
	}
	newerAvg, _ := meanStddev(newer)
	olderAvg, _ := meanStddev(older)
	delta := newerAvg - olderAvg

	switch {
	case delta > efficiencyTrendDelta:
		return Pattern{
			Type:           PatternImprovingEfficiency,
			Description:    fmt.Sprintf("Efficiency improved by %.2f over the window", delta),
			Threshold:      efficiencyTrendDelta,
			Observed:       delta,
			Recommendation: "Current settings are working; keep them",
			Details:        map[string]float64{"recent_avg": newerAvg, "earlier_avg": olderAvg},
		}, true
	case delta < -efficiencyTrendDelta:
		return Pattern{
			Type:           PatternDecliningEfficiency,
			Description:    fmt.Sprintf("Efficiency declined by %.2f over the window", -delta),
			Threshold:      efficiencyTrendDelta,
			Observed:       -delta,
			Recommendation: "Re-run parameter tuning and inspect for hardware drift",
			Details:        map[string]float64{"recent_avg": newerAvg, "earlier_avg": olderAvg},
		}, true
	default:
		return Pattern{}, false
	}
}
