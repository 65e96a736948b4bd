// Package learn derives predictions, tuned runner parameters, and pattern
// summaries from historical irrigation performance. All statistics are
// computed on demand from the performance and anomaly tables; each forecast
// is written back to the store so its accuracy can be reviewed against the
// run it predicted.
package learn

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/paddyops/awd/awd"
)

// History windows.
const (
	predictionWindow = 90 * 24 * time.Hour
	parameterWindow  = 60 * 24 * time.Hour
	patternWindow    = 60 * 24 * time.Hour
	flowVarWindow    = 30 * 24 * time.Hour
)

// Similarity bounds for prediction sample selection.
const (
	initialLevelBandCm = 3.0
	targetLevelBandCm  = 2.0
	minUsableScore     = 0.5
)

// Conditions describe the upcoming run the prediction is for.
type Conditions struct {
	InitialLevelCm float64
	TargetLevelCm  float64
}

// HistoryStore is the slice of the persistent store the learner uses: it
// reads performance and anomaly history and writes back its forecasts.
type HistoryStore interface {
	ListPerformanceSince(ctx context.Context, fieldID string, since time.Time) ([]awd.PerformanceRecord, error)
	CountAnomaliesSince(ctx context.Context, fieldID string, since time.Time) (int, error)
	InsertPrediction(ctx context.Context, p awd.PerformancePrediction) error
}

// Learner computes predictions and recommendations for one deployment.
type Learner struct {
	db     HistoryStore
	clock  awd.Clock
	logger *slog.Logger
}

// New creates a learner.
func New(db HistoryStore, clock awd.Clock, logger *slog.Logger) *Learner {
	return &Learner{db: db, clock: clock, logger: logger}
}

// defaultPrediction is returned when history is too thin to trust. The
// duration estimate assumes one hour per centimetre of depth to fill.
func (l *Learner) defaultPrediction(fieldID string, cond Conditions, now time.Time) awd.PerformancePrediction {
	depth := cond.TargetLevelCm - cond.InitialLevelCm
	if depth < 1 {
		depth = 1
	}
	return awd.PerformancePrediction{
		FieldID:              fieldID,
		EstimatedDurationMin: depth * 60,
		ExpectedFlowRate:     1.0 / 60.0,
		ExpectedVolumeLiters: 0,
		Confidence:           0.3,
		SampleCount:          0,
		Season:               string(awd.SeasonForMonth(int(now.Month()))),
		GeneratedAt:          now.UTC(),
	}
}

// PredictPerformance forecasts duration, flow rate, and volume for an
// upcoming run from similar historical runs. Records are weighted by
// recency, similarity of starting level, and efficiency; the duration
// estimate carries a 95% confidence interval and a seasonal multiplier.
func (l *Learner) PredictPerformance(ctx context.Context, fieldID string, cond Conditions) (awd.PerformancePrediction, error) {
	now := l.clock.Now()
	records, err := l.db.ListPerformanceSince(ctx, fieldID, now.Add(-predictionWindow))
	if err != nil {
		return awd.PerformancePrediction{}, fmt.Errorf("predict performance for %s: %w", fieldID, err)
	}

	var similar []awd.PerformanceRecord
	for _, r := range records {
		if math.Abs(r.InitialLevelCm-cond.InitialLevelCm) <= initialLevelBandCm &&
			math.Abs(r.TargetLevelCm-cond.TargetLevelCm) <= targetLevelBandCm &&
			r.EfficiencyScore > minUsableScore {
			similar = append(similar, r)
		}
	}

	if len(similar) < awd.MinSamplesForPrediction {
		l.logger.Debug("Insufficient history for prediction, using defaults",
			"field_id", fieldID, "similar_samples", len(similar))
		p := l.defaultPrediction(fieldID, cond, now)
		l.persistPrediction(ctx, p)
		return p, nil
	}

	var (
		weightSum   float64
		durationSum float64
		flowSum     float64
		volumeSum   float64
		durations   []float64
	)
	for _, r := range similar {
		daysAgo := now.Sub(r.EndTime).Hours() / 24
		w := math.Exp(-daysAgo/30) *
			math.Exp(-math.Abs(r.InitialLevelCm-cond.InitialLevelCm)/5) *
			r.EfficiencyScore
		weightSum += w
		durationSum += w * r.TotalDurationMin
		flowSum += w * r.AvgFlowRateCmPerMin
		volumeSum += w * r.WaterVolumeLiters
		durations = append(durations, r.TotalDurationMin)
	}

	season := awd.SeasonForMonth(int(now.Month()))
	duration := durationSum / weightSum * season.Multiplier()

	mean, stddev := meanStddev(durations)
	ci := 1.96 * stddev / math.Sqrt(float64(len(durations)))

	// Confidence grows with sample count, capped at 0.95.
	confidence := math.Min(0.95, 0.5+float64(len(similar))*0.05)

	p := awd.PerformancePrediction{
		FieldID:              fieldID,
		EstimatedDurationMin: duration,
		ExpectedFlowRate:     flowSum / weightSum,
		ExpectedVolumeLiters: volumeSum / weightSum,
		Confidence:           confidence,
		SampleCount:          len(similar),
		DurationCI95Min:      math.Max(0, mean-ci),
		DurationCI95Max:      mean + ci,
		Season:               string(season),
		GeneratedAt:          now.UTC(),
	}
	l.persistPrediction(ctx, p)
	return p, nil
}

// persistPrediction records the forecast. A write failure is logged and
// otherwise ignored: the caller still gets a usable prediction.
func (l *Learner) persistPrediction(ctx context.Context, p awd.PerformancePrediction) {
	if err := l.db.InsertPrediction(ctx, p); err != nil {
		l.logger.Warn("Failed to persist prediction", "field_id", p.FieldID, "error", err)
	}
}

// OptimalParameters tunes the runner knobs for a field from its last 60
// days of efficient runs. Thin history yields the stock defaults.
func (l *Learner) OptimalParameters(ctx context.Context, fieldID string) (awd.OptimalParameters, error) {
	defaults := awd.OptimalParameters{
		FieldID:                fieldID,
		SensorCheckIntervalSec: awd.DefaultSensorCheckIntervalSec,
		MinFlowRateThreshold:   awd.DefaultMinFlowRateCmPerMin,
		MaxDurationMin:         awd.DefaultMaxDurationMin,
		ToleranceCm:            awd.DefaultToleranceCm,
	}

	now := l.clock.Now()
	records, err := l.db.ListPerformanceSince(ctx, fieldID, now.Add(-parameterWindow))
	if err != nil {
		return awd.OptimalParameters{}, fmt.Errorf("optimal parameters for %s: %w", fieldID, err)
	}

	var efficient []awd.PerformanceRecord
	for _, r := range records {
		if r.EfficiencyScore > 0.6 {
			efficient = append(efficient, r)
		}
	}
	if len(efficient) < awd.MinSamplesForPrediction {
		return defaults, nil
	}

	var durations []float64
	minFlow := math.Inf(1)
	for _, r := range efficient {
		durations = append(durations, r.TotalDurationMin)
		if r.AvgFlowRateCmPerMin < minFlow {
			minFlow = r.AvgFlowRateCmPerMin
		}
	}
	avgDuration, stddev := meanStddev(durations)

	interval := 600
	switch {
	case avgDuration < 120:
		interval = 180
	case avgDuration < 360:
		interval = 300
	}

	anomalies, err := l.db.CountAnomaliesSince(ctx, fieldID, now.Add(-parameterWindow))
	if err != nil {
		return awd.OptimalParameters{}, fmt.Errorf("optimal parameters for %s: %w", fieldID, err)
	}
	tolerance := 1.0
	if anomalies > 5 {
		tolerance = 0.5
	}

	return awd.OptimalParameters{
		FieldID:                fieldID,
		SensorCheckIntervalSec: interval,
		MinFlowRateThreshold:   math.Max(0.03, minFlow*0.8),
		MaxDurationMin:         math.Round(avgDuration + 2*stddev),
		ToleranceCm:            tolerance,
		BasedOnSamples:         len(efficient),
	}, nil
}

func meanStddev(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)-1))
}
