package store

import (
	"context"
	"fmt"
	"time"

	"github.com/paddyops/awd/awd"
)

// InsertPrediction records a learner forecast so it can later be compared
// against the run it predicted.
func (s *DB) InsertPrediction(ctx context.Context, p awd.PerformancePrediction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO irrigation_predictions
			(field_id, estimated_duration_min, expected_flow_rate_cm_per_min,
			 expected_volume_liters, confidence, sample_count,
			 duration_ci95_min, duration_ci95_max, season, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.FieldID, p.EstimatedDurationMin, p.ExpectedFlowRate,
		p.ExpectedVolumeLiters, p.Confidence, p.SampleCount,
		p.DurationCI95Min, p.DurationCI95Max, p.Season, p.GeneratedAt)
	if err != nil {
		return fmt.Errorf("insert prediction for %s: %w", p.FieldID, err)
	}
	return nil
}

// ListPredictionsSince returns forecasts for a field newer than the given
// instant, most recent first.
func (s *DB) ListPredictionsSince(ctx context.Context, fieldID string, since time.Time) ([]awd.PerformancePrediction, error) {
	var predictions []awd.PerformancePrediction
	err := s.db.SelectContext(ctx, &predictions, `
		SELECT field_id, estimated_duration_min, expected_flow_rate_cm_per_min,
		       expected_volume_liters, confidence, sample_count,
		       duration_ci95_min, duration_ci95_max, season, generated_at
		FROM irrigation_predictions
		WHERE field_id = $1 AND generated_at >= $2
		ORDER BY generated_at DESC`, fieldID, since)
	if err != nil {
		return nil, fmt.Errorf("list predictions for %s: %w", fieldID, err)
	}
	return predictions, nil
}
