package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paddyops/awd/awd"
)

// InsertSample records one monitoring observation.
func (s *DB) InsertSample(ctx context.Context, m awd.MonitoringSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO irrigation_monitoring
			(schedule_id, field_id, time, water_level_cm, flow_rate_cm_per_min, sensor_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ScheduleID, m.FieldID, m.Time, m.WaterLevelCm, m.FlowRateCmPerMin, m.SensorID)
	if err != nil {
		return fmt.Errorf("insert sample for %s: %w", m.ScheduleID, err)
	}
	return nil
}

// InsertAnomaly records a detected anomaly for a run.
func (s *DB) InsertAnomaly(ctx context.Context, scheduleID, fieldID string, at time.Time, a awd.Anomaly) error {
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return fmt.Errorf("marshal anomaly metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO irrigation_anomalies
			(schedule_id, field_id, detected_at, type, severity, description, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		scheduleID, fieldID, at, string(a.Type), string(a.Severity), a.Description, metrics)
	if err != nil {
		return fmt.Errorf("insert anomaly for %s: %w", scheduleID, err)
	}
	return nil
}

// CountAnomaliesSince counts anomalies for a field in a trailing window.
func (s *DB) CountAnomaliesSince(ctx context.Context, fieldID string, since time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM irrigation_anomalies
		WHERE field_id = $1 AND detected_at >= $2`, fieldID, since)
	if err != nil {
		return 0, fmt.Errorf("count anomalies for %s: %w", fieldID, err)
	}
	return n, nil
}

// InsertPerformance appends a completed run's performance summary. The
// caller must have flipped the schedule to completed first.
func (s *DB) InsertPerformance(ctx context.Context, p awd.PerformanceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO irrigation_performance
			(field_id, schedule_id, start_time, end_time, initial_level_cm,
			 target_level_cm, achieved_level_cm, total_duration_min,
			 water_volume_liters, avg_flow_rate_cm_per_min, efficiency_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.FieldID, p.ScheduleID, p.StartTime, p.EndTime, p.InitialLevelCm,
		p.TargetLevelCm, p.AchievedLevelCm, p.TotalDurationMin,
		p.WaterVolumeLiters, p.AvgFlowRateCmPerMin, p.EfficiencyScore)
	if err != nil {
		return fmt.Errorf("insert performance for %s: %w", p.ScheduleID, err)
	}
	return nil
}

// ListPerformanceSince returns performance records for a field newer than
// the given instant, most recent first.
func (s *DB) ListPerformanceSince(ctx context.Context, fieldID string, since time.Time) ([]awd.PerformanceRecord, error) {
	var records []awd.PerformanceRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT field_id, schedule_id, start_time, end_time, initial_level_cm,
		       target_level_cm, achieved_level_cm, total_duration_min,
		       water_volume_liters, avg_flow_rate_cm_per_min, efficiency_score
		FROM irrigation_performance
		WHERE field_id = $1 AND end_time >= $2
		ORDER BY end_time DESC`, fieldID, since)
	if err != nil {
		return nil, fmt.Errorf("list performance for %s: %w", fieldID, err)
	}
	return records, nil
}

// LatestWaterLevel returns the most recent water level reading for a field
// from the sensor ingestion tables. ErrNotFound means the field has no
// sensor data at all.
func (s *DB) LatestWaterLevel(ctx context.Context, fieldID string) (awd.WaterLevelReading, error) {
	var r awd.WaterLevelReading
	err := s.db.GetContext(ctx, &r, `
		SELECT time, sensor_id, field_id, water_level_cm, source
		FROM water_level_readings
		WHERE field_id = $1
		ORDER BY time DESC
		LIMIT 1`, fieldID)
	if err != nil {
		return awd.WaterLevelReading{}, wrapNoRows(err, "latest water level for "+fieldID)
	}
	return r, nil
}

// LatestMoisture returns the most recent soil moisture reading, or
// ErrNotFound when the field has no moisture sensor.
func (s *DB) LatestMoisture(ctx context.Context, fieldID string) (awd.MoistureReading, error) {
	var r awd.MoistureReading
	err := s.db.GetContext(ctx, &r, `
		SELECT time, sensor_id, field_id, moisture_percent, depth_cm
		FROM moisture_readings
		WHERE field_id = $1
		ORDER BY time DESC
		LIMIT 1`, fieldID)
	if err != nil {
		return awd.MoistureReading{}, wrapNoRows(err, "latest moisture for "+fieldID)
	}
	return r, nil
}
