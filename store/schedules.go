package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paddyops/awd/awd"
)

// InsertSchedule persists a new irrigation run with status active.
func (s *DB) InsertSchedule(ctx context.Context, sched awd.IrrigationSchedule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO irrigation_schedules
			(id, field_id, scheduled_start, initial_level_cm, target_level_cm, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sched.ID, sched.FieldID, sched.ScheduledStart,
		sched.InitialLevelCm, sched.TargetLevelCm, string(sched.Status))
	if err != nil {
		return fmt.Errorf("insert schedule %s: %w", sched.ID, err)
	}
	return nil
}

// GetSchedule loads a run by ID.
func (s *DB) GetSchedule(ctx context.Context, id string) (awd.IrrigationSchedule, error) {
	var sched awd.IrrigationSchedule
	err := s.db.GetContext(ctx, &sched, `
		SELECT id, field_id, scheduled_start, actual_end, initial_level_cm,
		       target_level_cm, final_level_cm, water_volume_liters,
		       avg_flow_rate_cm_per_min, status
		FROM irrigation_schedules
		WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return awd.IrrigationSchedule{}, ErrNotFound
	}
	if err != nil {
		return awd.IrrigationSchedule{}, fmt.Errorf("get schedule %s: %w", id, err)
	}
	return sched, nil
}

// GetActiveScheduleForField returns the single active run for a field, or
// ErrNotFound when the field is idle.
func (s *DB) GetActiveScheduleForField(ctx context.Context, fieldID string) (awd.IrrigationSchedule, error) {
	var sched awd.IrrigationSchedule
	err := s.db.GetContext(ctx, &sched, `
		SELECT id, field_id, scheduled_start, actual_end, initial_level_cm,
		       target_level_cm, final_level_cm, water_volume_liters,
		       avg_flow_rate_cm_per_min, status
		FROM irrigation_schedules
		WHERE field_id = $1 AND status = 'active'
		ORDER BY scheduled_start DESC
		LIMIT 1`, fieldID)
	if errors.Is(err, sql.ErrNoRows) {
		return awd.IrrigationSchedule{}, ErrNotFound
	}
	if err != nil {
		return awd.IrrigationSchedule{}, fmt.Errorf("get active schedule for %s: %w", fieldID, err)
	}
	return sched, nil
}

// CompleteSchedule finalizes a run that reached its target.
func (s *DB) CompleteSchedule(ctx context.Context, id string, end time.Time, finalLevelCm, volumeLiters, avgFlowRate float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE irrigation_schedules
		SET status = 'completed', actual_end = $2, final_level_cm = $3,
		    water_volume_liters = $4, avg_flow_rate_cm_per_min = $5
		WHERE id = $1`,
		id, end, finalLevelCm, volumeLiters, avgFlowRate)
	if err != nil {
		return fmt.Errorf("complete schedule %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseSchedule marks a run failed or cancelled with its final level.
func (s *DB) CloseSchedule(ctx context.Context, id string, status awd.ScheduleStatus, end time.Time, finalLevelCm float64) error {
	if !status.Terminal() {
		return fmt.Errorf("close schedule %s: %q is not a terminal status", id, status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE irrigation_schedules
		SET status = $2, actual_end = $3, final_level_cm = $4
		WHERE id = $1 AND status = 'active'`,
		id, string(status), end, finalLevelCm)
	if err != nil {
		return fmt.Errorf("close schedule %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
