package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paddyops/awd/awd"
)

// fieldConfigRow mirrors the field_configurations table.
type fieldConfigRow struct {
	FieldID          string    `db:"field_id"`
	PlantingMethod   string    `db:"planting_method"`
	StartDate        time.Time `db:"start_date"`
	CurrentWeek      int       `db:"current_week"`
	CurrentPhase     string    `db:"current_phase"`
	TargetWaterLevel float64   `db:"target_water_level"`
	Active           bool      `db:"active"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r fieldConfigRow) toDomain() awd.FieldConfig {
	return awd.FieldConfig{
		FieldID:            r.FieldID,
		PlantingMethod:     awd.PlantingMethod(r.PlantingMethod),
		StartDate:          r.StartDate,
		CurrentWeek:        r.CurrentWeek,
		CurrentPhase:       awd.Phase(r.CurrentPhase),
		TargetWaterLevelCm: r.TargetWaterLevel,
		IsActive:           r.Active,
	}
}

// GetFieldConfig loads the persistent configuration for a field. The
// NextPhaseDate and HasRainfallData fields are filled by the caller.
func (s *DB) GetFieldConfig(ctx context.Context, fieldID string) (awd.FieldConfig, error) {
	var row fieldConfigRow
	err := s.db.GetContext(ctx, &row, `
		SELECT field_id, planting_method, start_date, current_week,
		       current_phase, target_water_level, active, updated_at
		FROM field_configurations
		WHERE field_id = $1`, fieldID)
	if errors.Is(err, sql.ErrNoRows) {
		return awd.FieldConfig{}, ErrNotFound
	}
	if err != nil {
		return awd.FieldConfig{}, fmt.Errorf("get field config %s: %w", fieldID, err)
	}
	return row.toDomain(), nil
}

// InsertFieldConfig creates the persistent record for a newly initialized
// field.
func (s *DB) InsertFieldConfig(ctx context.Context, cfg awd.FieldConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO field_configurations
			(field_id, planting_method, start_date, current_week,
			 current_phase, target_water_level, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		cfg.FieldID, string(cfg.PlantingMethod), cfg.StartDate, cfg.CurrentWeek,
		string(cfg.CurrentPhase), cfg.TargetWaterLevelCm, cfg.IsActive)
	if err != nil {
		return fmt.Errorf("insert field config %s: %w", cfg.FieldID, err)
	}
	return nil
}

// UpdateFieldProgress advances the week, phase, and target level of a field
// in one statement so cache refresh can follow a consistent row.
func (s *DB) UpdateFieldProgress(ctx context.Context, fieldID string, week int, phase awd.Phase, targetLevelCm float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE field_configurations
		SET current_week = $2, current_phase = $3, target_water_level = $4, updated_at = NOW()
		WHERE field_id = $1`,
		fieldID, week, string(phase), targetLevelCm)
	if err != nil {
		return fmt.Errorf("update field progress %s: %w", fieldID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateField flips the active flag off. The row is kept for history.
func (s *DB) DeactivateField(ctx context.Context, fieldID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE field_configurations
		SET active = FALSE, updated_at = NOW()
		WHERE field_id = $1`, fieldID)
	if err != nil {
		return fmt.Errorf("deactivate field %s: %w", fieldID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveFields returns the IDs of all fields under AWD control.
func (s *DB) ListActiveFields(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT field_id FROM field_configurations WHERE active = TRUE ORDER BY field_id`)
	if err != nil {
		return nil, fmt.Errorf("list active fields: %w", err)
	}
	return ids, nil
}
