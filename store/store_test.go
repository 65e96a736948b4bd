package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddyops/awd/awd"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewWithDB(sqlx.NewDb(raw, "sqlmock")), mock
}

func TestGetFieldConfig(t *testing.T) {
	db, mock := newMockDB(t)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT field_id, planting_method, start_date`).
		WithArgs("field-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"field_id", "planting_method", "start_date", "current_week",
			"current_phase", "target_water_level", "active", "updated_at",
		}).AddRow("field-1", "transplanted", start, 2, "wetting", 5.0, true, start))

	cfg, err := db.GetFieldConfig(context.Background(), "field-1")
	require.NoError(t, err)
	assert.Equal(t, awd.PlantingTransplanted, cfg.PlantingMethod)
	assert.Equal(t, awd.PhaseWetting, cfg.CurrentPhase)
	assert.Equal(t, 2, cfg.CurrentWeek)
	assert.True(t, cfg.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFieldConfig_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT field_id, planting_method, start_date`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"field_id"}))

	_, err := db.GetFieldConfig(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseSchedule_OnlyActiveRows(t *testing.T) {
	db, mock := newMockDB(t)
	end := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	// Second close finds no active row: idempotent stop surfaces ErrNotFound
	// so the runner can treat it as already stopped.
	mock.ExpectExec(`UPDATE irrigation_schedules`).
		WithArgs("sched-1", "failed", end, 6.0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.CloseSchedule(context.Background(), "sched-1", awd.StatusFailed, end, 6.0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseSchedule_RejectsNonTerminalStatus(t *testing.T) {
	db, _ := newMockDB(t)
	err := db.CloseSchedule(context.Background(), "sched-1", awd.StatusActive, time.Now(), 6.0)
	assert.Error(t, err)
}

func TestInsertPerformance(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	rec := awd.PerformanceRecord{
		FieldID:             "field-1",
		ScheduleID:          "sched-1",
		StartTime:           now.Add(-2 * time.Hour),
		EndTime:             now,
		InitialLevelCm:      4,
		TargetLevelCm:       10,
		AchievedLevelCm:     9.5,
		TotalDurationMin:    120,
		WaterVolumeLiters:   55000,
		AvgFlowRateCmPerMin: 0.046,
		EfficiencyScore:     1.0,
	}

	mock.ExpectExec(`INSERT INTO irrigation_performance`).
		WithArgs(rec.FieldID, rec.ScheduleID, rec.StartTime, rec.EndTime,
			rec.InitialLevelCm, rec.TargetLevelCm, rec.AchievedLevelCm,
			rec.TotalDurationMin, rec.WaterVolumeLiters, rec.AvgFlowRateCmPerMin,
			rec.EfficiencyScore).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, db.InsertPerformance(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPrediction(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	p := awd.PerformancePrediction{
		FieldID:              "field-1",
		EstimatedDurationMin: 130,
		ExpectedFlowRate:     0.05,
		ExpectedVolumeLiters: 52000,
		Confidence:           0.8,
		SampleCount:          6,
		DurationCI95Min:      110,
		DurationCI95Max:      150,
		Season:               string(awd.SeasonNormal),
		GeneratedAt:          now,
	}

	mock.ExpectExec(`INSERT INTO irrigation_predictions`).
		WithArgs(p.FieldID, p.EstimatedDurationMin, p.ExpectedFlowRate,
			p.ExpectedVolumeLiters, p.Confidence, p.SampleCount,
			p.DurationCI95Min, p.DurationCI95Max, p.Season, p.GeneratedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, db.InsertPrediction(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStationForField_NoMapping(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT station_code FROM field_gate_mapping`).
		WithArgs("field-9").
		WillReturnRows(sqlmock.NewRows([]string{"station_code"}))

	_, err := db.StationForField(context.Background(), "field-9")
	assert.ErrorIs(t, err, ErrNoStation)
}

func TestListOpenCommands(t *testing.T) {
	db, mock := newMockDB(t)
	since := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT scada_command_id, field_id, gate_name`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{
			"scada_command_id", "field_id", "gate_name", "gate_level",
			"target_flow_rate", "command_time", "status", "completed_at",
		}).
			AddRow("cmd-1", "field-1", "ST01", 3, 8.0, since.Add(5*time.Minute), "sent", nil).
			AddRow("cmd-2", "field-2", "ST02", 1, 0.0, since.Add(10*time.Minute), "sent", nil))

	entries, err := db.ListOpenCommands(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "cmd-1", entries[0].CommandID)
	assert.Equal(t, 3, entries[0].GateLevel)
}
