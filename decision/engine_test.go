package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/events"
	"github.com/paddyops/awd/fieldcfg"
	"github.com/paddyops/awd/learn"
	"github.com/paddyops/awd/runner"
)

type fakeConfigStore struct {
	cfg awd.FieldConfig
	err error
}

func (f *fakeConfigStore) Get(context.Context, string) (awd.FieldConfig, error) {
	return f.cfg, f.err
}

func (f *fakeConfigStore) Advance(context.Context, string) (awd.FieldConfig, error) {
	return f.cfg, f.err
}

type fakeSensors struct {
	level       float64
	levelErr    error
	moisture    float64
	hasMoisture bool
	rainfallMm  float64
	need        awd.IrrigationNeed
}

func (f *fakeSensors) CurrentWaterLevel(_ context.Context, fieldID string) (awd.WaterLevelReading, error) {
	if f.levelErr != nil {
		return awd.WaterLevelReading{}, f.levelErr
	}
	return awd.WaterLevelReading{FieldID: fieldID, WaterLevelCm: f.level, Source: awd.SourceSensor}, nil
}

func (f *fakeSensors) CurrentMoisture(_ context.Context, fieldID string) (awd.MoistureReading, error) {
	if !f.hasMoisture {
		return awd.MoistureReading{}, errors.New("no moisture sensor")
	}
	return awd.MoistureReading{FieldID: fieldID, MoisturePercent: f.moisture}, nil
}

func (f *fakeSensors) CurrentRainfall(_ context.Context, fieldID string) (awd.RainfallData, error) {
	return awd.RainfallData{FieldID: fieldID, AmountMm: f.rainfallMm}, nil
}

func (f *fakeSensors) CheckIrrigationNeed(_ context.Context, cfg awd.FieldConfig) (awd.IrrigationNeed, error) {
	need := f.need
	need.FieldID = cfg.FieldID
	return need, nil
}

type fakeLearner struct {
	prediction awd.PerformancePrediction
	params     awd.OptimalParameters
	err        error
}

func (f *fakeLearner) PredictPerformance(context.Context, string, learn.Conditions) (awd.PerformancePrediction, error) {
	return f.prediction, f.err
}

func (f *fakeLearner) OptimalParameters(context.Context, string) (awd.OptimalParameters, error) {
	return f.params, f.err
}

type fakeRunner struct {
	activeID  string
	status    awd.IrrigationStatus
	started   []awd.IrrigationConfig
	stopped   []awd.StopReason
	startErr  error
	nextRunID string
}

func (f *fakeRunner) Start(_ context.Context, cfg awd.IrrigationConfig) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, cfg)
	return f.nextRunID, nil
}

func (f *fakeRunner) Stop(_ context.Context, _ string, reason awd.StopReason) (string, error) {
	if f.activeID == "" {
		return "", runner.ErrNotActive
	}
	f.stopped = append(f.stopped, reason)
	id := f.activeID
	f.activeID = ""
	return id, nil
}

func (f *fakeRunner) Status(context.Context, string) (awd.IrrigationStatus, error) {
	return f.status, nil
}

func (f *fakeRunner) ActiveSchedule(string) (string, bool) {
	return f.activeID, f.activeID != ""
}

func wettingField(week int) awd.FieldConfig {
	return awd.FieldConfig{
		FieldID:            "field-1",
		PlantingMethod:     awd.PlantingTransplanted,
		StartDate:          time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		CurrentWeek:        week,
		CurrentPhase:       awd.PhaseWetting,
		IsActive:           true,
		TargetWaterLevelCm: 10,
	}
}

func newEngine(fields ConfigStore, sensors SensorGateway, l Learner, run IrrigationRunner) *Engine {
	clock := &awd.FixedClock{T: time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)}
	pub := events.NewPublisher(nil, slog.Default())
	return New(fields, sensors, l, run, pub, clock, slog.Default())
}

func TestDecide_NotConfigured(t *testing.T) {
	fields := &fakeConfigStore{err: fmt.Errorf("%w: field-1", fieldcfg.ErrNotFound)}
	e := newEngine(fields, &fakeSensors{}, nil, &fakeRunner{})

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err)
	assert.Equal(t, awd.ActionMaintain, d.Outcome.Action())
	assert.Equal(t, "Field AWD control not active", d.Outcome.Reason())
}

func TestDecide_WettingDryFieldNoRain(t *testing.T) {
	fields := &fakeConfigStore{cfg: wettingField(2)}
	sensors := &fakeSensors{level: 4}
	e := newEngine(fields, sensors, nil, &fakeRunner{})

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err)

	start, ok := d.Outcome.(awd.StartIrrigation)
	require.True(t, ok, "dry wetting field must start irrigation")
	assert.Equal(t, 10.0, start.TargetLevelCm)
	assert.Contains(t, start.Why, "4cm")
	assert.Contains(t, start.Why, "10cm")
}

func TestDecide_WettingRainfallSufficient(t *testing.T) {
	fields := &fakeConfigStore{cfg: wettingField(2)}
	sensors := &fakeSensors{level: 8, rainfallMm: 25}
	e := newEngine(fields, sensors, nil, &fakeRunner{})

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err)

	// 8 cm + 25 mm/10 = 10.5 cm >= 10 cm target.
	assert.Equal(t, awd.ActionStopIrrigation, d.Outcome.Action())
	assert.Contains(t, d.Outcome.Reason(), "Rainfall")
}

func TestDecide_WettingTargetAchieved(t *testing.T) {
	fields := &fakeConfigStore{cfg: wettingField(2)}
	sensors := &fakeSensors{level: 10.5}
	e := newEngine(fields, sensors, nil, &fakeRunner{})

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err)
	assert.Equal(t, awd.ActionMaintain, d.Outcome.Action())
	assert.Contains(t, d.Outcome.Reason(), "Target achieved")
}

func TestDecide_FertilizerNotificationAtPhaseWeek(t *testing.T) {
	// Transplanted week 1 is a wetting phase with fertilizer due.
	cfg := wettingField(1)
	cfg.TargetWaterLevelCm = 5
	fields := &fakeConfigStore{cfg: cfg}
	sensors := &fakeSensors{level: 2}
	e := newEngine(fields, sensors, nil, &fakeRunner{})

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err)

	require.Len(t, d.Notifications, 1)
	assert.Equal(t, awd.NotifyFertilizer, d.Notifications[0].Type)
	assert.Equal(t, awd.PriorityHigh, d.Notifications[0].Priority)
}

func TestDecide_DryingCriticalMoisture(t *testing.T) {
	cfg := wettingField(3)
	cfg.CurrentPhase = awd.PhaseDrying
	cfg.TargetWaterLevelCm = -10
	fields := &fakeConfigStore{cfg: cfg}
	sensors := &fakeSensors{level: -8, hasMoisture: true, moisture: 15}
	e := newEngine(fields, sensors, nil, &fakeRunner{})

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err)

	start, ok := d.Outcome.(awd.StartIrrigation)
	require.True(t, ok, "critically dry soil must trigger emergency irrigation")
	assert.Equal(t, 10.0, start.TargetLevelCm)

	require.Len(t, d.Notifications, 1)
	assert.Equal(t, awd.NotifyEmergency, d.Notifications[0].Type)
	assert.Equal(t, awd.PriorityHigh, d.Notifications[0].Priority)
}

func TestDecide_DryingContinues(t *testing.T) {
	cfg := wettingField(3)
	cfg.CurrentPhase = awd.PhaseDrying
	fields := &fakeConfigStore{cfg: cfg}
	sensors := &fakeSensors{level: -5, hasMoisture: true, moisture: 40,
		need: awd.IrrigationNeed{Reason: awd.NeedWithinThresholds}}
	e := newEngine(fields, sensors, nil, &fakeRunner{})

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err)
	assert.Equal(t, awd.ActionStopIrrigation, d.Outcome.Action())
	assert.Contains(t, d.Outcome.Reason(), "Week 3")
}

func TestDecide_Harvest(t *testing.T) {
	cfg := wettingField(13)
	cfg.CurrentPhase = awd.PhaseHarvest
	fields := &fakeConfigStore{cfg: cfg}
	e := newEngine(fields, &fakeSensors{level: 2}, nil, &fakeRunner{})

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err)
	assert.Equal(t, awd.ActionStopIrrigation, d.Outcome.Action())

	require.Len(t, d.Notifications, 1)
	assert.Equal(t, awd.NotifyPhaseChange, d.Notifications[0].Type)
	assert.Equal(t, awd.PriorityHigh, d.Notifications[0].Priority)
}

func TestDecide_Preparation(t *testing.T) {
	cfg := wettingField(0)
	cfg.CurrentPhase = awd.PhasePreparation
	fields := &fakeConfigStore{cfg: cfg}
	e := newEngine(fields, &fakeSensors{level: 0}, nil, &fakeRunner{})

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err)

	start, ok := d.Outcome.(awd.StartIrrigation)
	require.True(t, ok)
	assert.Equal(t, 10.0, start.TargetLevelCm)
	assert.Equal(t, 2880.0, start.EstimatedDurationMin)
}

func TestDecide_ActiveRunMaintains(t *testing.T) {
	fields := &fakeConfigStore{cfg: wettingField(2)}
	run := &fakeRunner{
		activeID: "sched-1",
		status:   awd.IrrigationStatus{ScheduleID: "sched-1", CurrentLevelCm: 7, TargetLevelCm: 10},
	}
	e := newEngine(fields, &fakeSensors{level: 7}, nil, run)

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err)

	m, ok := d.Outcome.(awd.Maintain)
	require.True(t, ok)
	assert.Contains(t, m.Why, "sched-1")
	assert.Equal(t, "sched-1", m.Metadata["schedule_id"])
	assert.Equal(t, 7.0, m.Metadata["current_level_cm"])
}

func TestDecide_LearnerEnrichment(t *testing.T) {
	fields := &fakeConfigStore{cfg: wettingField(2)}
	l := &fakeLearner{prediction: awd.PerformancePrediction{
		EstimatedDurationMin: 240,
		ExpectedFlowRate:     0.04,
		Confidence:           0.8,
		SampleCount:          7,
	}}
	e := newEngine(fields, &fakeSensors{level: 4}, l, &fakeRunner{})

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err)

	start := d.Outcome.(awd.StartIrrigation)
	require.NotNil(t, start.Prediction)
	assert.Equal(t, 240.0, start.EstimatedDurationMin)
	assert.Equal(t, 7, start.Prediction.SampleCount)
	assert.NotNil(t, start.RecommendedStart)
}

func TestDecide_LearnerFailureTolerated(t *testing.T) {
	fields := &fakeConfigStore{cfg: wettingField(2)}
	l := &fakeLearner{err: errors.New("history unavailable")}
	e := newEngine(fields, &fakeSensors{level: 4}, l, &fakeRunner{})

	d, err := e.Decide(context.Background(), "field-1")
	require.NoError(t, err, "learner failure must not fail the decision")

	start := d.Outcome.(awd.StartIrrigation)
	assert.Nil(t, start.Prediction)
	assert.Zero(t, start.EstimatedDurationMin)
}

func TestExecute_Start(t *testing.T) {
	run := &fakeRunner{nextRunID: "sched-9"}
	l := &fakeLearner{params: awd.OptimalParameters{
		SensorCheckIntervalSec: 180,
		MinFlowRateThreshold:   0.04,
		MaxDurationMin:         300,
		ToleranceCm:            0.5,
	}}
	e := newEngine(&fakeConfigStore{cfg: wettingField(2)}, &fakeSensors{level: 4}, l, run)

	res, err := e.Execute(context.Background(), "field-1", awd.ControlDecision{
		FieldID: "field-1",
		Outcome: awd.StartIrrigation{TargetLevelCm: 10},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "sched-9", res.ScheduleID)

	require.Len(t, run.started, 1)
	assert.Equal(t, 180, run.started[0].SensorCheckInterval, "tuned parameters must reach the runner")
	assert.Equal(t, 0.5, run.started[0].ToleranceCm)
}

func TestExecute_StopIdle(t *testing.T) {
	e := newEngine(&fakeConfigStore{cfg: wettingField(2)}, &fakeSensors{}, nil, &fakeRunner{})

	res, err := e.Execute(context.Background(), "field-1", awd.ControlDecision{
		FieldID: "field-1",
		Outcome: awd.StopIrrigation{Why: "drain"},
	})
	require.NoError(t, err, "stopping an idle field is not an error")
	assert.True(t, res.Success)
	assert.Empty(t, res.ScheduleID)
}

func TestStatus_IdleIncludesRecommendation(t *testing.T) {
	e := newEngine(&fakeConfigStore{cfg: wettingField(2)}, &fakeSensors{level: 4}, nil, &fakeRunner{})

	st, err := e.Status(context.Background(), "field-1")
	require.NoError(t, err)
	assert.False(t, st.Active)
	require.NotNil(t, st.Recommendation)
	assert.Equal(t, awd.ActionStartIrrigation, st.Recommendation.Outcome.Action())
}

func TestStatus_Active(t *testing.T) {
	run := &fakeRunner{activeID: "sched-1", status: awd.IrrigationStatus{ScheduleID: "sched-1", Status: awd.StatusActive}}
	e := newEngine(&fakeConfigStore{cfg: wettingField(2)}, &fakeSensors{}, nil, run)

	st, err := e.Status(context.Background(), "field-1")
	require.NoError(t, err)
	assert.True(t, st.Active)
	require.NotNil(t, st.Status)
	assert.Equal(t, "sched-1", st.Status.ScheduleID)
	assert.Nil(t, st.Recommendation)
}
