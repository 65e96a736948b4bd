package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/events"
	"github.com/paddyops/awd/store"
)

type fakeScheduleStore struct {
	mu           sync.Mutex
	schedules    map[string]awd.IrrigationSchedule
	samples      []awd.MonitoringSample
	anomalies    []awd.Anomaly
	performance  []awd.PerformanceRecord
	closeCalls   int
	sampleErr    error
	completeTime time.Time
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{schedules: map[string]awd.IrrigationSchedule{}}
}

func (f *fakeScheduleStore) InsertSchedule(_ context.Context, s awd.IrrigationSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[s.ID] = s
	return nil
}

func (f *fakeScheduleStore) CompleteSchedule(_ context.Context, id string, end time.Time, final, volume, avgFlow float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.schedules[id]
	s.Status = awd.StatusCompleted
	s.ActualEnd = &end
	s.FinalLevelCm = &final
	s.WaterVolumeLiters = &volume
	s.AvgFlowRateCmPerMin = &avgFlow
	f.schedules[id] = s
	f.completeTime = end
	return nil
}

func (f *fakeScheduleStore) CloseSchedule(_ context.Context, id string, status awd.ScheduleStatus, end time.Time, final float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok || s.Status != awd.StatusActive {
		return store.ErrNotFound
	}
	f.closeCalls++
	s.Status = status
	s.ActualEnd = &end
	s.FinalLevelCm = &final
	f.schedules[id] = s
	return nil
}

func (f *fakeScheduleStore) InsertSample(_ context.Context, m awd.MonitoringSample) error {
	if f.sampleErr != nil {
		return f.sampleErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, m)
	return nil
}

func (f *fakeScheduleStore) InsertAnomaly(_ context.Context, _, _ string, _ time.Time, a awd.Anomaly) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anomalies = append(f.anomalies, a)
	return nil
}

func (f *fakeScheduleStore) InsertPerformance(_ context.Context, p awd.PerformanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.performance = append(f.performance, p)
	return nil
}

func (f *fakeScheduleStore) schedule(id string) awd.IrrigationSchedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedules[id]
}

func (f *fakeScheduleStore) anomalyTypes() []awd.AnomalyType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []awd.AnomalyType
	for _, a := range f.anomalies {
		types = append(types, a.Type)
	}
	return types
}

type fakeStatusCache struct {
	mu       sync.Mutex
	statuses map[string]awd.IrrigationStatus
	pointers map[string]string
}

func newFakeStatusCache() *fakeStatusCache {
	return &fakeStatusCache{
		statuses: map[string]awd.IrrigationStatus{},
		pointers: map[string]string{},
	}
}

func (f *fakeStatusCache) PutStatus(_ context.Context, st awd.IrrigationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[st.ScheduleID] = st
	f.pointers[st.FieldID] = st.ScheduleID
	return nil
}

func (f *fakeStatusCache) GetStatus(_ context.Context, scheduleID string) (awd.IrrigationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[scheduleID]
	if !ok {
		return awd.IrrigationStatus{}, errors.New("miss")
	}
	return st, nil
}

func (f *fakeStatusCache) ActiveScheduleID(_ context.Context, fieldID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.pointers[fieldID]
	if !ok {
		return "", errors.New("miss")
	}
	return id, nil
}

func (f *fakeStatusCache) ClearActive(_ context.Context, fieldID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pointers, fieldID)
	return nil
}

type fakeLevels struct {
	mu     sync.Mutex
	levels []float64
	idx    int
	err    error
}

func (f *fakeLevels) CurrentWaterLevel(_ context.Context, fieldID string) (awd.WaterLevelReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return awd.WaterLevelReading{}, f.err
	}
	level := f.levels[f.idx]
	if f.idx < len(f.levels)-1 {
		f.idx++
	}
	return awd.WaterLevelReading{
		FieldID:      fieldID,
		WaterLevelCm: level,
		Source:       awd.SourceSensor,
		SensorID:     "ws-1",
	}, nil
}

type fakeGate struct {
	mu      sync.Mutex
	opens   []int
	closes  int
	openErr error
	acked   bool
}

func (f *fakeGate) OpenForFlow(_ context.Context, _ string, _ float64) (string, error) {
	return f.Open(nil, "", 3)
}

func (f *fakeGate) Open(_ context.Context, _ string, level int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return "", f.openErr
	}
	f.opens = append(f.opens, level)
	return "open-cmd", nil
}

func (f *fakeGate) Close(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return "close-cmd", nil
}

func (f *fakeGate) CommandStatus(context.Context, string) (awd.CommandStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return awd.CommandStatus{Complete: f.acked}, nil
}

func (f *fakeGate) ResolveStation(context.Context, string) (string, error) {
	return "ST01", nil
}

func (f *fakeGate) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type harness struct {
	runner *Runner
	db     *fakeScheduleStore
	cache  *fakeStatusCache
	levels *fakeLevels
	gate   *fakeGate
	clock  *awd.FixedClock
}

func newHarness(levels []float64) *harness {
	h := &harness{
		db:     newFakeScheduleStore(),
		cache:  newFakeStatusCache(),
		levels: &fakeLevels{levels: levels},
		gate:   &fakeGate{acked: true},
		clock:  &awd.FixedClock{T: time.Date(2026, 7, 1, 6, 0, 0, 0, time.UTC)},
	}
	pub := events.NewPublisher(nil, slog.Default())
	h.runner = New(h.db, h.cache, h.levels, h.gate, pub, h.clock, slog.Default())
	h.runner.gateAckTimeout = 20 * time.Millisecond
	h.runner.gateAckPoll = time.Millisecond
	return h
}

func (h *harness) start(t *testing.T, cfg awd.IrrigationConfig) string {
	t.Helper()
	id, err := h.runner.Start(context.Background(), cfg)
	require.NoError(t, err)
	return id
}

// tick advances the clock by one interval and runs one monitoring pass.
func (h *harness) tick(t *testing.T, fieldID string) {
	t.Helper()
	h.runner.mu.Lock()
	ru := h.runner.active[fieldID]
	h.runner.mu.Unlock()
	require.NotNil(t, ru, "no active run for %s", fieldID)

	h.clock.Advance(time.Duration(ru.cfg.SensorCheckInterval) * time.Second)
	ru.mu.Lock()
	defer ru.mu.Unlock()
	if !ru.terminated {
		h.runner.tickLocked(context.Background(), ru)
	}
}

func wettingConfig(fieldID string) awd.IrrigationConfig {
	return awd.IrrigationConfig{
		FieldID:       fieldID,
		TargetLevelCm: 10,
	}
}

func TestStart(t *testing.T) {
	h := newHarness([]float64{6})
	defer h.runner.Shutdown(context.Background())

	id := h.start(t, wettingConfig("field-1"))

	sched := h.db.schedule(id)
	assert.Equal(t, awd.StatusActive, sched.Status)
	assert.Equal(t, 6.0, sched.InitialLevelCm)
	assert.Equal(t, 10.0, sched.TargetLevelCm)
	assert.Equal(t, []int{3}, h.gate.opens, "no flow target means the generic open level")

	got, ok := h.runner.ActiveSchedule("field-1")
	require.True(t, ok)
	assert.Equal(t, id, got)

	st, err := h.runner.Status(context.Background(), "field-1")
	require.NoError(t, err)
	assert.Equal(t, awd.StatusActive, st.Status)
}

func TestStart_AlreadyActive(t *testing.T) {
	h := newHarness([]float64{6})
	defer h.runner.Shutdown(context.Background())

	h.start(t, wettingConfig("field-1"))
	_, err := h.runner.Start(context.Background(), wettingConfig("field-1"))
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestStart_AtTarget(t *testing.T) {
	h := newHarness([]float64{10})

	_, err := h.runner.Start(context.Background(), wettingConfig("field-1"))
	assert.Error(t, err)
	_, ok := h.runner.ActiveSchedule("field-1")
	assert.False(t, ok)
}

func TestStart_GateFailureAborts(t *testing.T) {
	h := newHarness([]float64{6})
	h.gate.openErr = errors.New("scada unreachable")

	_, err := h.runner.Start(context.Background(), wettingConfig("field-1"))
	require.Error(t, err)

	_, ok := h.runner.ActiveSchedule("field-1")
	assert.False(t, ok, "a failed start must not stay registered")
	for _, s := range h.db.schedules {
		assert.Equal(t, awd.StatusFailed, s.Status)
	}
}

func TestComplete_BoundaryInclusive(t *testing.T) {
	// Start at 6 cm; target 10, tolerance 1: a sample of exactly 9 cm
	// completes the run.
	h := newHarness([]float64{6, 9})
	id := h.start(t, wettingConfig("field-1"))

	h.tick(t, "field-1")

	sched := h.db.schedule(id)
	assert.Equal(t, awd.StatusCompleted, sched.Status)
	require.NotNil(t, sched.FinalLevelCm)
	assert.Equal(t, 9.0, *sched.FinalLevelCm)
	require.NotNil(t, sched.WaterVolumeLiters)
	assert.Equal(t, 30000.0, *sched.WaterVolumeLiters, "3 cm over the default 1000 m2")

	require.Len(t, h.db.performance, 1)
	perf := h.db.performance[0]
	assert.Equal(t, 9.0, perf.AchievedLevelCm)
	assert.InDelta(t, 0.3, perf.EfficiencyScore, 1e-9, "1 cm short of target forfeits the accuracy component")

	assert.Equal(t, 1, h.gate.closeCount())
	_, ok := h.runner.ActiveSchedule("field-1")
	assert.False(t, ok)
}

func TestComplete_UnacknowledgedCloseMarksFailed(t *testing.T) {
	// The fill reaches target, but the close command is never acknowledged:
	// the paddy is still taking water, so the run must not be recorded as a
	// success or train the learner.
	h := newHarness([]float64{6, 9})
	h.gate.acked = false
	id := h.start(t, wettingConfig("field-1"))

	h.tick(t, "field-1")

	sched := h.db.schedule(id)
	assert.Equal(t, awd.StatusFailed, sched.Status,
		"an unacknowledged close degrades the completion to failed")
	assert.Empty(t, h.db.performance, "a run that cannot be sealed records no performance")
	assert.Equal(t, 1, h.gate.closeCount())
	_, ok := h.runner.ActiveSchedule("field-1")
	assert.False(t, ok)
}

func TestEmergencyStopBoundaryInclusive(t *testing.T) {
	// Exactly the emergency level (default 15 cm) must stop the run; the
	// detector's overflow test is strictly above target+margin, so only the
	// runner's own guard fires here.
	h := newHarness([]float64{6, 15})
	id := h.start(t, wettingConfig("field-1"))

	h.tick(t, "field-1")

	sched := h.db.schedule(id)
	assert.Equal(t, awd.StatusFailed, sched.Status)
	assert.Contains(t, h.db.anomalyTypes(), awd.AnomalyOverflowRisk)
	assert.Empty(t, h.db.performance)
}

func TestOverflowStopsBeforeCompletion(t *testing.T) {
	// A sample that jumps past target+5 must fail the run even though it is
	// also past the completion boundary.
	h := newHarness([]float64{6, 7, 16})
	id := h.start(t, wettingConfig("field-1"))

	h.tick(t, "field-1") // 7 cm, flow fine
	h.tick(t, "field-1") // 16 cm, overflow

	sched := h.db.schedule(id)
	assert.Equal(t, awd.StatusFailed, sched.Status)
	assert.Contains(t, h.db.anomalyTypes(), awd.AnomalyOverflowRisk)
	assert.Equal(t, 1, h.gate.closeCount(), "critical anomaly must close the gate")
	assert.Empty(t, h.db.performance, "failed runs record no performance")
	_, ok := h.runner.ActiveSchedule("field-1")
	assert.False(t, ok)

	// No further ticks run for this schedule.
	samples := len(h.db.samples)
	h.runner.mu.Lock()
	_, stillActive := h.runner.active["field-1"]
	h.runner.mu.Unlock()
	assert.False(t, stillActive)
	assert.Len(t, h.db.samples, samples)
}

func TestNoRiseFailsAfterThirdStagnantTick(t *testing.T) {
	// Level stuck at 6 cm: each tick sees zero flow. The third stagnant
	// sample raises critical no_rise and fails the run.
	h := newHarness([]float64{6, 6, 6, 6})
	id := h.start(t, wettingConfig("field-1"))

	h.tick(t, "field-1")
	h.tick(t, "field-1")
	assert.Equal(t, awd.StatusActive, h.db.schedule(id).Status, "two stagnant ticks are only warnings")

	h.tick(t, "field-1")
	sched := h.db.schedule(id)
	assert.Equal(t, awd.StatusFailed, sched.Status)
	types := h.db.anomalyTypes()
	assert.Contains(t, types, awd.AnomalyNoRise)
	assert.Contains(t, types, awd.AnomalyLowFlow)
	assert.Equal(t, 1, h.gate.closeCount())
}

func TestLowFlowBoostsGateOnce(t *testing.T) {
	h := newHarness([]float64{6, 6, 6})
	h.start(t, wettingConfig("field-1"))

	h.tick(t, "field-1")
	h.tick(t, "field-1")

	// Initial open at 3, then exactly one corrective open at 4.
	assert.Equal(t, []int{3, 4}, h.gate.opens)
}

func TestTimeout(t *testing.T) {
	h := newHarness([]float64{6, 7})
	cfg := wettingConfig("field-1")
	cfg.MaxDurationMin = 4 // one 300 s tick overruns it
	id := h.start(t, cfg)

	h.tick(t, "field-1")

	sched := h.db.schedule(id)
	assert.Equal(t, awd.StatusCancelled, sched.Status, "timeout is a cancellation, not a failure")
	assert.Equal(t, 1, h.gate.closeCount())
}

func TestSensorFailureStopsAfterRetry(t *testing.T) {
	h := newHarness([]float64{6})
	id := h.start(t, wettingConfig("field-1"))
	h.levels.err = errors.New("sensor offline")

	h.tick(t, "field-1")
	assert.Equal(t, awd.StatusActive, h.db.schedule(id).Status, "first failure only raises the anomaly")

	h.tick(t, "field-1")
	assert.Equal(t, awd.StatusCancelled, h.db.schedule(id).Status)
	assert.Contains(t, h.db.anomalyTypes(), awd.AnomalySensorFailure)
}

func TestConsecutiveTickErrors(t *testing.T) {
	h := newHarness([]float64{6, 7, 7, 7})
	id := h.start(t, wettingConfig("field-1"))
	h.db.sampleErr = errors.New("db down")

	h.tick(t, "field-1")
	h.tick(t, "field-1")
	assert.Equal(t, awd.StatusActive, h.db.schedule(id).Status)

	h.tick(t, "field-1")
	assert.Equal(t, awd.StatusCancelled, h.db.schedule(id).Status)
}

func TestStop_Idempotent(t *testing.T) {
	h := newHarness([]float64{6})
	id := h.start(t, wettingConfig("field-1"))

	got, err := h.runner.Stop(context.Background(), "field-1", awd.StopExternalCommand)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, awd.StatusCancelled, h.db.schedule(id).Status)
	assert.Equal(t, 1, h.db.closeCalls)

	_, err = h.runner.Stop(context.Background(), "field-1", awd.StopExternalCommand)
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Equal(t, 1, h.db.closeCalls, "a second stop must not close again")
	assert.Equal(t, 1, h.gate.closeCount())
}

func TestStop_UnacknowledgedCloseMarksFailed(t *testing.T) {
	h := newHarness([]float64{6})
	h.gate.acked = false
	id := h.start(t, wettingConfig("field-1"))

	_, err := h.runner.Stop(context.Background(), "field-1", awd.StopExternalCommand)
	require.NoError(t, err)
	assert.Equal(t, awd.StatusFailed, h.db.schedule(id).Status,
		"an unacknowledged close degrades the stop to failed")
}

func TestShutdown(t *testing.T) {
	h := newHarness([]float64{6})
	id1 := h.start(t, wettingConfig("field-1"))
	id2 := h.start(t, wettingConfig("field-2"))

	h.runner.Shutdown(context.Background())

	assert.Equal(t, awd.StatusCancelled, h.db.schedule(id1).Status)
	assert.Equal(t, awd.StatusCancelled, h.db.schedule(id2).Status)
	_, ok := h.runner.ActiveSchedule("field-1")
	assert.False(t, ok)
	_, ok = h.runner.ActiveSchedule("field-2")
	assert.False(t, ok)
}

func TestConcurrentStarts_OneWins(t *testing.T) {
	h := newHarness([]float64{6})
	defer h.runner.Shutdown(context.Background())

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.runner.Start(context.Background(), wettingConfig("field-1"))
		}(i)
	}
	wg.Wait()

	var successes, rejects int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyActive):
			rejects++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent start may win")
	assert.Equal(t, 9, rejects)
}
