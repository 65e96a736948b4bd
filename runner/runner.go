// Package runner executes irrigation runs: it opens the gate, samples the
// water level on a fixed interval, reacts to anomalies, and closes the gate
// when the run completes, fails, or is cancelled. Each active run owns one
// goroutine; the registry guarantees at most one run per field.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paddyops/awd/anomaly"
	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/events"
	"github.com/paddyops/awd/store"
)

// ErrAlreadyActive is returned when a start races an existing run on the
// same field. Exactly one of two concurrent starts wins.
var ErrAlreadyActive = errors.New("runner: irrigation already active for field")

// ErrNotActive is returned by Stop and Status when the field has no run.
var ErrNotActive = errors.New("runner: no active irrigation for field")

const (
	// historySize bounds the rolling sample window handed to the detector.
	historySize = 10

	// maxTickErrors is the consecutive internal-error budget before the run
	// is stopped with reason monitoring_error.
	maxTickErrors = 3

	// defaultOpenLevel is the gate level used when no target flow rate was
	// requested.
	defaultOpenLevel = 3
)

// ScheduleStore is the slice of the persistent store the runner writes.
type ScheduleStore interface {
	InsertSchedule(ctx context.Context, sched awd.IrrigationSchedule) error
	CompleteSchedule(ctx context.Context, id string, end time.Time, finalLevelCm, volumeLiters, avgFlowRate float64) error
	CloseSchedule(ctx context.Context, id string, status awd.ScheduleStatus, end time.Time, finalLevelCm float64) error
	InsertSample(ctx context.Context, m awd.MonitoringSample) error
	InsertAnomaly(ctx context.Context, scheduleID, fieldID string, at time.Time, a awd.Anomaly) error
	InsertPerformance(ctx context.Context, p awd.PerformanceRecord) error
}

// StatusCache is the live-status KV slice.
type StatusCache interface {
	PutStatus(ctx context.Context, st awd.IrrigationStatus) error
	GetStatus(ctx context.Context, scheduleID string) (awd.IrrigationStatus, error)
	ActiveScheduleID(ctx context.Context, fieldID string) (string, error)
	ClearActive(ctx context.Context, fieldID string) error
}

// LevelReader samples the field's water level.
type LevelReader interface {
	CurrentWaterLevel(ctx context.Context, fieldID string) (awd.WaterLevelReading, error)
}

// GateController is the actuator surface the runner drives.
type GateController interface {
	OpenForFlow(ctx context.Context, fieldID string, targetFlowRateM3S float64) (string, error)
	Open(ctx context.Context, fieldID string, level int) (string, error)
	Close(ctx context.Context, fieldID string) (string, error)
	CommandStatus(ctx context.Context, commandID string) (awd.CommandStatus, error)
	ResolveStation(ctx context.Context, fieldID string) (string, error)
}

// Runner owns all active irrigation runs in the process.
type Runner struct {
	db        ScheduleStore
	cache     StatusCache
	sensor    LevelReader
	gate      GateController
	publisher *events.Publisher
	clock     awd.Clock
	logger    *slog.Logger

	gateAckTimeout time.Duration
	gateAckPoll    time.Duration

	mu     sync.Mutex
	active map[string]*run
	wg     sync.WaitGroup
}

// run is the per-schedule state machine. Its fields past cancel are guarded
// by mu: the tick loop and external stops serialize on it, so ticks never
// overlap a stop for the same schedule.
type run struct {
	scheduleID string
	cfg        awd.IrrigationConfig
	startedAt  time.Time
	initialCm  float64
	cancel     context.CancelFunc

	mu             sync.Mutex
	terminated     bool
	prevSample     *awd.MonitoringSample
	lastLevel      float64
	history        []awd.MonitoringSample
	noRiseRun      int
	sensorFailures int
	tickErrors     int
	anomalyCount   int
	flowBoosted    bool
}

// New creates a runner.
func New(db ScheduleStore, cache StatusCache, sensor LevelReader, gate GateController, publisher *events.Publisher, clock awd.Clock, logger *slog.Logger) *Runner {
	return &Runner{
		db:             db,
		cache:          cache,
		sensor:         sensor,
		gate:           gate,
		publisher:      publisher,
		clock:          clock,
		logger:         logger,
		gateAckTimeout: 2 * time.Minute,
		gateAckPoll:    5 * time.Second,
		active:         map[string]*run{},
	}
}

// ActiveSchedule returns the schedule currently irrigating a field.
func (r *Runner) ActiveSchedule(fieldID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ru, ok := r.active[fieldID]
	if !ok {
		return "", false
	}
	return ru.scheduleID, true
}

// Start begins an irrigation run. It reads the initial level, reserves the
// field in the registry, persists the schedule, opens the gate, and arms
// the monitoring loop. A gate failure aborts the start: the schedule is
// marked failed and the field is released.
func (r *Runner) Start(ctx context.Context, cfg awd.IrrigationConfig) (string, error) {
	cfg = cfg.WithDefaults()

	reading, err := r.sensor.CurrentWaterLevel(ctx, cfg.FieldID)
	if err != nil {
		return "", fmt.Errorf("start irrigation for %s: %w", cfg.FieldID, err)
	}
	if reading.WaterLevelCm >= cfg.TargetLevelCm {
		return "", fmt.Errorf("start irrigation for %s: level %.1f cm already at or above target %.1f cm",
			cfg.FieldID, reading.WaterLevelCm, cfg.TargetLevelCm)
	}

	now := r.clock.Now()
	ru := &run{
		scheduleID: uuid.New().String(),
		cfg:        cfg,
		startedAt:  now,
		initialCm:  reading.WaterLevelCm,
		lastLevel:  reading.WaterLevelCm,
	}

	r.mu.Lock()
	if _, exists := r.active[cfg.FieldID]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrAlreadyActive, cfg.FieldID)
	}
	r.active[cfg.FieldID] = ru
	r.mu.Unlock()

	sched := awd.IrrigationSchedule{
		ID:             ru.scheduleID,
		FieldID:        cfg.FieldID,
		ScheduledStart: now,
		InitialLevelCm: reading.WaterLevelCm,
		TargetLevelCm:  cfg.TargetLevelCm,
		Status:         awd.StatusActive,
	}
	if err := r.db.InsertSchedule(ctx, sched); err != nil {
		r.removeActive(cfg.FieldID)
		return "", err
	}

	if cfg.TargetFlowRateM3S > 0 {
		_, err = r.gate.OpenForFlow(ctx, cfg.FieldID, cfg.TargetFlowRateM3S)
	} else {
		_, err = r.gate.Open(ctx, cfg.FieldID, defaultOpenLevel)
	}
	if err != nil {
		r.removeActive(cfg.FieldID)
		if closeErr := r.db.CloseSchedule(ctx, ru.scheduleID, awd.StatusFailed, r.clock.Now(), reading.WaterLevelCm); closeErr != nil {
			r.logger.Error("Failed to mark aborted schedule failed",
				"schedule_id", ru.scheduleID, "error", closeErr)
		}
		return "", fmt.Errorf("open gate for %s: %w", cfg.FieldID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ru.cancel = cancel
	r.wg.Add(1)
	go r.loop(runCtx, ru)
	activeRuns.Inc()
	runsStarted.Inc()

	r.putStatus(ctx, ru, awd.StatusActive, reading.WaterLevelCm, 0, nil)
	r.publisher.IrrigationStarted(ctx, events.IrrigationStartedEvent{
		ScheduleID:     ru.scheduleID,
		FieldID:        cfg.FieldID,
		InitialLevelCm: reading.WaterLevelCm,
		TargetLevelCm:  cfg.TargetLevelCm,
		StartedAt:      now.UTC(),
	})

	r.logger.Info("Irrigation started",
		"schedule_id", ru.scheduleID,
		"field_id", cfg.FieldID,
		"initial_level_cm", reading.WaterLevelCm,
		"target_level_cm", cfg.TargetLevelCm,
		"interval_sec", cfg.SensorCheckInterval)
	return ru.scheduleID, nil
}

// loop drives the monitoring ticks for one run. A tick that overruns its
// interval causes the next to be dropped, not queued.
func (r *Runner) loop(ctx context.Context, ru *run) {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Duration(ru.cfg.SensorCheckInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ru.mu.Lock()
			if ru.terminated {
				ru.mu.Unlock()
				return
			}
			r.tickLocked(context.Background(), ru)
			ru.mu.Unlock()
		}
	}
}

// tickLocked performs one monitoring pass. ru.mu is held by the caller.
// Errors never escape: they become anomalies, stop reasons, or logged
// warnings.
func (r *Runner) tickLocked(ctx context.Context, ru *run) {
	now := r.clock.Now()

	reading, err := r.sensor.CurrentWaterLevel(ctx, ru.cfg.FieldID)
	if err != nil {
		ru.sensorFailures++
		r.recordAnomaly(ctx, ru, now, anomaly.SensorFailure(ru.cfg.FieldID, ru.sensorFailures))
		if ru.sensorFailures > 1 {
			r.stopLocked(ctx, ru, awd.StopAnomalyDetected)
		}
		return
	}
	ru.sensorFailures = 0

	flow := 0.0
	if ru.prevSample != nil {
		if elapsed := now.Sub(ru.prevSample.Time).Minutes(); elapsed > 0 {
			flow = (reading.WaterLevelCm - ru.prevSample.WaterLevelCm) / elapsed
		}
	} else if elapsed := now.Sub(ru.startedAt).Minutes(); elapsed > 0 {
		flow = (reading.WaterLevelCm - ru.initialCm) / elapsed
	}

	sample := awd.MonitoringSample{
		ScheduleID:       ru.scheduleID,
		FieldID:          ru.cfg.FieldID,
		Time:             now,
		WaterLevelCm:     reading.WaterLevelCm,
		FlowRateCmPerMin: flow,
		SensorID:         reading.SensorID,
	}
	if err := r.db.InsertSample(ctx, sample); err != nil {
		r.tickError(ctx, ru, err)
		return
	}

	ru.history = append(ru.history, sample)
	if len(ru.history) > historySize {
		ru.history = ru.history[len(ru.history)-historySize:]
	}

	found := anomaly.Detect(anomaly.Input{
		Sample:    sample,
		Previous:  ru.prevSample,
		History:   ru.history,
		NoRiseRun: ru.noRiseRun,
		TargetCm:  ru.cfg.TargetLevelCm,
		MinFlowCm: ru.cfg.MinFlowRateCmPerMin,
	})
	ru.prevSample = &sample
	ru.lastLevel = sample.WaterLevelCm
	if flow < ru.cfg.MinFlowRateCmPerMin {
		ru.noRiseRun++
	} else {
		ru.noRiseRun = 0
	}

	for _, a := range found {
		r.recordAnomaly(ctx, ru, now, a)
		if a.Critical() {
			r.stopLocked(ctx, ru, awd.StopAnomalyCritical)
			return
		}
		if a.Type == awd.AnomalyLowFlow && !ru.flowBoosted {
			// Advisory correction: open wider once per run.
			if _, err := r.gate.Open(ctx, ru.cfg.FieldID, awd.GateLevelMax); err != nil {
				r.logger.Warn("Failed to widen gate on low flow",
					"schedule_id", ru.scheduleID, "error", err)
			} else {
				ru.flowBoosted = true
			}
		}
	}

	// Hard cap independent of target: reaching it stops the run immediately.
	if reading.WaterLevelCm >= ru.cfg.EmergencyStopLevelCm {
		r.recordAnomaly(ctx, ru, now, awd.Anomaly{
			Type:        awd.AnomalyOverflowRisk,
			Severity:    awd.SeverityCritical,
			Description: fmt.Sprintf("water level %.1f cm at or above emergency stop level %.1f cm", reading.WaterLevelCm, ru.cfg.EmergencyStopLevelCm),
			Metrics: map[string]float64{
				"current_level":        reading.WaterLevelCm,
				"emergency_stop_level": ru.cfg.EmergencyStopLevelCm,
			},
		})
		r.stopLocked(ctx, ru, awd.StopAnomalyCritical)
		return
	}

	// The completion boundary is inclusive.
	if reading.WaterLevelCm >= ru.cfg.TargetLevelCm-ru.cfg.ToleranceCm {
		r.completeLocked(ctx, ru, reading.WaterLevelCm)
		return
	}

	var eta *time.Time
	if flow > 0 {
		t := now.Add(time.Duration((ru.cfg.TargetLevelCm-reading.WaterLevelCm)/flow) * time.Minute)
		eta = &t
	}
	r.putStatus(ctx, ru, awd.StatusActive, reading.WaterLevelCm, flow, eta)

	if now.Sub(ru.startedAt).Minutes() > ru.cfg.MaxDurationMin {
		r.stopLocked(ctx, ru, awd.StopTimeout)
		return
	}

	ru.tickErrors = 0
}

// tickError counts an internal failure; a streak stops the run.
func (r *Runner) tickError(ctx context.Context, ru *run, err error) {
	ru.tickErrors++
	tickErrorsTotal.Inc()
	r.logger.Warn("Monitoring tick failed",
		"schedule_id", ru.scheduleID,
		"field_id", ru.cfg.FieldID,
		"consecutive_errors", ru.tickErrors,
		"error", err)
	if ru.tickErrors >= maxTickErrors {
		r.stopLocked(ctx, ru, awd.StopMonitoringError)
	}
}

// recordAnomaly persists and publishes one anomaly.
func (r *Runner) recordAnomaly(ctx context.Context, ru *run, at time.Time, a awd.Anomaly) {
	ru.anomalyCount++
	anomaliesDetected.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	if err := r.db.InsertAnomaly(ctx, ru.scheduleID, ru.cfg.FieldID, at, a); err != nil {
		r.logger.Warn("Failed to persist anomaly",
			"schedule_id", ru.scheduleID, "type", string(a.Type), "error", err)
	}
	r.publisher.IrrigationAnomaly(ctx, events.IrrigationAnomalyEvent{
		ScheduleID: ru.scheduleID,
		FieldID:    ru.cfg.FieldID,
		Anomaly:    a,
		DetectedAt: at.UTC(),
	})
	r.logger.Warn("Irrigation anomaly detected",
		"schedule_id", ru.scheduleID,
		"field_id", ru.cfg.FieldID,
		"type", string(a.Type),
		"severity", string(a.Severity))
}

// Stop cancels the active run on a field. It blocks until the gate close is
// acknowledged or the acknowledgement window elapses. A second stop for the
// same field returns ErrNotActive and changes nothing.
func (r *Runner) Stop(ctx context.Context, fieldID string, reason awd.StopReason) (string, error) {
	r.mu.Lock()
	ru, ok := r.active[fieldID]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotActive, fieldID)
	}

	ru.mu.Lock()
	defer ru.mu.Unlock()
	if ru.terminated {
		return ru.scheduleID, nil
	}
	r.stopLocked(ctx, ru, reason)
	return ru.scheduleID, nil
}

// Shutdown stops every active run with reason shutdown and waits for the
// monitoring goroutines to exit.
func (r *Runner) Shutdown(ctx context.Context) {
	r.mu.Lock()
	fields := make([]string, 0, len(r.active))
	for fieldID := range r.active {
		fields = append(fields, fieldID)
	}
	r.mu.Unlock()

	for _, fieldID := range fields {
		if _, err := r.Stop(ctx, fieldID, awd.StopShutdown); err != nil && !errors.Is(err, ErrNotActive) {
			r.logger.Error("Failed to stop run during shutdown", "field_id", fieldID, "error", err)
		}
	}
	r.wg.Wait()
}

// Status returns the live status of a field's active run.
func (r *Runner) Status(ctx context.Context, fieldID string) (awd.IrrigationStatus, error) {
	scheduleID, err := r.cache.ActiveScheduleID(ctx, fieldID)
	if err != nil {
		return awd.IrrigationStatus{}, fmt.Errorf("%w: %s", ErrNotActive, fieldID)
	}
	return r.cache.GetStatus(ctx, scheduleID)
}

// stopLocked terminates a run short of target. ru.mu is held by the caller.
func (r *Runner) stopLocked(ctx context.Context, ru *run, reason awd.StopReason) {
	ru.terminated = true
	if ru.cancel != nil {
		ru.cancel()
	}
	r.removeActive(ru.cfg.FieldID)

	status := awd.StatusCancelled
	if reason == awd.StopAnomalyCritical {
		status = awd.StatusFailed
	}

	if !r.closeGate(ctx, ru) {
		status = awd.StatusFailed
	}

	now := r.clock.Now()
	if err := r.db.CloseSchedule(ctx, ru.scheduleID, status, now, ru.lastLevel); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Debug("Schedule already closed", "schedule_id", ru.scheduleID)
		} else {
			r.logger.Error("Failed to close schedule",
				"schedule_id", ru.scheduleID, "status", string(status), "error", err)
		}
	}

	r.clearStatus(ctx, ru, status)
	runsStopped.WithLabelValues(string(reason)).Inc()
	activeRuns.Dec()

	r.publisher.IrrigationStopped(ctx, events.IrrigationStoppedEvent{
		ScheduleID:   ru.scheduleID,
		FieldID:      ru.cfg.FieldID,
		Reason:       reason,
		FinalLevelCm: ru.lastLevel,
		Status:       status,
		StoppedAt:    now.UTC(),
	})
	r.logger.Info("Irrigation stopped",
		"schedule_id", ru.scheduleID,
		"field_id", ru.cfg.FieldID,
		"reason", string(reason),
		"status", string(status),
		"final_level_cm", ru.lastLevel)
}

// completeLocked finalizes a run that reached its target. ru.mu is held.
// A close that fails or goes unacknowledged degrades the run to failed: an
// unsealed paddy keeps taking water, so the fill cannot be trusted as a
// success and must not feed the learner.
func (r *Runner) completeLocked(ctx context.Context, ru *run, finalLevel float64) {
	ru.terminated = true
	if ru.cancel != nil {
		ru.cancel()
	}
	r.removeActive(ru.cfg.FieldID)
	ru.lastLevel = finalLevel

	if !r.closeGate(ctx, ru) {
		now := r.clock.Now()
		if err := r.db.CloseSchedule(ctx, ru.scheduleID, awd.StatusFailed, now, finalLevel); err != nil {
			r.logger.Error("Failed to mark schedule failed after unacknowledged close",
				"schedule_id", ru.scheduleID, "error", err)
		}
		r.clearStatus(ctx, ru, awd.StatusFailed)
		runsStopped.WithLabelValues(string(awd.StopGateUnacknowledged)).Inc()
		activeRuns.Dec()
		r.publisher.IrrigationStopped(ctx, events.IrrigationStoppedEvent{
			ScheduleID:   ru.scheduleID,
			FieldID:      ru.cfg.FieldID,
			Reason:       awd.StopGateUnacknowledged,
			FinalLevelCm: finalLevel,
			Status:       awd.StatusFailed,
			StoppedAt:    now.UTC(),
		})
		r.logger.Error("Irrigation reached target but gate close was not acknowledged",
			"schedule_id", ru.scheduleID,
			"field_id", ru.cfg.FieldID,
			"final_level_cm", finalLevel)
		return
	}

	now := r.clock.Now()
	durationMin := now.Sub(ru.startedAt).Minutes()
	avgFlow := 0.0
	if durationMin > 0 {
		avgFlow = (finalLevel - ru.initialCm) / durationMin
	}
	// 1 cm of water over 1 m2 is 10 liters.
	volume := (finalLevel - ru.initialCm) * ru.cfg.FieldAreaM2 * 10

	if err := r.db.CompleteSchedule(ctx, ru.scheduleID, now, finalLevel, volume, avgFlow); err != nil {
		r.logger.Error("Failed to complete schedule", "schedule_id", ru.scheduleID, "error", err)
	}

	// The performance row must follow the completed status update.
	score := awd.EfficiencyScore(finalLevel, ru.cfg.TargetLevelCm, durationMin)
	if err := r.db.InsertPerformance(ctx, awd.PerformanceRecord{
		FieldID:             ru.cfg.FieldID,
		ScheduleID:          ru.scheduleID,
		StartTime:           ru.startedAt,
		EndTime:             now,
		InitialLevelCm:      ru.initialCm,
		TargetLevelCm:       ru.cfg.TargetLevelCm,
		AchievedLevelCm:     finalLevel,
		TotalDurationMin:    durationMin,
		WaterVolumeLiters:   volume,
		AvgFlowRateCmPerMin: avgFlow,
		EfficiencyScore:     score,
	}); err != nil {
		r.logger.Error("Failed to record performance", "schedule_id", ru.scheduleID, "error", err)
	}

	r.clearStatus(ctx, ru, awd.StatusCompleted)
	runsCompleted.Inc()
	activeRuns.Dec()

	r.publisher.IrrigationCompleted(ctx, events.IrrigationCompletedEvent{
		ScheduleID:        ru.scheduleID,
		FieldID:           ru.cfg.FieldID,
		FinalLevelCm:      finalLevel,
		TargetLevelCm:     ru.cfg.TargetLevelCm,
		DurationMin:       durationMin,
		WaterVolumeLiters: volume,
		EfficiencyScore:   score,
		CompletedAt:       now.UTC(),
	})
	r.logger.Info("Irrigation completed",
		"schedule_id", ru.scheduleID,
		"field_id", ru.cfg.FieldID,
		"final_level_cm", finalLevel,
		"duration_min", durationMin,
		"efficiency_score", score)
}

// closeGate commands the gate shut and waits for acknowledgement. It
// reports false when the close failed outright or was never acknowledged;
// an unacknowledged close also raises the critical alert.
func (r *Runner) closeGate(ctx context.Context, ru *run) bool {
	commandID, err := r.gate.Close(ctx, ru.cfg.FieldID)
	if err != nil {
		r.logger.Error("Gate close failed",
			"schedule_id", ru.scheduleID, "field_id", ru.cfg.FieldID, "error", err)
		r.raiseCloseUnacknowledged(ctx, ru)
		return false
	}

	deadline := time.Now().Add(r.gateAckTimeout)
	for time.Now().Before(deadline) {
		st, err := r.gate.CommandStatus(ctx, commandID)
		if err == nil && st.Complete {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(r.gateAckPoll):
		}
	}

	r.raiseCloseUnacknowledged(ctx, ru)
	return false
}

func (r *Runner) raiseCloseUnacknowledged(ctx context.Context, ru *run) {
	station, err := r.gate.ResolveStation(ctx, ru.cfg.FieldID)
	if err != nil {
		station = ""
	}
	r.publisher.GateCloseUnacknowledged(ctx, events.GateCloseUnacknowledgedEvent{
		ScheduleID:  ru.scheduleID,
		FieldID:     ru.cfg.FieldID,
		StationCode: station,
		RaisedAt:    r.clock.Now().UTC(),
	})
}

func (r *Runner) removeActive(fieldID string) {
	r.mu.Lock()
	delete(r.active, fieldID)
	r.mu.Unlock()
}

func (r *Runner) putStatus(ctx context.Context, ru *run, status awd.ScheduleStatus, level, flow float64, eta *time.Time) {
	st := awd.IrrigationStatus{
		ScheduleID:              ru.scheduleID,
		FieldID:                 ru.cfg.FieldID,
		Status:                  status,
		StartedAt:               ru.startedAt,
		InitialLevelCm:          ru.initialCm,
		TargetLevelCm:           ru.cfg.TargetLevelCm,
		CurrentLevelCm:          level,
		FlowRateCmPerMin:        flow,
		EstimatedCompletionTime: eta,
		AnomaliesDetected:       ru.anomalyCount,
		LastSampleAt:            r.clock.Now(),
	}
	if err := r.cache.PutStatus(ctx, st); err != nil {
		r.logger.Warn("Failed to cache irrigation status",
			"schedule_id", ru.scheduleID, "error", err)
	}
}

func (r *Runner) clearStatus(ctx context.Context, ru *run, status awd.ScheduleStatus) {
	r.putStatus(ctx, ru, status, ru.lastLevel, 0, nil)
	if err := r.cache.ClearActive(ctx, ru.cfg.FieldID); err != nil {
		r.logger.Warn("Failed to clear active pointer",
			"field_id", ru.cfg.FieldID, "error", err)
	}
}
