// Package decision evaluates fields against their AWD calendar and current
// readings and produces control decisions: start irrigation, stop it, or
// maintain. It owns no run state; execution is delegated to the runner.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/events"
	"github.com/paddyops/awd/fieldcfg"
	"github.com/paddyops/awd/learn"
	"github.com/paddyops/awd/runner"
	"github.com/paddyops/awd/schedule"
)

// Irrigation targets used outside the calendar's own phase targets.
const (
	// preparationTargetCm is the flooding depth for land preparation.
	preparationTargetCm = 10.0
	// preparationDurationMin is the advertised duration of the initial flood.
	preparationDurationMin = 48 * 60.0
	// emergencyTargetCm is the re-flood depth for critically dry soil.
	emergencyTargetCm = 10.0
)

// ConfigStore is the field configuration collaborator.
type ConfigStore interface {
	Get(ctx context.Context, fieldID string) (awd.FieldConfig, error)
	Advance(ctx context.Context, fieldID string) (awd.FieldConfig, error)
}

// SensorGateway is the read-only instrumentation collaborator.
type SensorGateway interface {
	CurrentWaterLevel(ctx context.Context, fieldID string) (awd.WaterLevelReading, error)
	CurrentMoisture(ctx context.Context, fieldID string) (awd.MoistureReading, error)
	CurrentRainfall(ctx context.Context, fieldID string) (awd.RainfallData, error)
	CheckIrrigationNeed(ctx context.Context, cfg awd.FieldConfig) (awd.IrrigationNeed, error)
}

// Learner enriches start decisions with predictions and tuned parameters.
type Learner interface {
	PredictPerformance(ctx context.Context, fieldID string, cond learn.Conditions) (awd.PerformancePrediction, error)
	OptimalParameters(ctx context.Context, fieldID string) (awd.OptimalParameters, error)
}

// IrrigationRunner executes and reports on runs.
type IrrigationRunner interface {
	Start(ctx context.Context, cfg awd.IrrigationConfig) (string, error)
	Stop(ctx context.Context, fieldID string, reason awd.StopReason) (string, error)
	Status(ctx context.Context, fieldID string) (awd.IrrigationStatus, error)
	ActiveSchedule(fieldID string) (string, bool)
}

// Engine makes control decisions for fields.
type Engine struct {
	fields    ConfigStore
	sensors   SensorGateway
	learner   Learner
	runner    IrrigationRunner
	publisher *events.Publisher
	clock     awd.Clock
	logger    *slog.Logger
}

// New creates a decision engine. learner may be nil; start decisions are
// then never enriched.
func New(fields ConfigStore, sensors SensorGateway, learner Learner, run IrrigationRunner, publisher *events.Publisher, clock awd.Clock, logger *slog.Logger) *Engine {
	return &Engine{
		fields:    fields,
		sensors:   sensors,
		learner:   learner,
		runner:    run,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// readings is the snapshot gathered in parallel for one decision.
type readings struct {
	level    awd.WaterLevelReading
	levelErr error

	moisture    awd.MoistureReading
	hasMoisture bool

	rainfallMm float64

	need    awd.IrrigationNeed
	needErr error
}

func (e *Engine) gather(ctx context.Context, cfg awd.FieldConfig) readings {
	var (
		rd readings
		wg sync.WaitGroup
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		rd.level, rd.levelErr = e.sensors.CurrentWaterLevel(ctx, cfg.FieldID)
	}()
	go func() {
		defer wg.Done()
		m, err := e.sensors.CurrentMoisture(ctx, cfg.FieldID)
		if err == nil {
			rd.moisture = m
			rd.hasMoisture = true
		}
	}()
	go func() {
		defer wg.Done()
		r, err := e.sensors.CurrentRainfall(ctx, cfg.FieldID)
		if err == nil {
			rd.rainfallMm = r.AmountMm
		}
	}()
	go func() {
		defer wg.Done()
		rd.need, rd.needErr = e.sensors.CheckIrrigationNeed(ctx, cfg)
	}()
	wg.Wait()
	return rd
}

// Decide evaluates one field and returns the control decision. The decision
// is mirrored onto the command topic and its notifications are published.
func (e *Engine) Decide(ctx context.Context, fieldID string) (awd.ControlDecision, error) {
	now := e.clock.Now()
	decision := awd.ControlDecision{FieldID: fieldID, DecidedAt: now.UTC()}

	cfg, err := e.fields.Get(ctx, fieldID)
	if errors.Is(err, fieldcfg.ErrNotFound) {
		decision.Outcome = awd.Maintain{Why: "Field AWD control not active"}
		return decision, nil
	}
	if err != nil {
		return awd.ControlDecision{}, fmt.Errorf("decide for %s: %w", fieldID, err)
	}

	cfg, err = e.fields.Advance(ctx, fieldID)
	if err != nil {
		return awd.ControlDecision{}, fmt.Errorf("decide for %s: %w", fieldID, err)
	}

	rd := e.gather(ctx, cfg)

	if scheduleID, active := e.runner.ActiveSchedule(fieldID); active {
		meta := map[string]any{"schedule_id": scheduleID}
		if st, err := e.runner.Status(ctx, fieldID); err == nil {
			meta["current_level_cm"] = st.CurrentLevelCm
			meta["target_level_cm"] = st.TargetLevelCm
			meta["flow_rate_cm_per_min"] = st.FlowRateCmPerMin
		}
		decision.Outcome = awd.Maintain{
			Why:      fmt.Sprintf("Irrigation already active (schedule %s)", scheduleID),
			Metadata: meta,
		}
		e.finish(ctx, &decision)
		return decision, nil
	}

	switch cfg.CurrentPhase {
	case awd.PhasePreparation:
		decision.Outcome = awd.StartIrrigation{
			TargetLevelCm:        preparationTargetCm,
			EstimatedDurationMin: preparationDurationMin,
			Why:                  "Preparation phase: flood field for land soaking",
		}
	case awd.PhaseHarvest:
		decision.Outcome = awd.StopIrrigation{Why: "Harvest phase: drain field"}
		decision.Notifications = append(decision.Notifications, awd.Notification{
			Type:     awd.NotifyPhaseChange,
			Priority: awd.PriorityHigh,
			FieldID:  fieldID,
			Message:  fmt.Sprintf("Field %s has reached harvest phase; stop all irrigation", fieldID),
			Time:     now.UTC(),
		})
	case awd.PhaseWetting:
		outcome, notifs, err := e.evaluateWetting(cfg, rd)
		if err != nil {
			return awd.ControlDecision{}, fmt.Errorf("decide for %s: %w", fieldID, err)
		}
		decision.Outcome = outcome
		decision.Notifications = append(decision.Notifications, notifs...)
	case awd.PhaseDrying:
		decision.Outcome, decision.Notifications = e.evaluateDrying(cfg, rd, decision.Notifications)
	default:
		decision.Outcome = awd.Maintain{Why: fmt.Sprintf("Unknown phase %q", cfg.CurrentPhase)}
	}

	if start, ok := decision.Outcome.(awd.StartIrrigation); ok {
		decision.Outcome = e.enrich(ctx, fieldID, rd, start)
	}

	e.finish(ctx, &decision)
	return decision, nil
}

// evaluateWetting applies the wetting-phase rules: rainfall credit first,
// then the target check.
func (e *Engine) evaluateWetting(cfg awd.FieldConfig, rd readings) (awd.Outcome, []awd.Notification, error) {
	var notifs []awd.Notification

	if sched, err := schedule.ForMethod(cfg.PlantingMethod); err == nil {
		phase := sched.PhaseForWeek(cfg.CurrentWeek)
		if phase.RequiresFertilizer && phase.Week == cfg.CurrentWeek {
			notifs = append(notifs, awd.Notification{
				Type:     awd.NotifyFertilizer,
				Priority: awd.PriorityHigh,
				FieldID:  cfg.FieldID,
				Message:  fmt.Sprintf("Fertilizer application due for field %s (week %d)", cfg.FieldID, cfg.CurrentWeek),
				Time:     e.clock.Now().UTC(),
			})
		}
	}

	if rd.levelErr != nil {
		return nil, nil, fmt.Errorf("water level unavailable: %w", rd.levelErr)
	}
	level := rd.level.WaterLevelCm
	target := cfg.TargetWaterLevelCm

	// Rainfall is in millimetres; water level in centimetres.
	if rd.rainfallMm > awd.RainfallThresholdMm && level+rd.rainfallMm/10 >= target {
		return awd.StopIrrigation{
			Why: fmt.Sprintf("Rainfall %.0fmm expected, sufficient to reach target %.0fcm", rd.rainfallMm, target),
		}, notifs, nil
	}
	if level >= target {
		return awd.Maintain{Why: fmt.Sprintf("Target achieved: water level %.0fcm at or above %.0fcm", level, target)}, notifs, nil
	}
	return awd.StartIrrigation{
		TargetLevelCm: target,
		Why:           fmt.Sprintf("Water level %.0fcm below target %.0fcm", level, target),
	}, notifs, nil
}

// evaluateDrying applies the drying-phase rules: critically dry soil forces
// an emergency re-flood; otherwise the field keeps drying.
func (e *Engine) evaluateDrying(cfg awd.FieldConfig, rd readings, notifs []awd.Notification) (awd.Outcome, []awd.Notification) {
	if rd.hasMoisture && rd.moisture.MoisturePercent < awd.CriticalMoistureThreshold {
		notifs = append(notifs, awd.Notification{
			Type:     awd.NotifyEmergency,
			Priority: awd.PriorityHigh,
			FieldID:  cfg.FieldID,
			Message: fmt.Sprintf("Soil moisture %.0f%% critically low on field %s; emergency irrigation",
				rd.moisture.MoisturePercent, cfg.FieldID),
			Time: e.clock.Now().UTC(),
		})
		return awd.StartIrrigation{
			TargetLevelCm: emergencyTargetCm,
			Why:           fmt.Sprintf("Emergency: soil moisture %.0f%% below critical threshold", rd.moisture.MoisturePercent),
		}, notifs
	}

	if rd.needErr == nil && rd.need.NeedsIrrigation && rd.need.Reason == awd.NeedMoistureThreshold {
		return awd.StartIrrigation{
			TargetLevelCm: emergencyTargetCm,
			Why:           "Soil moisture below threshold during drying",
		}, notifs
	}

	return awd.StopIrrigation{
		Why: fmt.Sprintf("Drying phase - Week %d", cfg.CurrentWeek),
	}, notifs
}

// enrich attaches the learner's prediction to a start decision. Any learner
// failure returns the base decision unchanged.
func (e *Engine) enrich(ctx context.Context, fieldID string, rd readings, start awd.StartIrrigation) awd.StartIrrigation {
	if e.learner == nil {
		return start
	}
	prediction, err := e.learner.PredictPerformance(ctx, fieldID, learn.Conditions{
		InitialLevelCm: rd.level.WaterLevelCm,
		TargetLevelCm:  start.TargetLevelCm,
	})
	if err != nil {
		e.logger.Warn("Learner unavailable, returning base decision",
			"field_id", fieldID, "error", err)
		return start
	}
	start.EstimatedDurationMin = prediction.EstimatedDurationMin
	start.Prediction = &prediction
	recommended := e.clock.Now().UTC()
	start.RecommendedStart = &recommended
	return start
}

// finish publishes the decision mirror and its notifications.
func (e *Engine) finish(ctx context.Context, d *awd.ControlDecision) {
	e.publisher.Decision(ctx, *d)
	for _, n := range d.Notifications {
		e.publisher.Notify(ctx, n)
	}
	e.logger.Info("Control decision",
		"field_id", d.FieldID,
		"action", string(d.Outcome.Action()),
		"reason", d.Outcome.Reason())
}

// ExecutionResult reports what Execute did.
type ExecutionResult struct {
	Success    bool   `json:"success"`
	ScheduleID string `json:"schedule_id,omitempty"`
	Method     string `json:"method"`
}

// Execute carries out a decision. Start decisions consult the learner's
// tuned parameters when available; stop decisions are idempotent.
func (e *Engine) Execute(ctx context.Context, fieldID string, d awd.ControlDecision) (ExecutionResult, error) {
	switch o := d.Outcome.(type) {
	case awd.StartIrrigation:
		cfg := awd.IrrigationConfig{
			FieldID:       fieldID,
			TargetLevelCm: o.TargetLevelCm,
		}
		if e.learner != nil {
			if params, err := e.learner.OptimalParameters(ctx, fieldID); err == nil {
				cfg.SensorCheckInterval = params.SensorCheckIntervalSec
				cfg.MinFlowRateCmPerMin = params.MinFlowRateThreshold
				cfg.MaxDurationMin = params.MaxDurationMin
				cfg.ToleranceCm = params.ToleranceCm
			} else {
				e.logger.Warn("Falling back to default runner parameters",
					"field_id", fieldID, "error", err)
			}
		}
		scheduleID, err := e.runner.Start(ctx, cfg)
		if err != nil {
			return ExecutionResult{Method: "gate_automation"}, err
		}
		return ExecutionResult{Success: true, ScheduleID: scheduleID, Method: "gate_automation"}, nil

	case awd.StopIrrigation:
		scheduleID, err := e.runner.Stop(ctx, fieldID, awd.StopExternalCommand)
		if errors.Is(err, runner.ErrNotActive) {
			return ExecutionResult{Success: true, Method: "noop"}, nil
		}
		if err != nil {
			return ExecutionResult{Method: "gate_automation"}, err
		}
		return ExecutionResult{Success: true, ScheduleID: scheduleID, Method: "gate_automation"}, nil

	default:
		return ExecutionResult{Success: true, Method: "noop"}, nil
	}
}

// FieldStatus is the composite status returned to API callers.
type FieldStatus struct {
	FieldID        string                `json:"field_id"`
	Active         bool                  `json:"active"`
	Status         *awd.IrrigationStatus `json:"status,omitempty"`
	Recommendation *awd.ControlDecision  `json:"recommendation,omitempty"`
}

// Status reports whether a field is irrigating and, when idle, what the
// engine would do next.
func (e *Engine) Status(ctx context.Context, fieldID string) (FieldStatus, error) {
	out := FieldStatus{FieldID: fieldID}

	if _, active := e.runner.ActiveSchedule(fieldID); active {
		st, err := e.runner.Status(ctx, fieldID)
		if err != nil {
			return out, fmt.Errorf("status for %s: %w", fieldID, err)
		}
		out.Active = true
		out.Status = &st
		return out, nil
	}

	d, err := e.Decide(ctx, fieldID)
	if err != nil {
		return out, err
	}
	out.Recommendation = &d
	return out, nil
}

// StopIrrigation stops a field's active run on external request.
func (e *Engine) StopIrrigation(ctx context.Context, fieldID string, reason awd.StopReason) (ExecutionResult, error) {
	scheduleID, err := e.runner.Stop(ctx, fieldID, reason)
	if errors.Is(err, runner.ErrNotActive) {
		return ExecutionResult{Success: true, Method: "noop"}, nil
	}
	if err != nil {
		return ExecutionResult{}, err
	}
	return ExecutionResult{Success: true, ScheduleID: scheduleID, Method: "gate_automation"}, nil
}

// DecideAll evaluates every active field, serially per field.
func (e *Engine) DecideAll(ctx context.Context, fieldIDs []string) {
	for _, fieldID := range fieldIDs {
		if _, err := e.Decide(ctx, fieldID); err != nil {
			e.logger.Error("Decision failed", "field_id", fieldID, "error", err)
		}
	}
}
