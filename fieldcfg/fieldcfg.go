// Package fieldcfg manages per-field AWD configuration: initialization,
// read-through cached lookup, calendar advancement, and deactivation. The
// persistent store is the source of truth; the KV bucket is a read-through
// cache kept in lockstep with every write.
package fieldcfg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/cache"
	"github.com/paddyops/awd/events"
	"github.com/paddyops/awd/schedule"
	"github.com/paddyops/awd/store"
)

// ErrNotFound is returned when a field has never been initialized or has
// been deactivated.
var ErrNotFound = errors.New("fieldcfg: field not configured")

// ErrAlreadyActive is returned when Initialize hits a field that is already
// under AWD control.
var ErrAlreadyActive = errors.New("fieldcfg: field already active")

// PersistentStore is the slice of the SQL store this package writes.
type PersistentStore interface {
	GetFieldConfig(ctx context.Context, fieldID string) (awd.FieldConfig, error)
	InsertFieldConfig(ctx context.Context, cfg awd.FieldConfig) error
	UpdateFieldProgress(ctx context.Context, fieldID string, week int, phase awd.Phase, targetLevelCm float64) error
	DeactivateField(ctx context.Context, fieldID string) error
	ListActiveFields(ctx context.Context) ([]string, error)
}

// ConfigCache is the KV slice this package keeps warm.
type ConfigCache interface {
	GetFieldConfig(ctx context.Context, fieldID string) (awd.FieldConfig, error)
	PutFieldConfig(ctx context.Context, cfg awd.FieldConfig) error
	DeleteFieldConfig(ctx context.Context, fieldID string) error
}

// Store is the field configuration service.
type Store struct {
	db        PersistentStore
	kv        ConfigCache
	publisher *events.Publisher
	clock     awd.Clock
	logger    *slog.Logger
}

// New creates a field configuration store. kv may be nil; every read then
// goes straight to the persistent store.
func New(db PersistentStore, kv ConfigCache, publisher *events.Publisher, clock awd.Clock, logger *slog.Logger) *Store {
	return &Store{db: db, kv: kv, publisher: publisher, clock: clock, logger: logger}
}

// Initialize puts a field under AWD control at the calendar position its
// start date implies. Re-initializing an active field is rejected; a
// deactivated field may be re-initialized for a new season.
func (s *Store) Initialize(ctx context.Context, fieldID string, method awd.PlantingMethod, startDate time.Time) (awd.FieldConfig, error) {
	if !method.Valid() {
		return awd.FieldConfig{}, fmt.Errorf("initialize field %s: unknown planting method %q", fieldID, method)
	}

	existing, err := s.db.GetFieldConfig(ctx, fieldID)
	if err == nil && existing.IsActive {
		return awd.FieldConfig{}, fmt.Errorf("%w: %s", ErrAlreadyActive, fieldID)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return awd.FieldConfig{}, fmt.Errorf("initialize field %s: %w", fieldID, err)
	}

	sched, err := schedule.ForMethod(method)
	if err != nil {
		return awd.FieldConfig{}, fmt.Errorf("initialize field %s: %w", fieldID, err)
	}

	week := schedule.WeekFor(startDate, s.clock.Now())
	phase := sched.PhaseForWeek(week)
	cfg := awd.FieldConfig{
		FieldID:            fieldID,
		PlantingMethod:     method,
		StartDate:          startDate,
		CurrentWeek:        week,
		CurrentPhase:       phase.Phase,
		NextPhaseDate:      sched.NextPhaseDate(startDate, week),
		IsActive:           true,
		TargetWaterLevelCm: phase.TargetWaterLevelCm,
	}

	if err := s.db.InsertFieldConfig(ctx, cfg); err != nil {
		return awd.FieldConfig{}, err
	}
	s.refreshCache(ctx, cfg)

	s.logger.Info("Field initialized",
		"field_id", fieldID,
		"planting_method", string(method),
		"current_week", week,
		"current_phase", string(phase.Phase))
	return cfg, nil
}

// Get returns a field's configuration, cache first. The derived fields
// (week, phase, next phase date) reflect the stored calendar position, not
// the wall clock; Advance moves them.
func (s *Store) Get(ctx context.Context, fieldID string) (awd.FieldConfig, error) {
	if s.kv != nil {
		cfg, err := s.kv.GetFieldConfig(ctx, fieldID)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Field config cache read failed", "field_id", fieldID, "error", err)
		}
	}

	cfg, err := s.db.GetFieldConfig(ctx, fieldID)
	if errors.Is(err, store.ErrNotFound) {
		return awd.FieldConfig{}, fmt.Errorf("%w: %s", ErrNotFound, fieldID)
	}
	if err != nil {
		return awd.FieldConfig{}, err
	}
	if !cfg.IsActive {
		return awd.FieldConfig{}, fmt.Errorf("%w: %s", ErrNotFound, fieldID)
	}

	// The SQL row does not carry the next phase date; derive it.
	sched, err := schedule.ForMethod(cfg.PlantingMethod)
	if err != nil {
		return awd.FieldConfig{}, fmt.Errorf("field %s: %w", fieldID, err)
	}
	cfg.NextPhaseDate = sched.NextPhaseDate(cfg.StartDate, cfg.CurrentWeek)

	s.refreshCache(ctx, cfg)
	return cfg, nil
}

// Advance moves a field to the calendar week the clock implies. When the
// week is unchanged it is a no-op returning the current configuration, so
// repeated calls within the same week are idempotent. A phase transition
// emits exactly one phase_change notification, plus a fertilizer reminder
// when the new phase calls for one.
func (s *Store) Advance(ctx context.Context, fieldID string) (awd.FieldConfig, error) {
	cfg, err := s.Get(ctx, fieldID)
	if err != nil {
		return awd.FieldConfig{}, err
	}

	sched, err := schedule.ForMethod(cfg.PlantingMethod)
	if err != nil {
		return awd.FieldConfig{}, fmt.Errorf("advance field %s: %w", fieldID, err)
	}

	now := s.clock.Now()
	week := schedule.WeekFor(cfg.StartDate, now)
	if week <= cfg.CurrentWeek {
		return cfg, nil
	}

	prevPhase := cfg.CurrentPhase
	phase := sched.PhaseForWeek(week)

	if err := s.db.UpdateFieldProgress(ctx, fieldID, week, phase.Phase, phase.TargetWaterLevelCm); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return awd.FieldConfig{}, fmt.Errorf("%w: %s", ErrNotFound, fieldID)
		}
		return awd.FieldConfig{}, err
	}

	cfg.CurrentWeek = week
	cfg.CurrentPhase = phase.Phase
	cfg.TargetWaterLevelCm = phase.TargetWaterLevelCm
	cfg.NextPhaseDate = sched.NextPhaseDate(cfg.StartDate, week)
	s.refreshCache(ctx, cfg)

	if phase.Phase != prevPhase {
		s.publisher.PhaseChange(ctx, events.PhaseChangeEvent{
			FieldID:       fieldID,
			FromPhase:     prevPhase,
			ToPhase:       phase.Phase,
			Week:          week,
			TargetLevelCm: phase.TargetWaterLevelCm,
			ChangedAt:     now.UTC(),
		})
		s.publisher.Notify(ctx, awd.Notification{
			Type:     awd.NotifyPhaseChange,
			Priority: awd.PriorityMedium,
			FieldID:  fieldID,
			Message: fmt.Sprintf("Field %s entered %s phase (week %d): %s",
				fieldID, phase.Phase, week, phase.Description),
			Time: now.UTC(),
		})
		if phase.RequiresFertilizer {
			s.publisher.Notify(ctx, awd.Notification{
				Type:     awd.NotifyFertilizer,
				Priority: awd.PriorityMedium,
				FieldID:  fieldID,
				Message:  fmt.Sprintf("Fertilizer application due for field %s (week %d)", fieldID, week),
				Time:     now.UTC(),
			})
		}
		s.logger.Info("Field phase changed",
			"field_id", fieldID,
			"from_phase", string(prevPhase),
			"to_phase", string(phase.Phase),
			"week", week)
	}

	return cfg, nil
}

// Deactivate removes a field from AWD control. The persistent row is kept
// with active=false; the cache entry is dropped.
func (s *Store) Deactivate(ctx context.Context, fieldID string) error {
	if err := s.db.DeactivateField(ctx, fieldID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, fieldID)
		}
		return err
	}
	if s.kv != nil {
		if err := s.kv.DeleteFieldConfig(ctx, fieldID); err != nil {
			s.logger.Warn("Failed to drop field config from cache", "field_id", fieldID, "error", err)
		}
	}
	s.logger.Info("Field deactivated", "field_id", fieldID)
	return nil
}

// ListActive returns the IDs of all fields under AWD control.
func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	return s.db.ListActiveFields(ctx)
}

func (s *Store) refreshCache(ctx context.Context, cfg awd.FieldConfig) {
	if s.kv == nil {
		return
	}
	if err := s.kv.PutFieldConfig(ctx, cfg); err != nil {
		s.logger.Warn("Failed to refresh field config cache", "field_id", cfg.FieldID, "error", err)
	}
}
