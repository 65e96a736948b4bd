// Package sensor is the read-only facade over field instrumentation: water
// level, soil moisture, rainfall, and weather. It never fabricates values;
// a field without data yields ErrNoReading.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/cache"
	"github.com/paddyops/awd/store"
)

// ErrNoReading is returned when a field has no usable data for a reading.
var ErrNoReading = errors.New("sensor: no reading available")

// readingTTL bounds how long any reading is served from memory.
const readingTTL = 5 * time.Minute

// SafeAWDThresholdCm is the perched water table depth at which a drying
// field needs re-flooding ("safe AWD" threshold).
const SafeAWDThresholdCm = -15.0

// MoistureNeedThresholdPercent is the soil moisture below which a drying
// field is considered in need of water.
const MoistureNeedThresholdPercent = 30.0

// ReadingStore is the slice of the persistent store the gateway reads.
type ReadingStore interface {
	LatestWaterLevel(ctx context.Context, fieldID string) (awd.WaterLevelReading, error)
	LatestMoisture(ctx context.Context, fieldID string) (awd.MoistureReading, error)
}

// WeatherProvider is the external weather collaborator.
type WeatherProvider interface {
	CurrentRainfall(ctx context.Context, fieldID string) (awd.RainfallData, error)
	CurrentWeather(ctx context.Context, fieldID string) (awd.WeatherData, error)
}

// GISEstimator derives a water level estimate for fields without sensors.
type GISEstimator interface {
	EstimateWaterLevel(ctx context.Context, fieldID string) (awd.WaterLevelReading, error)
}

// Gateway composes the read paths with short-term caching.
type Gateway struct {
	db      ReadingStore
	kv      *cache.Cache
	weather WeatherProvider
	gis     GISEstimator
	clock   awd.Clock
	logger  *slog.Logger

	mu   sync.Mutex
	memo map[string]memoEntry
}

type memoEntry struct {
	value    any
	storedAt time.Time
}

// New creates a sensor gateway. gis and weather may be nil when those
// collaborators are not deployed; the corresponding reads then return
// ErrNoReading.
func New(db ReadingStore, kv *cache.Cache, weather WeatherProvider, gis GISEstimator, clock awd.Clock, logger *slog.Logger) *Gateway {
	return &Gateway{
		db:      db,
		kv:      kv,
		weather: weather,
		gis:     gis,
		clock:   clock,
		logger:  logger,
		memo:    make(map[string]memoEntry),
	}
}

func (g *Gateway) memoGet(key string) (any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.memo[key]
	if !ok || g.clock.Now().Sub(e.storedAt) > readingTTL {
		return nil, false
	}
	return e.value, true
}

func (g *Gateway) memoPut(key string, v any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.memo[key] = memoEntry{value: v, storedAt: g.clock.Now()}
}

// CurrentWaterLevel returns the most recent sensor reading for a field, or
// a GIS-derived estimate when the field has no sensor. GIS estimates carry
// Source=gis so callers can refuse them where sensor truth is required.
func (g *Gateway) CurrentWaterLevel(ctx context.Context, fieldID string) (awd.WaterLevelReading, error) {
	if v, ok := g.memoGet("wl:" + fieldID); ok {
		return v.(awd.WaterLevelReading), nil
	}

	reading, err := g.db.LatestWaterLevel(ctx, fieldID)
	if err == nil {
		g.memoPut("wl:"+fieldID, reading)
		return reading, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return awd.WaterLevelReading{}, fmt.Errorf("read water level for %s: %w", fieldID, err)
	}

	if g.gis == nil {
		return awd.WaterLevelReading{}, fmt.Errorf("%w: field %s has no water level sensor", ErrNoReading, fieldID)
	}
	estimate, err := g.gis.EstimateWaterLevel(ctx, fieldID)
	if err != nil {
		return awd.WaterLevelReading{}, fmt.Errorf("%w: GIS estimate for %s failed: %v", ErrNoReading, fieldID, err)
	}
	estimate.Source = awd.SourceGIS
	g.memoPut("wl:"+fieldID, estimate)
	return estimate, nil
}

// CurrentMoisture returns the latest soil moisture reading. Fields without
// a moisture sensor yield ErrNoReading.
func (g *Gateway) CurrentMoisture(ctx context.Context, fieldID string) (awd.MoistureReading, error) {
	if v, ok := g.memoGet("moist:" + fieldID); ok {
		return v.(awd.MoistureReading), nil
	}

	reading, err := g.db.LatestMoisture(ctx, fieldID)
	if errors.Is(err, store.ErrNotFound) {
		return awd.MoistureReading{}, fmt.Errorf("%w: field %s has no moisture sensor", ErrNoReading, fieldID)
	}
	if err != nil {
		return awd.MoistureReading{}, fmt.Errorf("read moisture for %s: %w", fieldID, err)
	}
	g.memoPut("moist:"+fieldID, reading)
	return reading, nil
}

// CurrentRainfall returns observed or forecast rainfall in millimetres.
// Reads go through the short-TTL KV bucket so repeated decisions within a
// few minutes do not hammer the provider.
func (g *Gateway) CurrentRainfall(ctx context.Context, fieldID string) (awd.RainfallData, error) {
	if g.kv != nil {
		if cached, err := g.kv.GetRainfall(ctx, fieldID); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			g.logger.Warn("Rainfall cache read failed", "field_id", fieldID, "error", err)
		}
	}

	if g.weather == nil {
		return awd.RainfallData{}, fmt.Errorf("%w: no weather provider", ErrNoReading)
	}
	rainfall, err := g.weather.CurrentRainfall(ctx, fieldID)
	if err != nil {
		return awd.RainfallData{}, fmt.Errorf("%w: rainfall for %s: %v", ErrNoReading, fieldID, err)
	}

	if g.kv != nil {
		if err := g.kv.PutRainfall(ctx, rainfall); err != nil {
			g.logger.Warn("Rainfall cache write failed", "field_id", fieldID, "error", err)
		}
	}
	return rainfall, nil
}

// CurrentWeather returns temperature and humidity, or ErrNoReading on any
// provider failure.
func (g *Gateway) CurrentWeather(ctx context.Context, fieldID string) (awd.WeatherData, error) {
	if v, ok := g.memoGet("wx:" + fieldID); ok {
		return v.(awd.WeatherData), nil
	}
	if g.weather == nil {
		return awd.WeatherData{}, fmt.Errorf("%w: no weather provider", ErrNoReading)
	}
	wx, err := g.weather.CurrentWeather(ctx, fieldID)
	if err != nil {
		return awd.WeatherData{}, fmt.Errorf("%w: weather for %s: %v", ErrNoReading, fieldID, err)
	}
	g.memoPut("wx:"+fieldID, wx)
	return wx, nil
}

// CheckIrrigationNeed composes the available readings into a single
// irrigation-need verdict for the drying evaluation.
func (g *Gateway) CheckIrrigationNeed(ctx context.Context, cfg awd.FieldConfig) (awd.IrrigationNeed, error) {
	need := awd.IrrigationNeed{
		FieldID: cfg.FieldID,
		Reason:  awd.NeedWithinThresholds,
		Data:    map[string]any{},
	}

	level, err := g.CurrentWaterLevel(ctx, cfg.FieldID)
	if err != nil {
		return need, err
	}
	need.Data["water_level_cm"] = level.WaterLevelCm
	need.Data["water_level_source"] = string(level.Source)

	if level.WaterLevelCm <= SafeAWDThresholdCm {
		need.NeedsIrrigation = true
		need.Reason = awd.NeedWaterLevelThreshold
		return need, nil
	}

	moisture, err := g.CurrentMoisture(ctx, cfg.FieldID)
	if err == nil {
		need.Data["moisture_percent"] = moisture.MoisturePercent
		if moisture.MoisturePercent < MoistureNeedThresholdPercent {
			need.NeedsIrrigation = true
			need.Reason = awd.NeedMoistureThreshold
			return need, nil
		}
	} else if !errors.Is(err, ErrNoReading) {
		g.logger.Warn("Moisture read failed during need check",
			"field_id", cfg.FieldID, "error", err)
	}

	// A drying phase that has run past its calendar slot is overdue.
	if cfg.CurrentPhase == awd.PhaseDrying && !cfg.NextPhaseDate.IsZero() &&
		g.clock.Now().After(cfg.NextPhaseDate) {
		need.NeedsIrrigation = true
		need.Reason = awd.NeedDryingDaysExceeded
		return need, nil
	}

	return need, nil
}
