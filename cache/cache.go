// Package cache holds the controller's live state in NATS JetStream
// key-value buckets: field configurations, active irrigation status, and
// short-lived rainfall observations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/paddyops/awd/awd"
)

// Bucket names. The status and rainfall buckets carry TTLs so stale state
// ages out on its own.
const (
	BucketFieldConfig = "AWD_FIELD_CONFIG"
	BucketStatus      = "AWD_IRRIGATION_STATUS"
	BucketRainfall    = "AWD_RAINFALL"

	statusTTL   = 24 * time.Hour
	rainfallTTL = 5 * time.Minute
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache wraps the three KV buckets.
type Cache struct {
	fieldCfg jetstream.KeyValue
	status   jetstream.KeyValue
	rainfall jetstream.KeyValue
}

// New creates (or binds to) the controller buckets. CreateOrUpdateKeyValue
// is idempotent, so concurrent starts are safe.
func New(nc *natsclient.Client) (*Cache, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}

	ctx := context.Background()

	fieldCfg, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketFieldConfig,
		Description: "Cached per-field AWD configuration",
	})
	if err != nil {
		return nil, fmt.Errorf("create/update kv bucket %s: %w", BucketFieldConfig, err)
	}

	status, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketStatus,
		Description: "Live irrigation status per schedule and field",
		TTL:         statusTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update kv bucket %s: %w", BucketStatus, err)
	}

	rainfall, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketRainfall,
		Description: "Short-lived rainfall observations per field",
		TTL:         rainfallTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update kv bucket %s: %w", BucketRainfall, err)
	}

	return &Cache{fieldCfg: fieldCfg, status: status, rainfall: rainfall}, nil
}

// NewWithBuckets wires pre-built buckets. Used by tests with an in-process
// JetStream or fakes.
func NewWithBuckets(fieldCfg, status, rainfall jetstream.KeyValue) *Cache {
	return &Cache{fieldCfg: fieldCfg, status: status, rainfall: rainfall}
}

// GetFieldConfig returns the cached configuration for a field.
func (c *Cache) GetFieldConfig(ctx context.Context, fieldID string) (awd.FieldConfig, error) {
	entry, err := c.fieldCfg.Get(ctx, fieldID)
	if err != nil {
		return awd.FieldConfig{}, missOr(err, "get field config")
	}
	var cfg awd.FieldConfig
	if err := json.Unmarshal(entry.Value(), &cfg); err != nil {
		return awd.FieldConfig{}, fmt.Errorf("unmarshal field config: %w", err)
	}
	return cfg, nil
}

// PutFieldConfig caches a field configuration.
func (c *Cache) PutFieldConfig(ctx context.Context, cfg awd.FieldConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal field config: %w", err)
	}
	if _, err := c.fieldCfg.Put(ctx, cfg.FieldID, data); err != nil {
		return fmt.Errorf("put field config: %w", err)
	}
	return nil
}

// DeleteFieldConfig drops a field from the cache on deactivation.
func (c *Cache) DeleteFieldConfig(ctx context.Context, fieldID string) error {
	if err := c.fieldCfg.Delete(ctx, fieldID); err != nil &&
		!errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete field config: %w", err)
	}
	return nil
}

// fieldKey maps a field to the schedule currently irrigating it.
func fieldKey(fieldID string) string { return "field_" + fieldID }

// PutStatus stores the live status under the schedule key and points the
// field key at it, so lookups work from either direction.
func (c *Cache) PutStatus(ctx context.Context, st awd.IrrigationStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal irrigation status: %w", err)
	}
	if _, err := c.status.Put(ctx, st.ScheduleID, data); err != nil {
		return fmt.Errorf("put irrigation status: %w", err)
	}
	if _, err := c.status.Put(ctx, fieldKey(st.FieldID), []byte(st.ScheduleID)); err != nil {
		return fmt.Errorf("put field status pointer: %w", err)
	}
	return nil
}

// GetStatus returns the live status for a schedule.
func (c *Cache) GetStatus(ctx context.Context, scheduleID string) (awd.IrrigationStatus, error) {
	entry, err := c.status.Get(ctx, scheduleID)
	if err != nil {
		return awd.IrrigationStatus{}, missOr(err, "get irrigation status")
	}
	var st awd.IrrigationStatus
	if err := json.Unmarshal(entry.Value(), &st); err != nil {
		return awd.IrrigationStatus{}, fmt.Errorf("unmarshal irrigation status: %w", err)
	}
	return st, nil
}

// ActiveScheduleID returns the schedule currently irrigating a field.
func (c *Cache) ActiveScheduleID(ctx context.Context, fieldID string) (string, error) {
	entry, err := c.status.Get(ctx, fieldKey(fieldID))
	if err != nil {
		return "", missOr(err, "get field status pointer")
	}
	return string(entry.Value()), nil
}

// ClearActive removes the field pointer once a run ends. The schedule-keyed
// status entry is left to age out via TTL for post-mortem queries.
func (c *Cache) ClearActive(ctx context.Context, fieldID string) error {
	if err := c.status.Delete(ctx, fieldKey(fieldID)); err != nil &&
		!errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("clear field status pointer: %w", err)
	}
	return nil
}

// GetRainfall returns a cached rainfall observation.
func (c *Cache) GetRainfall(ctx context.Context, fieldID string) (awd.RainfallData, error) {
	entry, err := c.rainfall.Get(ctx, fieldID)
	if err != nil {
		return awd.RainfallData{}, missOr(err, "get rainfall")
	}
	var r awd.RainfallData
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return awd.RainfallData{}, fmt.Errorf("unmarshal rainfall: %w", err)
	}
	return r, nil
}

// PutRainfall caches a rainfall observation for the bucket TTL.
func (c *Cache) PutRainfall(ctx context.Context, r awd.RainfallData) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal rainfall: %w", err)
	}
	if _, err := c.rainfall.Put(ctx, r.FieldID, data); err != nil {
		return fmt.Errorf("put rainfall: %w", err)
	}
	return nil
}

func missOr(err error, op string) error {
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return ErrMiss
	}
	return fmt.Errorf("%s: %w", op, err)
}
