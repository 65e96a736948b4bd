package fieldcfg

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/cache"
	"github.com/paddyops/awd/events"
	"github.com/paddyops/awd/store"
)

type fakeDB struct {
	rows        map[string]awd.FieldConfig
	inserted    int
	updates     int
	deactivated int
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: map[string]awd.FieldConfig{}}
}

func (f *fakeDB) GetFieldConfig(_ context.Context, fieldID string) (awd.FieldConfig, error) {
	cfg, ok := f.rows[fieldID]
	if !ok {
		return awd.FieldConfig{}, store.ErrNotFound
	}
	return cfg, nil
}

func (f *fakeDB) InsertFieldConfig(_ context.Context, cfg awd.FieldConfig) error {
	f.rows[cfg.FieldID] = cfg
	f.inserted++
	return nil
}

func (f *fakeDB) UpdateFieldProgress(_ context.Context, fieldID string, week int, phase awd.Phase, target float64) error {
	cfg, ok := f.rows[fieldID]
	if !ok {
		return store.ErrNotFound
	}
	cfg.CurrentWeek = week
	cfg.CurrentPhase = phase
	cfg.TargetWaterLevelCm = target
	f.rows[fieldID] = cfg
	f.updates++
	return nil
}

func (f *fakeDB) DeactivateField(_ context.Context, fieldID string) error {
	cfg, ok := f.rows[fieldID]
	if !ok {
		return store.ErrNotFound
	}
	cfg.IsActive = false
	f.rows[fieldID] = cfg
	f.deactivated++
	return nil
}

func (f *fakeDB) ListActiveFields(context.Context) ([]string, error) {
	var ids []string
	for id, cfg := range f.rows {
		if cfg.IsActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeKV struct {
	entries map[string]awd.FieldConfig
	puts    int
	gets    int
}

func newFakeKV() *fakeKV {
	return &fakeKV{entries: map[string]awd.FieldConfig{}}
}

func (f *fakeKV) GetFieldConfig(_ context.Context, fieldID string) (awd.FieldConfig, error) {
	f.gets++
	cfg, ok := f.entries[fieldID]
	if !ok {
		return awd.FieldConfig{}, cache.ErrMiss
	}
	return cfg, nil
}

func (f *fakeKV) PutFieldConfig(_ context.Context, cfg awd.FieldConfig) error {
	f.entries[cfg.FieldID] = cfg
	f.puts++
	return nil
}

func (f *fakeKV) DeleteFieldConfig(_ context.Context, fieldID string) error {
	delete(f.entries, fieldID)
	return nil
}

func newTestStore(db *fakeDB, kv *fakeKV, clock awd.Clock) *Store {
	pub := events.NewPublisher(nil, slog.Default())
	return New(db, kv, pub, clock, slog.Default())
}

func TestInitialize(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := &awd.FixedClock{T: start}
	db := newFakeDB()
	kv := newFakeKV()
	s := newTestStore(db, kv, clock)

	cfg, err := s.Initialize(context.Background(), "field-1", awd.PlantingTransplanted, start)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.CurrentWeek)
	assert.Equal(t, awd.PhasePreparation, cfg.CurrentPhase)
	assert.Equal(t, 10.0, cfg.TargetWaterLevelCm)
	assert.Equal(t, start.AddDate(0, 0, 7), cfg.NextPhaseDate)
	assert.True(t, cfg.IsActive)
	assert.Equal(t, 1, db.inserted)
	assert.Equal(t, 1, kv.puts, "initialization must warm the cache")
}

func TestInitialize_MidSeasonStart(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := &awd.FixedClock{T: start.AddDate(0, 0, 30)} // week 4
	s := newTestStore(newFakeDB(), newFakeKV(), clock)

	cfg, err := s.Initialize(context.Background(), "field-1", awd.PlantingTransplanted, start)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.CurrentWeek)
	assert.Equal(t, awd.PhaseWetting, cfg.CurrentPhase)
}

func TestInitialize_AlreadyActive(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := &awd.FixedClock{T: start}
	s := newTestStore(newFakeDB(), newFakeKV(), clock)

	_, err := s.Initialize(context.Background(), "field-1", awd.PlantingTransplanted, start)
	require.NoError(t, err)
	_, err = s.Initialize(context.Background(), "field-1", awd.PlantingTransplanted, start)
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestInitialize_InvalidMethod(t *testing.T) {
	clock := &awd.FixedClock{T: time.Now()}
	s := newTestStore(newFakeDB(), newFakeKV(), clock)

	_, err := s.Initialize(context.Background(), "field-1", "broadcast", time.Now())
	assert.Error(t, err)
}

func TestGet_CacheMissFallsThrough(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := &awd.FixedClock{T: start}
	db := newFakeDB()
	kv := newFakeKV()
	s := newTestStore(db, kv, clock)

	_, err := s.Initialize(context.Background(), "field-1", awd.PlantingTransplanted, start)
	require.NoError(t, err)

	// Drop the cache entry; Get must reload from the store and re-warm.
	require.NoError(t, kv.DeleteFieldConfig(context.Background(), "field-1"))
	cfg, err := s.Get(context.Background(), "field-1")
	require.NoError(t, err)
	assert.Equal(t, awd.PhasePreparation, cfg.CurrentPhase)
	assert.Equal(t, start.AddDate(0, 0, 7), cfg.NextPhaseDate, "derived next phase date must survive a cache miss")
	assert.Contains(t, kv.entries, "field-1")
}

func TestGet_Unknown(t *testing.T) {
	clock := &awd.FixedClock{T: time.Now()}
	s := newTestStore(newFakeDB(), newFakeKV(), clock)

	_, err := s.Get(context.Background(), "field-9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdvance_PhaseTransition(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := &awd.FixedClock{T: start}
	db := newFakeDB()
	s := newTestStore(db, newFakeKV(), clock)

	_, err := s.Initialize(context.Background(), "field-1", awd.PlantingTransplanted, start)
	require.NoError(t, err)

	// Week 3 is the first drying cycle.
	clock.T = start.AddDate(0, 0, 22)
	cfg, err := s.Advance(context.Background(), "field-1")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.CurrentWeek)
	assert.Equal(t, awd.PhaseDrying, cfg.CurrentPhase)
	assert.Equal(t, -10.0, cfg.TargetWaterLevelCm)
	assert.Equal(t, 1, db.updates)
}

func TestAdvance_IdempotentWithinWeek(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := &awd.FixedClock{T: start}
	db := newFakeDB()
	s := newTestStore(db, newFakeKV(), clock)

	_, err := s.Initialize(context.Background(), "field-1", awd.PlantingTransplanted, start)
	require.NoError(t, err)

	clock.T = start.AddDate(0, 0, 22)
	first, err := s.Advance(context.Background(), "field-1")
	require.NoError(t, err)
	second, err := s.Advance(context.Background(), "field-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, db.updates, "a repeated advance in the same week must not write again")
}

func TestAdvance_NoChangeAtWeekZero(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := &awd.FixedClock{T: start.AddDate(0, 0, 3)}
	db := newFakeDB()
	s := newTestStore(db, newFakeKV(), clock)

	_, err := s.Initialize(context.Background(), "field-1", awd.PlantingTransplanted, start)
	require.NoError(t, err)

	cfg, err := s.Advance(context.Background(), "field-1")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.CurrentWeek)
	assert.Zero(t, db.updates)
}

func TestDeactivate(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := &awd.FixedClock{T: start}
	db := newFakeDB()
	kv := newFakeKV()
	s := newTestStore(db, kv, clock)

	_, err := s.Initialize(context.Background(), "field-1", awd.PlantingTransplanted, start)
	require.NoError(t, err)

	require.NoError(t, s.Deactivate(context.Background(), "field-1"))
	assert.NotContains(t, kv.entries, "field-1")

	_, err = s.Get(context.Background(), "field-1")
	assert.ErrorIs(t, err, ErrNotFound, "deactivated fields must read as not configured")

	// A new season may re-initialize the same field.
	_, err = s.Initialize(context.Background(), "field-1", awd.PlantingDirectSeeded, clock.Now())
	assert.NoError(t, err)
}

func TestDeactivate_Unknown(t *testing.T) {
	clock := &awd.FixedClock{T: time.Now()}
	s := newTestStore(newFakeDB(), newFakeKV(), clock)

	err := s.Deactivate(context.Background(), "field-9")
	assert.ErrorIs(t, err, ErrNotFound)
}
