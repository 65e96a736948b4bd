// Package stack wires the AWD control stack — store, caches, gateways,
// learner, runner, and decision engine — from runtime configuration. The
// controller, gate-monitor, and control-api components share one Stack per
// process so the runner's active-run registry has a single owner.
package stack

import (
	"fmt"
	"log/slog"

	"github.com/c360studio/semstreams/natsclient"

	"github.com/paddyops/awd/awd"
	"github.com/paddyops/awd/cache"
	"github.com/paddyops/awd/config"
	"github.com/paddyops/awd/decision"
	"github.com/paddyops/awd/events"
	"github.com/paddyops/awd/fieldcfg"
	"github.com/paddyops/awd/gate"
	"github.com/paddyops/awd/hydraulic"
	"github.com/paddyops/awd/learn"
	"github.com/paddyops/awd/runner"
	"github.com/paddyops/awd/sensor"
	"github.com/paddyops/awd/store"
)

// Stack is the assembled control plane.
type Stack struct {
	Store     *store.DB
	Cache     *cache.Cache
	Publisher *events.Publisher
	Sensors   *sensor.Gateway
	Gates     *gate.Gateway
	Fields    *fieldcfg.Store
	Learner   *learn.Learner
	Runner    *runner.Runner
	Engine    *decision.Engine
	Clock     awd.Clock
}

// Build assembles the stack. The NATS client is required: the KV buckets
// back the field config cache and the live irrigation status.
func Build(cfg *config.Config, nc *natsclient.Client, clock awd.Clock, logger *slog.Logger) (*Stack, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats client required")
	}

	db, err := store.Open(cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	kv, err := cache.New(nc)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache buckets: %w", err)
	}

	publisher := events.NewPublisher(nc, logger)

	var weather sensor.WeatherProvider
	if cfg.Weather.Enabled {
		weather = sensor.NewWeatherClient(cfg.Weather.BaseURL, cfg.Weather.APIKey)
	}
	sensors := sensor.New(db, kv, weather, nil, clock, logger)

	var flowModel gate.FlowModel
	if cfg.Hydraulic.Enabled {
		flowModel = hydraulic.New(cfg.Hydraulic.BaseURL, cfg.Hydraulic.Token)
	}
	actuator := gate.NewSCADAClient(cfg.SCADA.BaseURL, cfg.SCADA.APIKey)
	gates := gate.New(db, actuator, flowModel, publisher, clock, logger)

	fields := fieldcfg.New(db, kv, publisher, clock, logger)
	learner := learn.New(db, clock, logger)
	run := runner.New(db, kv, sensors, gates, publisher, clock, logger)
	engine := decision.New(fields, sensors, learner, run, publisher, clock, logger)

	return &Stack{
		Store:     db,
		Cache:     kv,
		Publisher: publisher,
		Sensors:   sensors,
		Gates:     gates,
		Fields:    fields,
		Learner:   learner,
		Runner:    run,
		Engine:    engine,
		Clock:     clock,
	}, nil
}

// Close releases the stack's persistent resources.
func (s *Stack) Close() error {
	return s.Store.Close()
}
