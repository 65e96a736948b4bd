package controller

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/semstreams/component"

	"github.com/paddyops/awd/awd"
	awdconfig "github.com/paddyops/awd/config"
	"github.com/paddyops/awd/processor/stack"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the controller component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "controller",
		Factory:     NewComponent,
		Schema:      controllerSchema,
		Type:        "processor",
		Protocol:    "awd",
		Domain:      "irrigation",
		Description: "Closed-loop AWD decision and irrigation control",
		Version:     "0.1.0",
	})
}

// NewComponent constructs a controller from raw JSON config and deps. It
// builds a private control stack from the controller YAML config; when the
// binary wires several components over one stack, use New instead.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var cfg Config
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	defaults := DefaultConfig()
	if cfg.DecisionInterval == 0 {
		cfg.DecisionInterval = defaults.DecisionInterval
	}
	if cfg.StreamName == "" {
		cfg.StreamName = defaults.StreamName
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = defaults.ConsumerName
	}
	if cfg.Ports == nil {
		cfg.Ports = defaults.Ports
	}

	runtimeCfg, err := awdconfig.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load controller config: %w", err)
	}

	st, err := stack.Build(runtimeCfg, deps.NATSClient, awd.SystemClock(), deps.GetLogger())
	if err != nil {
		return nil, fmt.Errorf("build control stack: %w", err)
	}

	return New(cfg, st, deps.NATSClient, deps.GetLogger())
}
