package gatemonitor

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

// Register registers the gate monitor component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "gate-monitor",
		Factory:     NewComponent,
		Schema:      monitorSchema,
		Type:        "processor",
		Protocol:    "gate",
		Domain:      "irrigation",
		Description: "Polls SCADA gate commands for completion",
		Version:     "0.1.0",
	})
}

// NewComponent constructs a gate monitor from raw JSON config and deps. It
// builds a private control stack; when the binary wires several components
// over one stack, use New instead.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var cfg Config
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	defaults := DefaultConfig()
	if cfg.ScanInterval == 0 {
		cfg.ScanInterval = defaults.ScanInterval
	}
	if cfg.CommandWindow == 0 {
		cfg.CommandWindow = defaults.CommandWindow
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

	return New(cfg, st, deps.GetLogger())
}
