package gatemonitor

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/paddyops/awd/events"
)

// monitorSchema defines the configuration schema.
var monitorSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the gate monitor component.
type Config struct {
	// ScanInterval is how often open commands are polled for completion.
	ScanInterval time.Duration `json:"scan_interval"`

	// CommandWindow bounds how far back the scan looks for unconfirmed
	// commands. Older ones are left for operator review.
	CommandWindow time.Duration `json:"command_window"`

	// ConfigPath points to the controller YAML config; used when the
	// component builds its own stack under the component manager.
	ConfigPath string `json:"config_path,omitempty"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		ScanInterval:  30 * time.Second,
		CommandWindow: time.Hour,
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "gate-status",
					Type:        "jetstream",
					Subject:     events.SubjectGateStatus + ".>",
					StreamName:  events.StreamGate,
					Description: "Actuator acknowledgements for completed commands",
					Required:    true,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan_interval must be positive")
	}
	if c.CommandWindow <= 0 {
		return fmt.Errorf("command_window must be positive")
	}
	return nil
}
