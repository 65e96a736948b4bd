package controller

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/paddyops/awd/events"
)

// controllerSchema defines the configuration schema.
var controllerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the controller component.
type Config struct {
	// DecisionInterval is how often every active field is re-evaluated.
	DecisionInterval time.Duration `json:"decision_interval"`

	// DisableAutoExecute stops the controller from carrying out its own
	// start/stop decisions; it then only publishes them.
	DisableAutoExecute bool `json:"disable_auto_execute,omitempty"`

	// StreamName is the JetStream stream carrying control command requests.
	StreamName string `json:"stream_name"`

	// ConsumerName is the durable consumer for command requests.
	ConsumerName string `json:"consumer_name"`

	// ConfigPath points to the controller YAML config; used when the
	// component builds its own stack under the component manager.
	ConfigPath string `json:"config_path,omitempty"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DecisionInterval: 30 * time.Minute,
		StreamName:       events.StreamAWD,
		ConsumerName:     "awd-controller",
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "command-requests",
					Type:        "jetstream",
					Subject:     events.SubjectControlCommands + ".evaluate.>",
					StreamName:  events.StreamAWD,
					Description: "Evaluate and stop requests for fields",
					Required:    true,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "decisions",
					Type:        "jetstream",
					Subject:     events.SubjectControlCommands + ".>",
					StreamName:  events.StreamAWD,
					Description: "Control decision mirror",
					Required:    true,
				},
				{
					Name:        "irrigation-events",
					Type:        "jetstream",
					Subject:     events.SubjectIrrigation + ".>",
					StreamName:  events.StreamAWD,
					Description: "Irrigation lifecycle events",
					Required:    true,
				},
				{
					Name:        "alerts",
					Type:        "jetstream",
					Subject:     events.SubjectAlerts + ".>",
					StreamName:  events.StreamAWD,
					Description: "Operator notifications",
					Required:    true,
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DecisionInterval <= 0 {
		return fmt.Errorf("decision_interval must be positive")
	}
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	return nil
}
