package controlapi

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/c360studio/semstreams/component"
)

// apiSchema defines the configuration schema.
var apiSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the control API component.
type Config struct {
	// PathPrefix is the URL prefix handlers are registered under.
	PathPrefix string `json:"path_prefix"`

	// ConfigPath points to the controller YAML config; used when the
	// component builds its own stack under the component manager.
	ConfigPath string `json:"config_path,omitempty"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		PathPrefix: "api/awd",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PathPrefix) == "" {
		return fmt.Errorf("path_prefix is required")
	}
	return nil
}
