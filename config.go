package scarab

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the settings a Driver needs beyond the entities and
// handlers supplied by application code.
type Config struct {
	// SinkHost and SinkPort configure the reference WebSocket sink's
	// HTTP listener. SinkPort of 0 means no network sink is started.
	SinkHost string `yaml:"sink_host"`
	SinkPort int    `yaml:"sink_port"`

	// StepLengthMS paces Run's real-time delay between simulation
	// steps, in milliseconds. Zero means run as fast as possible.
	StepLengthMS int `yaml:"step_length_ms"`

	// LogLevel is one of debug, info, warn, error. Empty defaults to
	// info.
	LogLevel string `yaml:"log_level"`

	// EventLog is a second sink the router also forwards every event
	// to, in addition to the WebSocket sink. It is a hook only — no
	// file-based log sink ships with this package; callers that want
	// one implement EventSink themselves.
	EventLog EventSink `yaml:"-"`
}

// SinkConfigured reports whether a WebSocket sink listener was
// requested.
func (c *Config) SinkConfigured() bool {
	return c.SinkPort != 0
}

// LoadConfig reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After LoadConfig returns successfully, every field is usable
// without additional nil/zero checks. EventLog is never set by
// LoadConfig since it has no YAML representation; set it on the
// returned Config directly if needed.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by LoadConfig.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SinkHost == "" {
		c.SinkHost = "localhost"
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
func (c *Config) Validate() error {
	if c.SinkConfigured() && (c.SinkPort < 1 || c.SinkPort > 65535) {
		return fmt.Errorf("sink_port %d out of range (1-65535)", c.SinkPort)
	}
	if c.StepLengthMS < 0 {
		return fmt.Errorf("step_length_ms %d must not be negative", c.StepLengthMS)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// DefaultConfig returns a configuration with no sink and an
// as-fast-as-possible step pace, suitable for embedding a simulation in
// a test or a batch job.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
