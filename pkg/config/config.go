// Package config loads and saves the YAML configuration used by the CLI
// and the HTTP API.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gregorycollins/riegeli/pkg/projection"
	"github.com/gregorycollins/riegeli/pkg/records"
)

// Config is the top-level configuration.
type Config struct {
	File     string   `yaml:"file"`
	Reader   Reader   `yaml:"reader"`
	Recovery Recovery `yaml:"recovery"`
	API      API      `yaml:"api"`
}

// Reader configures how records are decoded.
type Reader struct {
	// Projection lists field paths to keep when decoding transposed
	// chunks, e.g. "1" or "2.3"; a path ending in "!" keeps only the
	// field's presence. Empty keeps every field.
	Projection []string `yaml:"projection"`
}

// Recovery selects what happens at damaged regions.
type Recovery struct {
	// Mode is "fail" (stop at the first damage) or "skip" (bridge
	// damaged regions and keep reading).
	Mode string `yaml:"mode"`
}

// API configures the HTTP server.
type API struct {
	Port   int    `yaml:"port"`
	Bind   string `yaml:"bind"`
	APIKey string `yaml:"api_key"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Recovery: Recovery{Mode: "fail"},
		API: API{
			Port: 9300,
			Bind: "127.0.0.1",
		},
	}
}

// LoadConfig loads configuration from the specified path.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to the specified path.
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Recovery.Mode {
	case "", "fail", "skip":
	default:
		return fmt.Errorf("invalid recovery mode: %q", c.Recovery.Mode)
	}
	if _, err := c.FieldProjection(); err != nil {
		return err
	}
	return nil
}

// FieldProjection parses the configured projection paths.
func (c *Config) FieldProjection() (projection.Projection, error) {
	if len(c.Reader.Projection) == 0 {
		return projection.All(), nil
	}
	paths := make([]projection.Path, 0, len(c.Reader.Projection))
	for _, spec := range c.Reader.Projection {
		path, err := ParseProjectionPath(spec)
		if err != nil {
			return projection.Projection{}, err
		}
		paths = append(paths, path)
	}
	return projection.Of(paths...), nil
}

// ParseProjectionPath parses a dotted tag path such as "2.3", with an
// optional trailing "!" keeping only the field's presence.
func ParseProjectionPath(spec string) (projection.Path, error) {
	existenceOnly := strings.HasSuffix(spec, "!")
	spec = strings.TrimSuffix(spec, "!")
	parts := strings.Split(spec, ".")
	tags := make([]uint32, 0, len(parts))
	for _, part := range parts {
		tag, err := strconv.ParseUint(part, 10, 32)
		if err != nil || tag == 0 {
			return projection.Path{}, fmt.Errorf("invalid projection path %q", spec)
		}
		tags = append(tags, uint32(tag))
	}
	return projection.Path{Tags: tags, ExistenceOnly: existenceOnly}, nil
}

// ReaderOptions builds the record reader options for this configuration.
// onSkip, when not nil, observes each skipped region in "skip" mode.
func (c *Config) ReaderOptions(onSkip func(records.SkippedRegion)) (records.ReaderOptions, error) {
	proj, err := c.FieldProjection()
	if err != nil {
		return records.ReaderOptions{}, err
	}
	options := records.ReaderOptions{FieldProjection: proj}
	if c.Recovery.Mode == "skip" {
		options.Recovery = func(region records.SkippedRegion) bool {
			if onSkip != nil {
				onSkip(region)
			}
			return true
		}
	}
	return options, nil
}
