package tagcheck

import (
	"github.com/hazyhaar/tagqa/tagcheck/internal/config"
)

// Config is the top-level tagqa configuration. Re-exported from internal.
type Config = config.Config

// AirtableConfig points at the spec table.
type AirtableConfig = config.AirtableConfig

// MonitorConfig controls preview monitor runs.
type MonitorConfig = config.MonitorConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return config.Default()
}
