// CLAUDE:SUMMARY Defines tagqa config structs and parses YAML configuration files with ${ENV} expansion and defaults.
// Package config handles tagqa configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level tagqa configuration.
type Config struct {
	Browser       BrowserConfig  `yaml:"browser"`
	Airtable      AirtableConfig `yaml:"airtable"`
	Examine       ExamineConfig  `yaml:"examine"`
	Monitor       MonitorConfig  `yaml:"monitor"`
	Sinks         []SinkConfig   `yaml:"sinks"`
	HTTP          HTTPConfig     `yaml:"http"`
	History       HistoryConfig  `yaml:"history"`
	RecordingsDir string         `yaml:"recordings_dir"`
}

// BrowserConfig controls Chrome lifecycle and page observation.
type BrowserConfig struct {
	Remote           string         `yaml:"remote"`
	Headful          bool           `yaml:"headful"`
	PreviewHeadful   *bool          `yaml:"preview_headful"`
	XvfbDisplay      string         `yaml:"xvfb_display"`
	UserAgent        string         `yaml:"user_agent"`
	ResourceBlocking []string       `yaml:"resource_blocking"`
	NavigateTimeout  time.Duration  `yaml:"navigate_timeout"`
	IdleWindow       time.Duration  `yaml:"idle_window"`
	StepTimeout      time.Duration  `yaml:"step_timeout"`
	Tracking         TrackingConfig `yaml:"tracking"`
}

// TrackingConfig selects the tracking requests read during a monitor run.
type TrackingConfig struct {
	Pattern string `yaml:"pattern"` // regexp on the request URL
	Param   string `yaml:"param"`   // query parameter holding the id
}

// AirtableConfig points at the spec table and names its fields.
type AirtableConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Token       string        `yaml:"token"` // usually ${AIRTABLE_TOKEN}
	BaseID      string        `yaml:"base_id"`
	TableID     string        `yaml:"table_id"`
	View        string        `yaml:"view"`
	MinInterval time.Duration `yaml:"min_interval"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Fields      FieldsConfig  `yaml:"fields"`
}

// FieldsConfig maps spec record attributes to table field names.
type FieldsConfig struct {
	URL       string `yaml:"url"`
	Spec      string `yaml:"spec"`
	Recording string `yaml:"recording"`
	Result    string `yaml:"result"`
}

// ExamineConfig controls the examination and write-back pools.
type ExamineConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	CollectTimeout   time.Duration `yaml:"collect_timeout"`
	StrictValueMatch bool          `yaml:"strict_value_match"`
	BatchSize        int           `yaml:"batch_size"`
	BatchConcurrency int           `yaml:"batch_concurrency"`
	BatchTimeout     time.Duration `yaml:"batch_timeout"`
}

// MonitorConfig controls preview monitor runs.
type MonitorConfig struct {
	Policy         string        `yaml:"policy"` // reopen | keep
	Loops          int           `yaml:"loops"`
	Interval       time.Duration `yaml:"interval"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type          string `yaml:"type"` // stdout | webhook
	URL           string `yaml:"url"`  // for webhook
	AnomaliesOnly bool   `yaml:"anomalies_only"`
	Retries       int    `yaml:"retries"`
}

// HTTPConfig controls the API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// TokenHash is the bcrypt hash of the bearer token. Empty disables auth.
	TokenHash string `yaml:"token_hash"`
	// RateLimit caps browser-driving requests per client and minute.
	// Negative disables the limit. Default: 30.
	RateLimit int `yaml:"rate_limit"`
}

// HistoryConfig locates the run history database.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Load(data)
}

// Load parses YAML configuration. ${VAR} references are expanded from the
// environment before parsing.
func Load(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), os.Getenv)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Airtable.Token == "" {
		c.Airtable.Token = os.Getenv("AIRTABLE_TOKEN")
	}
	if c.Airtable.Fields.URL == "" {
		c.Airtable.Fields.URL = "URL"
	}
	if c.Airtable.Fields.Spec == "" {
		c.Airtable.Fields.Spec = "Code Specs"
	}
	if c.Airtable.Fields.Recording == "" {
		c.Airtable.Fields.Recording = "Recording"
	}
	if c.Airtable.Fields.Result == "" {
		c.Airtable.Fields.Result = "Checking result"
	}
	if c.Examine.Concurrency <= 0 {
		c.Examine.Concurrency = 5
	}
	if c.Examine.CollectTimeout <= 0 {
		c.Examine.CollectTimeout = 60 * time.Second
	}
	if c.Examine.BatchSize <= 0 {
		c.Examine.BatchSize = 10
	}
	if c.Examine.BatchConcurrency <= 0 {
		c.Examine.BatchConcurrency = 2
	}
	if c.Monitor.Policy == "" {
		c.Monitor.Policy = "reopen"
	}
	if c.Monitor.Loops <= 0 {
		c.Monitor.Loops = 3
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 30
	}
	if c.History.Path == "" {
		c.History.Path = "data/tagqa.db"
	}
	if c.RecordingsDir == "" {
		c.RecordingsDir = "recordings"
	}
}

func (c *Config) validate() error {
	if c.Examine.BatchSize > 10 {
		return fmt.Errorf("config: examine.batch_size %d exceeds the store limit of 10", c.Examine.BatchSize)
	}
	switch c.Monitor.Policy {
	case "reopen", "keep":
	default:
		return fmt.Errorf("config: monitor.policy %q: want reopen or keep", c.Monitor.Policy)
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs a url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}
