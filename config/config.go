// Package config provides loading and parsing of mnemon.yaml configuration
// files. Configuration tunes compaction, session lifecycle, context
// assembly, and the persistence backend; every field has a working
// default so a nil or empty config is fully usable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when a field is unset or invalid.
const (
	DefaultSummarizeThreshold = 80
	DefaultKeepRecent         = 24
	DefaultMaxSummaries       = 20
	DefaultContextSummaries   = 2
	DefaultContextTurns       = 6
	DefaultInactivityTimeout  = 30 * time.Minute
)

// Config represents a mnemon.yaml configuration file.
type Config struct {
	// Compaction settings
	Compaction *CompactionConfig `yaml:"compaction,omitempty"`

	// Session lifecycle settings
	Session *SessionConfig `yaml:"session,omitempty"`

	// Context assembly settings
	Context *ContextConfig `yaml:"context,omitempty"`

	// Persistence backend settings
	Persistence *PersistenceConfig `yaml:"persistence,omitempty"`
}

// CompactionConfig tunes when and how the turn log is folded into
// summaries.
type CompactionConfig struct {
	// SummarizeThreshold is the turn count at which compaction runs.
	// Default: 80
	SummarizeThreshold int `yaml:"summarize_threshold,omitempty"`

	// KeepRecent is the number of most recent turns that survive a
	// compaction. Must be smaller than SummarizeThreshold.
	// Default: 24
	KeepRecent int `yaml:"keep_recent,omitempty"`

	// MaxSummaries bounds the summary archive; the oldest summary is
	// evicted when a new one would exceed it.
	// Default: 20
	MaxSummaries int `yaml:"max_summaries,omitempty"`
}

// SessionConfig tunes session lifecycle behavior.
type SessionConfig struct {
	// InactivityTimeout is how long a session may sit idle before it is
	// considered stale and rotated on the next interaction.
	// Format: Go duration string (e.g., "30m", "1h")
	// Default: 30m
	InactivityTimeout string `yaml:"inactivity_timeout,omitempty"`
}

// ContextConfig tunes how much history the assembled context includes.
type ContextConfig struct {
	// Summaries is the number of most recent archive summaries rendered.
	// Default: 2
	Summaries int `yaml:"summaries,omitempty"`

	// Turns is the number of most recent turns rendered.
	// Default: 6
	Turns int `yaml:"turns,omitempty"`
}

// PersistenceConfig selects and configures the key-value backend.
type PersistenceConfig struct {
	// Backend is "redis", "etcd", or "none".
	// Default: "none"
	Backend string `yaml:"backend,omitempty"`

	// URL is the Redis connection string (e.g., "redis://localhost:6379").
	// Used when Backend is "redis".
	URL string `yaml:"url,omitempty"`

	// Endpoints lists etcd cluster endpoints. Used when Backend is "etcd".
	Endpoints []string `yaml:"endpoints,omitempty"`
}

// GetSummarizeThreshold returns the configured threshold or the default.
func (c *CompactionConfig) GetSummarizeThreshold() int {
	if c == nil || c.SummarizeThreshold <= 0 {
		return DefaultSummarizeThreshold
	}
	return c.SummarizeThreshold
}

// GetKeepRecent returns the configured keep-recent count or the default.
// A value that is not smaller than the threshold falls back to the
// default to preserve the compaction invariant.
func (c *CompactionConfig) GetKeepRecent() int {
	if c == nil || c.KeepRecent <= 0 {
		return DefaultKeepRecent
	}
	if c.KeepRecent >= c.GetSummarizeThreshold() {
		return DefaultKeepRecent
	}
	return c.KeepRecent
}

// GetMaxSummaries returns the configured archive bound or the default.
func (c *CompactionConfig) GetMaxSummaries() int {
	if c == nil || c.MaxSummaries <= 0 {
		return DefaultMaxSummaries
	}
	return c.MaxSummaries
}

// GetInactivityTimeout parses the timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (s *SessionConfig) GetInactivityTimeout() time.Duration {
	if s == nil || s.InactivityTimeout == "" {
		return DefaultInactivityTimeout
	}
	d, err := time.ParseDuration(s.InactivityTimeout)
	if err != nil || d <= 0 {
		return DefaultInactivityTimeout
	}
	return d
}

// GetSummaries returns the configured summary count or the default.
func (c *ContextConfig) GetSummaries() int {
	if c == nil || c.Summaries <= 0 {
		return DefaultContextSummaries
	}
	return c.Summaries
}

// GetTurns returns the configured turn count or the default.
func (c *ContextConfig) GetTurns() int {
	if c == nil || c.Turns <= 0 {
		return DefaultContextTurns
	}
	return c.Turns
}

// GetBackend returns the configured backend name or "none".
func (p *PersistenceConfig) GetBackend() string {
	if p == nil || p.Backend == "" {
		return "none"
	}
	return p.Backend
}

// Validate reports configuration errors that defaults cannot paper over.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Compaction != nil && c.Compaction.KeepRecent > 0 &&
		c.Compaction.KeepRecent >= c.Compaction.GetSummarizeThreshold() {
		return fmt.Errorf("compaction.keep_recent (%d) must be smaller than compaction.summarize_threshold (%d)",
			c.Compaction.KeepRecent, c.Compaction.GetSummarizeThreshold())
	}
	if c.Session != nil && c.Session.InactivityTimeout != "" {
		if _, err := time.ParseDuration(c.Session.InactivityTimeout); err != nil {
			return fmt.Errorf("session.inactivity_timeout: %w", err)
		}
	}
	if c.Persistence != nil {
		switch c.Persistence.GetBackend() {
		case "none", "redis", "etcd":
		default:
			return fmt.Errorf("persistence.backend must be one of none, redis, etcd (got %q)",
				c.Persistence.Backend)
		}
		if c.Persistence.GetBackend() == "etcd" && len(c.Persistence.Endpoints) == 0 {
			return fmt.Errorf("persistence.backend etcd requires at least one endpoint")
		}
	}
	return nil
}

// Load reads and parses a mnemon.yaml file from the given path.
// If the path is a directory, it looks for mnemon.yaml or mnemon.yml in
// that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var configPath string
	if info.IsDir() {
		yamlPath := filepath.Join(path, "mnemon.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "mnemon.yml")
			if _, err := os.Stat(ymlPath); err == nil {
				configPath = ymlPath
			} else {
				return nil, fmt.Errorf("no mnemon.yaml or mnemon.yml found in %s", path)
			}
		}
	} else {
		configPath = path
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
