/*
Package config handles loading and saving tool-optimizer configuration.

Configuration is stored in ~/.tool-optimizer.json. Every field is optional;
missing values take the defaults below.

Schema:
  {
    "selector": {
      "maxToolsPerTask": 7,
      "successRateThreshold": 0.7
    },
    "router": {
      "cacheTtlMs": 300000,
      "cacheMaxEntries": 1000,
      "redisAddr": "",
      "redisPrefix": "tool-optimizer",
      "poolSize": 0
    },
    "monitor": {
      "responseTimeThresholdMs": 3000,
      "successRateThreshold": 0.8,
      "monitoringIntervalMs": 30000,
      "successRateAlpha": 0.1,
      "responseTimeAlpha": 0.1,
      "resourceProbe": "synthetic"
    },
    "storage": {
      "path": "",
      "disabled": false,
      "retentionDays": 30,
      "replayHours": 24
    },
    "registryFile": "",
    "rulesFile": ""
  }
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

// FileName is the config file name under the user's home directory.
const FileName = ".tool-optimizer.json"

// Resource probes.
const (
	ProbeSynthetic = "synthetic"
	ProbeHost      = "host"
)

// Config represents the root configuration structure.
type Config struct {
	Selector *SelectorConfig `json:"selector,omitempty"`
	Router   *RouterConfig   `json:"router,omitempty"`
	Monitor  *MonitorConfig  `json:"monitor,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`

	// RegistryFile replaces the embedded tool catalog (YAML).
	RegistryFile string `json:"registryFile,omitempty"`

	// RulesFile replaces the embedded scoring rules (TOML).
	RulesFile string `json:"rulesFile,omitempty"`
}

// SelectorConfig tunes tool selection.
type SelectorConfig struct {
	// MaxToolsPerTask limits non-critical selections.
	MaxToolsPerTask int `json:"maxToolsPerTask" validate:"gte=3,lte=50"`

	// SuccessRateThreshold excludes tools at or below this success rate.
	SuccessRateThreshold float64 `json:"successRateThreshold" validate:"gte=0,lte=1"`
}

// RouterConfig tunes server routing.
type RouterConfig struct {
	CacheTTLMs      int64 `json:"cacheTtlMs" validate:"gte=0"`
	CacheMaxEntries int   `json:"cacheMaxEntries" validate:"gte=1"`

	// RedisAddr enables the shared decision cache when set.
	RedisAddr   string `json:"redisAddr,omitempty" validate:"omitempty,hostname_port"`
	RedisPrefix string `json:"redisPrefix,omitempty"`

	// PoolSize bounds connection records; 0 means one per known server.
	PoolSize int `json:"poolSize,omitempty" validate:"gte=0"`
}

// MonitorConfig tunes performance monitoring.
type MonitorConfig struct {
	ResponseTimeThresholdMs float64 `json:"responseTimeThresholdMs" validate:"gt=0"`
	SuccessRateThreshold    float64 `json:"successRateThreshold" validate:"gte=0,lte=1"`
	MonitoringIntervalMs    int64   `json:"monitoringIntervalMs" validate:"gte=100"`
	SuccessRateAlpha        float64 `json:"successRateAlpha" validate:"gt=0,lte=1"`
	ResponseTimeAlpha       float64 `json:"responseTimeAlpha" validate:"gt=0,lte=1"`
	ResourceProbe           string  `json:"resourceProbe,omitempty" validate:"omitempty,oneof=synthetic host"`
}

// StorageConfig controls the SQLite history.
type StorageConfig struct {
	// Path of the database; empty means ~/.tool-optimizer/history.db.
	Path     string `json:"path,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`

	// RetentionDays is how long history is kept.
	RetentionDays int `json:"retentionDays,omitempty" validate:"gte=0"`

	// ReplayHours is how much execution history warms up metrics on start.
	ReplayHours int `json:"replayHours,omitempty" validate:"gte=0"`

	// IndexPath keeps the tool search index on disk. Empty keeps it in
	// memory. A disk index is locked by the process that opened it.
	IndexPath string `json:"indexPath,omitempty"`
}

// NewConfig creates a configuration with all defaults set.
func NewConfig() *Config {
	return &Config{
		Selector: &SelectorConfig{
			MaxToolsPerTask:      7,
			SuccessRateThreshold: 0.7,
		},
		Router: &RouterConfig{
			CacheTTLMs:      300000,
			CacheMaxEntries: 1000,
			RedisPrefix:     "tool-optimizer",
		},
		Monitor: &MonitorConfig{
			ResponseTimeThresholdMs: 3000,
			SuccessRateThreshold:    0.8,
			MonitoringIntervalMs:    30000,
			SuccessRateAlpha:        0.1,
			ResponseTimeAlpha:       0.1,
			ResourceProbe:           ProbeSynthetic,
		},
		Storage: &StorageConfig{
			RetentionDays: 30,
			ReplayHours:   24,
		},
	}
}

// ApplyDefaults fills missing sections with their defaults.
func (c *Config) ApplyDefaults() *Config {
	def := NewConfig()
	if c.Selector == nil {
		c.Selector = def.Selector
	}
	if c.Router == nil {
		c.Router = def.Router
	}
	if c.Monitor == nil {
		c.Monitor = def.Monitor
	}
	if c.Storage == nil {
		c.Storage = def.Storage
	}
	if c.Router.RedisPrefix == "" {
		c.Router.RedisPrefix = def.Router.RedisPrefix
	}
	if c.Monitor.ResourceProbe == "" {
		c.Monitor.ResourceProbe = ProbeSynthetic
	}
	return c
}

// CacheTTL returns the routing cache TTL.
func (r *RouterConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLMs) * time.Millisecond
}

// MonitoringInterval returns the monitoring cycle period.
func (m *MonitorConfig) MonitoringInterval() time.Duration {
	return time.Duration(m.MonitoringIntervalMs) * time.Millisecond
}

// Retention returns the history retention period.
func (s *StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// ReplayWindow returns how far back history is replayed on start.
func (s *StorageConfig) ReplayWindow() time.Duration {
	return time.Duration(s.ReplayHours) * time.Hour
}

// GetDefaultConfigPath returns the path to ~/.tool-optimizer.json
func GetDefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, FileName), nil
}

// Load reads the configuration from the default path.
func Load() (*Config, error) {
	configPath, err := GetDefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}
