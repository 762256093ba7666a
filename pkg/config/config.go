// Package config loads the launcher configuration and the per-agent
// project files from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentwire-dev/agentwire/executor"
)

// AgentFileName is the project file expected in every agent directory.
const AgentFileName = "agentwire.yaml"

// maxFileSize caps how much YAML a config file may hold. Configuration
// files are human-written; anything past this is a mistake or an attack.
const maxFileSize = 1 << 20

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file %s too large: %d bytes (limit %d)", path, info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// Config represents the launcher configuration.
type Config struct {
	// Executor selects the execution strategy and failure reaction.
	Executor ExecutorConfig `yaml:"executor"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Store selects the dialogue storage backend.
	Store StoreConfig `yaml:"store"`

	// AgentDirs lists the agent project directories to launch.
	AgentDirs []string `yaml:"agent_dirs"`
}

// ExecutorConfig holds the executor settings.
type ExecutorConfig struct {
	Mode       string `yaml:"mode"`        // thread, cooperative, process
	FailPolicy string `yaml:"fail_policy"` // propagate, stop_all, log_only
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// StoreConfig holds the dialogue store settings.
type StoreConfig struct {
	Backend string      `yaml:"backend"` // memory, redis
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds the Redis store settings.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
	TTL      Duration `yaml:"ttl"`
}

// Duration adds YAML support for "90s"/"1h"-style duration strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// AgentConfig holds the configuration of a single agent project.
type AgentConfig struct {
	Name            string         `yaml:"name"`
	Address         string         `yaml:"address"`
	Behavior        string         `yaml:"behavior"`
	Transport       string         `yaml:"transport"`
	TransportConfig map[string]any `yaml:"transport_config"`
	Settings        map[string]any `yaml:"settings"`
}

// LoadConfig loads the launcher configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Executor.Mode == "" {
		cfg.Executor.Mode = string(executor.ModeThread)
	}
	if cfg.Executor.FailPolicy == "" {
		cfg.Executor.FailPolicy = executor.Propagate.String()
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}

	// Redis credentials may come from the environment instead of the file.
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = os.Getenv("AGENTWIRE_REDIS_ADDR")
	}
	if cfg.Store.Redis.Password == "" {
		cfg.Store.Redis.Password = os.Getenv("AGENTWIRE_REDIS_PASSWORD")
	}
}

// SaveConfig saves the launcher configuration to a YAML file.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := executor.ParseMode(c.Executor.Mode); err != nil {
		return err
	}
	if _, err := executor.ParseFailPolicy(c.Executor.FailPolicy); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store backend redis requires an address")
		}
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}

	return nil
}

// LoadAgent loads the agent project file from an agent directory.
func LoadAgent(dir string) (*AgentConfig, error) {
	path := filepath.Join(dir, AgentFileName)
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse agent config %s: %w", path, err)
	}

	if cfg.Name == "" {
		return nil, fmt.Errorf("agent config %s: name is required", path)
	}
	if cfg.Behavior == "" {
		return nil, fmt.Errorf("agent config %s: behavior is required", path)
	}
	if cfg.Address == "" {
		cfg.Address = cfg.Name
	}
	if cfg.Transport == "" {
		cfg.Transport = "file"
	}
	if cfg.TransportConfig == nil {
		cfg.TransportConfig = map[string]any{}
	}

	return &cfg, nil
}
